package gateway

import "errors"

// Sentinel errors for the gateway lifecycle.
var (
	ErrAlreadyConnected = errors.New("gateway: connect called while a socket is already active")
	ErrNoToken          = errors.New("gateway: no token configured")
	ErrSocketClosed     = errors.New("gateway: send attempted on a closed socket")

	errMissedHeartbeatAck   = errors.New("server didn't acknowledge previous heartbeat")
	errConnectionTimedOut   = errors.New("timed out waiting for the gateway to become ready")
)

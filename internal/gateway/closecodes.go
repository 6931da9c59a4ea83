package gateway

import "fmt"

// closeAction is the policy classification for a close code.
type closeAction int

const (
	actionReconnect closeAction = iota
	actionReconnectDropSession
	actionReconnectDropSeq
	actionFatal
)

// closeVerdict is what classifyClose returns: whether to reconnect, what
// session state to drop, and the error to surface.
type closeVerdict struct {
	action closeAction
	err    error
}

// classifyClose maps a numeric close code and reason to the retry policy.
// "Fatal" means disconnect without re-arming the reconnect timer; the
// caller must explicitly re-invoke connect().
func classifyClose(code int, reason string) closeVerdict {
	switch code {
	case 1000:
		return closeVerdict{action: actionReconnect, err: nil}
	case 1006:
		return closeVerdict{action: actionReconnect, err: fmt.Errorf("connection reset by peer")}
	case 4001:
		return closeVerdict{action: actionReconnect, err: fmt.Errorf("invalid op")}
	case 4002:
		return closeVerdict{action: actionReconnect, err: fmt.Errorf("invalid message")}
	case 4003:
		return closeVerdict{action: actionReconnect, err: fmt.Errorf("not authenticated")}
	case 4004:
		return closeVerdict{action: actionFatal, err: fmt.Errorf("authentication failed")}
	case 4005:
		return closeVerdict{action: actionReconnect, err: fmt.Errorf("already authenticated")}
	case 4006, 4009:
		return closeVerdict{action: actionReconnectDropSession, err: fmt.Errorf("invalid session")}
	case 4007:
		return closeVerdict{action: actionReconnectDropSeq, err: fmt.Errorf("invalid sequence")}
	case 4008:
		return closeVerdict{action: actionReconnect, err: fmt.Errorf("rate limited")}
	case 4010:
		return closeVerdict{action: actionFatal, err: fmt.Errorf("invalid shard key")}
	case 4011:
		return closeVerdict{action: actionFatal, err: fmt.Errorf("too many guilds")}
	default:
		if reason != "" {
			return closeVerdict{action: actionReconnect, err: fmt.Errorf("%d: %s", code, reason)}
		}
		return closeVerdict{action: actionReconnect, err: nil}
	}
}

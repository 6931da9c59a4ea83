package gateway

import "context"

// ReadyState mirrors the WebSocket readyState contract the core depends on.
type ReadyState int

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosing
	StateClosed
)

// MessageKind distinguishes a binary frame (possibly compressed) from a
// text frame.
type MessageKind int

const (
	MessageBinary MessageKind = iota
	MessageText
)

// TransportHandle is the abstract socket capability the core consumes; it
// never touches a concrete WebSocket library directly. Two
// implementations ship with this module: transport_gorilla.go (default)
// and transport_gobwas.go (low-level, zero-copy framing).
type TransportHandle interface {
	Send(kind MessageKind, data []byte) error
	Close(code int) error
	Terminate() error
	ReadyState() ReadyState
}

// TransportEvents is the set of callbacks a TransportHandle drives; the
// core registers exactly one set per socket and never re-enters them
// concurrently — all callbacks are serialized onto the session's single
// logical task.
type TransportEvents struct {
	OnOpen    func()
	OnMessage func(kind MessageKind, data []byte)
	OnError   func(err error)
	OnClose   func(code int, reason string, wasClean bool)
}

// Transport opens connections on demand; Dial blocks until the socket is
// open or fails, then delivers subsequent events through events.
type Transport interface {
	Dial(ctx context.Context, url string, events TransportEvents) (TransportHandle, error)
}

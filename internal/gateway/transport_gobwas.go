package gateway

import (
	"context"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// GobwasTransport dials with gobwas/ws, the zero-copy low-level
// alternative to GorillaTransport, using the client-side pair
// (wsutil.ReadServerData / wsutil.WriteClientMessage).
type GobwasTransport struct{}

func NewGobwasTransport() *GobwasTransport { return &GobwasTransport{} }

func (t *GobwasTransport) Dial(ctx context.Context, rawURL string, events TransportEvents) (TransportHandle, error) {
	dialer := ws.Dialer{}
	conn, _, _, err := dialer.Dial(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	h := &gobwasHandle{conn: conn, events: events, state: StateOpen}
	events.OnOpen()
	go h.readLoop()
	return h, nil
}

type gobwasHandle struct {
	conn net.Conn

	events TransportEvents

	mu    sync.Mutex
	state ReadyState

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// readLoop runs on the client side of the frame direction: it
// demultiplexes control frames (ping/pong/close) from data frames instead
// of assuming a server role.
func (h *gobwasHandle) readLoop() {
	for {
		msg, op, err := wsutil.ReadServerData(h.conn)
		if err != nil {
			h.setState(StateClosed)
			code, reason := gobwasCloseCode(err)
			h.events.OnClose(code, reason, false)
			return
		}

		switch op {
		case ws.OpBinary:
			h.events.OnMessage(MessageBinary, msg)
		case ws.OpText:
			h.events.OnMessage(MessageText, msg)
		case ws.OpClose:
			h.setState(StateClosed)
			h.events.OnClose(1000, "", true)
			return
		case ws.OpPing:
			h.writeMu.Lock()
			_ = wsutil.WriteClientMessage(h.conn, ws.OpPong, msg)
			h.writeMu.Unlock()
		}
	}
}

func gobwasCloseCode(err error) (int, string) {
	if closeErr, ok := err.(wsutil.ClosedError); ok {
		return int(closeErr.Code), closeErr.Reason
	}
	return 1006, err.Error()
}

func (h *gobwasHandle) Send(kind MessageKind, data []byte) error {
	if h.ReadyState() != StateOpen {
		return ErrSocketClosed
	}
	op := ws.OpText
	if kind == MessageBinary {
		op = ws.OpBinary
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return wsutil.WriteClientMessage(h.conn, op, data)
}

func (h *gobwasHandle) Close(code int) error {
	h.setState(StateClosing)
	h.writeMu.Lock()
	err := wsutil.WriteClientMessage(h.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusCode(code), ""))
	h.writeMu.Unlock()
	h.teardown()
	h.setState(StateClosed)
	return err
}

func (h *gobwasHandle) Terminate() error {
	h.setState(StateClosed)
	h.teardown()
	return nil
}

func (h *gobwasHandle) teardown() {
	h.closeOnce.Do(func() { _ = h.conn.Close() })
}

func (h *gobwasHandle) ReadyState() ReadyState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *gobwasHandle) setState(s ReadyState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}


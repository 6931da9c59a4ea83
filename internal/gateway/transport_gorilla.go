package gateway

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// GorillaTransport dials with gorilla/websocket, the default Transport
// this module ships: a dialer with HandshakeTimeout and a NetDialContext
// that enables TCP keep-alive for cloud load balancers, and a
// read-pump/write-pump split.
type GorillaTransport struct {
	HandshakeTimeout time.Duration
	KeepAlive        time.Duration
}

// NewGorillaTransport returns a transport with sensible defaults: a 10s
// handshake timeout and 30s TCP keep-alive.
func NewGorillaTransport() *GorillaTransport {
	return &GorillaTransport{
		HandshakeTimeout: 10 * time.Second,
		KeepAlive:        30 * time.Second,
	}
}

func (t *GorillaTransport) Dial(ctx context.Context, rawURL string, events TransportEvents) (TransportHandle, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: t.HandshakeTimeout,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := &net.Dialer{Timeout: t.HandshakeTimeout, KeepAlive: t.KeepAlive}
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				_ = tcpConn.SetKeepAlive(true)
				_ = tcpConn.SetKeepAlivePeriod(t.KeepAlive)
			}
			return conn, nil
		},
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	h := &gorillaHandle{conn: conn, events: events, state: StateOpen, writeQueue: make(chan gorillaWrite, 64)}

	const readTimeout = 60 * time.Second
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	events.OnOpen()
	go h.readPump()
	go h.writePump()

	return h, nil
}

type gorillaHandle struct {
	conn   *websocket.Conn
	events TransportEvents

	mu    sync.Mutex
	state ReadyState

	writeQueue chan gorillaWrite
	closeOnce  sync.Once
}

type gorillaWrite struct {
	kind MessageKind
	data []byte
	done chan error
}

func (h *gorillaHandle) readPump() {
	for {
		kind, data, err := h.conn.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			reason := err.Error()
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
				reason = ce.Text
			}
			h.setState(StateClosed)
			h.events.OnClose(code, reason, websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway))
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			h.events.OnMessage(MessageBinary, data)
		case websocket.TextMessage:
			h.events.OnMessage(MessageText, data)
		}
	}
}

// writePump serializes writes onto the one goroutine gorilla/websocket
// requires for Conn.Write* calls (concurrent writers are not safe on a
// single Conn). No batching here: gateway control frames are already
// individually rate-limited upstream.
func (h *gorillaHandle) writePump() {
	for w := range h.writeQueue {
		kind := websocket.TextMessage
		if w.kind == MessageBinary {
			kind = websocket.BinaryMessage
		}
		w.done <- h.conn.WriteMessage(kind, w.data)
	}
}

func (h *gorillaHandle) Send(kind MessageKind, data []byte) error {
	if h.ReadyState() != StateOpen {
		return ErrSocketClosed
	}
	done := make(chan error, 1)
	h.writeQueue <- gorillaWrite{kind: kind, data: data, done: done}
	return <-done
}

func (h *gorillaHandle) Close(code int) error {
	h.setState(StateClosing)
	msg := websocket.FormatCloseMessage(code, "")
	err := h.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	h.teardown()
	h.setState(StateClosed)
	return err
}

func (h *gorillaHandle) Terminate() error {
	h.setState(StateClosed)
	h.teardown()
	return nil
}

func (h *gorillaHandle) teardown() {
	h.closeOnce.Do(func() {
		_ = h.conn.Close()
		close(h.writeQueue)
	})
}

func (h *gorillaHandle) ReadyState() ReadyState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *gorillaHandle) setState(s ReadyState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

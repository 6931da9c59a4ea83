package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/klauspost/compress/zlib"
)

// flushSentinel is the 4-byte suffix a zlib-stream transport appends to
// mark the end of a logical payload: 0x00 0x00 0xFF 0xFF, the empty stored
// block a Z_SYNC_FLUSH writes. Its presence as the last 4 bytes of the
// COMPRESSED input (not the inflated output) signals that a flush boundary
// has been reached.
var flushSentinel = [4]byte{0x00, 0x00, 0xFF, 0xFF}

func endsWithFlushSentinel(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	return b[len(b)-4] == flushSentinel[0] &&
		b[len(b)-3] == flushSentinel[1] &&
		b[len(b)-2] == flushSentinel[2] &&
		b[len(b)-1] == flushSentinel[3]
}

// inflateStrategy chooses how the session turns compressed binary frames
// into payload bytes. Chosen at session init and sticky for the life of
// the session.
type inflateStrategy int

const (
	strategyStreaming inflateStrategy = iota
	strategySynchronous
)

// PayloadDecoderStrategyFromName maps a configuration string ("streaming"
// or "synchronous") to an inflateStrategy, defaulting to streaming for any
// other value. Exported so a hosting binary's config layer can select a
// strategy without reaching into this package's unexported constants.
func PayloadDecoderStrategyFromName(name string) inflateStrategy {
	if name == "synchronous" {
		return strategySynchronous
	}
	return strategyStreaming
}

// PayloadDecoder chooses how payload bytes decode into an Envelope. Chosen at
// init and sticky; this core ships the textual JSON codec always available
// in the stdlib, and leaves the compact binary alternative as a pluggable
// hook (PayloadDecoder) for an embedder that has one in its environment.
type PayloadDecoder interface {
	Decode(payload []byte) (Envelope, error)
	Encode(op Op, d any) ([]byte, error)
}

// jsonPayloadCodec is the always-available textual fallback.
type jsonPayloadCodec struct{}

func (jsonPayloadCodec) Decode(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (jsonPayloadCodec) Encode(op Op, d any) ([]byte, error) {
	return json.Marshal(struct {
		Op Op  `json:"op"`
		D  any `json:"d"`
	}{Op: op, D: d})
}

// frameCodec reassembles fragments, detects the flush sentinel, inflates,
// and decodes payload bytes into Envelopes, built around
// klauspost/compress/zlib for both the streaming and synchronous
// strategies.
type frameCodec struct {
	strategy inflateStrategy
	payload  PayloadDecoder

	// streaming strategy state: a persistent zlib reader sourced from a
	// growing buffer, and chunks queued in incoming while a flush is
	// already in progress. pending accumulates compressed bytes for the
	// synchronous strategy only, which buffers a whole framed payload
	// before building a fresh reader over it.
	zrBuf    bytes.Buffer
	zr       io.ReadCloser
	incoming [][]byte
	pending  bytes.Buffer
	flushing bool
}

// decodeOnePayload reads exactly one JSON value off r and returns the raw
// bytes it spanned. Unlike io.ReadAll, a json.Decoder stops the instant it
// has scanned a complete top-level value, so it never asks r for bytes past
// this message's boundary — which matters when r is a zlib reader sitting
// on a Z_SYNC_FLUSH stream: that stream never terminates with a final
// block, so draining it to real EOF forces the inflater to probe for a
// block header that isn't there yet, reports the still-open stream as
// io.ErrUnexpectedEOF, and (for a persistent reader reused across messages)
// leaves it wedged in that error state for every later message.
func decodeOnePayload(r io.Reader) ([]byte, error) {
	var raw bytes.Buffer
	dec := json.NewDecoder(io.TeeReader(r, &raw))
	var msg json.RawMessage
	if err := dec.Decode(&msg); err != nil {
		return nil, err
	}
	return raw.Bytes(), nil
}

func newFrameCodec(strategy inflateStrategy, payload PayloadDecoder) *frameCodec {
	if payload == nil {
		payload = jsonPayloadCodec{}
	}
	return &frameCodec{strategy: strategy, payload: payload}
}

// feedBinary processes one inbound binary message. onPayload is invoked,
// in FIFO order, once per logical payload that completes — which may be
// more than once per call when held chunks themselves terminate in the
// sentinel.
func (c *frameCodec) feedBinary(chunk []byte, onPayload func([]byte) error) error {
	switch c.strategy {
	case strategySynchronous:
		return c.feedSynchronous(chunk, onPayload)
	default:
		return c.feedStreaming(chunk, onPayload)
	}
}

// feedText handles an inbound text message: no inflate step, decode
// directly as a complete payload.
func (c *frameCodec) feedText(chunk []byte, onPayload func([]byte) error) error {
	return onPayload(chunk)
}

func (c *frameCodec) feedStreaming(chunk []byte, onPayload func([]byte) error) error {
	if c.flushing {
		c.incoming = append(c.incoming, chunk)
		return nil
	}
	return c.feedStreamingNow(chunk, onPayload)
}

func (c *frameCodec) feedStreamingNow(chunk []byte, onPayload func([]byte) error) error {
	c.flushing = true
	defer func() { c.flushing = false }()

	c.zrBuf.Write(chunk)

	if c.zr == nil {
		if c.zrBuf.Len() < 2 {
			// Not enough bytes yet for the zlib header; wait for more
			// without consuming the partial header from the buffer.
			return nil
		}
		zr, err := zlib.NewReader(&c.zrBuf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// Not enough bytes yet for the zlib header; wait for more.
				return nil
			}
			return err
		}
		c.zr = zr
	}

	// Check the buffered, not-yet-inflated bytes rather than this chunk
	// alone, so a sentinel split across two chunks is still recognized.
	if !endsWithFlushSentinel(c.zrBuf.Bytes()) {
		return nil
	}

	payload, err := decodeOnePayload(c.zr)
	if err != nil {
		return err
	}

	if err := onPayload(payload); err != nil {
		return err
	}

	// Replay chunks that arrived while this flush was in progress, in
	// FIFO order; each may itself complete a payload and recurse.
	held := c.incoming
	c.incoming = nil
	for _, h := range held {
		if err := c.feedStreamingNow(h, onPayload); err != nil {
			return err
		}
	}
	return nil
}

func (c *frameCodec) feedSynchronous(chunk []byte, onPayload func([]byte) error) error {
	if c.flushing {
		c.incoming = append(c.incoming, chunk)
		return nil
	}
	c.flushing = true
	defer func() { c.flushing = false }()

	c.pending.Write(chunk)

	if !endsWithFlushSentinel(chunk) {
		return nil
	}

	zr, err := zlib.NewReader(bytes.NewReader(c.pending.Bytes()))
	if err != nil {
		return err
	}
	payload, err := decodeOnePayload(zr)
	zr.Close()
	if err != nil {
		return err
	}
	c.pending.Reset()

	if err := onPayload(payload); err != nil {
		return err
	}

	held := c.incoming
	c.incoming = nil
	for _, h := range held {
		if err := c.feedSynchronous(h, onPayload); err != nil {
			return err
		}
	}
	return nil
}

func (c *frameCodec) decodeEnvelope(payload []byte) (Envelope, error) {
	return c.payload.Decode(payload)
}

func (c *frameCodec) encodeEnvelope(op Op, d any) ([]byte, error) {
	return c.payload.Encode(op, d)
}

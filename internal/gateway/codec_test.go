package gateway

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zlib"
)

// zlibSyncFlush compresses payload and returns the compressed bytes ending
// exactly at a Z_SYNC_FLUSH boundary, split into n chunks to exercise
// chunk-boundary invariance.
func zlibSyncFlush(t *testing.T, payload []byte, splits ...int) [][]byte {
	t.Helper()

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("zlib flush: %v", err)
	}

	full := append([]byte(nil), buf.Bytes()...)
	if len(splits) == 0 {
		return [][]byte{full}
	}

	var chunks [][]byte
	start := 0
	for _, at := range splits {
		chunks = append(chunks, full[start:at])
		start = at
	}
	chunks = append(chunks, full[start:])
	return chunks
}

func TestFrameCodecStreamingDecodesWholeMessage(t *testing.T) {
	payload := []byte(`{"op":10,"d":{"heartbeat_interval":41250}}`)
	chunks := zlibSyncFlush(t, payload)

	c := newFrameCodec(strategyStreaming, jsonPayloadCodec{})
	var got []byte
	err := c.feedBinary(chunks[0], func(p []byte) error {
		got = p
		return nil
	})
	if err != nil {
		t.Fatalf("feedBinary: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestFrameCodecStreamingInvariantAcrossChunkBoundaries(t *testing.T) {
	payload := []byte(`{"op":0,"t":"GUILD_CREATE","d":{"id":"123"}}`)
	full := zlibSyncFlush(t, payload)[0]

	// Split the compressed bytes at every possible boundary and confirm
	// the decoded payload is identical regardless of fragmentation.
	for split := 1; split < len(full); split++ {
		c := newFrameCodec(strategyStreaming, jsonPayloadCodec{})
		var got []byte
		feed := func(b []byte) error {
			return c.feedBinary(b, func(p []byte) error {
				got = append([]byte(nil), p...)
				return nil
			})
		}
		if err := feed(full[:split]); err != nil {
			t.Fatalf("split %d: first half: %v", split, err)
		}
		if err := feed(full[split:]); err != nil {
			t.Fatalf("split %d: second half: %v", split, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("split %d: got %q, want %q", split, got, payload)
		}
	}
}

func TestFrameCodecStreamingHandlesMultipleMessagesOnOneReader(t *testing.T) {
	c := newFrameCodec(strategyStreaming, jsonPayloadCodec{})

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)

	send := func(t *testing.T, payload []byte) []byte {
		t.Helper()
		if _, err := w.Write(payload); err != nil {
			t.Fatalf("zlib write: %v", err)
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("zlib flush: %v", err)
		}
		chunk := append([]byte(nil), buf.Bytes()...)
		buf.Reset()

		var got []byte
		if err := c.feedBinary(chunk, func(p []byte) error {
			got = append([]byte(nil), p...)
			return nil
		}); err != nil {
			t.Fatalf("feedBinary: %v", err)
		}
		return got
	}

	first := []byte(`{"op":0,"t":"READY","d":{}}`)
	second := []byte(`{"op":0,"t":"MESSAGE_CREATE","d":{"id":"1"}}`)
	third := []byte(`{"op":0,"t":"MESSAGE_CREATE","d":{"id":"2"}}`)

	if got := send(t, first); !bytes.Equal(got, first) {
		t.Fatalf("first message: got %q, want %q", got, first)
	}
	// The persistent zlib reader must still be usable after the first
	// sync-flush boundary, not wedged in an error state.
	if got := send(t, second); !bytes.Equal(got, second) {
		t.Fatalf("second message: got %q, want %q", got, second)
	}
	if got := send(t, third); !bytes.Equal(got, third) {
		t.Fatalf("third message: got %q, want %q", got, third)
	}
}

func TestFrameCodecSynchronousDecodesWholeMessage(t *testing.T) {
	payload := []byte(`{"op":11}`)
	chunks := zlibSyncFlush(t, payload)

	c := newFrameCodec(strategySynchronous, jsonPayloadCodec{})
	var got []byte
	err := c.feedBinary(chunks[0], func(p []byte) error {
		got = p
		return nil
	})
	if err != nil {
		t.Fatalf("feedBinary: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestFrameCodecTextBypassesInflate(t *testing.T) {
	c := newFrameCodec(strategyStreaming, jsonPayloadCodec{})
	payload := []byte(`{"op":1}`)

	var got []byte
	err := c.feedText(payload, func(p []byte) error {
		got = p
		return nil
	})
	if err != nil {
		t.Fatalf("feedText: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestEndsWithFlushSentinel(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want bool
	}{
		{"too short", []byte{0x00, 0xFF}, false},
		{"sentinel suffix", []byte{0x01, 0x00, 0x00, 0xFF, 0xFF}, true},
		{"not a sentinel", []byte{0x00, 0x00, 0xFF, 0xFE}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := endsWithFlushSentinel(tt.in); got != tt.want {
				t.Errorf("endsWithFlushSentinel(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

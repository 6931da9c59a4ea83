package gateway

import (
	"encoding/json"
	"testing"
)

type recordingSink struct {
	events  []string
	unknown []string
}

func (r *recordingSink) HandleEvent(name string, data json.RawMessage) {
	r.events = append(r.events, name)
}

func (r *recordingSink) HandleUnknown(name string, data json.RawMessage) {
	r.unknown = append(r.unknown, name)
}

func newTestSessionForDispatch() (*Session, *recordingSink) {
	sink := &recordingSink{}
	s := &Session{
		status:            statusReady,
		metrics:           newMetricsRecorder(),
		log:               newNopLogger(),
		sink:              sink,
		disabledEvents:    map[string]bool{},
		unavailableGuilds: map[string]bool{},
	}
	s.outbound = newOutboundMultiplexer(s)
	s.backlog = newBacklogBatcher(s)
	s.ready = newReadyOrchestrator(s, 0)
	return s, sink
}

func seqEnv(seq uint64, t string) Envelope {
	s := seq
	return Envelope{Op: OpDispatch, S: &s, T: t, D: json.RawMessage(`{}`)}
}

func TestUpdateSeqAdvancesMonotonically(t *testing.T) {
	s, _ := newTestSessionForDispatch()
	s.updateSeq(seqEnv(1, "X"))
	if s.seq != 1 {
		t.Fatalf("expected seq 1, got %d", s.seq)
	}
	s.updateSeq(seqEnv(2, "X"))
	if s.seq != 2 {
		t.Fatalf("expected seq 2, got %d", s.seq)
	}
}

func TestUpdateSeqWarnsOnceOnForwardGapWhileReady(t *testing.T) {
	s, _ := newTestSessionForDispatch()
	s.seq = 5
	s.status = statusReady
	s.resuming = false

	var warned int
	s.signals.OnWarn = func(string) { warned++ }

	s.updateSeq(seqEnv(8, "X"))

	if warned != 1 {
		t.Fatalf("expected exactly one warning on a forward gap, got %d", warned)
	}
	if s.seq != 8 {
		t.Fatalf("expected seq to advance to 8 regardless of the gap, got %d", s.seq)
	}
}

func TestUpdateSeqDoesNotWarnWhileResuming(t *testing.T) {
	s, _ := newTestSessionForDispatch()
	s.seq = 5
	s.status = statusReady
	s.resuming = true

	var warned int
	s.signals.OnWarn = func(string) { warned++ }

	s.updateSeq(seqEnv(8, "X"))

	if warned != 0 {
		t.Fatalf("expected no warning while resuming, got %d", warned)
	}
}

func TestUpdateSeqDoesNotWarnWhileNotReady(t *testing.T) {
	s, _ := newTestSessionForDispatch()
	s.seq = 5
	s.status = statusConnecting

	var warned int
	s.signals.OnWarn = func(string) { warned++ }

	s.updateSeq(seqEnv(8, "X"))

	if warned != 0 {
		t.Fatalf("expected no warning while not ready, got %d", warned)
	}
}

func TestHandleDispatchForwardsRecognizedEventsWhenReady(t *testing.T) {
	s, sink := newTestSessionForDispatch()
	s.status = statusReady
	s.preReady = false

	s.handleDispatch(Envelope{Op: OpDispatch, T: "MESSAGE_CREATE", D: json.RawMessage(`{"id":"1"}`)})

	if len(sink.events) != 1 || sink.events[0] != "MESSAGE_CREATE" {
		t.Fatalf("expected MESSAGE_CREATE forwarded to sink, got %v", sink.events)
	}
	if len(sink.unknown) != 0 {
		t.Fatalf("expected no unknown events, got %v", sink.unknown)
	}
}

func TestHandleDispatchRoutesUnrecognizedEventsToUnknown(t *testing.T) {
	s, sink := newTestSessionForDispatch()
	s.status = statusReady
	s.preReady = false

	s.handleDispatch(Envelope{Op: OpDispatch, T: "SOME_FUTURE_EVENT", D: json.RawMessage(`{}`)})

	if len(sink.events) != 0 {
		t.Fatalf("expected no recognized-event forwarding, got %v", sink.events)
	}
	if len(sink.unknown) != 1 || sink.unknown[0] != "SOME_FUTURE_EVENT" {
		t.Fatalf("expected SOME_FUTURE_EVENT routed to HandleUnknown, got %v", sink.unknown)
	}
}

func TestHandleDispatchSuppressesEventsWhilePreReady(t *testing.T) {
	s, sink := newTestSessionForDispatch()
	s.status = statusReady
	s.preReady = true

	s.handleDispatch(Envelope{Op: OpDispatch, T: "MESSAGE_CREATE", D: json.RawMessage(`{}`)})

	if len(sink.events) != 0 || len(sink.unknown) != 0 {
		t.Fatalf("expected no forwarding while preReady, got events=%v unknown=%v", sink.events, sink.unknown)
	}
}

func TestHandleDispatchHonorsDisabledEvents(t *testing.T) {
	s, sink := newTestSessionForDispatch()
	s.status = statusReady
	s.preReady = false
	s.disabledEvents["MESSAGE_CREATE"] = true

	s.handleDispatch(Envelope{Op: OpDispatch, T: "MESSAGE_CREATE", D: json.RawMessage(`{}`)})

	if len(sink.events) != 0 || len(sink.unknown) != 0 {
		t.Fatalf("expected disabled event to be dropped entirely, got events=%v unknown=%v", sink.events, sink.unknown)
	}
}

func TestHandleDispatchForwardsReadyTrackingEventsToSink(t *testing.T) {
	s, sink := newTestSessionForDispatch()
	s.status = statusReady
	s.preReady = false

	s.handleDispatch(Envelope{Op: OpDispatch, T: "GUILD_CREATE", D: json.RawMessage(`{"id":"g1"}`)})

	if len(sink.events) != 1 || sink.events[0] != "GUILD_CREATE" || len(sink.unknown) != 0 {
		t.Fatalf("GUILD_CREATE feeds the ready orchestrator and is also forwarded to the sink; got events=%v unknown=%v", sink.events, sink.unknown)
	}
}

func TestHandleInvalidSessionResetsSeqAndSessionID(t *testing.T) {
	s, _ := newTestSessionForDispatch()
	s.seq = 42
	s.sessionID = "abc"
	s.status = statusHandshaking

	s.handleInvalidSession(Envelope{Op: OpInvalidSession})

	if s.seq != 0 {
		t.Fatalf("expected seq reset to 0, got %d", s.seq)
	}
	if s.sessionID != "" {
		t.Fatalf("expected sessionID reset to empty, got %q", s.sessionID)
	}
}

func TestHandleHelloIdentifiesWithoutSessionID(t *testing.T) {
	s, _ := newTestSessionForDispatch()
	s.sessionID = ""
	s.status = statusConnecting

	hello, _ := json.Marshal(Hello{HeartbeatIntervalMs: 41250})
	s.handleHello(Envelope{Op: OpHello, D: hello})

	if s.status != statusHandshaking {
		t.Fatalf("expected statusHandshaking, got %v", s.status)
	}
}

func TestHandleHelloResumesWithSessionID(t *testing.T) {
	s, _ := newTestSessionForDispatch()
	s.sessionID = "existing-session"
	s.status = statusConnecting

	hello, _ := json.Marshal(Hello{HeartbeatIntervalMs: 41250})
	s.handleHello(Envelope{Op: OpHello, D: hello})

	if s.status != statusResuming {
		t.Fatalf("expected statusResuming, got %v", s.status)
	}
	if !s.resuming {
		t.Fatal("expected resuming flag to be set")
	}
}

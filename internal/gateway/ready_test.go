package gateway

import "testing"

func newTestSessionForReady() *Session {
	s := &Session{status: statusReady, metrics: newMetricsRecorder(), log: newNopLogger()}
	s.outbound = newOutboundMultiplexer(s)
	s.backlog = newBacklogBatcher(s)
	s.ready = newReadyOrchestrator(s, 0)
	return s
}

func TestReadyOrchestratorFiresWhenAlreadyDrained(t *testing.T) {
	s := newTestSessionForReady()
	var firedVia bool
	s.signals.OnReady = func() { firedVia = true }

	s.ready.begin(nil, true)

	if !s.ready.fired {
		t.Fatal("expected ready to fire immediately when no guilds are unavailable and bot")
	}
	if !firedVia {
		t.Fatal("expected OnReady signal to fire")
	}
}

func TestReadyOrchestratorWaitsOnUnavailableGuilds(t *testing.T) {
	s := newTestSessionForReady()
	guilds := []readyGuildRef{{ID: "1", Unavailable: true}, {ID: "2", Unavailable: false}}

	s.ready.begin(guilds, true)

	if s.ready.fired {
		t.Fatal("should not fire ready while an unavailable guild is outstanding")
	}
	if s.ready.unavailableGuildCount != 1 {
		t.Fatalf("expected unavailableGuildCount 1, got %d", s.ready.unavailableGuildCount)
	}

	s.ready.onGuildCreate(true, true)

	if !s.ready.fired {
		t.Fatal("expected ready to fire once the unavailable guild arrives")
	}
}

func TestReadyOrchestratorNonBotQueuesGuildSync(t *testing.T) {
	s := newTestSessionForReady()
	guilds := []readyGuildRef{{ID: "1", Unavailable: false}}

	s.ready.begin(guilds, false)

	if s.ready.unsyncedGuildCount != 1 {
		t.Fatalf("expected unsyncedGuildCount 1 for a non-bot session, got %d", s.ready.unsyncedGuildCount)
	}
	if s.ready.fired {
		t.Fatal("should not fire ready while a guild sync is outstanding")
	}

	s.ready.onGuildCreate(false, false)

	if !s.ready.fired {
		t.Fatal("expected ready to fire once the guild sync completes")
	}
}

func TestReadyOrchestratorWaitsOnMemberChunks(t *testing.T) {
	s := newTestSessionForReady()
	s.ready.begin(nil, true)
	if !s.ready.fired {
		t.Fatal("expected to fire before any chunks are expected")
	}

	// Reset for a second cycle that expects chunks.
	s.ready.fired = false
	s.ready.expectMemberChunks("guild-1", 2)

	if s.ready.drained() {
		t.Fatal("should not be drained with chunks outstanding")
	}

	s.ready.onMembersChunk("guild-1")
	if s.ready.fired {
		t.Fatal("should not fire after only one of two chunks arrives")
	}

	s.ready.onMembersChunk("guild-1")
	if !s.ready.fired {
		t.Fatal("expected ready to fire once all chunks for the guild arrive")
	}
	if _, ok := s.ready.pendingMemberChunks["guild-1"]; ok {
		t.Fatal("expected guild-1 to be removed from pendingMemberChunks entirely")
	}
}

func TestReadyOrchestratorFiresOnlyOnce(t *testing.T) {
	s := newTestSessionForReady()
	var fireCount int
	s.signals.OnReady = func() { fireCount++ }

	s.ready.begin(nil, true)
	s.ready.checkReady()
	s.ready.checkReady()

	if fireCount != 1 {
		t.Fatalf("expected exactly one ready signal, got %d", fireCount)
	}
}

func TestReadyOrchestratorFlushesBacklogBeforeFiring(t *testing.T) {
	s := newTestSessionForReady()
	s.backlog.guildSync.append("pending-guild")

	s.ready.begin(nil, true)

	if !s.ready.fired {
		t.Fatal("expected ready to fire after flushing a non-empty backlog")
	}
	if !s.backlog.empty() {
		t.Fatal("expected backlog to be drained once ready fires")
	}
}

package gateway

import "time"

// readyOrchestrator tracks outstanding unavailable guilds, unsynced
// guilds, and pending member chunks, and emits READY exactly once when
// everything drains. pendingMemberChunks uses a plain map with a
// decrement-then-remove convention: a guild's entry is deleted outright
// once its count reaches zero rather than left behind as a zero value.
type readyOrchestrator struct {
	session *Session

	unavailableGuildCount int
	unsyncedGuildCount    int
	pendingMemberChunks   map[string]int

	guildCreateTimer *time.Timer
	guildCreateTimeout time.Duration

	fired bool
}

func newReadyOrchestrator(s *Session, guildCreateTimeout time.Duration) *readyOrchestrator {
	if guildCreateTimeout <= 0 {
		guildCreateTimeout = defaultGuildCreateTimeout
	}
	return &readyOrchestrator{
		session:             s,
		pendingMemberChunks:  make(map[string]int),
		guildCreateTimeout:   guildCreateTimeout,
	}
}

// begin starts a fresh ready cycle from a READY payload: counts initial
// unavailable guilds and, for non-bot sessions, issues a sync per guild.
func (r *readyOrchestrator) begin(guilds []readyGuildRef, isBot bool) {
	r.fired = false
	r.unavailableGuildCount = 0
	r.unsyncedGuildCount = 0
	r.pendingMemberChunks = make(map[string]int)

	for _, g := range guilds {
		if g.Unavailable {
			r.unavailableGuildCount++
		}
		if !isBot {
			r.unsyncedGuildCount++
			r.session.backlog.enqueueGuildSync(g.ID)
		}
	}

	if !r.drained() {
		r.rearmGuildCreateTimeout()
	}
	r.checkReady()
}

// onGuildCreate handles a GUILD_CREATE for a guild that was previously
// unavailable: decrements the counter and rearms the guild-create timeout.
func (r *readyOrchestrator) onGuildCreate(wasUnavailable bool, isBot bool) {
	if wasUnavailable && r.unavailableGuildCount > 0 {
		r.unavailableGuildCount--
	}
	if !isBot && r.unsyncedGuildCount > 0 {
		r.unsyncedGuildCount--
	}
	r.rearmGuildCreateTimeout()
	r.checkReady()
}

// onMembersChunk handles GUILD_MEMBERS_CHUNK: decrement-then-remove at 1
// removes the guild from pendingMemberChunks entirely instead of leaving a
// zero-value entry behind.
func (r *readyOrchestrator) onMembersChunk(guildID string) {
	n, ok := r.pendingMemberChunks[guildID]
	if !ok {
		return
	}
	if n <= 1 {
		delete(r.pendingMemberChunks, guildID)
	} else {
		r.pendingMemberChunks[guildID] = n - 1
	}
	r.checkReady()
}

// expectMemberChunks records that guildID has n chunks outstanding. The
// core's own GET_GUILD_MEMBERS flushes do not call it, so
// pendingMemberChunks only holds entries recorded through this method.
func (r *readyOrchestrator) expectMemberChunks(guildID string, n int) {
	if n <= 0 {
		return
	}
	r.pendingMemberChunks[guildID] = n
}

func (r *readyOrchestrator) rearmGuildCreateTimeout() {
	if r.guildCreateTimer != nil {
		r.guildCreateTimer.Stop()
	}
	r.guildCreateTimer = time.AfterFunc(r.guildCreateTimeout, func() {
		r.session.enqueue(r.checkReady)
	})
}

// drained reports whether every guild/member-chunk condition READY is
// waiting on has cleared. It deliberately excludes backlog state:
// checkReady flushes the backlog itself once this is true, rather than
// requiring it to already be empty beforehand.
func (r *readyOrchestrator) drained() bool {
	return r.unavailableGuildCount == 0 &&
		r.unsyncedGuildCount == 0 &&
		len(r.pendingMemberChunks) == 0
}

// checkReady emits ready exactly once per session, flushing any non-empty
// backlog queues first.
func (r *readyOrchestrator) checkReady() {
	if r.fired {
		return
	}
	if !r.drained() {
		return
	}
	r.session.backlog.flushAll()
	if !r.session.backlog.empty() {
		return
	}
	r.fired = true
	if r.guildCreateTimer != nil {
		r.guildCreateTimer.Stop()
		r.guildCreateTimer = nil
	}
	r.session.onReady()
}

func (r *readyOrchestrator) stop() {
	if r.guildCreateTimer != nil {
		r.guildCreateTimer.Stop()
		r.guildCreateTimer = nil
	}
}

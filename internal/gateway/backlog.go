package gateway

import "github.com/google/uuid"

// backlogQueue is one of the two sub-queues in the backlog batcher: a FIFO
// of opaque string identifiers paired with a running byte length.
type backlogQueue struct {
	ids    []string
	length int
	budget int
}

func newBacklogQueue(budget int) *backlogQueue {
	return &backlogQueue{budget: budget}
}

// wouldExceed reports whether appending id would push the running length
// past the queue's budget, accounting for 3 bytes of separator/quote
// framing per element.
func (q *backlogQueue) wouldExceed(id string) bool {
	return q.length+len(id)+3 > q.budget
}

func (q *backlogQueue) append(id string) {
	q.ids = append(q.ids, id)
	q.length += len(id) + 3
}

func (q *backlogQueue) drain() []string {
	ids := q.ids
	q.ids = nil
	q.length = 0
	return ids
}

func (q *backlogQueue) empty() bool {
	return len(q.ids) == 0
}

// backlogBatcher accumulates guild-sync IDs and member-fetch IDs
// and flushes each under its own 4 KiB budget, drain-then-flush but keyed
// by byte budget instead of a fixed element count.
type backlogBatcher struct {
	session     *Session
	guildSync   *backlogQueue
	memberFetch *backlogQueue
}

func newBacklogBatcher(s *Session) *backlogBatcher {
	return &backlogBatcher{
		session:     s,
		guildSync:   newBacklogQueue(guildSyncBudget),
		memberFetch: newBacklogQueue(memberFetchBudget),
	}
}

// enqueueGuildSync implements enqueue(id) for the guild-sync
// queue.
func (b *backlogBatcher) enqueueGuildSync(id string) {
	b.enqueue(b.guildSync, id, b.flushGuildSyncIDs)
}

// enqueueMemberFetch implements enqueue(id) for the
// member-fetch queue.
func (b *backlogBatcher) enqueueMemberFetch(id string) {
	b.enqueue(b.memberFetch, id, b.flushMemberFetchIDs)
}

func (b *backlogBatcher) enqueue(q *backlogQueue, id string, flush func([]string)) {
	if q.wouldExceed(id) {
		flush(q.drain())
		q.append(id)
		return
	}
	if b.session.status == statusReady {
		flush([]string{id})
		return
	}
	q.append(id)
}

func (b *backlogBatcher) flushGuildSyncIDs(ids []string) {
	if len(ids) == 0 {
		return
	}
	b.session.metrics.backlogFlushSize.WithLabelValues("guild_sync").Observe(float64(len(ids)))
	b.session.outbound.send(OpSyncGuild, ids, false)
}

func (b *backlogBatcher) flushMemberFetchIDs(ids []string) {
	if len(ids) == 0 {
		return
	}
	b.session.metrics.backlogFlushSize.WithLabelValues("member_fetch").Observe(float64(len(ids)))
	b.session.outbound.send(OpGetGuildMembers, memberFetchRequest{
		GuildID: ids,
		Query:   "",
		Limit:   0,
		Nonce:   uuid.NewString(),
	}, false)
}

// memberFetchRequest is the GET_GUILD_MEMBERS body. Nonce round-trips on
// the resulting GUILD_MEMBERS_CHUNK frames so a caller with several
// outstanding fetches in flight can tell which request a chunk answers.
type memberFetchRequest struct {
	GuildID []string `json:"guild_id"`
	Query   string   `json:"query"`
	Limit   int      `json:"limit"`
	Nonce   string   `json:"nonce"`
}

// flushAll flushes both queues unconditionally; any non-empty queues are
// flushed before the ready transition is permitted.
func (b *backlogBatcher) flushAll() {
	if !b.guildSync.empty() {
		b.flushGuildSyncIDs(b.guildSync.drain())
	}
	if !b.memberFetch.empty() {
		b.flushMemberFetchIDs(b.memberFetch.drain())
	}
}

func (b *backlogBatcher) empty() bool {
	return b.guildSync.empty() && b.memberFetch.empty()
}

func (b *backlogBatcher) reset() {
	b.guildSync.drain()
	b.memberFetch.drain()
}

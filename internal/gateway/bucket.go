package gateway

import (
	"container/list"
	"sync"
	"time"
)

// tokenBucket is a fixed-window rate limiter with a FIFO queue of deferred
// actions: actions submitted while tokens remain run inline; once
// exhausted they queue and drain in submission order when the window
// rolls over.
//
// This is deliberately not golang.org/x/time/rate: that package models a
// continuously-refilling bucket (tokens trickle back at a steady rate),
// while the gateway's own limits reset the full allowance at a single
// instant every window (120 every 60s, reset atomically), so a fixed-window
// counter plus one scheduled wake at reset_at is the accurate model here.
type tokenBucket struct {
	mu sync.Mutex

	capacity  uint32
	window    time.Duration
	remaining uint32
	resetAt   time.Time

	queue *list.List // of func()

	// dispatch runs an action drained by refill. refill fires on its own
	// time.AfterFunc goroutine, off whatever goroutine originally called
	// queueAction, so a caller with a single-task ownership model (the
	// Session) supplies a dispatch that posts back onto its own task
	// instead of letting the timer goroutine call straight into session
	// state. Actions admitted inline by queueAction already run on the
	// caller's own goroutine and bypass dispatch entirely. Defaults to a
	// direct call when unset.
	dispatch func(func())

	timer  *time.Timer
	closed bool
}

func newTokenBucket(capacity uint32, window time.Duration) *tokenBucket {
	tb := &tokenBucket{
		capacity:  capacity,
		window:    window,
		remaining: capacity,
		resetAt:   time.Now().Add(window),
		queue:     list.New(),
		dispatch:  func(fn func()) { fn() },
	}
	return tb
}

// queueAction runs action immediately if tokens remain, else defers it to
// the FIFO for the next refill. Submission order is preserved either way:
// an action that queues is always invoked after every action that ran
// inline before it, and before any action queued after it.
func (tb *tokenBucket) queueAction(action func()) {
	tb.mu.Lock()
	if tb.closed {
		tb.mu.Unlock()
		return
	}

	if tb.remaining > 0 {
		tb.remaining--
		tb.mu.Unlock()
		action()
		return
	}

	tb.queue.PushBack(action)
	tb.armRefill()
	tb.mu.Unlock()
}

// armRefill schedules the single outstanding wake at resetAt, if one isn't
// already pending. Must be called with tb.mu held.
func (tb *tokenBucket) armRefill() {
	if tb.timer != nil {
		return
	}
	delay := time.Until(tb.resetAt)
	if delay < 0 {
		delay = 0
	}
	tb.timer = time.AfterFunc(delay, tb.refill)
}

// refill runs on the window boundary: resets remaining to capacity,
// advances resetAt by one window, and drains the FIFO up to the new
// remaining count in submission order.
func (tb *tokenBucket) refill() {
	tb.mu.Lock()
	tb.timer = nil
	tb.remaining = tb.capacity
	tb.resetAt = tb.resetAt.Add(tb.window)

	var toRun []func()
	for tb.remaining > 0 && tb.queue.Len() > 0 {
		front := tb.queue.Front()
		tb.queue.Remove(front)
		toRun = append(toRun, front.Value.(func()))
		tb.remaining--
	}
	stillQueued := tb.queue.Len() > 0
	if stillQueued {
		tb.armRefill()
	}
	dispatch := tb.dispatch
	tb.mu.Unlock()

	for _, action := range toRun {
		dispatch(action)
	}
}

// close drops all queued actions silently and cancels the refill timer; no
// error is surfaced because the socket teardown path already signals
// disconnect.
func (tb *tokenBucket) close() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.closed = true
	if tb.timer != nil {
		tb.timer.Stop()
		tb.timer = nil
	}
	tb.queue.Init()
}

// depth reports the number of actions currently deferred, used by the
// metrics exporter (internal/gateway/metrics.go) as a queue-depth gauge.
func (tb *tokenBucket) depth() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.queue.Len()
}

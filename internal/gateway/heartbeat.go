package gateway

import "time"

// heartbeatState tracks liveness: interval, send/receive
// timestamps and ack bookkeeping. Owned by Session and mutated only from
// the core's single logical task.
type heartbeatState struct {
	intervalMs      int
	lastSentMs      int64
	lastReceivedMs  int64
	lastSentSet     bool
	lastReceivedSet bool
	ackReceived     bool

	timer *time.Timer
}

// latency reports measured latency, or (0, false) when it is not yet
// known because one of the two timestamps hasn't been set.
func (h *heartbeatState) latency() (time.Duration, bool) {
	if !h.lastSentSet || !h.lastReceivedSet {
		return 0, false
	}
	return time.Duration(h.lastReceivedMs-h.lastSentMs) * time.Millisecond, true
}

// armHeartbeat clears any existing timer, arms a new periodic one at
// interval, and sends one immediate heartbeat — the HELLO handshake.
func (s *Session) armHeartbeat(intervalMs int) {
	s.disarmHeartbeat()

	s.heartbeat.intervalMs = intervalMs
	s.heartbeat.ackReceived = true // no miss until the first tick has a chance to fail

	interval := time.Duration(intervalMs) * time.Millisecond
	s.heartbeat.timer = time.AfterFunc(interval, func() {
		s.enqueue(s.onHeartbeatTick)
	})

	s.sendHeartbeatNow()
}

// disarmHeartbeat cancels the timer if one is armed; tearing down the
// socket always calls this, since a heartbeat timer only ever runs while
// a socket exists.
func (s *Session) disarmHeartbeat() {
	if s.heartbeat.timer != nil {
		s.heartbeat.timer.Stop()
		s.heartbeat.timer = nil
	}
}

// onHeartbeatTick runs on every periodic tick. It is invoked on
// the core's single task via Session.enqueue, never directly from the
// timer goroutine.
func (s *Session) onHeartbeatTick() {
	if s.heartbeat.timer == nil {
		return // disarmed between schedule and fire; ignore
	}
	if !s.heartbeat.ackReceived {
		s.metrics.heartbeatAcksMissed.Inc()
		s.disconnect(disconnectOptions{
			reconnect: true,
			err:       errMissedHeartbeatAck,
		})
		return
	}
	s.heartbeat.ackReceived = false
	s.sendHeartbeatNow()
	s.rearmHeartbeatTimer()
}

func (s *Session) rearmHeartbeatTimer() {
	interval := time.Duration(s.heartbeat.intervalMs) * time.Millisecond
	s.heartbeat.timer = time.AfterFunc(interval, func() {
		s.enqueue(s.onHeartbeatTick)
	})
}

// sendHeartbeatNow sends one HEARTBEAT with payload = current seq, and
// records last_sent_ms. Called both by the tick and by a server-initiated
// HEARTBEAT op, which triggers one immediate heartbeat without resetting
// the tick phase.
func (s *Session) sendHeartbeatNow() {
	s.heartbeat.lastSentMs = nowMs()
	s.heartbeat.lastSentSet = true
	s.outbound.send(OpHeartbeat, s.seq, true)
}

// onHeartbeatAck handles OpHeartbeatAck.
func (s *Session) onHeartbeatAck() {
	s.heartbeat.ackReceived = true
	s.heartbeat.lastReceivedMs = nowMs()
	s.heartbeat.lastReceivedSet = true
	if d, ok := s.heartbeat.latency(); ok {
		s.metrics.heartbeatLatency.Set(float64(d.Milliseconds()))
	}
}

// onServerHeartbeat handles a server-initiated HEARTBEAT op: one immediate
// heartbeat, tick phase unchanged.
func (s *Session) onServerHeartbeat() {
	s.sendHeartbeatNow()
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

package gateway

// outboundMultiplexer encodes, serializes through the rate buckets, and
// sends on the socket — the single place all outbound bytes funnel
// through, built around two token buckets instead of a ping ticker.
type outboundMultiplexer struct {
	session *Session
	global  *tokenBucket
	presence *tokenBucket
}

func newOutboundMultiplexer(s *Session) *outboundMultiplexer {
	global := newTokenBucket(120, windowMs)
	presence := newTokenBucket(5, windowMs)
	// Actions a bucket drains on its own refill timer must still land on
	// the session's single task rather than running on the timer
	// goroutine directly.
	global.dispatch = s.enqueue
	presence.dispatch = s.enqueue
	return &outboundMultiplexer{
		session:  s,
		global:   global,
		presence: presence,
	}
}

// send is the multiplexer's single operation. priorityBypass is accepted for
// HEARTBEAT/IDENTIFY/RESUME but is semantic documentation only: the
// global bucket is still observed for every outbound frame regardless of
// its value.
func (m *outboundMultiplexer) send(op Op, payload any, priorityBypass bool) {
	_ = priorityBypass

	handle := m.session.handle
	if handle == nil || handle.ReadyState() != StateOpen {
		return
	}

	encode := func() {
		data, err := m.session.codec.encodeEnvelope(op, payload)
		if err != nil {
			m.session.emitError(err)
			return
		}
		if err := handle.Send(MessageText, data); err != nil {
			m.session.emitError(err)
		}
	}

	if op == OpStatusUpdate {
		// STATUS_UPDATE is limited by the stricter of the two buckets:
		// it must be admitted by presence first, then global, before it
		// is ever encoded and sent.
		m.presence.queueAction(func() {
			m.global.queueAction(encode)
		})
		m.recordDepths()
		return
	}

	m.global.queueAction(encode)
	m.recordDepths()
}

// recordDepths publishes both buckets' current queue depth to the
// bucketQueueDepth gauge (internal/gateway/metrics.go).
func (m *outboundMultiplexer) recordDepths() {
	metrics := m.session.metrics
	metrics.bucketQueueDepth.WithLabelValues("global").Set(float64(m.global.depth()))
	metrics.bucketQueueDepth.WithLabelValues("presence").Set(float64(m.presence.depth()))
}

func (m *outboundMultiplexer) close() {
	m.global.close()
	m.presence.close()
}

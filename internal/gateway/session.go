package gateway

import (
	"context"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// connectionStatus enumerates the connection lifecycle.
type connectionStatus int

const (
	statusDisconnected connectionStatus = iota
	statusConnecting
	statusHandshaking
	statusResuming
	statusReady
)

func (s connectionStatus) String() string {
	switch s {
	case statusDisconnected:
		return "disconnected"
	case statusConnecting:
		return "connecting"
	case statusHandshaking:
		return "handshaking"
	case statusResuming:
		return "resuming"
	case statusReady:
		return "ready"
	default:
		return "unknown"
	}
}

// isReadyForEvents reports whether the session currently admits
// domain-event emission: only statusReady with the preReady sub-flag
// cleared.
func (s connectionStatus) isReadyForEvents(preReady bool) bool {
	return s == statusReady && !preReady
}

// SessionConfig is the subset of "Client configuration" a
// Session needs directly; internal/config.Config loads the full
// environment-backed superset and projects into this.
type SessionConfig struct {
	Token    string
	GatewayVersion int
	Bot      bool
	LargeThreshold uint32
	Shard    *[2]int
	Compress bool

	AutoReconnect        bool
	DisableEvents        map[string]bool
	ConnectionTimeout    time.Duration
	GuildCreateTimeout   time.Duration

	Strategy inflateStrategy
	Payload  PayloadDecoder

	Properties struct {
		OS      string
		Browser string
		Device  string
	}

	PresenceDefault Presence
}

// disconnectOptions parametrizes Session.disconnect.
type disconnectOptions struct {
	reconnect bool
	err       error
}

// Session is the lifecycle state machine wiring the transport, codec,
// outbound multiplexer, heartbeat, backlog batcher and ready orchestrator
// around a single abstract socket. Owns exactly one socket, one
// heartbeat timer, one guild-create timer, one connection timeout timer,
// and the two outbound buckets.
type Session struct {
	cfg      SessionConfig
	transport Transport
	url      string
	sink     DomainSink
	signals  Signals
	log      zerolog.Logger

	codec    *frameCodec
	outbound *outboundMultiplexer
	backlog  *backlogBatcher
	ready    *readyOrchestrator
	heartbeat heartbeatState

	handle TransportHandle

	status   connectionStatus
	resuming bool
	preReady bool

	sessionID string
	seq       uint64
	serverTrace []string

	unavailableGuilds map[string]bool
	disabledEvents    map[string]bool

	presence Presence

	reconnectIntervalMs int
	connectAttempts     int

	connectionTimeoutTimer *time.Timer
	reconnectTimer         *time.Timer

	tasks chan func()
	done  chan struct{}

	metrics *metricsRecorder
}

// NewSession constructs a Session. The returned Session is idle until
// Connect is called.
func NewSession(transport Transport, url string, cfg SessionConfig, sink DomainSink, signals Signals, log *zerolog.Logger) *Session {
	var l zerolog.Logger
	if log != nil {
		l = *log
	} else {
		l = newNopLogger()
	}

	if cfg.DisableEvents == nil {
		cfg.DisableEvents = map[string]bool{}
	}

	s := &Session{
		cfg:                 cfg,
		transport:           transport,
		url:                 url,
		sink:                sink,
		signals:             signals,
		log:                 l,
		status:              statusDisconnected,
		disabledEvents:      cfg.DisableEvents,
		presence:            cfg.PresenceDefault.Clone(),
		reconnectIntervalMs: defaultReconnectIntervalMs,
		unavailableGuilds:   map[string]bool{},
		tasks:               make(chan func(), 64),
		done:                make(chan struct{}),
		metrics:             newMetricsRecorder(),
	}
	s.codec = newFrameCodec(cfg.Strategy, cfg.Payload)
	s.outbound = newOutboundMultiplexer(s)
	s.backlog = newBacklogBatcher(s)
	s.ready = newReadyOrchestrator(s, cfg.GuildCreateTimeout)

	go s.run()
	return s
}

// run is the session's single logical task: every mutation to Session
// state happens here, serialized off a channel that socket callbacks,
// timer ticks, and public API calls all post closures to.
func (s *Session) run() {
	for {
		select {
		case fn := <-s.tasks:
			fn()
		case <-s.done:
			return
		}
	}
}

// enqueue posts fn to the core's single task. Safe to call from any
// goroutine (timers, transport callbacks, public API).
func (s *Session) enqueue(fn func()) {
	select {
	case s.tasks <- fn:
	case <-s.done:
	}
}

// Connect dials a new socket. Connecting while a socket exists in any
// state other than disconnected is an error and a no-op.
func (s *Session) Connect(ctx context.Context) error {
	result := make(chan error, 1)
	s.enqueue(func() {
		result <- s.connectLocked(ctx)
	})
	return <-result
}

func (s *Session) connectLocked(ctx context.Context) error {
	if s.status != statusDisconnected {
		s.emitError(ErrAlreadyConnected)
		return ErrAlreadyConnected
	}
	if s.cfg.Token == "" {
		s.emitError(ErrNoToken)
		return ErrNoToken
	}

	s.connectAttempts++
	s.status = statusConnecting
	s.metrics.connectAttempts.Inc()

	s.armConnectionTimeout()

	events := TransportEvents{
		OnOpen:    func() { s.enqueue(s.onSocketOpen) },
		OnMessage: func(kind MessageKind, data []byte) { s.enqueue(func() { s.onSocketMessage(kind, data) }) },
		OnError:   func(err error) { s.enqueue(func() { s.emitError(err) }) },
		OnClose:   func(code int, reason string, wasClean bool) { s.enqueue(func() { s.onSocketClose(code, reason, wasClean) }) },
	}

	handle, err := s.transport.Dial(ctx, s.url, events)
	if err != nil {
		s.disarmConnectionTimeout()
		s.status = statusDisconnected
		s.emitError(err)
		s.armReconnect()
		return err
	}
	s.handle = handle
	return nil
}

func (s *Session) onSocketOpen() {
	s.status = statusHandshaking
	s.emitConnect()
}

func (s *Session) onSocketMessage(kind MessageKind, data []byte) {
	onPayload := func(payload []byte) error {
		env, err := s.codec.decodeEnvelope(payload)
		if err != nil {
			s.emitDebug("dropping frame that failed to decode")
			return nil
		}
		if s.signals.OnRawWS != nil {
			s.signals.OnRawWS(env)
		}
		s.handleEnvelope(env)
		return nil
	}

	var err error
	if kind == MessageBinary {
		err = s.codec.feedBinary(data, onPayload)
	} else {
		err = s.codec.feedText(data, onPayload)
	}
	if err != nil {
		s.emitError(err)
		s.disconnect(disconnectOptions{reconnect: true, err: err})
	}
}

func (s *Session) onSocketClose(code int, reason string, wasClean bool) {
	if s.handle == nil {
		// The socket was already torn down locally; this close is the
		// detached handler's late callback and must not re-enter teardown.
		return
	}
	s.disarmConnectionTimeout()

	verdict := classifyClose(code, reason)
	// The remote end already closed the socket, so this local Close/
	// Terminate is cleanup of our handle rather than a wire message; still
	// prefer Terminate on any path that intends to resume, matching
	// disconnect()'s rationale.
	s.teardownSocket(verdict.action != actionFatal)

	if verdict.err != nil {
		s.emitError(verdict.err)
	}

	switch verdict.action {
	case actionFatal:
		s.status = statusDisconnected
		s.hardReset()
		s.emitDisconnect(verdict.err)
		return
	case actionReconnectDropSession:
		s.sessionID = ""
		s.seq = 0
	case actionReconnectDropSeq:
		s.seq = 0
	}

	if !s.cfg.AutoReconnect {
		s.status = statusDisconnected
		s.hardReset()
		s.emitDisconnect(verdict.err)
		return
	}
	s.status = statusConnecting
	s.emitDisconnect(verdict.err)
	s.armReconnect()
}

// onReady is invoked by the ready orchestrator once all counters and
// backlog queues have drained.
func (s *Session) onReady() {
	s.status = statusReady
	s.preReady = false
	s.emitReady()
}

// identify sends OpIdentify; used both on a fresh connection and after
// INVALID_SESSION forces a re-identify on the same socket.
func (s *Session) identify() {
	var presence *presenceWirePacket
	if s.presence.Status != "" {
		if err := s.presence.Validate(); err != nil {
			s.emitWarn(err.Error())
		} else {
			w := s.presence.wire()
			presence = &w
		}
	}

	s.outbound.send(OpIdentify, identifyPayload{
		Token:          s.cfg.Token,
		V:              s.cfg.GatewayVersion,
		Compress:       s.cfg.Compress,
		LargeThreshold: s.cfg.LargeThreshold,
		Properties: identifyProperties{
			OS:      s.cfg.Properties.OS,
			Browser: s.cfg.Properties.Browser,
			Device:  s.cfg.Properties.Device,
		},
		Shard:    s.cfg.Shard,
		Presence: presence,
	}, true)
}

// resume sends OpResume carrying the preserved session identity.
func (s *Session) resume() {
	s.outbound.send(OpResume, resumePayload{
		Token:     s.cfg.Token,
		SessionID: s.sessionID,
		Seq:       s.seq,
	}, true)
}

// Disconnect is the public entry to the single cancellation primitive,
// optionally reconnecting afterward.
func (s *Session) Disconnect(reconnect bool) {
	s.enqueue(func() {
		s.disconnect(disconnectOptions{reconnect: reconnect})
	})
}

func (s *Session) disconnect(opts disconnectOptions) {
	s.disarmConnectionTimeout()
	// A disconnect that intends to reconnect is a resume attempt: a clean
	// 1000 close tells the server to discard the session, so terminate the
	// socket abruptly instead and preserve session_id/seq for RESUME.
	s.teardownSocket(opts.reconnect)

	s.status = statusDisconnected
	s.emitDisconnect(opts.err)

	if !opts.reconnect {
		s.hardReset()
		return
	}
	s.armReconnect()
}

// teardownSocket clears the heartbeat timer, detaches the close handler by
// nilling the handle before closing it (so the already-queued OnClose
// callback is a no-op against a cleared handle), and closes or terminates
// the socket. terminate selects an abrupt close (preserving the
// server-side session for a later RESUME) over a clean 1000 close (which
// tells the server to drop it).
func (s *Session) teardownSocket(terminate bool) {
	s.disarmHeartbeat()
	s.ready.stop()

	handle := s.handle
	s.handle = nil
	if handle == nil {
		return
	}
	if terminate {
		_ = handle.Terminate()
		return
	}
	_ = handle.Close(1000)
}

// hardReset is invoked after a non-reconnecting disconnect: it
// zeroes seq, forgets session_id, resets the reconnect interval and
// attempt counters, and refreshes the presence snapshot from client
// defaults.
func (s *Session) hardReset() {
	s.seq = 0
	s.sessionID = ""
	s.reconnectIntervalMs = defaultReconnectIntervalMs
	s.connectAttempts = 0
	s.presence = s.cfg.PresenceDefault.Clone()
	s.backlog.reset()
	s.unavailableGuilds = map[string]bool{}
}

// armReconnect schedules the next connect() at the current backoff
// interval, then grows the interval for the attempt after that: multiplied
// by a uniform random factor in [1, 3), rounded, and capped at 30000.
func (s *Session) armReconnect() {
	s.metrics.reconnects.Inc()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	delay := time.Duration(s.reconnectIntervalMs) * time.Millisecond
	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.enqueue(func() {
			// onSocketClose left status at statusConnecting (not
			// statusDisconnected), and connectLocked requires
			// statusDisconnected. Reset it here immediately before dialing.
			s.status = statusDisconnected
			_ = s.connectLocked(context.Background())
		})
	})

	factor := 1 + rand.Float64()*2 // uniform in [1, 3)
	next := int(float64(s.reconnectIntervalMs)*factor + 0.5)
	if next > maxReconnectIntervalMs {
		next = maxReconnectIntervalMs
	}
	s.reconnectIntervalMs = next
}

func (s *Session) armConnectionTimeout() {
	timeout := s.cfg.ConnectionTimeout
	if timeout <= 0 {
		return
	}
	s.connectionTimeoutTimer = time.AfterFunc(timeout, func() {
		s.enqueue(s.onConnectionTimeout)
	})
}

func (s *Session) disarmConnectionTimeout() {
	if s.connectionTimeoutTimer != nil {
		s.connectionTimeoutTimer.Stop()
		s.connectionTimeoutTimer = nil
	}
}

func (s *Session) onConnectionTimeout() {
	if s.status != statusConnecting {
		return
	}
	s.emitError(errConnectionTimedOut)
	s.disconnect(disconnectOptions{reconnect: true, err: errConnectionTimedOut})
}

// UpdateStatus mutates the presence snapshot and sends a STATUS_UPDATE
// op reflecting it.
func (s *Session) UpdateStatus(p Presence) {
	s.enqueue(func() {
		s.presence = p
		if err := s.presence.Validate(); err != nil {
			s.emitWarn(err.Error())
			return
		}
		s.outbound.send(OpStatusUpdate, s.presence.wire(), false)
	})
}

// RequestGuildMembers feeds the member-fetch backlog queue directly, for
// callers that want a guild's member list outside the initial ready
// handshake.
func (s *Session) RequestGuildMembers(guildIDs ...string) {
	s.enqueue(func() {
		for _, id := range guildIDs {
			s.backlog.enqueueMemberFetch(id)
		}
	})
}

// SyncGuilds feeds the guild-sync backlog queue directly, for callers that
// want to force a resync outside the initial ready handshake.
func (s *Session) SyncGuilds(guildIDs ...string) {
	s.enqueue(func() {
		for _, id := range guildIDs {
			s.backlog.enqueueGuildSync(id)
		}
	})
}

// HeartbeatLatency reports measured latency, or false when unknown.
func (s *Session) HeartbeatLatency() (time.Duration, bool) {
	result := make(chan struct {
		d  time.Duration
		ok bool
	}, 1)
	s.enqueue(func() {
		d, ok := s.heartbeat.latency()
		result <- struct {
			d  time.Duration
			ok bool
		}{d, ok}
	})
	r := <-result
	return r.d, r.ok
}

// Status returns the current connection status string.
func (s *Session) Status() string {
	result := make(chan string, 1)
	s.enqueue(func() { result <- s.status.String() })
	return <-result
}

// MetricsCollectors returns this session's prometheus collectors, for a
// caller that wants to register them against its own registry.
func (s *Session) MetricsCollectors() []prometheus.Collector {
	return s.metrics.Collectors()
}

// SampleHostCPU measures host CPU utilization over a short blocking window
// and updates the host_cpu_percent gauge. It touches no Session state, so
// callers may invoke it from any goroutine on their own schedule (a health
// reporter, say) without going through enqueue.
func (s *Session) SampleHostCPU() error {
	return s.metrics.SampleHostCPU()
}

// Close permanently stops the session's task loop. Call once the caller is
// done with the Session entirely (not for a reconnect).
func (s *Session) Close() {
	s.Disconnect(false)
	close(s.done)
	s.outbound.close()
}

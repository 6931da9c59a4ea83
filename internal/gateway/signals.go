package gateway

import "github.com/rs/zerolog"

// Signals is the set of observer callbacks a hosting client can attach.
// Every field is optional; a nil callback is simply skipped. Domain
// events are delivered separately through DomainSink, not through
// Signals.
type Signals struct {
	OnConnect       func()
	OnDisconnect    func(err error)
	OnHello         func(trace []string)
	OnShardPreReady func()
	OnReady         func()
	OnResume        func()
	OnError         func(err error)
	OnWarn          func(msg string)
	OnDebug         func(msg string)
	OnRawWS         func(env Envelope)
	OnUnknown       func(name string, data []byte)
}

func (s *Session) emitConnect() {
	s.log.Debug().Msg("connect")
	if s.signals.OnConnect != nil {
		s.signals.OnConnect()
	}
}

func (s *Session) emitDisconnect(err error) {
	ev := s.log.Debug()
	if err != nil {
		ev = s.log.Warn().Err(err)
	}
	ev.Msg("disconnect")
	if s.signals.OnDisconnect != nil {
		s.signals.OnDisconnect(err)
	}
}

func (s *Session) emitHello(trace []string) {
	s.log.Debug().Strs("trace", trace).Msg("hello")
	if s.signals.OnHello != nil {
		s.signals.OnHello(trace)
	}
}

func (s *Session) emitShardPreReady() {
	if s.signals.OnShardPreReady != nil {
		s.signals.OnShardPreReady()
	}
}

func (s *Session) emitReady() {
	s.log.Info().Str("session_id", s.sessionID).Msg("ready")
	if s.signals.OnReady != nil {
		s.signals.OnReady()
	}
}

func (s *Session) emitResume() {
	s.log.Info().Str("session_id", s.sessionID).Uint64("seq", s.seq).Msg("resume")
	if s.signals.OnResume != nil {
		s.signals.OnResume()
	}
}

func (s *Session) emitError(err error) {
	s.log.Error().Err(err).Msg("error")
	if s.signals.OnError != nil {
		s.signals.OnError(err)
	}
}

func (s *Session) emitWarn(msg string) {
	s.log.Warn().Msg(msg)
	if s.signals.OnWarn != nil {
		s.signals.OnWarn(msg)
	}
}

func (s *Session) emitDebug(msg string) {
	s.log.Debug().Msg(msg)
	if s.signals.OnDebug != nil {
		s.signals.OnDebug(msg)
	}
}

func (s *Session) emitUnknown(name string, data []byte) {
	s.log.Debug().Str("event", name).Msg("unknown event")
	if s.signals.OnUnknown != nil {
		s.signals.OnUnknown(name, data)
	}
}

// newNopLogger is used when a caller constructs a Session without a
// logger; a zerolog.Logger is threaded explicitly rather than reaching
// for a package global, so the zero value here is the stdlib-discard
// logger, not log.Logger.
func newNopLogger() zerolog.Logger {
	return zerolog.Nop()
}

package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSSink is a DomainSink that republishes every decoded dispatch event
// onto a NATS subject derived from its event name, leaving domain-entity
// interpretation to whatever downstream service subscribes.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
	log    zerolog.Logger
}

// NATSSinkConfig holds the connection settings for NewNATSSink.
type NATSSinkConfig struct {
	URL             string
	SubjectPrefix   string // e.g. "gateway.events"; defaults to "gateway.events"
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectJitter time.Duration
	MaxPingsOut     int
	PingInterval    time.Duration
}

// NewNATSSink connects to NATS and returns a ready-to-use sink.
func NewNATSSink(cfg NATSSinkConfig, log zerolog.Logger) (*NATSSink, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "gateway.events"
	}

	s := &NATSSink{prefix: cfg.SubjectPrefix, log: log}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(cfg.ReconnectJitter, cfg.ReconnectJitter),
		nats.MaxPingsOutstanding(cfg.MaxPingsOut),
		nats.PingInterval(cfg.PingInterval),
		nats.ConnectHandler(s.connectHandler),
		nats.DisconnectErrHandler(s.disconnectHandler),
		nats.ReconnectHandler(s.reconnectHandler),
		nats.ErrorHandler(s.errorHandler),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	s.conn = conn
	return s, nil
}

func (s *NATSSink) connectHandler(conn *nats.Conn) {
	s.log.Info().Str("url", conn.ConnectedUrl()).Msg("nats connected")
}

func (s *NATSSink) disconnectHandler(conn *nats.Conn, err error) {
	if err != nil {
		s.log.Warn().Err(err).Msg("nats disconnected")
		return
	}
	s.log.Debug().Msg("nats disconnected")
}

func (s *NATSSink) reconnectHandler(conn *nats.Conn) {
	s.log.Info().Str("url", conn.ConnectedUrl()).Msg("nats reconnected")
}

func (s *NATSSink) errorHandler(conn *nats.Conn, sub *nats.Subscription, err error) {
	s.log.Error().Err(err).Msg("nats error")
}

// HandleEvent publishes a recognized dispatch event as raw JSON to
// "<prefix>.<lowercased_event_name>".
func (s *NATSSink) HandleEvent(name string, data json.RawMessage) {
	s.publish(s.subject(name), data)
}

// HandleUnknown publishes an unrecognized event name under a distinct
// "unknown" subtree, so a downstream consumer can alert on protocol drift
// separately from ordinary traffic.
func (s *NATSSink) HandleUnknown(name string, data json.RawMessage) {
	s.publish(s.prefix+".unknown."+strings.ToLower(name), data)
}

func (s *NATSSink) subject(name string) string {
	return s.prefix + "." + strings.ToLower(name)
}

func (s *NATSSink) publish(subject string, data json.RawMessage) {
	if err := s.conn.Publish(subject, data); err != nil {
		s.log.Error().Err(err).Str("subject", subject).Msg("failed to publish dispatch event")
	}
}

// Close drains and closes the underlying NATS connection.
func (s *NATSSink) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

// Package config loads gatewaycore's runtime configuration from the
// environment using a struct-tag driven parser backed by an optional
// .env file.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds every environment-backed setting a gateway core needs.
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	// Connection
	GatewayURL  string `env:"GATEWAY_URL,required"`
	Token       string `env:"GATEWAY_TOKEN,required"`
	BotToken    bool   `env:"GATEWAY_BOT" envDefault:"true"`
	GatewayV    int    `env:"GATEWAY_VERSION" envDefault:"10"`
	ShardID     int    `env:"SHARD_ID" envDefault:"0"`
	ShardCount  int    `env:"SHARD_COUNT" envDefault:"1"`
	Compress    bool   `env:"GATEWAY_COMPRESS" envDefault:"true"`
	LargeThreshold uint32 `env:"GATEWAY_LARGE_THRESHOLD" envDefault:"250"`

	// Decompression strategy: "streaming" or "synchronous".
	InflateStrategy string `env:"GATEWAY_INFLATE_STRATEGY" envDefault:"streaming"`

	// Transport: "gorilla" or "gobwas".
	TransportKind string `env:"GATEWAY_TRANSPORT" envDefault:"gorilla"`

	AutoReconnect      bool          `env:"GATEWAY_AUTO_RECONNECT" envDefault:"true"`
	ConnectionTimeout  time.Duration `env:"GATEWAY_CONNECTION_TIMEOUT" envDefault:"30s"`
	GuildCreateTimeout time.Duration `env:"GATEWAY_GUILD_CREATE_TIMEOUT" envDefault:"2s"`

	DisabledEvents []string `env:"GATEWAY_DISABLED_EVENTS" envSeparator:","`

	// Identify properties sent on IDENTIFY.
	PropertiesOS      string `env:"GATEWAY_PROPERTY_OS" envDefault:"linux"`
	PropertiesBrowser string `env:"GATEWAY_PROPERTY_BROWSER" envDefault:"gatewaycore"`
	PropertiesDevice  string `env:"GATEWAY_PROPERTY_DEVICE" envDefault:"gatewaycore"`

	// NATS sink, optional: empty URL disables the sink.
	NATSUrl           string        `env:"NATS_URL" envDefault:""`
	NATSSubjectPrefix string        `env:"NATS_SUBJECT_PREFIX" envDefault:"gateway.events"`
	NATSMaxReconnects int           `env:"NATS_MAX_RECONNECTS" envDefault:"-1"`
	NATSReconnectWait time.Duration `env:"NATS_RECONNECT_WAIT" envDefault:"2s"`

	// Metrics
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsAddr    string `env:"METRICS_ADDR" envDefault:":9102"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from an optional .env file and then the
// environment, validates it, and returns it. Priority: env vars > .env
// file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if logger != nil {
		logger.Info().Msg("configuration loaded and validated")
	}
	return cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.GatewayURL == "" {
		return fmt.Errorf("GATEWAY_URL is required")
	}
	if c.Token == "" {
		return fmt.Errorf("GATEWAY_TOKEN is required")
	}
	if c.ShardCount < 1 {
		return fmt.Errorf("SHARD_COUNT must be > 0, got %d", c.ShardCount)
	}
	if c.ShardID < 0 || c.ShardID >= c.ShardCount {
		return fmt.Errorf("SHARD_ID must be in [0, %d), got %d", c.ShardCount, c.ShardID)
	}

	switch c.InflateStrategy {
	case "streaming", "synchronous":
	default:
		return fmt.Errorf("GATEWAY_INFLATE_STRATEGY must be streaming or synchronous (got: %s)", c.InflateStrategy)
	}

	switch c.TransportKind {
	case "gorilla", "gobwas":
	default:
		return fmt.Errorf("GATEWAY_TRANSPORT must be gorilla or gobwas (got: %s)", c.TransportKind)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console (got: %s)", c.LogFormat)
	}

	return nil
}

// LogConfig logs configuration using structured logging.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("gateway_url", c.GatewayURL).
		Int("shard_id", c.ShardID).
		Int("shard_count", c.ShardCount).
		Bool("compress", c.Compress).
		Str("inflate_strategy", c.InflateStrategy).
		Str("transport", c.TransportKind).
		Bool("auto_reconnect", c.AutoReconnect).
		Dur("connection_timeout", c.ConnectionTimeout).
		Dur("guild_create_timeout", c.GuildCreateTimeout).
		Str("nats_url", c.NATSUrl).
		Bool("metrics_enabled", c.MetricsEnabled).
		Str("log_level", c.LogLevel).
		Msg("gateway configuration loaded")
}

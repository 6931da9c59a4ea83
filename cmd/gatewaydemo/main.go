// Command gatewaydemo wires a single Session to a real gateway URL and
// prints its lifecycle signals: load config, build the session, start it,
// wait for a termination signal, then shut down.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/adred-codev/gatewaycore/internal/config"
	"github.com/adred-codev/gatewaycore/internal/gateway"
	"github.com/adred-codev/gatewaycore/internal/logging"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	bootstrap := logging.New(logging.Config{Level: "info", Format: "console"})

	if _, err := maxprocs.Set(maxprocs.Logger(bootstrap.Printf)); err != nil {
		bootstrap.Warn().Err(err).Msg("failed to set GOMAXPROCS from cgroup limits")
	}
	bootstrap.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("starting gatewaydemo")

	cfg, err := config.Load(&bootstrap)
	if err != nil {
		bootstrap.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	cfg.LogConfig(log)

	var transport gateway.Transport
	switch cfg.TransportKind {
	case "gobwas":
		transport = gateway.NewGobwasTransport()
	default:
		transport = gateway.NewGorillaTransport()
	}

	strategy := gateway.PayloadDecoderStrategyFromName(cfg.InflateStrategy)

	disabled := make(map[string]bool, len(cfg.DisabledEvents))
	for _, name := range cfg.DisabledEvents {
		if name != "" {
			disabled[name] = true
		}
	}

	var sink gateway.DomainSink
	var natsSink *gateway.NATSSink
	if cfg.NATSUrl != "" {
		natsSink, err = gateway.NewNATSSink(gateway.NATSSinkConfig{
			URL:             cfg.NATSUrl,
			SubjectPrefix:   cfg.NATSSubjectPrefix,
			MaxReconnects:   cfg.NATSMaxReconnects,
			ReconnectWait:   cfg.NATSReconnectWait,
			ReconnectJitter: time.Second,
			MaxPingsOut:     2,
			PingInterval:    2 * time.Minute,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to nats")
		}
		sink = natsSink
	} else {
		sink = noopSink{}
	}

	shard := [2]int{cfg.ShardID, cfg.ShardCount}
	sessionCfg := gateway.SessionConfig{
		Token:              cfg.Token,
		GatewayVersion:     cfg.GatewayV,
		Bot:                cfg.BotToken,
		LargeThreshold:     cfg.LargeThreshold,
		Shard:              &shard,
		Compress:           cfg.Compress,
		AutoReconnect:      cfg.AutoReconnect,
		DisableEvents:      disabled,
		ConnectionTimeout:  cfg.ConnectionTimeout,
		GuildCreateTimeout: cfg.GuildCreateTimeout,
		Strategy:           strategy,
	}
	sessionCfg.Properties.OS = cfg.PropertiesOS
	sessionCfg.Properties.Browser = cfg.PropertiesBrowser
	sessionCfg.Properties.Device = cfg.PropertiesDevice

	signals := gateway.Signals{
		OnReady:      func() { log.Info().Msg("gateway ready") },
		OnResume:     func() { log.Info().Msg("gateway resumed") },
		OnDisconnect: func(err error) { log.Warn().Err(err).Msg("gateway disconnected") },
		OnError:      func(err error) { log.Error().Err(err).Msg("gateway error") },
	}

	session := gateway.NewSession(transport, cfg.GatewayURL, sessionCfg, sink, signals, &log)

	if cfg.MetricsEnabled {
		registry := prometheus.NewRegistry()
		// Registered against a private registry rather than the default
		// one so multiple sessions in one process never collide on
		// metric names.
		for _, c := range session.MetricsCollectors() {
			registry.MustRegister(c)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server stopped unexpectedly")
			}
		}()
		go sampleHostCPUPeriodically(session, log)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()
	if err := session.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	session.Close()
	if natsSink != nil {
		natsSink.Close()
	}
}

// noopSink discards dispatch events when no downstream sink is configured.
type noopSink struct{}

func (noopSink) HandleEvent(string, json.RawMessage)   {}
func (noopSink) HandleUnknown(string, json.RawMessage) {}

// sampleHostCPUPeriodically refreshes the host_cpu_percent gauge every 15s
// for as long as the process runs; each sample blocks the goroutine for a
// short window, so it never runs on the session's own task loop.
func sampleHostCPUPeriodically(session *gateway.Session, log zerolog.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if err := session.SampleHostCPU(); err != nil {
			log.Warn().Err(err).Msg("failed to sample host cpu")
		}
	}
}

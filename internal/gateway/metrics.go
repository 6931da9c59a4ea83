package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
)

// metricsRecorder wraps the prometheus collectors this core exposes.
// Instantiated per Session rather than registered against the default
// registry so embedding callers choose their own registry and so multiple
// shards in one process don't collide on metric names.
type metricsRecorder struct {
	connectAttempts  prometheus.Counter
	reconnects       prometheus.Counter
	heartbeatAcksMissed prometheus.Counter
	seqGaps          prometheus.Counter
	heartbeatLatency prometheus.Gauge
	bucketQueueDepth *prometheus.GaugeVec
	backlogFlushSize *prometheus.HistogramVec
	processCPUPercent prometheus.Gauge
}

func newMetricsRecorder() *metricsRecorder {
	return &metricsRecorder{
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gatewaycore",
			Name:      "connect_attempts_total",
			Help:      "Number of times Connect was invoked.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gatewaycore",
			Name:      "reconnects_total",
			Help:      "Number of automatic reconnects scheduled after a close.",
		}),
		heartbeatAcksMissed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gatewaycore",
			Name:      "heartbeat_acks_missed_total",
			Help:      "Number of times a heartbeat went unacknowledged before the next tick.",
		}),
		seqGaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gatewaycore",
			Name:      "sequence_gaps_total",
			Help:      "Number of non-consecutive sequence numbers observed while live.",
		}),
		heartbeatLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gatewaycore",
			Name:      "heartbeat_latency_ms",
			Help:      "Most recently measured heartbeat round-trip latency, in milliseconds.",
		}),
		bucketQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gatewaycore",
			Name:      "bucket_queue_depth",
			Help:      "Number of deferred sends currently queued on a token bucket.",
		}, []string{"bucket"}),
		backlogFlushSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gatewaycore",
			Name:      "backlog_flush_ids",
			Help:      "Number of ids carried by a single backlog flush frame.",
			Buckets:   prometheus.LinearBuckets(1, 10, 10),
		}, []string{"queue"}),
		processCPUPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gatewaycore",
			Name:      "host_cpu_percent",
			Help:      "Host CPU utilization percent, sampled on demand via SampleHostCPU.",
		}),
	}
}

// SampleHostCPU measures host CPU utilization over a short window and
// updates the host_cpu_percent gauge. It blocks for the sample window, so
// callers (typically a periodic health reporter) should invoke it off the
// session's own task loop.
func (m *metricsRecorder) SampleHostCPU() error {
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return err
	}
	if len(percentages) > 0 {
		m.processCPUPercent.Set(percentages[0])
	}
	return nil
}

// Collectors returns every collector this recorder owns, for a caller that
// wants to register them against its own prometheus.Registerer.
func (m *metricsRecorder) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.connectAttempts,
		m.reconnects,
		m.heartbeatAcksMissed,
		m.seqGaps,
		m.heartbeatLatency,
		m.bucketQueueDepth,
		m.backlogFlushSize,
		m.processCPUPercent,
	}
}

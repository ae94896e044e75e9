package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the issuance engine.
type Metrics struct {
	// --- Core Processing ---
	CoreEventsApplied  *prometheus.CounterVec
	CoreEventsRejected *prometheus.CounterVec
	CoreEventDuration  *prometheus.HistogramVec
	CoreSequence       prometheus.Gauge

	// --- Domain state gauges ---
	TokenScale        prometheus.Gauge
	TokenTotalSupply  prometheus.Gauge
	PoolNativeReserve prometheus.Gauge
	PoolTokenReserve  prometheus.Gauge
	OpenPositions     prometheus.Gauge

	// --- Channel & Backpressure ---
	ProjectionDrops prometheus.Counter
	PublishDrops    prometheus.Counter

	// --- Ingestion & Publishing ---
	NATSPullLatency *prometheus.HistogramVec
	EventsPublished *prometheus.CounterVec
	PublishErrors   prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten  prometheus.Counter
	PersistEffectsWritten prometheus.Counter
	PersistBatchSize      prometheus.Histogram
	PersistBatchDur       prometheus.Histogram
	PersistErrors         *prometheus.CounterVec
	PersistRetry          prometheus.Counter
	PersistLastSequence   prometheus.Gauge

	// --- Snapshot & Replay ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotLastSeq   prometheus.Gauge
	ReplayEventsTotal prometheus.Counter
	ReplayDuration    prometheus.Gauge

	// --- Projections ---
	ProjectionUpdateDur *prometheus.HistogramVec

	// --- HTTP API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	apiBuckets := []float64{
		0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005,
		0.01, 0.025, 0.05, 0.1, 0.25,
	}

	return &Metrics{
		// Core Processing
		CoreEventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stabu_core_events_applied_total",
			Help: "Events successfully applied by core",
		}, []string{"event_type"}),

		CoreEventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stabu_core_events_rejected_total",
			Help: "Events rejected (dedup, gap, validation)",
		}, []string{"event_type", "reason"}),

		CoreEventDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stabu_core_event_apply_duration_seconds",
			Help:    "Time to apply a single event in core",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stabu_core_sequence",
			Help: "Current global sequence number",
		}),

		// Domain state gauges
		TokenScale: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stabu_token_scale",
			Help: "Current token scale factor (base units)",
		}),

		TokenTotalSupply: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stabu_token_total_supply",
			Help: "Displayed token supply (base units)",
		}),

		PoolNativeReserve: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stabu_pool_native_reserve",
			Help: "Pool native reserve (base units)",
		}),

		PoolTokenReserve: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stabu_pool_token_reserve",
			Help: "Pool token reserve (base units)",
		}),

		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stabu_open_positions",
			Help: "Currently open collateral positions",
		}),

		// Channel & Backpressure
		ProjectionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stabu_projection_drops_total",
			Help: "Events dropped due to full projection channel",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stabu_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		// Ingestion & Publishing
		NATSPullLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stabu_nats_pull_latency_seconds",
			Help:    "NATS pull request latency",
			Buckets: latencyBuckets,
		}, []string{"subject"}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stabu_events_published_total",
			Help: "Outbound events published to NATS",
		}, []string{"event_type"}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stabu_publish_errors_total",
			Help: "Outbound publish failures",
		}),

		// Persistence
		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stabu_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistEffectsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stabu_persist_effects_written_total",
			Help: "Effect entries written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stabu_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stabu_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stabu_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stabu_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stabu_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		// Snapshot & Replay
		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stabu_snapshot_taken_total",
			Help: "Snapshots written",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stabu_snapshot_duration_seconds",
			Help:    "Snapshot serialization and write duration",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stabu_snapshot_last_sequence",
			Help: "Sequence of latest snapshot",
		}),

		ReplayEventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stabu_replay_events_total",
			Help: "Events replayed during recovery",
		}),

		ReplayDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stabu_replay_duration_seconds",
			Help: "Duration of last recovery replay",
		}),

		// Projections
		ProjectionUpdateDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stabu_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"projection"}),

		// HTTP API
		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stabu_api_requests_total",
			Help: "API requests served",
		}, []string{"endpoint"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stabu_api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: apiBuckets,
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stabu_api_errors_total",
			Help: "API errors by status code",
		}, []string{"endpoint", "code"}),
	}
}

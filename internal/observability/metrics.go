package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for FluxLedger.
type Metrics struct {
	// --- Operations ---
	OpsApplied   *prometheus.CounterVec
	OpsRejected  *prometheus.CounterVec
	OpDuration   *prometheus.HistogramVec
	Journals     *prometheus.CounterVec
	CommitSeq    prometheus.Gauge
	StateHashDur prometheus.Histogram
	LockWait     prometheus.Histogram

	// --- Settlement ---
	StakedTotal     prometheus.Counter
	PayoutsTotal    prometheus.Counter
	FeesRetained    prometheus.Counter
	BetsOpen        prometheus.Gauge
	TreasuryBalance prometheus.Gauge

	// --- Ingestion ---
	CommandsReceived *prometheus.CounterVec
	ParseErrors      prometheus.Counter
	IngestToApply    *prometheus.HistogramVec
	PublishErrors    *prometheus.CounterVec

	// --- Channel & Backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	PersistBackpressure prometheus.Counter

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Errors      prometheus.Counter

	// --- Persistence ---
	PersistCommitsWritten  prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistBatchDur        prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge

	// --- Recovery & lease ---
	RecoveryRecords  prometheus.Gauge
	RecoveryDuration prometheus.Gauge
	Outstanding      prometheus.Gauge
	LeaseHeld        prometheus.Gauge
	LeaseRenewErrors prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics with the default
// registry. Call it once per process.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.05,
	}

	ingestBuckets := []float64{
		0.0001, 0.00025, 0.0005, 0.001, 0.002,
		0.005, 0.01, 0.025, 0.05, 0.1, 0.5,
	}

	return &Metrics{
		// Operations
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flux_ops_applied_total",
			Help: "Operations committed by the engine",
		}, []string{"operation"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flux_ops_rejected_total",
			Help: "Operations rejected (duplicate, validation, state)",
		}, []string{"operation", "code"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flux_op_duration_seconds",
			Help:    "Time to run and commit one operation",
			Buckets: latencyBuckets,
		}, []string{"operation"}),

		Journals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flux_journals_total",
			Help: "Custody journal entries committed",
		}, []string{"journal_type"}),

		CommitSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flux_commit_sequence",
			Help: "Current commit sequence number",
		}),

		StateHashDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "flux_state_hash_duration_seconds",
			Help:    "Time to digest and chain a commit",
			Buckets: latencyBuckets,
		}),

		LockWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "flux_lock_wait_seconds",
			Help:    "Time spent waiting for record locks",
			Buckets: latencyBuckets,
		}),

		// Settlement
		StakedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flux_staked_amount_total",
			Help: "Sum of stakes moved into the treasury",
		}),

		PayoutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flux_payouts_amount_total",
			Help: "Sum of net winnings paid from the treasury",
		}),

		FeesRetained: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flux_fees_retained_total",
			Help: "Sum of platform fees withheld from winnings",
		}),

		BetsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flux_bets_open",
			Help: "Bets created and not yet resolved since start",
		}),

		TreasuryBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flux_treasury_balance",
			Help: "Treasury custody balance after the last commit",
		}),

		// Ingestion
		CommandsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flux_commands_received_total",
			Help: "Commands pulled from NATS",
		}, []string{"operation"}),

		ParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flux_command_parse_errors_total",
			Help: "Commands that could not be decoded",
		}),

		IngestToApply: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flux_ingest_to_apply_seconds",
			Help:    "NATS receive to engine commit",
			Buckets: ingestBuckets,
		}, []string{"operation"}),

		PublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flux_publish_errors_total",
			Help: "Outbound event publish failures",
		}, []string{"event_type"}),

		// Channel & Backpressure
		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flux_channel_size",
			Help: "Current channel buffer usage",
		}, []string{"channel"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flux_channel_capacity",
			Help: "Channel buffer capacity",
		}, []string{"channel"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flux_channel_utilization",
			Help: "Channel usage ratio",
		}, []string{"channel"}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flux_persist_backpressure_total",
			Help: "Times a commit waited on a full persistence channel",
		}),

		// Idempotency
		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flux_idempotency_duplicates_total",
			Help: "Duplicate commands skipped",
		}, []string{"operation", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flux_dedup_lru_size",
			Help: "Entries in the dedup LRU",
		}),

		DedupLRUEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flux_dedup_lru_evictions_total",
			Help: "Dedup LRU evictions",
		}),

		DedupTier2Errors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flux_dedup_tier2_errors_total",
			Help: "Postgres dedup lookups that failed",
		}),

		// Persistence
		PersistCommitsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flux_persist_commits_written_total",
			Help: "Commits written to Postgres",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flux_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "flux_persist_batch_size",
			Help:    "Commits per persistence batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "flux_persist_batch_duration_seconds",
			Help:    "Time to write one persistence batch",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flux_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flux_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flux_persist_last_sequence",
			Help: "Last persisted commit sequence",
		}),

		// Recovery & lease
		RecoveryRecords: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flux_recovery_records",
			Help: "Records loaded on startup",
		}),

		RecoveryDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flux_recovery_duration_seconds",
			Help: "Time taken by startup recovery",
		}),

		Outstanding: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flux_outstanding_winnings",
			Help: "Net winnings claimable on resolved bets at recovery",
		}),

		LeaseHeld: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flux_writer_lease_held",
			Help: "1 while this process holds the writer lease",
		}),

		LeaseRenewErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flux_writer_lease_renew_errors_total",
			Help: "Failed writer lease renewals",
		}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Quote aggregation metrics
	// ============================================
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zap_quote_requests_total",
			Help: "Total provider quote requests",
		},
		[]string{"provider", "status"},
	)

	QuoteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zap_quote_duration_seconds",
			Help:    "Provider quote request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	NoSwapQuotes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zap_no_swap_quotes_total",
		Help: "Quotes short-circuited because source and destination tokens were identical",
	})

	// ============================================
	// Build / execution metrics
	// ============================================
	DepositsBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zap_deposits_built_total",
			Help: "Total deposit plans built",
		},
		[]string{"status"},
	)

	DepositsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zap_deposits_executed_total",
			Help: "Total deposit executions",
		},
		[]string{"mode", "status"}, // mode: zap | direct
	)

	// ============================================
	// Allowance reconciliation metrics
	// ============================================
	AllowanceApprovals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zap_allowance_approvals_total",
		Help: "Approval transactions submitted",
	})

	AllowancePollAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "zap_allowance_poll_attempts",
		Help:    "Poll attempts until a raised allowance became observable",
		Buckets: []float64{1, 2, 3, 5, 10, 20, 30},
	})

	AllowanceNotReflected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zap_allowance_not_reflected_total",
		Help: "Allowance polls exhausted without observing the raised value",
	})

	// ============================================
	// Balance scanner metrics
	// ============================================
	BalanceReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zap_balance_reads_total",
			Help: "Token balance reads",
		},
		[]string{"status"},
	)

	// ============================================
	// NATS metrics
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zap_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zap_nats_messages_published_total",
			Help: "Total NATS pipeline events published",
		},
		[]string{"subject"},
	)

	NATSPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zap_nats_publish_errors_total",
		Help: "Total NATS publish failures",
	})
)

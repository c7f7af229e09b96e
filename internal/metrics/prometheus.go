// Package metrics exports cycle bot activity as Prometheus metrics and keeps
// per-adapter operation latency statistics.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gateway-fm/cyclebot/internal/report"
	"github.com/gateway-fm/cyclebot/internal/retry"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

// PrometheusMetrics holds all Prometheus metrics of the cycle bot. It is a
// StatusReporter, so it can be fanned out to alongside other sinks.
type PrometheusMetrics struct {
	report.Nop

	// Counters
	OperationsTotal *prometheus.CounterVec
	RetriesTotal    *prometheus.CounterVec
	CyclesTotal     prometheus.Counter
	WalletsTotal    *prometheus.CounterVec

	// Gauges
	RunState      *prometheus.GaugeVec
	CycleProgress prometheus.Gauge

	// Histograms
	OperationDuration *prometheus.HistogramVec
}

var _ report.StatusReporter = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates and registers all Prometheus metrics.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &PrometheusMetrics{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cyclebot_operations_total",
				Help: "Adapter operations by adapter, operation and result status",
			},
			[]string{"adapter", "operation", "status"},
		),

		RetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cyclebot_failed_attempts_total",
				Help: "Failed attempts seen by the retry executor; final is true when retries were exhausted",
			},
			[]string{"final"},
		),

		CyclesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cyclebot_cycles_total",
				Help: "Completed cycles across all wallets",
			},
		),

		WalletsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cyclebot_wallets_total",
				Help: "Finished wallet runs by final state",
			},
			[]string{"state"},
		),

		RunState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cyclebot_run_state",
				Help: "Current run state of the active wallet (1 if active, 0 otherwise)",
			},
			[]string{"state"},
		),

		CycleProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cyclebot_cycle_progress_percent",
				Help: "Progress of the active wallet in percent",
			},
		),

		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cyclebot_operation_duration_seconds",
				Help:    "Adapter operation duration including retries and receipt wait",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"adapter"},
		),
	}
}

// knownOperations is a fixed set of operation kinds to bound label
// cardinality; swap operations carry a token symbol that is stripped.
var knownOperations = map[string]bool{
	"wrap":      true,
	"unwrap":    true,
	"stake":     true,
	"unstake":   true,
	"swap_out":  true,
	"swap_back": true,
	"transfer":  true,
	"call":      true,
	"deploy":    true,
}

// OperationKind maps an operation name to its metric label.
func OperationKind(operation string) string {
	switch {
	case strings.HasPrefix(operation, "swap out"):
		return "swap_out"
	case strings.HasPrefix(operation, "swap back"):
		return "swap_back"
	case knownOperations[operation]:
		return operation
	default:
		return "other"
	}
}

// ObserveOperation records an adapter operation.
func (m *PrometheusMetrics) ObserveOperation(ev types.OperationEvent) {
	m.OperationsTotal.WithLabelValues(ev.Adapter, OperationKind(ev.Operation), string(ev.Result.Status)).Inc()
	m.OperationDuration.WithLabelValues(ev.Adapter).Observe(ev.Duration.Seconds())
}

// ObserveRetry records a failed attempt. It matches retry.Config.OnAttempt.
func (m *PrometheusMetrics) ObserveRetry(a retry.Attempt) {
	final := "false"
	if a.Final {
		final = "true"
	}
	m.RetriesTotal.WithLabelValues(final).Inc()
}

// UpdateStatus updates the run state gauges.
func (m *PrometheusMetrics) UpdateStatus(state types.RunState) {
	for _, s := range []types.RunState{
		types.StateIdle,
		types.StateInitializing,
		types.StateRunning,
		types.StateCompleted,
		types.StateAborted,
		types.StateError,
	} {
		if s == state {
			m.RunState.WithLabelValues(string(s)).Set(1)
		} else {
			m.RunState.WithLabelValues(string(s)).Set(0)
		}
	}
}

// UpdateProgress sets the progress gauge and counts finished cycles. The
// orchestrator reports each cycle twice: at its start and once it finished.
func (m *PrometheusMetrics) UpdateProgress(cycle types.CycleState, percent float64) {
	m.CycleProgress.Set(percent)
	if cycle.Total > 0 && percent >= float64(cycle.Index+1)/float64(cycle.Total)*100 {
		m.CyclesTotal.Inc()
	}
}

// UpdateWallet resets the per-wallet gauges.
func (m *PrometheusMetrics) UpdateWallet(string) {
	m.CycleProgress.Set(0)
	m.UpdateStatus(types.StateIdle)
}

// FinishWallet counts the finished wallet run.
func (m *PrometheusMetrics) FinishWallet(outcome types.WalletOutcome) {
	m.WalletsTotal.WithLabelValues(string(outcome.State)).Inc()
}

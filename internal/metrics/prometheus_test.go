package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/gateway-fm/cyclebot/internal/retry"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

func TestOperationKind(t *testing.T) {
	tests := map[string]string{
		"wrap":            "wrap",
		"unstake":         "unstake",
		"swap out USDC":   "swap_out",
		"swap back CHOG":  "swap_back",
		"deploy":          "deploy",
		"something weird": "other",
	}
	for in, want := range tests {
		assert.Equal(t, want, OperationKind(in), in)
	}
}

func TestPrometheusMetrics_Operations(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.ObserveOperation(types.OperationEvent{Adapter: "Uniswap", Operation: "swap out USDC", Result: types.Success("0x1"), Duration: time.Second})
	m.ObserveOperation(types.OperationEvent{Adapter: "Uniswap", Operation: "swap out DAK", Result: types.Success("0x2"), Duration: time.Second})
	m.ObserveOperation(types.OperationEvent{Adapter: "Uniswap", Operation: "swap back USDC", Result: types.NoBalance("no USDC balance")})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("Uniswap", "swap_out", "Success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("Uniswap", "swap_back", "NoBalance")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OperationDuration))
}

func TestPrometheusMetrics_Retries(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.ObserveRetry(retry.Attempt{Operation: "wrap", Number: 1})
	m.ObserveRetry(retry.Attempt{Operation: "wrap", Number: 2, Final: true})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("true")))
}

func TestPrometheusMetrics_StateAndProgress(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.UpdateStatus(types.StateRunning)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunState.WithLabelValues("running")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RunState.WithLabelValues("idle")))

	cs := types.CycleState{Index: 0, Total: 2}
	m.UpdateProgress(cs, 0)
	m.UpdateProgress(cs, 50)
	cs.Index = 1
	m.UpdateProgress(cs, 50)
	m.UpdateProgress(cs, 100)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CyclesTotal))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.CycleProgress))

	m.FinishWallet(types.WalletOutcome{State: types.StateCompleted})
	m.UpdateWallet("0xabc")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WalletsTotal.WithLabelValues("completed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CycleProgress))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunState.WithLabelValues("idle")))
}

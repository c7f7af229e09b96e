package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gateway-fm/cyclebot/internal/report"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

// writeTimeout bounds each journal write.
const writeTimeout = 5 * time.Second

// Recorder is a StatusReporter that journals wallet runs. Operations are
// buffered in memory and written in bulk when the run finishes.
type Recorder struct {
	report.Nop

	store   Storage
	network string
	logger  *slog.Logger
	now     func() time.Time

	mu  sync.Mutex
	run *WalletRun
	ops []OperationLog
}

var _ report.StatusReporter = (*Recorder)(nil)

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store Storage, network string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:   store,
		network: network,
		logger:  logger,
		now:     time.Now,
	}
}

// CurrentRunID returns the ID of the run being recorded, if any.
func (r *Recorder) CurrentRunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == nil {
		return ""
	}
	return r.run.ID
}

// UpdateWallet starts a new run.
func (r *Recorder) UpdateWallet(wallet string) {
	run := &WalletRun{
		ID:        uuid.NewString(),
		Wallet:    wallet,
		Network:   r.network,
		StartedAt: r.now(),
		State:     types.StateInitializing,
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.CreateRun(ctx, run); err != nil {
		r.logger.Warn("Failed to record wallet run", slog.String("wallet", wallet), slog.String("error", err.Error()))
		return
	}

	r.mu.Lock()
	r.run = run
	r.ops = nil
	r.mu.Unlock()
}

// UpdateProgress records the configured cycle count.
func (r *Recorder) UpdateProgress(cycle types.CycleState, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run != nil {
		r.run.TotalCycles = cycle.Total
	}
}

// ObserveOperation buffers the operation.
func (r *Recorder) ObserveOperation(ev types.OperationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == nil {
		return
	}
	r.ops = append(r.ops, OperationLogFromEvent(ev))
	r.run.Operations++
	if ev.Result.OK() {
		r.run.Succeeded++
	} else {
		r.run.Failed++
	}
}

// FinishWallet writes the buffered operations and the run's outcome.
func (r *Recorder) FinishWallet(outcome types.WalletOutcome) {
	r.mu.Lock()
	run, ops := r.run, r.ops
	r.run, r.ops = nil, nil
	r.mu.Unlock()
	if run == nil {
		return
	}

	finished := outcome.FinishedAt
	if finished.IsZero() {
		finished = r.now()
	}
	run.FinishedAt = &finished
	run.State = outcome.State
	run.Cycles = outcome.Cycles
	run.Error = outcome.Error

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.BulkInsertOperations(ctx, run.ID, ops); err != nil {
		r.logger.Warn("Failed to record operations", slog.String("run", run.ID), slog.String("error", err.Error()))
	}
	if err := r.store.FinishRun(ctx, run); err != nil {
		r.logger.Warn("Failed to record run outcome", slog.String("run", run.ID), slog.String("error", err.Error()))
	}
}

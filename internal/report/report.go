// Package report defines the StatusReporter sink the orchestrator reports
// through, plus fan-out and logging implementations.
package report

import (
	"fmt"
	"log/slog"

	"github.com/gateway-fm/cyclebot/pkg/types"
)

// StatusReporter receives progress from the runner and orchestrator. Calls
// are made from a single goroutine, in order.
type StatusReporter interface {
	// Log reports a human-readable line.
	Log(msg string)
	// UpdateTable replaces the per-adapter status table of the current cycle.
	UpdateTable(rows []types.StatusRow)
	// UpdateStatus reports a run state transition.
	UpdateStatus(state types.RunState)
	// UpdateProgress reports the cycle being executed and overall progress
	// in percent.
	UpdateProgress(cycle types.CycleState, percent float64)
	// UpdateWallet reports the wallet whose run starts.
	UpdateWallet(wallet string)
	// UpdateSnapshot reports fresh balances and history.
	UpdateSnapshot(snap types.Snapshot)
	// ObserveOperation reports one finished adapter operation.
	ObserveOperation(ev types.OperationEvent)
	// FinishWallet reports the outcome of a wallet run.
	FinishWallet(outcome types.WalletOutcome)
}

// Nop discards everything. Embed it to implement a subset of StatusReporter.
type Nop struct{}

var _ StatusReporter = Nop{}

func (Nop) Log(string)                               {}
func (Nop) UpdateTable([]types.StatusRow)            {}
func (Nop) UpdateStatus(types.RunState)              {}
func (Nop) UpdateProgress(types.CycleState, float64) {}
func (Nop) UpdateWallet(string)                      {}
func (Nop) UpdateSnapshot(types.Snapshot)            {}
func (Nop) ObserveOperation(types.OperationEvent)    {}
func (Nop) FinishWallet(types.WalletOutcome)         {}

// Multi fans every call out to each reporter in order.
type Multi []StatusReporter

var _ StatusReporter = Multi(nil)

func (m Multi) Log(msg string) {
	for _, r := range m {
		r.Log(msg)
	}
}

func (m Multi) UpdateTable(rows []types.StatusRow) {
	for _, r := range m {
		r.UpdateTable(rows)
	}
}

func (m Multi) UpdateStatus(state types.RunState) {
	for _, r := range m {
		r.UpdateStatus(state)
	}
}

func (m Multi) UpdateProgress(cycle types.CycleState, percent float64) {
	for _, r := range m {
		r.UpdateProgress(cycle, percent)
	}
}

func (m Multi) UpdateWallet(wallet string) {
	for _, r := range m {
		r.UpdateWallet(wallet)
	}
}

func (m Multi) UpdateSnapshot(snap types.Snapshot) {
	for _, r := range m {
		r.UpdateSnapshot(snap)
	}
}

func (m Multi) ObserveOperation(ev types.OperationEvent) {
	for _, r := range m {
		r.ObserveOperation(ev)
	}
}

func (m Multi) FinishWallet(outcome types.WalletOutcome) {
	for _, r := range m {
		r.FinishWallet(outcome)
	}
}

// LogReporter writes reports to a structured logger.
type LogReporter struct {
	logger *slog.Logger
}

var _ StatusReporter = (*LogReporter)(nil)

// NewLogReporter creates a reporter logging to logger.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger}
}

func (l *LogReporter) Log(msg string) {
	l.logger.Info(msg)
}

func (l *LogReporter) UpdateTable(rows []types.StatusRow) {
	for _, row := range rows {
		l.logger.Debug("Adapter status",
			slog.String("adapter", row.Adapter),
			slog.String("state", string(row.State)),
		)
	}
}

func (l *LogReporter) UpdateStatus(state types.RunState) {
	l.logger.Info("Status changed", slog.String("state", string(state)))
}

func (l *LogReporter) UpdateProgress(cycle types.CycleState, percent float64) {
	l.logger.Info("Progress",
		slog.Int("cycle", cycle.Index+1),
		slog.Int("total", cycle.Total),
		slog.String("percent", fmt.Sprintf("%.1f", percent)),
	)
}

func (l *LogReporter) UpdateWallet(wallet string) {
	l.logger.Info("Wallet run starting", slog.String("wallet", wallet))
}

func (l *LogReporter) UpdateSnapshot(snap types.Snapshot) {
	attrs := []any{slog.String("wallet", snap.Wallet), slog.String("native", snap.Native)}
	for _, t := range snap.Tokens {
		attrs = append(attrs, slog.String(t.Symbol, t.Balance))
	}
	l.logger.Info("Balances", attrs...)
}

func (l *LogReporter) ObserveOperation(ev types.OperationEvent) {
	attrs := []any{
		slog.String("adapter", ev.Adapter),
		slog.String("operation", ev.Operation),
		slog.String("status", string(ev.Result.Status)),
		slog.Duration("duration", ev.Duration),
	}
	if ev.Result.TxHash != "" {
		attrs = append(attrs, slog.String("hash", ev.Result.TxHash))
	}
	if ev.Result.Message != "" {
		attrs = append(attrs, slog.String("message", ev.Result.Message))
	}
	if ev.Result.OK() {
		l.logger.Info("Operation finished", attrs...)
		return
	}
	l.logger.Warn("Operation finished", attrs...)
}

func (l *LogReporter) FinishWallet(outcome types.WalletOutcome) {
	attrs := []any{
		slog.String("wallet", outcome.Wallet),
		slog.String("state", string(outcome.State)),
		slog.Int("cycles", outcome.Cycles),
		slog.Duration("duration", outcome.FinishedAt.Sub(outcome.StartedAt)),
	}
	if outcome.Error != "" {
		attrs = append(attrs, slog.String("error", outcome.Error))
		l.logger.Error("Wallet run finished", attrs...)
		return
	}
	l.logger.Info("Wallet run finished", attrs...)
}

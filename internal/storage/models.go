// Package storage persists wallet runs and their adapter operations.
package storage

import (
	"time"

	"github.com/gateway-fm/cyclebot/pkg/types"
)

// WalletRun is one persisted wallet run with summary counts.
type WalletRun struct {
	ID          string         `json:"id"`
	Wallet      string         `json:"wallet"` // masked
	Network     string         `json:"network,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	FinishedAt  *time.Time     `json:"finishedAt,omitempty"`
	State       types.RunState `json:"state"`
	Cycles      int            `json:"cycles"`
	TotalCycles int            `json:"totalCycles"`
	Operations  int            `json:"operations"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"` // every non-success result
	Error       string         `json:"error,omitempty"`
}

// OperationLog is one persisted adapter operation.
type OperationLog struct {
	Cycle      int                   `json:"cycle"`
	Adapter    string                `json:"adapter"`
	Operation  string                `json:"operation"`
	Status     types.OperationStatus `json:"status"`
	TxHash     string                `json:"txHash,omitempty"`
	Message    string                `json:"message,omitempty"`
	DurationMs int64                 `json:"durationMs"`
	At         time.Time             `json:"at"`
}

// OperationLogFromEvent converts a reported operation.
func OperationLogFromEvent(ev types.OperationEvent) OperationLog {
	return OperationLog{
		Cycle:      ev.Cycle,
		Adapter:    ev.Adapter,
		Operation:  ev.Operation,
		Status:     ev.Result.Status,
		TxHash:     ev.Result.TxHash,
		Message:    ev.Result.Message,
		DurationMs: ev.Duration.Milliseconds(),
		At:         ev.At,
	}
}

// PaginatedRuns is a page of wallet runs.
type PaginatedRuns struct {
	Runs   []WalletRun `json:"runs"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// PaginatedOperations is a page of a run's operations.
type PaginatedOperations struct {
	Operations []OperationLog `json:"operations"`
	Total      int            `json:"total"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
}

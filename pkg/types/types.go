// Package types contains public API types for the cycle bot.
// These types form the external interface and must remain backwards-compatible.
package types

import "time"

// OperationStatus is the terminal outcome of one adapter operation.
type OperationStatus string

const (
	// StatusSuccess means the transaction was mined and succeeded.
	StatusSuccess OperationStatus = "Success"
	// StatusFailed means the transaction was mined but reverted.
	StatusFailed OperationStatus = "Failed"
	// StatusError means the operation could not be completed after retries.
	StatusError OperationStatus = "Error"
	// StatusNoBalance is an adapter-specific precondition short-circuit.
	StatusNoBalance OperationStatus = "NoBalance"
)

// OperationResult is the tagged outcome of an adapter operation.
type OperationResult struct {
	Status  OperationStatus `json:"status"`
	TxHash  string          `json:"txHash,omitempty"`
	Message string          `json:"message,omitempty"`
}

// OK reports whether the operation succeeded.
func (r OperationResult) OK() bool {
	return r.Status == StatusSuccess
}

// Success returns a successful result for the given transaction hash.
func Success(txHash string) OperationResult {
	return OperationResult{Status: StatusSuccess, TxHash: txHash}
}

// Failed returns a result for a mined but reverted transaction.
func Failed(txHash string) OperationResult {
	return OperationResult{Status: StatusFailed, TxHash: txHash, Message: "transaction reverted"}
}

// ErrorResult returns an Error result carrying msg.
func ErrorResult(msg string) OperationResult {
	return OperationResult{Status: StatusError, Message: msg}
}

// NoBalance returns a NoBalance result.
func NoBalance(msg string) OperationResult {
	return OperationResult{Status: StatusNoBalance, Message: msg}
}

// Bounds is an inclusive [Min, Max] range.
type Bounds struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// DelayBounds is an inclusive [Min, Max] range in milliseconds.
type DelayBounds struct {
	Min int64 `json:"min" yaml:"min"`
	Max int64 `json:"max" yaml:"max"`
}

// CycleConfig is the immutable cycle configuration of a run.
type CycleConfig struct {
	Total   int         `json:"total" yaml:"default"`
	Amounts Bounds      `json:"amounts" yaml:"amounts"`
	Delays  DelayBounds `json:"delays" yaml:"delays"`
}

// TransactionRecord is appended to the history once per cycle.
type TransactionRecord struct {
	Time   time.Time `json:"time"`
	Amount string    `json:"amount"` // native units, 8 decimals
}

// CycleState describes the cycle currently being executed.
// Adapters only ever receive a copy.
type CycleState struct {
	Index  int    `json:"index"` // zero-based
	Total  int    `json:"total"`
	Wallet string `json:"wallet"`
}

// RunState represents the orchestrator / runner state.
type RunState string

const (
	StateIdle         RunState = "idle"
	StateInitializing RunState = "initializing"
	StateRunning      RunState = "running"
	StateCompleted    RunState = "completed"
	StateAborted      RunState = "aborted"
	StateError        RunState = "error"
)

// AdapterState is the per-adapter status shown in the status table.
type AdapterState string

const (
	AdapterRunning AdapterState = "Running"
	AdapterActive  AdapterState = "Active"
	AdapterError   AdapterState = "Error"
)

// StatusRow is one row of the per-cycle status table.
type StatusRow struct {
	Adapter string       `json:"adapter"`
	State   AdapterState `json:"state"`
	At      time.Time    `json:"at"`
}

// OperationEvent describes one finished adapter operation (one half of a pair
// counts as one operation).
type OperationEvent struct {
	Wallet    string          `json:"wallet"`
	Cycle     int             `json:"cycle"`
	Adapter   string          `json:"adapter"`
	Operation string          `json:"operation"`
	Result    OperationResult `json:"result"`
	Duration  time.Duration   `json:"durationNs"`
	At        time.Time       `json:"at"`
}

// TokenBalance is the balance of a configured token.
type TokenBalance struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
	Balance string `json:"balance"` // formatted, token decimals applied
}

// Snapshot is a read-only view of a wallet's balances and recent history.
type Snapshot struct {
	Wallet  string              `json:"wallet"`
	Native  string              `json:"native"` // formatted, 4 decimals
	Tokens  []TokenBalance      `json:"tokens,omitempty"`
	History []TransactionRecord `json:"history,omitempty"`
	At      time.Time           `json:"at"`
}

// Status is the aggregate state exposed by the HTTP API.
type Status struct {
	State    RunState                 `json:"state"`
	Wallet   string                   `json:"wallet,omitempty"`
	Network  string                   `json:"network,omitempty"`
	Cycle    int                      `json:"cycle"`
	Total    int                      `json:"total"`
	Progress float64                  `json:"progress"`
	Table    []StatusRow              `json:"table,omitempty"`
	Snapshot *Snapshot                `json:"snapshot,omitempty"`
	Recent   []OperationEvent         `json:"recent,omitempty"`
	Latency  map[string]*LatencyStats `json:"latency,omitempty"` // by adapter
	Logs     []string                 `json:"logs,omitempty"`
}

// WalletOutcome summarizes one wallet run.
type WalletOutcome struct {
	Wallet     string    `json:"wallet"`
	State      RunState  `json:"state"`
	Cycles     int       `json:"cycles"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// LatencyBucket is one bucket of a latency histogram.
type LatencyBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// LatencyStats summarizes operation durations in milliseconds.
type LatencyStats struct {
	Count   int             `json:"count"`
	Min     float64         `json:"min"`
	Max     float64         `json:"max"`
	Avg     float64         `json:"avg"`
	P50     float64         `json:"p50"`
	P90     float64         `json:"p90"`
	P99     float64         `json:"p99"`
	Buckets []LatencyBucket `json:"buckets"`
}

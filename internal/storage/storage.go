package storage

import "context"

// Storage defines the persistence interface for the wallet run journal.
type Storage interface {
	// Run lifecycle
	CreateRun(ctx context.Context, run *WalletRun) error
	FinishRun(ctx context.Context, run *WalletRun) error
	GetRun(ctx context.Context, id string) (*WalletRun, error)

	// History queries
	ListRuns(ctx context.Context, limit, offset int) (*PaginatedRuns, error)
	DeleteRun(ctx context.Context, id string) error

	// Operation log bulk operations (called when a wallet run finishes)
	BulkInsertOperations(ctx context.Context, runID string, ops []OperationLog) error
	GetOperations(ctx context.Context, runID string, limit, offset int) (*PaginatedOperations, error)

	// Lifecycle
	Close() error
}

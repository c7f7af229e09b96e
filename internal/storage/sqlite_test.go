package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gateway-fm/cyclebot/pkg/types"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "nested", "cyclebot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStorage_RunLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	run := &WalletRun{
		ID:          "run-1",
		Wallet:      "0xf39F...2266",
		Network:     "monad-testnet",
		StartedAt:   started,
		State:       types.StateInitializing,
		TotalCycles: 10,
	}
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "0xf39F...2266", got.Wallet)
	assert.Equal(t, "monad-testnet", got.Network)
	assert.Equal(t, types.StateInitializing, got.State)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Nil(t, got.FinishedAt)

	finished := started.Add(time.Hour)
	run.FinishedAt = &finished
	run.State = types.StateCompleted
	run.Cycles = 10
	run.Operations = 40
	run.Succeeded = 38
	run.Failed = 2
	require.NoError(t, s.FinishRun(ctx, run))

	got, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, types.StateCompleted, got.State)
	assert.Equal(t, 10, got.Cycles)
	assert.Equal(t, 38, got.Succeeded)
	assert.Equal(t, 2, got.Failed)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))
	assert.Empty(t, got.Error)
}

func TestSQLiteStorage_NotFound(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.FinishRun(ctx, &WalletRun{ID: "missing", State: types.StateError})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStorage_ListRuns(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateRun(ctx, &WalletRun{
			ID:        id,
			Wallet:    "w-" + id,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			State:     types.StateRunning,
		}))
	}

	page, err := s.ListRuns(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Runs, 2)
	assert.Equal(t, "c", page.Runs[0].ID)
	assert.Equal(t, "b", page.Runs[1].ID)

	page, err = s.ListRuns(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Runs, 1)
	assert.Equal(t, "a", page.Runs[0].ID)
}

func TestSQLiteStorage_Operations(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateRun(ctx, &WalletRun{ID: "run", Wallet: "w", StartedAt: at, State: types.StateRunning}))
	require.NoError(t, s.BulkInsertOperations(ctx, "run", nil))

	ops := []OperationLog{
		{Cycle: 0, Adapter: "Rubic Swap", Operation: "wrap", Status: types.StatusSuccess, TxHash: "0x01", DurationMs: 1200, At: at},
		{Cycle: 0, Adapter: "Rubic Swap", Operation: "unwrap", Status: types.StatusError, Message: "rpc down", DurationMs: 5000, At: at.Add(time.Second)},
		{Cycle: 1, Adapter: "SendTx", Operation: "transfer", Status: types.StatusFailed, TxHash: "0x02", At: at.Add(2 * time.Second)},
	}
	require.NoError(t, s.BulkInsertOperations(ctx, "run", ops))

	page, err := s.GetOperations(ctx, "run", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Operations, 3)
	assert.Equal(t, "wrap", page.Operations[0].Operation)
	assert.Equal(t, "0x01", page.Operations[0].TxHash)
	assert.Equal(t, int64(1200), page.Operations[0].DurationMs)
	assert.Equal(t, types.StatusError, page.Operations[1].Status)
	assert.Equal(t, "rpc down", page.Operations[1].Message)
	assert.Empty(t, page.Operations[1].TxHash)
	assert.Equal(t, 1, page.Operations[2].Cycle)

	page, err = s.GetOperations(ctx, "run", 1, 1)
	require.NoError(t, err)
	require.Len(t, page.Operations, 1)
	assert.Equal(t, "unwrap", page.Operations[0].Operation)

	// Deleting a run cascades to its operations.
	require.NoError(t, s.DeleteRun(ctx, "run"))
	page, err = s.GetOperations(ctx, "run", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, page.Operations)
}

func TestRecorder(t *testing.T) {
	s := newTestStorage(t)
	rec := NewRecorder(s, "anvil", nil)

	rec.FinishWallet(types.WalletOutcome{State: types.StateCompleted}) // no run: ignored
	rec.ObserveOperation(types.OperationEvent{Adapter: "ignored"})

	rec.UpdateWallet("0xf39F...2266")
	id := rec.CurrentRunID()
	require.NotEmpty(t, id)

	rec.UpdateProgress(types.CycleState{Index: 0, Total: 2}, 0)
	rec.ObserveOperation(types.OperationEvent{Cycle: 0, Adapter: "SendTx", Operation: "transfer", Result: types.Success("0xaa"), Duration: 2 * time.Second})
	rec.ObserveOperation(types.OperationEvent{Cycle: 1, Adapter: "SendTx", Operation: "transfer", Result: types.ErrorResult("nonce too low")})

	finished := time.Now().UTC()
	rec.FinishWallet(types.WalletOutcome{Wallet: "0xf39F...2266", State: types.StateCompleted, Cycles: 2, FinishedAt: finished})
	assert.Empty(t, rec.CurrentRunID())

	ctx := context.Background()
	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StateCompleted, run.State)
	assert.Equal(t, "anvil", run.Network)
	assert.Equal(t, 2, run.Cycles)
	assert.Equal(t, 2, run.TotalCycles)
	assert.Equal(t, 2, run.Operations)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Failed)

	ops, err := s.GetOperations(ctx, id, 10, 0)
	require.NoError(t, err)
	require.Len(t, ops.Operations, 2)
	assert.Equal(t, int64(2000), ops.Operations[0].DurationMs)
	assert.Equal(t, "nonce too low", ops.Operations[1].Message)
}

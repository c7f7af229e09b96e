package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gateway-fm/cyclebot/pkg/types"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (creating if needed) the database at dbPath.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_foreign_keys=ON", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS wallet_runs (
		id TEXT PRIMARY KEY,
		wallet TEXT NOT NULL,
		network TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		state TEXT NOT NULL,
		cycles INTEGER DEFAULT 0,
		total_cycles INTEGER DEFAULT 0,
		operations INTEGER DEFAULT 0,
		succeeded INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_wallet_runs_started ON wallet_runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS operation_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		cycle INTEGER NOT NULL,
		adapter TEXT NOT NULL,
		operation TEXT NOT NULL,
		status TEXT NOT NULL,
		tx_hash TEXT,
		message TEXT,
		duration_ms INTEGER,
		at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES wallet_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_operation_logs_run ON operation_logs(run_id);
	`)
	return err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *WalletRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallet_runs (id, wallet, network, started_at, state, total_cycles)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Wallet, nullString(run.Network), run.StartedAt, string(run.State), run.TotalCycles)
	return err
}

// FinishRun stores a run's final state and counts.
func (s *SQLiteStorage) FinishRun(ctx context.Context, run *WalletRun) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE wallet_runs SET
			finished_at = ?,
			state = ?,
			cycles = ?,
			total_cycles = ?,
			operations = ?,
			succeeded = ?,
			failed = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, string(run.State), run.Cycles, run.TotalCycles,
		run.Operations, run.Succeeded, run.Failed, nullString(run.Error), run.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

const runColumns = `id, wallet, network, started_at, finished_at, state, cycles, total_cycles,
	operations, succeeded, failed, error_message`

// GetRun retrieves a run by ID.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*WalletRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM wallet_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns runs, newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit, offset int) (*PaginatedRuns, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM wallet_runs").Scan(&total); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM wallet_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []WalletRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PaginatedRuns{Runs: runs, Total: total, Limit: limit, Offset: offset}, nil
}

// DeleteRun deletes a run and its operations.
func (s *SQLiteStorage) DeleteRun(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM wallet_runs WHERE id = ?", id)
	return err
}

// BulkInsertOperations inserts ops in a single transaction.
func (s *SQLiteStorage) BulkInsertOperations(ctx context.Context, runID string, ops []OperationLog) error {
	if len(ops) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO operation_logs (run_id, cycle, adapter, operation, status, tx_hash, message, duration_ms, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, op := range ops {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := stmt.ExecContext(ctx, runID, op.Cycle, op.Adapter, op.Operation, string(op.Status),
			nullString(op.TxHash), nullString(op.Message), op.DurationMs, op.At)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetOperations returns a run's operations in the order they happened.
func (s *SQLiteStorage) GetOperations(ctx context.Context, runID string, limit, offset int) (*PaginatedOperations, error) {
	var total int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM operation_logs WHERE run_id = ?", runID).Scan(&total)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle, adapter, operation, status, tx_hash, message, duration_ms, at
		FROM operation_logs
		WHERE run_id = ?
		ORDER BY id
		LIMIT ? OFFSET ?
	`, runID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ops := []OperationLog{}
	for rows.Next() {
		var op OperationLog
		var status string
		var txHash, message sql.NullString
		if err := rows.Scan(&op.Cycle, &op.Adapter, &op.Operation, &status, &txHash, &message, &op.DurationMs, &op.At); err != nil {
			return nil, err
		}
		op.Status = types.OperationStatus(status)
		op.TxHash = txHash.String
		op.Message = message.String
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PaginatedOperations{Operations: ops, Total: total, Limit: limit, Offset: offset}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*WalletRun, error) {
	var run WalletRun
	var network, errMsg sql.NullString
	var finishedAt sql.NullTime
	var state string

	err := row.Scan(&run.ID, &run.Wallet, &network, &run.StartedAt, &finishedAt, &state,
		&run.Cycles, &run.TotalCycles, &run.Operations, &run.Succeeded, &run.Failed, &errMsg)
	if err != nil {
		return nil, err
	}

	run.Network = network.String
	run.State = types.RunState(state)
	run.Error = errMsg.String
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gateway-fm/cyclebot/pkg/types"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "v", entry["k"])

	buf.Reset()
	newLogger(&buf, "DEBUG", "text").Debug("dbg")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "msg=dbg")
}

func TestSummarize(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	done := types.WalletOutcome{Wallet: "0xf39F...2266", State: types.StateCompleted, Cycles: 4, StartedAt: start, FinishedAt: start.Add(time.Minute)}
	aborted := types.WalletOutcome{Wallet: "0x7099...79C8", State: types.StateAborted, Error: "failed to initialize Rubic Swap"}

	assert.Equal(t, 0, summarize(logger, []types.WalletOutcome{done}, 1, nil))
	assert.Equal(t, 1, summarize(logger, []types.WalletOutcome{done, aborted}, 2, nil))
	assert.Equal(t, 1, summarize(logger, []types.WalletOutcome{done}, 2, errors.New("context canceled")), "skipped wallets fail the run")
}

func TestRun_ConfigurationError(t *testing.T) {
	assert.Equal(t, 2, run([]string{"-cycles", "-1"}))
	assert.Equal(t, 0, run([]string{"-h"}))
}

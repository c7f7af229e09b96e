// Cycle bot.
// Drives every configured wallet through its randomized on-chain cycles and
// optionally serves the run status over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/gateway-fm/cyclebot/internal/chain"
	"github.com/gateway-fm/cyclebot/internal/config"
	"github.com/gateway-fm/cyclebot/internal/metrics"
	"github.com/gateway-fm/cyclebot/internal/params"
	"github.com/gateway-fm/cyclebot/internal/report"
	"github.com/gateway-fm/cyclebot/internal/rpc"
	"github.com/gateway-fm/cyclebot/internal/runner"
	"github.com/gateway-fm/cyclebot/internal/storage"
	"github.com/gateway-fm/cyclebot/internal/transport"
	"github.com/gateway-fm/cyclebot/internal/wallet"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 2
	}

	logger := newLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("resolved network profile",
		"network", cfg.Profile.Name,
		"chainId", cfg.ChainID,
		"rpc", cfg.RPCURL,
		"rpcRateLimit", cfg.RPCRateLimit,
		"requiresLegacyTx", cfg.Profile.RequiresLegacyTx,
		"cycles", cfg.Cycles.Total,
	)

	wallets, err := wallet.LoadKeys(cfg.KeysFile)
	if err != nil {
		logger.Error("failed to load private keys", "error", err, "path", cfg.KeysFile)
		return 1
	}
	recipients, err := wallet.LoadRecipients(cfg.RecipientsFile)
	if err != nil {
		logger.Error("failed to load recipients", "error", err, "path", cfg.RecipientsFile)
		return 1
	}
	logger.Info("loaded wallets", "wallets", len(wallets), "recipients", len(recipients))

	rpcCfg := rpc.DefaultClientConfig(cfg.RPCURL)
	rpcCfg.RateLimit = cfg.RPCRateLimit
	rpcCfg.Logger = logger
	provider := chain.NewRPCProvider(chain.RPCProviderConfig{
		Client: rpc.NewHTTPClient(rpcCfg),
		Logger: logger,
	})

	gen := params.NewRandom()
	if cfg.Seed != 0 {
		gen = params.New(cfg.Seed)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics := metrics.NewPrometheusMetrics(registry)
	latency := metrics.NewOperationLatency()
	hub := transport.NewHub(cfg.Profile.DisplayName, latency)

	reporters := report.Multi{report.NewLogReporter(logger), promMetrics, latency, hub}

	var store storage.Storage
	if cfg.DatabasePath != "" {
		sqlite, err := storage.NewSQLiteStorage(cfg.DatabasePath)
		if err != nil {
			logger.Error("failed to initialize storage", "error", err, "path", cfg.DatabasePath)
			return 1
		}
		defer sqlite.Close()
		logger.Info("initialized storage", "path", cfg.DatabasePath)

		store = sqlite
		reporters = append(reporters, storage.NewRecorder(store, cfg.Profile.Name, logger))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ListenAddr != "" {
		api := transport.NewServer(transport.ServerConfig{
			Status:             hub,
			Store:              store,
			Gatherer:           registry,
			CORSAllowedOrigins: os.Getenv("CORS_ALLOWED_ORIGINS"),
			Logger:             logger,
		})
		defer api.Close()

		srv := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("starting HTTP server", "addr", cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server failed", "error", err)
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP server shutdown failed", "error", err)
			}
		}()
	}

	r := runner.New(runner.Config{
		Config:     cfg,
		Wallets:    wallets,
		Recipients: recipients,
		Provider:   provider,
		Params:     gen,
		Reporter:   reporters,
		OnRetry:    promMetrics.ObserveRetry,
		Logger:     logger,
	})

	outcomes, err := r.Run(ctx)
	if err != nil {
		logger.Warn("run interrupted", "error", err, "walletsProcessed", len(outcomes))
	}

	return summarize(logger, outcomes, len(wallets), err)
}

// summarize logs the per-wallet outcomes and returns the process exit code:
// 0 when every wallet completed, 1 otherwise.
func summarize(logger *slog.Logger, outcomes []types.WalletOutcome, walletCount int, runErr error) int {
	completed := 0
	for _, o := range outcomes {
		if o.State == types.StateCompleted {
			completed++
		}
		logger.Info("wallet outcome",
			"wallet", o.Wallet,
			"state", o.State,
			"cycles", o.Cycles,
			"duration", o.FinishedAt.Sub(o.StartedAt).Round(time.Second).String(),
			"error", o.Error,
		)
	}

	logger.Info("run finished",
		"wallets", walletCount,
		"completed", completed,
		"failed", len(outcomes)-completed,
		"skipped", walletCount-len(outcomes),
	)

	if runErr != nil || completed != walletCount {
		return 1
	}
	return 0
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

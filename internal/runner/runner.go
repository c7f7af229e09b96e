// Package runner processes wallets sequentially, giving each one its own
// sequencer, adapter set and orchestrator.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/gateway-fm/cyclebot/internal/adapter"
	"github.com/gateway-fm/cyclebot/internal/chain"
	"github.com/gateway-fm/cyclebot/internal/config"
	"github.com/gateway-fm/cyclebot/internal/cycle"
	"github.com/gateway-fm/cyclebot/internal/history"
	"github.com/gateway-fm/cyclebot/internal/params"
	"github.com/gateway-fm/cyclebot/internal/report"
	"github.com/gateway-fm/cyclebot/internal/retry"
	"github.com/gateway-fm/cyclebot/internal/wallet"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

// Config configures a Runner.
type Config struct {
	Config     *config.Config
	Wallets    []*wallet.Wallet
	Recipients []common.Address
	Provider   chain.Provider
	Params     *params.Generator     // default: params.NewRandom()
	Reporter   report.StatusReporter // default: report.Nop
	// Snapshotter reads balances after init and every cycle.
	// Default: a chain.Snapshotter over Provider and Tokens(Config).
	Snapshotter cycle.Snapshotter
	OnRetry     func(retry.Attempt) // optional, called after every failed attempt
	Sleep       retry.Sleeper       // default: retry.Sleep
	Logger      *slog.Logger
	Now         func() time.Time
}

// Runner drives every wallet through its cycles, one wallet at a time.
type Runner struct {
	cfg        *config.Config
	wallets    []*wallet.Wallet
	recipients []common.Address
	provider   chain.Provider
	params     *params.Generator
	reporter   report.StatusReporter
	snapshots  cycle.Snapshotter
	onRetry    func(retry.Attempt)
	sleep      retry.Sleeper
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Runner.
func New(cfg Config) *Runner {
	r := &Runner{
		cfg:        cfg.Config,
		wallets:    cfg.Wallets,
		recipients: cfg.Recipients,
		provider:   cfg.Provider,
		params:     cfg.Params,
		reporter:   cfg.Reporter,
		snapshots:  cfg.Snapshotter,
		onRetry:    cfg.OnRetry,
		sleep:      cfg.Sleep,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	if r.params == nil {
		r.params = params.NewRandom()
	}
	if r.reporter == nil {
		r.reporter = report.Nop{}
	}
	if r.sleep == nil {
		r.sleep = retry.Sleep
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Run processes all wallets in order. A failing wallet is recorded and the
// next one starts after the inter-wallet delay. Run returns early only when
// ctx is done, with the outcomes gathered so far.
func (r *Runner) Run(ctx context.Context) ([]types.WalletOutcome, error) {
	outcomes := make([]types.WalletOutcome, 0, len(r.wallets))

	for i, w := range r.wallets {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		r.reporter.Log(fmt.Sprintf("Processing wallet %d/%d: %s", i+1, len(r.wallets), w.Masked()))
		outcome := r.runWallet(ctx, w)
		outcomes = append(outcomes, outcome)
		r.reporter.FinishWallet(outcome)

		if outcome.Error != "" {
			r.logger.Error("Wallet run failed",
				slog.String("wallet", outcome.Wallet),
				slog.String("state", string(outcome.State)),
				slog.String("error", outcome.Error),
			)
		}

		if i < len(r.wallets)-1 {
			if err := r.sleep(ctx, r.cfg.InterWalletDelay()); err != nil {
				return outcomes, err
			}
		}
	}

	r.reporter.Log("All wallets processed")
	return outcomes, ctx.Err()
}

// runWallet never panics: a panic outside the adapters' own recovery ends
// the wallet with StateError so the next wallet still runs.
func (r *Runner) runWallet(ctx context.Context, w *wallet.Wallet) (outcome types.WalletOutcome) {
	outcome = types.WalletOutcome{
		Wallet:    w.Masked(),
		State:     types.StateIdle,
		StartedAt: r.now(),
	}
	finish := func(state types.RunState, cycles int, err error) types.WalletOutcome {
		outcome.State = state
		outcome.Cycles = cycles
		if err != nil {
			outcome.Error = err.Error()
		}
		outcome.FinishedAt = r.now()
		return outcome
	}

	var orch *cycle.Orchestrator
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		completed := 0
		if orch != nil {
			completed = orch.Completed()
		}
		r.logger.Error("Wallet run panicked",
			slog.String("wallet", w.Masked()),
			slog.Any("panic", p),
		)
		r.reporter.UpdateStatus(types.StateError)
		outcome = finish(types.StateError, completed, fmt.Errorf("panic: %v", p))
	}()

	r.reporter.UpdateWallet(w.Masked())
	logger := r.logger.With(slog.String("wallet", w.Masked()))

	seq := wallet.NewSequencer(wallet.SequencerConfig{
		Wallet:      w,
		Provider:    r.provider,
		ChainID:     big.NewInt(r.cfg.ChainID),
		Legacy:      r.cfg.Profile != nil && r.cfg.Profile.RequiresLegacyTx,
		MaxGasPrice: GweiToWei(r.cfg.Gas.MaxGwei),
		Logger:      logger,
	})
	exec := retry.New(retry.Config{
		Policy: retry.Policy{
			MaxRetries:  r.cfg.Retry.MaxRetries,
			Backoff:     r.cfg.Retry.Backoff(),
			OnExhausted: retry.ReturnResult,
		},
		Sleep:     r.sleep,
		OnAttempt: r.onRetry,
		Logger:    logger,
	})

	descs, err := adapter.Build(r.cfg, r.recipients, adapter.Deps{
		Sequencer: seq,
		Executor:  exec,
		Params:    r.params,
		Profile:   r.cfg.Profile,
		Logger:    logger,
		Now:       r.now,
	})
	if err != nil {
		return finish(types.StateError, 0, err)
	}

	snapshots := r.snapshots
	if snapshots == nil {
		snapshots = chain.NewSnapshotter(r.provider, Tokens(r.cfg), logger)
	}

	orch, err = cycle.New(cycle.Config{
		Wallet:      w.Address,
		Cycles:      r.cfg.Cycles,
		Adapters:    descs,
		Params:      r.params,
		History:     history.New(),
		Reporter:    r.reporter,
		Snapshotter: snapshots,
		Sleep:       r.sleep,
		InitDelay:   r.cfg.InitDelay(),
		Logger:      logger,
		Now:         r.now,
	})
	if err != nil {
		return finish(types.StateError, 0, err)
	}

	if err := orch.Initialize(ctx); err != nil {
		return finish(orch.State(), 0, err)
	}
	err = orch.Run(ctx)
	state := orch.State()
	if err != nil && errors.Is(err, context.Canceled) {
		logger.Info("Wallet run cancelled")
	}
	return finish(state, orch.Completed(), err)
}

// Tokens returns the ERC20 tokens reported in balance snapshots: the wrapped
// native token, the Bean Swap quote token and the Uniswap tokens, without
// duplicates or unparsable addresses.
func Tokens(cfg *config.Config) []chain.Token {
	seen := make(map[common.Address]bool)
	var out []chain.Token
	add := func(symbol, addr string) {
		if !common.IsHexAddress(addr) {
			return
		}
		a := common.HexToAddress(addr)
		if seen[a] {
			return
		}
		seen[a] = true
		out = append(out, chain.Token{Symbol: symbol, Address: a})
	}

	c := cfg.Contracts
	add("WMON", c.WMON)
	add("USDC", c.BeanSwap.USDC)

	symbols := make([]string, 0, len(c.Uniswap.Tokens))
	for sym := range c.Uniswap.Tokens {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		add(sym, c.Uniswap.Tokens[sym])
	}
	return out
}

// GweiToWei converts a gwei amount to wei. Zero or negative values yield nil.
func GweiToWei(gwei float64) *big.Int {
	if gwei <= 0 {
		return nil
	}
	return decimal.NewFromFloat(gwei).Shift(9).BigInt()
}

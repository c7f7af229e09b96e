// Package cycle drives one wallet through its configured number of cycles,
// dispatching every adapter in declared order and isolating their failures.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/cyclebot/internal/adapter"
	"github.com/gateway-fm/cyclebot/internal/config"
	"github.com/gateway-fm/cyclebot/internal/history"
	"github.com/gateway-fm/cyclebot/internal/params"
	"github.com/gateway-fm/cyclebot/internal/report"
	"github.com/gateway-fm/cyclebot/internal/retry"
	"github.com/gateway-fm/cyclebot/internal/wallet"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

// ErrNotInitialized is returned by Run before a successful Initialize.
var ErrNotInitialized = errors.New("orchestrator not initialized")

// Snapshotter reads a wallet's balances.
type Snapshotter interface {
	Take(ctx context.Context, wallet common.Address, history []types.TransactionRecord) (types.Snapshot, error)
}

// Config configures an Orchestrator.
type Config struct {
	Wallet      common.Address
	Cycles      types.CycleConfig
	Adapters    []adapter.Descriptor
	Params      *params.Generator
	History     *history.History      // default: new 10-entry history
	Reporter    report.StatusReporter // default: report.Nop
	Snapshotter Snapshotter           // optional
	Sleep       retry.Sleeper         // default: retry.Sleep
	InitDelay   time.Duration         // pause between adapter initializations
	DeployCount int                   // instances per deploy dispatch (default: 1)
	Logger      *slog.Logger
	Now         func() time.Time
}

// Orchestrator runs the cycles of one wallet. It must not be shared between
// wallets.
type Orchestrator struct {
	wallet      common.Address
	masked      string
	cycles      types.CycleConfig
	adapters    []adapter.Descriptor
	params      *params.Generator
	history     *history.History
	reporter    report.StatusReporter
	snapshotter Snapshotter
	sleep       retry.Sleeper
	initDelay   time.Duration
	deployCount int
	logger      *slog.Logger
	now         func() time.Time

	mu          sync.Mutex
	state       types.RunState
	initialized bool
	completed   int
}

// New creates an orchestrator in the Idle state.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Cycles.Total <= 0 {
		return nil, config.NewConfigurationError("cycles.default", "must be positive, got %d", cfg.Cycles.Total)
	}
	if cfg.Params == nil {
		return nil, config.NewConfigurationError("params", "parameter generator is required")
	}

	o := &Orchestrator{
		wallet:      cfg.Wallet,
		masked:      wallet.Mask(cfg.Wallet.Hex()),
		cycles:      cfg.Cycles,
		adapters:    cfg.Adapters,
		params:      cfg.Params,
		history:     cfg.History,
		reporter:    cfg.Reporter,
		snapshotter: cfg.Snapshotter,
		sleep:       cfg.Sleep,
		initDelay:   cfg.InitDelay,
		deployCount: cfg.DeployCount,
		logger:      cfg.Logger,
		now:         cfg.Now,
		state:       types.StateIdle,
	}
	if o.history == nil {
		o.history = history.New()
	}
	if o.reporter == nil {
		o.reporter = report.Nop{}
	}
	if o.sleep == nil {
		o.sleep = retry.Sleep
	}
	if o.deployCount <= 0 {
		o.deployCount = 1
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With(slog.String("wallet", o.masked))
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// State returns the current run state.
func (o *Orchestrator) State() types.RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Completed returns the number of finished cycles.
func (o *Orchestrator) Completed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completed
}

// History returns the orchestrator's transaction history.
func (o *Orchestrator) History() *history.History {
	return o.history
}

func (o *Orchestrator) setState(s types.RunState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.reporter.UpdateStatus(s)
}

// Initialize initializes every adapter in declared order. The first failure
// aborts the run with an *adapter.InitializationError.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.setState(types.StateInitializing)
	o.reporter.UpdateTable([]types.StatusRow{{Adapter: "Initializing...", State: types.AdapterRunning, At: o.now()}})

	for i, d := range o.adapters {
		o.reporter.Log(fmt.Sprintf("Initializing %s...", d.Name))
		if err := o.initAdapter(ctx, d); err != nil {
			ie := &adapter.InitializationError{Adapter: d.Name, Err: err}
			o.reporter.Log(ie.Error())
			o.setState(types.StateAborted)
			return ie
		}
		o.reporter.Log(fmt.Sprintf("%s initialized successfully", d.Name))

		if i < len(o.adapters)-1 {
			if err := o.sleep(ctx, o.initDelay); err != nil {
				o.setState(types.StateAborted)
				return &adapter.InitializationError{Adapter: d.Name, Err: err}
			}
		}
	}

	o.mu.Lock()
	o.initialized = true
	o.mu.Unlock()

	o.refreshSnapshot(ctx)
	return nil
}

func (o *Orchestrator) initAdapter(ctx context.Context, d adapter.Descriptor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.Adapter.Initialize(ctx)
}

// Run executes cycles 0..N-1 in order. Operation failures never stop a
// cycle; Run returns early only when ctx is done or an amount cannot be
// drawn.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	initialized := o.initialized
	o.mu.Unlock()
	if !initialized {
		return ErrNotInitialized
	}

	o.setState(types.StateRunning)
	o.reporter.Log("All adapters initialized. Starting cycles...")

	total := o.cycles.Total
	for i := 0; i < total; i++ {
		if err := o.runCycle(ctx, i); err != nil {
			o.setState(types.StateError)
			o.reporter.Log(fmt.Sprintf("Cycle error: %v", err))
			return err
		}

		o.mu.Lock()
		o.completed = i + 1
		o.mu.Unlock()

		if i < total-1 {
			d := o.params.Delay(o.cycles.Delays)
			o.reporter.Log(fmt.Sprintf("Waiting %s before next cycle...", d))
			if err := o.sleep(ctx, d); err != nil {
				o.setState(types.StateError)
				return err
			}
		}
	}

	o.reporter.Log(fmt.Sprintf("Completed cycles for wallet: %s", o.masked))
	o.setState(types.StateCompleted)
	return nil
}

func (o *Orchestrator) runCycle(ctx context.Context, index int) error {
	cs := types.CycleState{Index: index, Total: o.cycles.Total, Wallet: o.masked}

	amount, err := o.params.Amount(o.cycles.Amounts)
	if err != nil {
		return err
	}
	o.reporter.UpdateProgress(cs, percent(index, cs.Total))
	o.reporter.Log(fmt.Sprintf("Starting cycle %d with %s", index+1, amount))

	var rows []types.StatusRow
	for _, d := range o.adapters {
		if err := ctx.Err(); err != nil {
			return err
		}

		rows = append(rows, types.StatusRow{Adapter: d.Name, State: types.AdapterRunning, At: o.now()})
		o.reporter.UpdateTable(copyRows(rows))

		state := types.AdapterActive
		if err := o.dispatch(ctx, cs, d, amount.Wei); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			o.reporter.Log(fmt.Sprintf("%s: Error - %v", d.Name, err))
			o.logger.Warn("Adapter failed",
				slog.String("adapter", d.Name),
				slog.Int("cycle", index+1),
				slog.String("error", err.Error()),
			)
			state = types.AdapterError
		}
		rows[len(rows)-1] = types.StatusRow{Adapter: d.Name, State: state, At: o.now()}
	}
	o.reporter.UpdateTable(copyRows(rows))

	o.history.Push(types.TransactionRecord{Time: o.now(), Amount: amount.String()})
	o.refreshSnapshot(ctx)
	o.reporter.UpdateProgress(cs, percent(index+1, cs.Total))
	return nil
}

// dispatch invokes the capability declared by d. The two halves of a pair
// are separated by a random delay; an error from the first half skips the
// second. Panics are recovered into errors.
func (o *Orchestrator) dispatch(ctx context.Context, cs types.CycleState, d adapter.Descriptor, amount *big.Int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch d.Capability {
	case adapter.CapWrapUnwrap:
		a := d.Adapter.(adapter.WrapUnwrapper)
		if err := o.run(cs, d, "wrap", func() (types.OperationResult, error) { return a.Wrap(ctx, amount) }); err != nil {
			return err
		}
		if err := o.pause(ctx); err != nil {
			return err
		}
		return o.run(cs, d, "unwrap", func() (types.OperationResult, error) { return a.Unwrap(ctx, amount) })

	case adapter.CapStakeUnstake:
		a := d.Adapter.(adapter.StakeUnstaker)
		if err := o.run(cs, d, "stake", func() (types.OperationResult, error) { return a.Stake(ctx, amount) }); err != nil {
			return err
		}
		if err := o.pause(ctx); err != nil {
			return err
		}
		return o.run(cs, d, "unstake", func() (types.OperationResult, error) { return a.Unstake(ctx, amount) })

	case adapter.CapStakeOnly:
		a := d.Adapter.(adapter.Staker)
		return o.run(cs, d, "stake", func() (types.OperationResult, error) { return a.Stake(ctx, amount) })

	case adapter.CapSwapPair:
		a := d.Adapter.(adapter.SwapPairer)
		start := o.now()
		tok, res, err := a.SwapOut(ctx, amount)
		o.observe(cs, d, "swap out "+tok.Symbol, res, err, start)
		if err != nil {
			return err
		}
		if err := o.pause(ctx); err != nil {
			return err
		}
		return o.run(cs, d, "swap back "+tok.Symbol, func() (types.OperationResult, error) { return a.SwapBack(ctx, tok) })

	case adapter.CapTransfer:
		a := d.Adapter.(adapter.Transferer)
		return o.run(cs, d, "transfer", func() (types.OperationResult, error) { return a.SendTransfer(ctx) })

	case adapter.CapRawCall:
		a := d.Adapter.(adapter.RawCaller)
		return o.run(cs, d, "call", func() (types.OperationResult, error) { return a.RawCall(ctx) })

	case adapter.CapDeployArtifact:
		a := d.Adapter.(adapter.Deployer)
		start := o.now()
		results, err := a.DeployArtifact(ctx, o.deployCount)
		if len(results) == 0 && err == nil {
			o.reporter.Log(fmt.Sprintf("%s: Deployment result is empty", d.Name))
		}
		for _, r := range results {
			o.observe(cs, d, "deploy", r, nil, start)
		}
		return err

	default:
		return fmt.Errorf("unknown capability %q", d.Capability)
	}
}

// run times op, reports its outcome and returns its error.
func (o *Orchestrator) run(cs types.CycleState, d adapter.Descriptor, operation string, op func() (types.OperationResult, error)) error {
	start := o.now()
	res, err := op()
	o.observe(cs, d, operation, res, err, start)
	return err
}

func (o *Orchestrator) observe(cs types.CycleState, d adapter.Descriptor, operation string, res types.OperationResult, err error, start time.Time) {
	if err != nil && res.Status == "" {
		res = types.ErrorResult(err.Error())
	}
	end := o.now()
	o.reporter.ObserveOperation(types.OperationEvent{
		Wallet:    o.masked,
		Cycle:     cs.Index,
		Adapter:   d.Name,
		Operation: operation,
		Result:    res,
		Duration:  end.Sub(start),
		At:        end,
	})
	o.reporter.Log(fmt.Sprintf("%s: %s => %s", d.Name, operation, describe(res)))
}

func (o *Orchestrator) pause(ctx context.Context) error {
	return o.sleep(ctx, o.params.Delay(o.cycles.Delays))
}

func (o *Orchestrator) refreshSnapshot(ctx context.Context) {
	if o.snapshotter == nil {
		return
	}
	snap, err := o.snapshotter.Take(ctx, o.wallet, o.history.Snapshot())
	if err != nil {
		o.logger.Warn("Failed to refresh balances", slog.String("error", err.Error()))
		return
	}
	o.reporter.UpdateSnapshot(snap)
}

func describe(res types.OperationResult) string {
	switch {
	case res.TxHash != "" && res.Message != "":
		return fmt.Sprintf("%s (%s: %s)", res.Status, res.TxHash, res.Message)
	case res.TxHash != "":
		return fmt.Sprintf("%s (%s)", res.Status, res.TxHash)
	case res.Message != "":
		return fmt.Sprintf("%s (%s)", res.Status, res.Message)
	default:
		return string(res.Status)
	}
}

func percent(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}

func copyRows(rows []types.StatusRow) []types.StatusRow {
	out := make([]types.StatusRow, len(rows))
	copy(out, rows)
	return out
}

package cycle

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gateway-fm/cyclebot/internal/adapter"
	"github.com/gateway-fm/cyclebot/internal/chain"
	"github.com/gateway-fm/cyclebot/internal/params"
	"github.com/gateway-fm/cyclebot/internal/report"
	"github.com/gateway-fm/cyclebot/internal/retry"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

var testWallet = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

// calls is the shared, ordered log of adapter invocations.
type calls struct {
	mu  sync.Mutex
	log []string
}

func (c *calls) add(s string) {
	c.mu.Lock()
	c.log = append(c.log, s)
	c.mu.Unlock()
}

func (c *calls) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

type stubAdapter struct {
	name    string
	calls   *calls
	initErr error
	opErr   error
	result  types.OperationResult
	panics  bool
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Initialize(context.Context) error {
	s.calls.add(s.name + ":init")
	return s.initErr
}

func (s *stubAdapter) op(op string) (types.OperationResult, error) {
	s.calls.add(s.name + ":" + op)
	if s.panics {
		panic("boom")
	}
	if s.opErr != nil {
		return types.ErrorResult(s.opErr.Error()), s.opErr
	}
	if s.result.Status != "" {
		return s.result, nil
	}
	return types.Success("0x01"), nil
}

type stubWrap struct{ stubAdapter }

func (s *stubWrap) Wrap(context.Context, *big.Int) (types.OperationResult, error) {
	return s.op("wrap")
}

func (s *stubWrap) Unwrap(context.Context, *big.Int) (types.OperationResult, error) {
	return s.op("unwrap")
}

type stubStake struct{ stubAdapter }

func (s *stubStake) Stake(context.Context, *big.Int) (types.OperationResult, error) {
	return s.op("stake")
}

type stubTransfer struct{ stubAdapter }

func (s *stubTransfer) SendTransfer(context.Context) (types.OperationResult, error) {
	return s.op("transfer")
}

type stubSwap struct{ stubAdapter }

func (s *stubSwap) SwapOut(context.Context, *big.Int) (chain.Token, types.OperationResult, error) {
	res, err := s.op("swap-out")
	return chain.Token{Symbol: "USDC"}, res, err
}

func (s *stubSwap) SwapBack(_ context.Context, tok chain.Token) (types.OperationResult, error) {
	return s.op("swap-back-" + tok.Symbol)
}

type stubDeploy struct{ stubAdapter }

func (s *stubDeploy) DeployArtifact(_ context.Context, count int) ([]types.OperationResult, error) {
	out := make([]types.OperationResult, 0, count)
	for i := 0; i < count; i++ {
		res, _ := s.op("deploy")
		out = append(out, res)
	}
	return out, nil
}

// recorder captures reporter callbacks.
type recorder struct {
	report.Nop
	mu        sync.Mutex
	states    []types.RunState
	events    []types.OperationEvent
	tables    [][]types.StatusRow
	progress  []float64
	snapshots int
}

func (r *recorder) UpdateStatus(s types.RunState) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) ObserveOperation(ev types.OperationEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) UpdateTable(rows []types.StatusRow) {
	r.mu.Lock()
	r.tables = append(r.tables, rows)
	r.mu.Unlock()
}

func (r *recorder) UpdateProgress(_ types.CycleState, p float64) {
	r.mu.Lock()
	r.progress = append(r.progress, p)
	r.mu.Unlock()
}

func (r *recorder) UpdateSnapshot(types.Snapshot) {
	r.mu.Lock()
	r.snapshots++
	r.mu.Unlock()
}

func (r *recorder) lastTable() []types.StatusRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tables[len(r.tables)-1]
}

type stubSnapshotter struct{ takes int }

func (s *stubSnapshotter) Take(_ context.Context, w common.Address, h []types.TransactionRecord) (types.Snapshot, error) {
	s.takes++
	return types.Snapshot{Wallet: w.Hex(), History: h}, nil
}

type harness struct {
	orch   *Orchestrator
	rec    *recorder
	snaps  *stubSnapshotter
	sleeps []time.Duration
}

func newHarness(t *testing.T, total int, descs ...adapter.Descriptor) *harness {
	t.Helper()
	h := &harness{rec: &recorder{}, snaps: &stubSnapshotter{}}
	o, err := New(Config{
		Wallet: testWallet,
		Cycles: types.CycleConfig{
			Total:   total,
			Amounts: types.Bounds{Min: 0.01, Max: 0.02},
			Delays:  types.DelayBounds{Min: 10, Max: 20},
		},
		Adapters:    descs,
		Params:      params.New(7),
		Reporter:    h.rec,
		Snapshotter: h.snaps,
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return ctx.Err()
		},
		InitDelay: time.Second,
	})
	require.NoError(t, err)
	h.orch = o
	return h
}

func descriptor(t *testing.T, a adapter.Adapter, c adapter.Capability) adapter.Descriptor {
	t.Helper()
	d, err := adapter.NewDescriptor(a, c, nil)
	require.NoError(t, err)
	return d
}

func TestOrchestrator_DispatchesInDeclaredOrder(t *testing.T) {
	log := &calls{}
	a := &stubTransfer{stubAdapter{name: "A", calls: log}}
	b := &stubWrap{stubAdapter{name: "B", calls: log}}

	h := newHarness(t, 3,
		descriptor(t, a, adapter.CapTransfer),
		descriptor(t, b, adapter.CapWrapUnwrap),
	)
	ctx := context.Background()
	require.NoError(t, h.orch.Initialize(ctx))
	require.NoError(t, h.orch.Run(ctx))

	want := []string{"A:init", "B:init"}
	for i := 0; i < 3; i++ {
		want = append(want, "A:transfer", "B:wrap", "B:unwrap")
	}
	assert.Equal(t, want, log.all())
	assert.Equal(t, types.StateCompleted, h.orch.State())
	assert.Equal(t, 3, h.orch.Completed())

	// One history entry per cycle.
	assert.Equal(t, 3, h.orch.History().Len())
	// Start plus one per cycle.
	assert.Equal(t, 4, h.snaps.takes)
	assert.InDeltaSlice(t, []float64{0, 100.0 / 3, 100.0 / 3, 200.0 / 3, 200.0 / 3, 100}, h.rec.progress, 1e-9)
	assert.Equal(t, []types.RunState{types.StateInitializing, types.StateRunning, types.StateCompleted}, h.rec.states)

	// 1 init pause, 3 pair pauses, 2 inter-cycle delays.
	require.Len(t, h.sleeps, 6)
	assert.Equal(t, time.Second, h.sleeps[0])
	for _, d := range h.sleeps[1:] {
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 20*time.Millisecond)
	}
}

func TestOrchestrator_FailureIsolation(t *testing.T) {
	log := &calls{}
	failing := &stubTransfer{stubAdapter{name: "Broken", calls: log, opErr: errors.New("rpc down")}}
	healthy := &stubStake{stubAdapter{name: "Healthy", calls: log}}

	h := newHarness(t, 2,
		descriptor(t, failing, adapter.CapTransfer),
		descriptor(t, healthy, adapter.CapStakeOnly),
	)
	ctx := context.Background()
	require.NoError(t, h.orch.Initialize(ctx))
	require.NoError(t, h.orch.Run(ctx))

	assert.Equal(t, []string{
		"Broken:init", "Healthy:init",
		"Broken:transfer", "Healthy:stake",
		"Broken:transfer", "Healthy:stake",
	}, log.all())

	table := h.rec.lastTable()
	require.Len(t, table, 2)
	assert.Equal(t, types.AdapterError, table[0].State)
	assert.Equal(t, types.AdapterActive, table[1].State)
	assert.Equal(t, types.StateCompleted, h.orch.State())
}

func TestOrchestrator_PanicIsRecovered(t *testing.T) {
	log := &calls{}
	bad := &stubStake{stubAdapter{name: "Panicky", calls: log, panics: true}}
	good := &stubTransfer{stubAdapter{name: "Good", calls: log}}

	h := newHarness(t, 1,
		descriptor(t, bad, adapter.CapStakeOnly),
		descriptor(t, good, adapter.CapTransfer),
	)
	ctx := context.Background()
	require.NoError(t, h.orch.Initialize(ctx))
	require.NoError(t, h.orch.Run(ctx))

	assert.Contains(t, log.all(), "Good:transfer")
	assert.Equal(t, types.AdapterError, h.rec.lastTable()[0].State)
}

func TestOrchestrator_FirstHalfErrorSkipsSecond(t *testing.T) {
	log := &calls{}
	w := &stubWrap{stubAdapter{name: "W", calls: log, opErr: errors.New("exhausted")}}

	h := newHarness(t, 1, descriptor(t, w, adapter.CapWrapUnwrap))
	ctx := context.Background()
	require.NoError(t, h.orch.Initialize(ctx))
	require.NoError(t, h.orch.Run(ctx))

	assert.Equal(t, []string{"W:init", "W:wrap"}, log.all())
	require.Len(t, h.rec.events, 1)
	assert.Equal(t, types.StatusError, h.rec.events[0].Result.Status)
	assert.Equal(t, "wrap", h.rec.events[0].Operation)
}

func TestOrchestrator_FailedResultDoesNotStopPair(t *testing.T) {
	log := &calls{}
	w := &stubWrap{stubAdapter{name: "W", calls: log, result: types.Failed("0xdead")}}

	h := newHarness(t, 1, descriptor(t, w, adapter.CapWrapUnwrap))
	ctx := context.Background()
	require.NoError(t, h.orch.Initialize(ctx))
	require.NoError(t, h.orch.Run(ctx))

	assert.Equal(t, []string{"W:init", "W:wrap", "W:unwrap"}, log.all())
	assert.Equal(t, types.AdapterActive, h.rec.lastTable()[0].State)
}

func TestOrchestrator_SwapPairAndDeploy(t *testing.T) {
	log := &calls{}
	s := &stubSwap{stubAdapter{name: "S", calls: log}}
	d := &stubDeploy{stubAdapter{name: "D", calls: log}}

	h := newHarness(t, 1,
		descriptor(t, s, adapter.CapSwapPair),
		descriptor(t, d, adapter.CapDeployArtifact),
	)
	ctx := context.Background()
	require.NoError(t, h.orch.Initialize(ctx))
	require.NoError(t, h.orch.Run(ctx))

	assert.Equal(t, []string{"S:init", "D:init", "S:swap-out", "S:swap-back-USDC", "D:deploy"}, log.all())
	require.Len(t, h.rec.events, 3)
	assert.Equal(t, "swap out USDC", h.rec.events[0].Operation)
	assert.Equal(t, "swap back USDC", h.rec.events[1].Operation)
	assert.Equal(t, "deploy", h.rec.events[2].Operation)
	for _, ev := range h.rec.events {
		assert.Equal(t, 0, ev.Cycle)
		assert.Equal(t, "0xf39F...2266", ev.Wallet)
	}
}

func TestOrchestrator_InitializationAborts(t *testing.T) {
	log := &calls{}
	a := &stubTransfer{stubAdapter{name: "A", calls: log}}
	b := &stubTransfer{stubAdapter{name: "B", calls: log, initErr: errors.New("no code")}}
	c := &stubTransfer{stubAdapter{name: "C", calls: log}}

	h := newHarness(t, 3,
		descriptor(t, a, adapter.CapTransfer),
		descriptor(t, b, adapter.CapTransfer),
		descriptor(t, c, adapter.CapTransfer),
	)
	ctx := context.Background()
	err := h.orch.Initialize(ctx)

	var ie *adapter.InitializationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "B", ie.Adapter)
	assert.EqualError(t, err, "failed to initialize B: no code")
	assert.Equal(t, types.StateAborted, h.orch.State())
	assert.Equal(t, []string{"A:init", "B:init"}, log.all())

	assert.ErrorIs(t, h.orch.Run(ctx), ErrNotInitialized)
	assert.Equal(t, []string{"A:init", "B:init"}, log.all(), "no dispatch after aborted init")
}

func TestOrchestrator_ContextCancelled(t *testing.T) {
	log := &calls{}
	a := &stubTransfer{stubAdapter{name: "A", calls: log}}

	h := newHarness(t, 5, descriptor(t, a, adapter.CapTransfer))
	require.NoError(t, h.orch.Initialize(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.orch.Run(ctx), context.Canceled)
	assert.Equal(t, types.StateError, h.orch.State())
	assert.Equal(t, []string{"A:init"}, log.all())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Cycles: types.CycleConfig{Total: 0}, Params: params.New(1)})
	assert.Error(t, err)

	_, err = New(Config{Cycles: types.CycleConfig{Total: 1}})
	assert.Error(t, err)

	o, err := New(Config{Cycles: types.CycleConfig{Total: 1}, Params: params.New(1), Sleep: retry.Sleep})
	require.NoError(t, err)
	assert.Equal(t, types.StateIdle, o.State())
}

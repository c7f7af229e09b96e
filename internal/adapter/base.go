package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/gateway-fm/cyclebot/internal/chain"
	"github.com/gateway-fm/cyclebot/internal/network"
	"github.com/gateway-fm/cyclebot/internal/params"
	"github.com/gateway-fm/cyclebot/internal/retry"
	"github.com/gateway-fm/cyclebot/internal/txbuilder"
	"github.com/gateway-fm/cyclebot/internal/wallet"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

// swapDeadline is how far in the future router swaps expire.
const swapDeadline = 6 * time.Hour

// ErrNoContractCode is returned by Initialize when nothing is deployed at the
// adapter's bound address.
var ErrNoContractCode = errors.New("no contract code at address")

// Deps are the per-wallet collaborators shared by all adapters.
type Deps struct {
	Sequencer *wallet.Sequencer
	Executor  *retry.Executor
	Params    *params.Generator
	Profile   *network.Profile
	Logger    *slog.Logger
	Now       func() time.Time // default: time.Now
}

// base carries the plumbing common to every adapter.
type base struct {
	name    string
	address common.Address
	seq     *wallet.Sequencer
	exec    *retry.Executor
	params  *params.Generator
	profile *network.Profile
	logger  *slog.Logger
	now     func() time.Time
}

func newBase(name string, address common.Address, deps Deps) base {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return base{
		name:    name,
		address: address,
		seq:     deps.Sequencer,
		exec:    deps.Executor,
		params:  deps.Params,
		profile: deps.Profile,
		logger:  logger.With(slog.String("adapter", name)),
		now:     now,
	}
}

// Name returns the adapter's display name.
func (b *base) Name() string {
	return b.name
}

func (b *base) provider() chain.Provider {
	return b.seq.Provider()
}

// requireCode fails unless a contract is deployed at addr.
func (b *base) requireCode(ctx context.Context, addr common.Address) error {
	code, err := b.provider().Code(ctx, addr)
	if err != nil {
		return fmt.Errorf("failed to get code at %s: %w", addr.Hex(), err)
	}
	if len(code) == 0 {
		return fmt.Errorf("%w %s", ErrNoContractCode, addr.Hex())
	}
	return nil
}

func (b *base) deadline() *big.Int {
	return big.NewInt(b.now().Add(swapDeadline).Unix())
}

// submit sends req through the retry executor.
func (b *base) submit(ctx context.Context, op string, req wallet.Request) (types.OperationResult, error) {
	return b.exec.Execute(ctx, b.name+" "+op, func(ctx context.Context) (types.OperationResult, error) {
		return b.sendOnce(ctx, op, req)
	})
}

// sendOnce sends req once. A mined but reverted transaction yields a Failed
// result and no error, so it is not retried.
func (b *base) sendOnce(ctx context.Context, op string, req wallet.Request) (types.OperationResult, error) {
	receipt, err := b.seq.Send(ctx, req)
	if err != nil {
		return types.OperationResult{}, err
	}

	hash := receipt.TxHash.Hex()
	if !receipt.Succeeded() {
		b.logger.Warn("Transaction reverted",
			slog.String("operation", op),
			slog.String("hash", hash),
		)
		return types.Failed(hash), nil
	}

	attrs := []any{slog.String("operation", op), slog.String("hash", hash)}
	if b.profile != nil {
		attrs = append(attrs, slog.String("explorer", b.profile.TxLink(hash)))
	}
	b.logger.Info("Transaction confirmed", attrs...)
	return types.Success(hash), nil
}

// approveIfNeeded grants spender an unlimited allowance over token when the
// current allowance is below amount.
func (b *base) approveIfNeeded(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	data, err := txbuilder.EncodeAllowance(b.seq.Address(), spender)
	if err != nil {
		return err
	}
	out, err := b.provider().Call(ctx, chain.CallMsg{To: &token, Data: data})
	if err != nil {
		return fmt.Errorf("allowance: %w", err)
	}
	allowance, err := txbuilder.DecodeUint256("allowance", out)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	data, err = txbuilder.EncodeApprove(spender, math.MaxBig256)
	if err != nil {
		return err
	}
	res, err := b.sendOnce(ctx, "approve", wallet.Request{To: &token, Data: data, Gas: approveGas})
	if err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	if !res.OK() {
		return &chain.TransactionFailure{TxHash: res.TxHash}
	}
	return nil
}

// approveGas is the gas limit of ERC20 approvals.
const approveGas = 100_000

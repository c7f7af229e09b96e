package adapter

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/cyclebot/internal/chain"
	"github.com/gateway-fm/cyclebot/internal/txbuilder"
	"github.com/gateway-fm/cyclebot/internal/wallet"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

// ErrZeroTokenBalance is returned when there is nothing to swap back.
var ErrZeroTokenBalance = errors.New("token balance is zero")

// RouterWrap swaps native value into a stable token through a router and
// swaps the whole token balance back.
type RouterWrap struct {
	base
	wrapped common.Address
	token   common.Address
	gas     uint64
}

var _ WrapUnwrapper = (*RouterWrap)(nil)

// NewRouterWrap creates a router wrap/unwrap adapter for the pair
// wrapped/token.
func NewRouterWrap(name string, router, wrapped, token common.Address, gas uint64, deps Deps) *RouterWrap {
	return &RouterWrap{
		base:    newBase(name, router, deps),
		wrapped: wrapped,
		token:   token,
		gas:     gas,
	}
}

// Initialize checks the router is deployed.
func (r *RouterWrap) Initialize(ctx context.Context) error {
	return r.requireCode(ctx, r.address)
}

// Wrap swaps amount of native value for the token.
func (r *RouterWrap) Wrap(ctx context.Context, amount *big.Int) (types.OperationResult, error) {
	data, err := txbuilder.EncodeSwapExactETHForTokens(
		new(big.Int), []common.Address{r.wrapped, r.token}, r.seq.Address(), r.deadline())
	if err != nil {
		return types.ErrorResult(err.Error()), nil
	}
	return r.submit(ctx, "wrap", wallet.Request{To: &r.address, Value: amount, Data: data, Gas: r.gas})
}

// Unwrap swaps the full token balance back to native. amount is ignored; a
// zero balance is an error and is retried.
func (r *RouterWrap) Unwrap(ctx context.Context, _ *big.Int) (types.OperationResult, error) {
	return r.exec.Execute(ctx, r.name+" unwrap", func(ctx context.Context) (types.OperationResult, error) {
		balance, err := chain.TokenBalance(ctx, r.provider(), r.token, r.seq.Address())
		if err != nil {
			return types.OperationResult{}, err
		}
		if balance.Sign() == 0 {
			return types.OperationResult{}, ErrZeroTokenBalance
		}
		if err := r.approveIfNeeded(ctx, r.token, r.address, balance); err != nil {
			return types.OperationResult{}, err
		}

		data, err := txbuilder.EncodeSwapExactTokensForETH(
			balance, new(big.Int), []common.Address{r.token, r.wrapped}, r.seq.Address(), r.deadline())
		if err != nil {
			return types.OperationResult{}, err
		}
		return r.sendOnce(ctx, "unwrap", wallet.Request{To: &r.address, Data: data, Gas: r.gas})
	})
}

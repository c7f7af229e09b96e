package adapter

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/cyclebot/internal/txbuilder"
	"github.com/gateway-fm/cyclebot/internal/wallet"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

// Wrap wraps native value into the wrapped-native token and unwraps it again.
type Wrap struct {
	base
	gas uint64
}

var _ WrapUnwrapper = (*Wrap)(nil)

// NewWrap creates a wrap/unwrap adapter against the wrapped-native contract.
func NewWrap(name string, wrapped common.Address, gas uint64, deps Deps) *Wrap {
	return &Wrap{base: newBase(name, wrapped, deps), gas: gas}
}

// Initialize checks the wrapped-native contract is deployed.
func (w *Wrap) Initialize(ctx context.Context) error {
	return w.requireCode(ctx, w.address)
}

// Wrap deposits amount.
func (w *Wrap) Wrap(ctx context.Context, amount *big.Int) (types.OperationResult, error) {
	return w.submit(ctx, "wrap", wallet.Request{
		To:    &w.address,
		Value: amount,
		Data:  txbuilder.EncodeDeposit(),
		Gas:   w.gas,
	})
}

// Unwrap withdraws amount.
func (w *Wrap) Unwrap(ctx context.Context, amount *big.Int) (types.OperationResult, error) {
	data, err := txbuilder.EncodeWithdraw(amount)
	if err != nil {
		return types.ErrorResult(err.Error()), nil
	}
	return w.submit(ctx, "unwrap", wallet.Request{To: &w.address, Data: data, Gas: w.gas})
}

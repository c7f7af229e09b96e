package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/gateway-fm/cyclebot/internal/chain"
	"github.com/gateway-fm/cyclebot/internal/config"
	"github.com/gateway-fm/cyclebot/internal/wallet"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

// WalletPlaceholder is replaced in raw calldata templates with the wallet
// address, hex without the 0x prefix.
const WalletPlaceholder = "{wallet}"

// RawCall submits a pre-encoded call to an aggregator router with a random
// value: balance check, gas estimate with a fixed fallback, submit, await.
type RawCall struct {
	base
	data        []byte
	bounds      types.Bounds
	fallbackGas uint64
}

var _ RawCaller = (*RawCall)(nil)

// NewRawCall creates the raw-call adapter. The template is expanded for the
// sequencer's wallet once, here.
func NewRawCall(name string, router common.Address, template string, bounds types.Bounds, fallbackGas uint64, deps Deps) (*RawCall, error) {
	addr := strings.ToLower(strings.TrimPrefix(deps.Sequencer.Address().Hex(), "0x"))
	data, err := hexutil.Decode(strings.ReplaceAll(template, WalletPlaceholder, addr))
	if err != nil {
		return nil, config.NewConfigurationError("contracts.monorail.data", "invalid calldata: %v", err)
	}
	return &RawCall{
		base:        newBase(name, router, deps),
		data:        data,
		bounds:      bounds,
		fallbackGas: fallbackGas,
	}, nil
}

// Initialize checks the router is deployed.
func (r *RawCall) Initialize(ctx context.Context) error {
	return r.requireCode(ctx, r.address)
}

// RawCall submits the call.
func (r *RawCall) RawCall(ctx context.Context) (types.OperationResult, error) {
	return r.exec.Execute(ctx, r.name+" call", func(ctx context.Context) (types.OperationResult, error) {
		amount, err := r.params.Amount(r.bounds)
		if err != nil {
			return types.OperationResult{}, err
		}
		if err := r.checkBalance(ctx, amount.Wei); err != nil {
			return types.OperationResult{}, err
		}

		msg := chain.CallMsg{From: r.seq.Address(), To: &r.address, Value: amount.Wei, Data: r.data}
		gas, err := r.provider().EstimateGas(ctx, msg)
		if err != nil {
			r.logger.Warn("Gas estimation failed, using default gas limit",
				slog.Uint64("gas", r.fallbackGas),
				slog.String("error", err.Error()),
			)
			gas = r.fallbackGas
		}

		return r.sendOnce(ctx, "call", wallet.Request{To: &r.address, Value: amount.Wei, Data: r.data, Gas: gas})
	})
}

func (r *RawCall) checkBalance(ctx context.Context, required *big.Int) error {
	balance, err := r.provider().Balance(ctx, r.seq.Address())
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}
	if balance.Cmp(required) < 0 {
		return &chain.BalanceInsufficientError{Required: required, Available: balance}
	}
	return nil
}

package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/cyclebot/internal/chain"
	"github.com/gateway-fm/cyclebot/internal/txbuilder"
	"github.com/gateway-fm/cyclebot/internal/wallet"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

// Stake stakes native value into a liquid staking contract and unstakes the
// same amount.
type Stake struct {
	base
	stakeGas   uint64
	unstakeGas uint64
}

var _ StakeUnstaker = (*Stake)(nil)

// NewStake creates a stake/unstake adapter.
func NewStake(name string, contract common.Address, stakeGas, unstakeGas uint64, deps Deps) *Stake {
	return &Stake{base: newBase(name, contract, deps), stakeGas: stakeGas, unstakeGas: unstakeGas}
}

// Initialize checks the staking contract is deployed.
func (s *Stake) Initialize(ctx context.Context) error {
	return s.requireCode(ctx, s.address)
}

// Stake deposits amount.
func (s *Stake) Stake(ctx context.Context, amount *big.Int) (types.OperationResult, error) {
	return s.submit(ctx, "stake", wallet.Request{To: &s.address, Value: amount, Data: txbuilder.EncodeStake(), Gas: s.stakeGas})
}

// Unstake withdraws amount.
func (s *Stake) Unstake(ctx context.Context, amount *big.Int) (types.OperationResult, error) {
	return s.submit(ctx, "unstake", wallet.Request{To: &s.address, Data: txbuilder.EncodeUnstake(amount), Gas: s.unstakeGas})
}

// FixedStake stakes a fixed amount drawn once at construction, ignoring the
// cycle amount.
type FixedStake struct {
	base
	amount *big.Int
	gas    uint64
}

var _ Staker = (*FixedStake)(nil)

// NewFixedStake creates a stake-only adapter staking amount every cycle.
func NewFixedStake(name string, contract common.Address, amount *big.Int, gas uint64, deps Deps) *FixedStake {
	return &FixedStake{base: newBase(name, contract, deps), amount: amount, gas: gas}
}

// Initialize checks the staking contract is deployed.
func (s *FixedStake) Initialize(ctx context.Context) error {
	return s.requireCode(ctx, s.address)
}

// Amount returns the fixed stake amount in wei.
func (s *FixedStake) Amount() *big.Int {
	return new(big.Int).Set(s.amount)
}

// Stake deposits the fixed amount.
func (s *FixedStake) Stake(ctx context.Context, _ *big.Int) (types.OperationResult, error) {
	return s.submit(ctx, "stake", wallet.Request{To: &s.address, Value: s.amount, Data: txbuilder.EncodeStake(), Gas: s.gas})
}

// Vault deposits native value into an ERC4626-style vault. The gas limit is
// estimated and the balance checked against amount plus fees before every
// attempt.
type Vault struct {
	base
}

var _ Staker = (*Vault)(nil)

// NewVault creates a vault staking adapter. deps.Executor should carry the
// vault's own retry policy.
func NewVault(name string, vault common.Address, deps Deps) *Vault {
	return &Vault{base: newBase(name, vault, deps)}
}

// Initialize checks the vault is deployed.
func (v *Vault) Initialize(ctx context.Context) error {
	return v.requireCode(ctx, v.address)
}

// Stake deposits amount for the wallet itself.
func (v *Vault) Stake(ctx context.Context, amount *big.Int) (types.OperationResult, error) {
	data, err := txbuilder.EncodeVaultDeposit(amount, v.seq.Address())
	if err != nil {
		return types.ErrorResult(err.Error()), nil
	}

	return v.exec.Execute(ctx, v.name+" stake", func(ctx context.Context) (types.OperationResult, error) {
		fee, err := v.provider().FeeData(ctx)
		if err != nil {
			return types.OperationResult{}, fmt.Errorf("failed to get fee data: %w", err)
		}
		gas, err := v.provider().EstimateGas(ctx, chain.CallMsg{From: v.seq.Address(), To: &v.address, Value: amount, Data: data})
		if err != nil {
			return types.OperationResult{}, fmt.Errorf("failed to estimate gas: %w", err)
		}

		required := new(big.Int).Mul(fee.GasPrice, new(big.Int).SetUint64(gas))
		required.Add(required, amount)
		balance, err := v.provider().Balance(ctx, v.seq.Address())
		if err != nil {
			return types.OperationResult{}, fmt.Errorf("failed to get balance: %w", err)
		}
		if balance.Cmp(required) < 0 {
			return types.OperationResult{}, &chain.BalanceInsufficientError{Required: required, Available: balance}
		}

		v.logger.Debug("Depositing into vault", slog.Uint64("gas", gas))
		return v.sendOnce(ctx, "stake", wallet.Request{To: &v.address, Value: amount, Data: data, Gas: gas})
	})
}

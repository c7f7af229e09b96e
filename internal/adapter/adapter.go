// Package adapter defines the capability contract implemented by each
// protocol integration and the concrete adapters driven by the cycle
// orchestrator.
package adapter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/cyclebot/internal/chain"
	"github.com/gateway-fm/cyclebot/internal/config"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

// Capability is the operation shape an adapter declares at construction.
type Capability string

const (
	CapWrapUnwrap     Capability = "wrap-unwrap"
	CapStakeUnstake   Capability = "stake-unstake"
	CapStakeOnly      Capability = "stake-only"
	CapSwapPair       Capability = "swap-pair"
	CapTransfer       Capability = "send-transfer"
	CapRawCall        Capability = "raw-call"
	CapDeployArtifact Capability = "deploy-artifact"
)

// Adapter is implemented by every protocol integration.
type Adapter interface {
	Name() string
	Initialize(ctx context.Context) error
}

// Operation methods return a terminal OperationResult. The error is non-nil
// only when the call site propagates retry exhaustion or ctx is done.

// WrapUnwrapper converts native value to a wrapped asset and back.
type WrapUnwrapper interface {
	Adapter
	Wrap(ctx context.Context, amount *big.Int) (types.OperationResult, error)
	Unwrap(ctx context.Context, amount *big.Int) (types.OperationResult, error)
}

// StakeUnstaker deposits into and withdraws from a staking contract.
type StakeUnstaker interface {
	Adapter
	Stake(ctx context.Context, amount *big.Int) (types.OperationResult, error)
	Unstake(ctx context.Context, amount *big.Int) (types.OperationResult, error)
}

// Staker deposits into a staking contract without a matching withdrawal.
type Staker interface {
	Adapter
	Stake(ctx context.Context, amount *big.Int) (types.OperationResult, error)
}

// SwapPairer swaps native value for a randomly chosen token and back.
type SwapPairer interface {
	Adapter
	SwapOut(ctx context.Context, amount *big.Int) (chain.Token, types.OperationResult, error)
	SwapBack(ctx context.Context, token chain.Token) (types.OperationResult, error)
}

// Transferer sends a small transfer to a random recipient.
type Transferer interface {
	Adapter
	SendTransfer(ctx context.Context) (types.OperationResult, error)
}

// RawCaller submits a pre-encoded contract call.
type RawCaller interface {
	Adapter
	RawCall(ctx context.Context) (types.OperationResult, error)
}

// Deployer deploys count contract instances.
type Deployer interface {
	Adapter
	DeployArtifact(ctx context.Context, count int) ([]types.OperationResult, error)
}

// Descriptor declares one adapter of a wallet's ordered adapter set.
type Descriptor struct {
	Name       string
	Address    *common.Address // bound contract, if any
	Capability Capability
	Adapter    Adapter
}

// NewDescriptor validates that a implements the interface of capability c.
func NewDescriptor(a Adapter, c Capability, addr *common.Address) (Descriptor, error) {
	var ok bool
	switch c {
	case CapWrapUnwrap:
		_, ok = a.(WrapUnwrapper)
	case CapStakeUnstake:
		_, ok = a.(StakeUnstaker)
	case CapStakeOnly:
		_, ok = a.(Staker)
	case CapSwapPair:
		_, ok = a.(SwapPairer)
	case CapTransfer:
		_, ok = a.(Transferer)
	case CapRawCall:
		_, ok = a.(RawCaller)
	case CapDeployArtifact:
		_, ok = a.(Deployer)
	default:
		return Descriptor{}, config.NewConfigurationError("adapters", "%s: unknown capability %q", a.Name(), c)
	}
	if !ok {
		return Descriptor{}, config.NewConfigurationError("adapters", "%s does not implement %s", a.Name(), c)
	}
	return Descriptor{Name: a.Name(), Address: addr, Capability: c, Adapter: a}, nil
}

// InitializationError reports that an adapter's setup failed. It is fatal
// for the wallet run.
type InitializationError struct {
	Adapter string
	Err     error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("failed to initialize %s: %v", e.Adapter, e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

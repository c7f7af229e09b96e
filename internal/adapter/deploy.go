package adapter

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/cyclebot/internal/txbuilder"
	"github.com/gateway-fm/cyclebot/internal/wallet"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

// Deploy deploys instances of a fixed contract artifact.
type Deploy struct {
	base
	artifact []byte
	gas      uint64
}

var _ Deployer = (*Deploy)(nil)

// NewDeploy creates the deploy adapter for the counter artifact.
func NewDeploy(name string, gas uint64, deps Deps) *Deploy {
	return &Deploy{
		base:     newBase(name, common.Address{}, deps),
		artifact: txbuilder.CounterArtifact,
		gas:      gas,
	}
}

// Initialize has nothing to check; the artifact is embedded.
func (d *Deploy) Initialize(ctx context.Context) error {
	return nil
}

// DeployArtifact deploys count instances one after the other. Each deployment
// is retried independently; a deployment whose receipt succeeded but left no
// code behind is reported as Failed.
func (d *Deploy) DeployArtifact(ctx context.Context, count int) ([]types.OperationResult, error) {
	results := make([]types.OperationResult, 0, count)
	for i := 0; i < count; i++ {
		res, err := d.exec.Execute(ctx, d.name+" deploy", func(ctx context.Context) (types.OperationResult, error) {
			return d.deployOnce(ctx)
		})
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (d *Deploy) deployOnce(ctx context.Context) (types.OperationResult, error) {
	receipt, err := d.seq.Send(ctx, wallet.Request{Data: d.artifact, Gas: d.gas})
	if err != nil {
		return types.OperationResult{}, err
	}
	hash := receipt.TxHash.Hex()
	if !receipt.Succeeded() {
		return types.Failed(hash), nil
	}

	code, err := d.provider().Code(ctx, receipt.ContractAddress)
	if err != nil {
		return types.OperationResult{}, err
	}
	if len(code) == 0 {
		return types.OperationResult{Status: types.StatusFailed, TxHash: hash, Message: "no code at contract address"}, nil
	}

	attrs := []any{slog.String("contract", receipt.ContractAddress.Hex()), slog.String("hash", hash)}
	if d.profile != nil {
		attrs = append(attrs, slog.String("explorer", d.profile.TxLink(hash)))
	}
	d.logger.Info("Contract deployed", attrs...)
	return types.Success(hash), nil
}

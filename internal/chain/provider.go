// Package chain is the narrow network-provider boundary the adapters submit
// through: balances, fee data, submission and receipt waiting.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/cyclebot/internal/rpc"
)

// Provider is the network provider consumed by wallets and adapters.
type Provider interface {
	// Balance returns the native balance of addr.
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)

	// FeeData returns current fee data.
	FeeData(ctx context.Context) (FeeData, error)

	// Nonce returns the pending nonce of addr.
	Nonce(ctx context.Context, addr common.Address) (uint64, error)

	// Call executes a read-only contract call.
	Call(ctx context.Context, msg CallMsg) ([]byte, error)

	// EstimateGas estimates the gas needed for msg.
	EstimateGas(ctx context.Context, msg CallMsg) (uint64, error)

	// Code returns the runtime code deployed at addr.
	Code(ctx context.Context, addr common.Address) ([]byte, error)

	// Submit broadcasts a signed transaction.
	Submit(ctx context.Context, tx *types.Transaction) (*PendingTx, error)

	// Receipt returns the receipt of hash, or nil if not yet included.
	Receipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}

// FeeData holds the network's current fee parameters.
type FeeData struct {
	GasPrice *big.Int
}

// CallMsg describes a call or gas estimation request.
type CallMsg struct {
	From  common.Address
	To    *common.Address // nil for contract creation
	Value *big.Int
	Data  []byte
}

// Receipt is the on-chain confirmation of a transaction.
type Receipt struct {
	TxHash          common.Hash
	Status          uint64
	GasUsed         uint64
	BlockNumber     uint64
	ContractAddress common.Address
}

// Succeeded reports whether the transaction executed successfully.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == types.ReceiptStatusSuccessful
}

// ReceiptSource is the subset of Provider needed to await a receipt.
type ReceiptSource interface {
	Receipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}

// PendingTx is a submitted transaction awaiting inclusion.
type PendingTx struct {
	Hash         common.Hash
	source       ReceiptSource
	pollInterval time.Duration
	timeout      time.Duration
}

// NewPendingTx creates a handle polling source every pollInterval for at most
// timeout.
func NewPendingTx(hash common.Hash, source ReceiptSource, pollInterval, timeout time.Duration) *PendingTx {
	return &PendingTx{
		Hash:         hash,
		source:       source,
		pollInterval: pollInterval,
		timeout:      timeout,
	}
}

// Wait polls until the transaction is included, the timeout elapses or ctx
// is done. Receipt lookup errors are treated as "not yet included".
func (p *PendingTx) Wait(ctx context.Context) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	interval := p.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r, err := p.source.Receipt(ctx, p.Hash)
		if err == nil && r != nil {
			return r, nil
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, p.Hash.Hex())
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// RPCProviderConfig configures an RPCProvider.
type RPCProviderConfig struct {
	Client         rpc.Client
	PollInterval   time.Duration // receipt polling interval (default: 1s)
	ReceiptTimeout time.Duration // default: 2m
	Logger         *slog.Logger
}

// RPCProvider implements Provider over the JSON-RPC client.
type RPCProvider struct {
	client         rpc.Client
	pollInterval   time.Duration
	receiptTimeout time.Duration
	logger         *slog.Logger
}

// NewRPCProvider creates a new RPC-backed provider.
func NewRPCProvider(cfg RPCProviderConfig) *RPCProvider {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	timeout := cfg.ReceiptTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RPCProvider{
		client:         cfg.Client,
		pollInterval:   poll,
		receiptTimeout: timeout,
		logger:         logger,
	}
}

// Balance returns the native balance of addr.
func (p *RPCProvider) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return p.client.GetBalance(ctx, addr.Hex())
}

// FeeData returns the current gas price.
func (p *RPCProvider) FeeData(ctx context.Context) (FeeData, error) {
	gp, err := p.client.GetGasPrice(ctx)
	if err != nil {
		return FeeData{}, err
	}
	return FeeData{GasPrice: gp}, nil
}

// Nonce returns the pending nonce of addr.
func (p *RPCProvider) Nonce(ctx context.Context, addr common.Address) (uint64, error) {
	return p.client.GetNonce(ctx, addr.Hex())
}

// Call executes a read-only contract call.
func (p *RPCProvider) Call(ctx context.Context, msg CallMsg) ([]byte, error) {
	return p.client.EthCall(ctx, toRPCMsg(msg))
}

// EstimateGas estimates the gas needed for msg.
func (p *RPCProvider) EstimateGas(ctx context.Context, msg CallMsg) (uint64, error) {
	return p.client.EstimateGas(ctx, toRPCMsg(msg))
}

// Code returns the runtime code deployed at addr.
func (p *RPCProvider) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	code, err := p.client.GetCode(ctx, addr.Hex())
	if err != nil {
		return nil, err
	}
	return hexutil.Decode(code)
}

// Submit broadcasts tx. Node rejections are returned as *SubmissionError.
func (p *RPCProvider) Submit(ctx context.Context, tx *types.Transaction) (*PendingTx, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tx: %w", err)
	}
	if _, err := p.client.SendRawTransaction(ctx, raw); err != nil {
		return nil, &SubmissionError{Op: "eth_sendRawTransaction", Err: err}
	}

	p.logger.Debug("Transaction submitted",
		slog.String("hash", tx.Hash().Hex()),
		slog.Uint64("nonce", tx.Nonce()),
	)
	return NewPendingTx(tx.Hash(), p, p.pollInterval, p.receiptTimeout), nil
}

// Receipt returns the receipt of hash, or nil if not yet included.
func (p *RPCProvider) Receipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	r, err := p.client.GetTransactionReceipt(ctx, hash.Hex())
	if err != nil || r == nil {
		return nil, err
	}
	out := &Receipt{
		TxHash:      hash,
		Status:      r.Status,
		GasUsed:     r.GasUsed,
		BlockNumber: r.BlockNumber,
	}
	if r.ContractAddress != "" {
		out.ContractAddress = common.HexToAddress(r.ContractAddress)
	}
	return out, nil
}

func toRPCMsg(msg CallMsg) rpc.CallMsg {
	out := rpc.CallMsg{Value: msg.Value, Data: msg.Data}
	if msg.From != (common.Address{}) {
		out.From = msg.From.Hex()
	}
	if msg.To != nil {
		out.To = msg.To.Hex()
	}
	return out
}

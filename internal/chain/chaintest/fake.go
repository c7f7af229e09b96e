// Package chaintest provides an in-memory chain.Provider for tests.
package chaintest

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gateway-fm/cyclebot/internal/chain"
)

// Fake is an in-memory chain.Provider. Submitted transactions are mined
// immediately; Revert decides their receipt status.
type Fake struct {
	mu sync.Mutex

	Balances map[common.Address]*big.Int
	Nonces   map[common.Address]uint64
	Codes    map[common.Address][]byte
	GasPrice *big.Int

	// Optional hooks.
	CallFunc     func(msg chain.CallMsg) ([]byte, error)
	EstimateFunc func(msg chain.CallMsg) (uint64, error)
	CodeErr      func(addr common.Address) error
	SubmitFunc   func(tx *types.Transaction) error
	Revert       func(tx *types.Transaction) bool
	BalanceErr   error

	Submitted []*types.Transaction
	receipts  map[common.Hash]*chain.Receipt
}

var _ chain.Provider = (*Fake)(nil)

// New creates a Fake with a 1 gwei gas price.
func New() *Fake {
	return &Fake{
		Balances: make(map[common.Address]*big.Int),
		Nonces:   make(map[common.Address]uint64),
		Codes:    make(map[common.Address][]byte),
		GasPrice: big.NewInt(1_000_000_000),
		receipts: make(map[common.Hash]*chain.Receipt),
	}
}

// Fund sets the native balance of addr.
func (f *Fake) Fund(addr common.Address, wei *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Balances[addr] = wei
}

func (f *Fake) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BalanceErr != nil {
		return nil, f.BalanceErr
	}
	if b, ok := f.Balances[addr]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *Fake) FeeData(ctx context.Context) (chain.FeeData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return chain.FeeData{GasPrice: new(big.Int).Set(f.GasPrice)}, nil
}

func (f *Fake) Nonce(ctx context.Context, addr common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Nonces[addr], nil
}

func (f *Fake) Call(ctx context.Context, msg chain.CallMsg) ([]byte, error) {
	if f.CallFunc != nil {
		return f.CallFunc(msg)
	}
	return common.LeftPadBytes(nil, 32), nil
}

func (f *Fake) EstimateGas(ctx context.Context, msg chain.CallMsg) (uint64, error) {
	if f.EstimateFunc != nil {
		return f.EstimateFunc(msg)
	}
	return 100_000, nil
}

// Code returns Codes[addr], or stub code for contracts created through Submit.
// A non-nil CodeErr result is returned instead.
func (f *Fake) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	if f.CodeErr != nil {
		if err := f.CodeErr(addr); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if code, ok := f.Codes[addr]; ok {
		return code, nil
	}
	for _, r := range f.receipts {
		if r.ContractAddress == addr && r.Succeeded() {
			return []byte{0x60, 0x80}, nil
		}
	}
	return nil, nil
}

func (f *Fake) Submit(ctx context.Context, tx *types.Transaction) (*chain.PendingTx, error) {
	if f.SubmitFunc != nil {
		if err := f.SubmitFunc(tx); err != nil {
			return nil, &chain.SubmissionError{Op: "eth_sendRawTransaction", Err: err}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	status := types.ReceiptStatusSuccessful
	if f.Revert != nil && f.Revert(tx) {
		status = types.ReceiptStatusFailed
	}
	r := &chain.Receipt{
		TxHash:      tx.Hash(),
		Status:      status,
		GasUsed:     tx.Gas(),
		BlockNumber: uint64(len(f.Submitted) + 1),
	}
	if from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		f.Nonces[from] = tx.Nonce() + 1
		if tx.To() == nil {
			r.ContractAddress = crypto.CreateAddress(from, tx.Nonce())
		}
	}
	f.Submitted = append(f.Submitted, tx)
	f.receipts[tx.Hash()] = r

	return chain.NewPendingTx(tx.Hash(), f, time.Millisecond, time.Second), nil
}

func (f *Fake) Receipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipts[hash], nil
}

// Txs returns a copy of the submitted transactions.
func (f *Fake) Txs() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.Transaction, len(f.Submitted))
	copy(out, f.Submitted)
	return out
}

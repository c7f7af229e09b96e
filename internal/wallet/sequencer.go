package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/cyclebot/internal/chain"
	"github.com/gateway-fm/cyclebot/internal/txbuilder"
)

// ErrGasPriceTooHigh is returned while the network gas price is above the
// configured ceiling.
var ErrGasPriceTooHigh = errors.New("gas price above configured maximum")

// Request describes a transaction to send.
type Request struct {
	To    *common.Address // nil deploys Data as contract code
	Value *big.Int
	Data  []byte
	Gas   uint64
}

// SequencerConfig configures a Sequencer.
type SequencerConfig struct {
	Wallet      *Wallet
	Provider    chain.Provider
	ChainID     *big.Int
	Legacy      bool     // send legacy transactions
	MaxGasPrice *big.Int // optional ceiling in wei
	Logger      *slog.Logger
}

// Sequencer submits one wallet's transactions strictly one at a time. The
// lock is held from nonce reservation until the receipt arrives, so a wallet
// never has more than one transaction in flight.
type Sequencer struct {
	wallet      *Wallet
	provider    chain.Provider
	signer      types.Signer
	chainID     *big.Int
	legacy      bool
	maxGasPrice *big.Int
	logger      *slog.Logger

	mu     sync.Mutex
	nonce  uint64
	synced bool
}

// NewSequencer creates a sequencer for cfg.Wallet.
func NewSequencer(cfg SequencerConfig) *Sequencer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		wallet:      cfg.Wallet,
		provider:    cfg.Provider,
		signer:      types.LatestSignerForChainID(cfg.ChainID),
		chainID:     cfg.ChainID,
		legacy:      cfg.Legacy,
		maxGasPrice: cfg.MaxGasPrice,
		logger:      logger.With(slog.String("wallet", cfg.Wallet.Masked())),
	}
}

// Wallet returns the sequencer's wallet.
func (s *Sequencer) Wallet() *Wallet {
	return s.wallet
}

// Address returns the wallet address.
func (s *Sequencer) Address() common.Address {
	return s.wallet.Address
}

// Provider returns the underlying network provider.
func (s *Sequencer) Provider() chain.Provider {
	return s.provider
}

// PeekNonce returns the next nonce the sequencer will use.
func (s *Sequencer) PeekNonce() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonce
}

// resync fetches the pending nonce from the chain. Must be called with mu held.
func (s *Sequencer) resync(ctx context.Context) error {
	nonce, err := s.provider.Nonce(ctx, s.wallet.Address)
	if err != nil {
		return fmt.Errorf("failed to get nonce: %w", err)
	}
	s.nonce = nonce
	s.synced = true
	return nil
}

// Send signs req, submits it and waits for its receipt. A reverted
// transaction is reported through the receipt status, not as an error.
//
// Submission rejections and receipt timeouts force a nonce resync on the
// next call.
func (s *Sequencer) Send(ctx context.Context, req Request) (*chain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.synced {
		if err := s.resync(ctx); err != nil {
			return nil, err
		}
	}

	fee, err := s.provider.FeeData(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	if s.maxGasPrice != nil && fee.GasPrice.Cmp(s.maxGasPrice) > 0 {
		return nil, &chain.SubmissionError{
			Op:  "gas price guard",
			Err: fmt.Errorf("%w: %s > %s wei", ErrGasPriceTooHigh, fee.GasPrice, s.maxGasPrice),
		}
	}

	fees := txbuilder.DynamicFees(fee.GasPrice)
	if s.legacy {
		fees = txbuilder.LegacyFees(fee.GasPrice)
	}

	tx := txbuilder.NewTx(txbuilder.Call{
		ChainID: s.chainID,
		Nonce:   s.nonce,
		To:      req.To,
		Value:   req.Value,
		Gas:     req.Gas,
		Data:    req.Data,
	}, fees)

	signed, err := types.SignTx(tx, s.signer, s.wallet.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign tx: %w", err)
	}

	pending, err := s.provider.Submit(ctx, signed)
	if err != nil {
		s.synced = false
		return nil, err
	}
	// The nonce is consumed once the node accepted the transaction.
	s.nonce++

	receipt, err := pending.Wait(ctx)
	if err != nil {
		s.synced = false
		return nil, fmt.Errorf("tx %s: %w", signed.Hash().Hex(), err)
	}

	s.logger.Debug("Transaction mined",
		slog.String("hash", signed.Hash().Hex()),
		slog.Uint64("nonce", signed.Nonce()),
		slog.Uint64("status", receipt.Status),
	)
	return receipt, nil
}

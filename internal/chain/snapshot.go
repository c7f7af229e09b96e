package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/cyclebot/internal/params"
	"github.com/gateway-fm/cyclebot/internal/txbuilder"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

// Token identifies an ERC20 token included in balance snapshots.
type Token struct {
	Symbol  string
	Address common.Address
}

// Snapshotter reads a wallet's native and token balances.
type Snapshotter struct {
	provider Provider
	tokens   []Token
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	decimals map[common.Address]int32
}

// NewSnapshotter creates a Snapshotter over provider for the given tokens.
func NewSnapshotter(provider Provider, tokens []Token, logger *slog.Logger) *Snapshotter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshotter{
		provider: provider,
		tokens:   tokens,
		logger:   logger,
		now:      time.Now,
		decimals: make(map[common.Address]int32),
	}
}

// TokenBalance returns the raw ERC20 balance of owner.
func TokenBalance(ctx context.Context, p Provider, token, owner common.Address) (*big.Int, error) {
	data, err := txbuilder.EncodeBalanceOf(owner)
	if err != nil {
		return nil, err
	}
	out, err := p.Call(ctx, CallMsg{To: &token, Data: data})
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", token.Hex(), err)
	}
	return txbuilder.DecodeUint256("balanceOf", out)
}

// Take returns the balances of wallet together with history. A token whose
// balance cannot be read is omitted; a failing native balance read is an
// error.
func (s *Snapshotter) Take(ctx context.Context, wallet common.Address, history []types.TransactionRecord) (types.Snapshot, error) {
	native, err := s.provider.Balance(ctx, wallet)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("failed to get balance: %w", err)
	}

	snap := types.Snapshot{
		Wallet:  wallet.Hex(),
		Native:  params.FormatUnits(native, params.NativeDecimals, 4),
		History: history,
		At:      s.now(),
	}

	for _, tok := range s.tokens {
		raw, err := TokenBalance(ctx, s.provider, tok.Address, wallet)
		if err != nil {
			s.logger.Debug("Token balance unavailable",
				slog.String("token", tok.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		snap.Tokens = append(snap.Tokens, types.TokenBalance{
			Symbol:  tok.Symbol,
			Address: tok.Address.Hex(),
			Balance: params.FormatUnits(raw, s.tokenDecimals(ctx, tok.Address), 4),
		})
	}
	return snap, nil
}

// tokenDecimals returns the token's decimals, defaulting to 18 when the
// contract does not answer.
func (s *Snapshotter) tokenDecimals(ctx context.Context, token common.Address) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.decimals[token]; ok {
		return d
	}
	d := int32(params.NativeDecimals)
	if out, err := s.provider.Call(ctx, CallMsg{To: &token, Data: txbuilder.EncodeDecimals()}); err == nil {
		if v, err := txbuilder.DecodeDecimals(out); err == nil {
			d = int32(v)
		}
	}
	s.decimals[token] = d
	return d
}

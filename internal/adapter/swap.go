package adapter

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/cyclebot/internal/chain"
	"github.com/gateway-fm/cyclebot/internal/txbuilder"
	"github.com/gateway-fm/cyclebot/internal/wallet"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

var errNoTokens = errors.New("no tokens configured")

// Swap swaps native value for a randomly chosen configured token through a
// V2-style router and swaps the token balance back.
type Swap struct {
	base
	wrapped common.Address
	tokens  []chain.Token
	gas     uint64
}

var _ SwapPairer = (*Swap)(nil)

// NewSwap creates a swap-pair adapter. tokens maps symbol to address.
func NewSwap(name string, router, wrapped common.Address, tokens map[string]common.Address, gas uint64, deps Deps) *Swap {
	list := make([]chain.Token, 0, len(tokens))
	for sym, addr := range tokens {
		list = append(list, chain.Token{Symbol: sym, Address: addr})
	}
	// Stable order keeps seeded runs reproducible.
	sort.Slice(list, func(i, j int) bool { return list[i].Symbol < list[j].Symbol })

	return &Swap{
		base:    newBase(name, router, deps),
		wrapped: wrapped,
		tokens:  list,
		gas:     gas,
	}
}

// Tokens returns the configured tokens, sorted by symbol.
func (s *Swap) Tokens() []chain.Token {
	return s.tokens
}

// Initialize checks the router is deployed and tokens are configured.
func (s *Swap) Initialize(ctx context.Context) error {
	if len(s.tokens) == 0 {
		return errNoTokens
	}
	return s.requireCode(ctx, s.address)
}

// SwapOut swaps amount of native value for a randomly chosen token.
func (s *Swap) SwapOut(ctx context.Context, amount *big.Int) (chain.Token, types.OperationResult, error) {
	token := s.tokens[s.params.Pick(len(s.tokens))]
	s.logger.Debug("Swapping native for token", slog.String("token", token.Symbol))

	data, err := txbuilder.EncodeSwapExactETHForTokens(
		new(big.Int), []common.Address{s.wrapped, token.Address}, s.seq.Address(), s.deadline())
	if err != nil {
		return token, types.ErrorResult(err.Error()), nil
	}
	res, err := s.submit(ctx, "swap "+token.Symbol, wallet.Request{To: &s.address, Value: amount, Data: data, Gas: s.gas})
	return token, res, err
}

// SwapBack swaps the full balance of token back to native. A zero balance
// short-circuits with NoBalance.
func (s *Swap) SwapBack(ctx context.Context, token chain.Token) (types.OperationResult, error) {
	return s.exec.Execute(ctx, s.name+" swap back "+token.Symbol, func(ctx context.Context) (types.OperationResult, error) {
		balance, err := chain.TokenBalance(ctx, s.provider(), token.Address, s.seq.Address())
		if err != nil {
			return types.OperationResult{}, err
		}
		if balance.Sign() == 0 {
			return types.NoBalance(token.Symbol + " balance is zero"), nil
		}
		if err := s.approveIfNeeded(ctx, token.Address, s.address, balance); err != nil {
			return types.OperationResult{}, err
		}

		data, err := txbuilder.EncodeSwapExactTokensForETH(
			balance, new(big.Int), []common.Address{token.Address, s.wrapped}, s.seq.Address(), s.deadline())
		if err != nil {
			return types.OperationResult{}, err
		}
		return s.sendOnce(ctx, "swap back "+token.Symbol, wallet.Request{To: &s.address, Data: data, Gas: s.gas})
	})
}

package adapter

import (
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/cyclebot/internal/config"
	"github.com/gateway-fm/cyclebot/internal/retry"
)

// Adapter display names, in declared order.
const (
	NameSendTx   = "SendTx"
	NameDeploy   = "Deploy"
	NameMonorail = "Monorail"
	NameRubic    = "Rubic Swap"
	NameIzumi    = "Izumi Swap"
	NameUniswap  = "Uniswap"
	NameBeanSwap = "Bean Swap"
	NameMagma    = "Magma Staking"
	NameAPriori  = "aPriori Staking"
	NameKitsu    = "Kitsu"
)

// parseAddress parses an optional configured address. ok is false when the
// address is not configured.
func parseAddress(field, s string) (addr common.Address, ok bool, err error) {
	if s == "" {
		return common.Address{}, false, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, false, config.NewConfigurationError(field, "invalid address %q", s)
	}
	return common.HexToAddress(s), true, nil
}

// builder accumulates descriptors, skipping adapters whose contracts are not
// configured.
type builder struct {
	logger *slog.Logger
	out    []Descriptor
	err    error
}

func (b *builder) add(a Adapter, c Capability, addr *common.Address) {
	if b.err != nil {
		return
	}
	d, err := NewDescriptor(a, c, addr)
	if err != nil {
		b.err = err
		return
	}
	b.out = append(b.out, d)
}

// address resolves the configured address of an adapter; unconfigured
// adapters are logged and skipped.
func (b *builder) address(name, field, s string) (common.Address, bool) {
	if b.err != nil {
		return common.Address{}, false
	}
	addr, ok, err := parseAddress(field, s)
	if err != nil {
		b.err = err
		return common.Address{}, false
	}
	if !ok {
		b.logger.Warn("Adapter skipped, contract address not configured",
			slog.String("adapter", name),
			slog.String("field", field),
		)
	}
	return addr, ok
}

// Build creates the ordered adapter set of one wallet from cfg. deps.Executor
// is the default call-site executor. The wrap adapters and the staking
// adapters that must surface exhaustion get a Propagate copy of it.
func Build(cfg *config.Config, recipients []common.Address, deps Deps) ([]Descriptor, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &builder{logger: logger}

	def := deps.Executor.Policy()
	propagate := deps
	propagate.Executor = deps.Executor.WithPolicy(retry.Policy{
		MaxRetries:  def.MaxRetries,
		Backoff:     def.Backoff,
		BackoffFunc: def.BackoffFunc,
		OnExhausted: retry.Propagate,
	})
	vault := deps
	vault.Executor = deps.Executor.WithPolicy(retry.Policy{
		MaxRetries:  def.MaxRetries,
		Backoff:     cfg.Retry.VaultBackoff(),
		OnExhausted: retry.Propagate,
	})

	c := cfg.Contracts
	gas := cfg.Gas

	b.add(NewTransfer(NameSendTx, recipients, cfg.Cycles.Amounts, gas.Transfer, deps), CapTransfer, nil)
	b.add(NewDeploy(NameDeploy, gas.Deploy, deps), CapDeployArtifact, nil)

	if router, ok := b.address(NameMonorail, "contracts.monorail.router", c.Monorail.Router); ok {
		rc, err := NewRawCall(NameMonorail, router, c.Monorail.Data, cfg.Cycles.Amounts, gas.Swap, deps)
		if err != nil {
			return nil, err
		}
		b.add(rc, CapRawCall, &router)
	}

	if wmon, ok := b.address(NameRubic+", "+NameIzumi, "contracts.wmon", c.WMON); ok {
		b.add(NewWrap(NameRubic, wmon, gas.Stake, propagate), CapWrapUnwrap, &wmon)
		b.add(NewWrap(NameIzumi, wmon, gas.Stake, propagate), CapWrapUnwrap, &wmon)
	}

	if router, ok := b.address(NameUniswap, "contracts.uniswap.router", c.Uniswap.Router); ok {
		weth, _, err := parseAddress("contracts.uniswap.weth", c.Uniswap.WETH)
		if err != nil {
			return nil, err
		}
		tokens := make(map[string]common.Address, len(c.Uniswap.Tokens))
		for sym, s := range c.Uniswap.Tokens {
			addr, ok, err := parseAddress("contracts.uniswap.tokens."+sym, s)
			if err != nil {
				return nil, err
			}
			if ok {
				tokens[sym] = addr
			}
		}
		b.add(NewSwap(NameUniswap, router, weth, tokens, gas.Swap, deps), CapSwapPair, &router)
	}

	if router, ok := b.address(NameBeanSwap, "contracts.beanswap.router", c.BeanSwap.Router); ok {
		wmon, _, err := parseAddress("contracts.beanswap.wmon", c.BeanSwap.WMON)
		if err != nil {
			return nil, err
		}
		usdc, _, err := parseAddress("contracts.beanswap.usdc", c.BeanSwap.USDC)
		if err != nil {
			return nil, err
		}
		b.add(NewRouterWrap(NameBeanSwap, router, wmon, usdc, gas.Swap, deps), CapWrapUnwrap, &router)
	}

	if addr, ok := b.address(NameMagma, "contracts.magma", c.Magma); ok {
		b.add(NewStake(NameMagma, addr, gas.Stake, gas.Unstake, propagate), CapStakeUnstake, &addr)
	}

	if addr, ok := b.address(NameAPriori, "contracts.aPrioriStaking", c.APrioriStaking); ok {
		b.add(NewVault(NameAPriori, addr, vault), CapStakeOnly, &addr)
	}

	if addr, ok := b.address(NameKitsu, "contracts.kitsu", c.Kitsu); ok {
		amount, err := deps.Params.Amount(cfg.Cycles.Amounts)
		if err != nil {
			return nil, err
		}
		b.add(NewFixedStake(NameKitsu, addr, amount.Wei, gas.Stake, deps), CapStakeOnly, &addr)
	}

	if b.err != nil {
		return nil, b.err
	}
	return b.out, nil
}

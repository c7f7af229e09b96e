// Package params generates the randomized per-cycle parameters (amounts and
// delays) within configured bounds.
package params

import (
	"math"
	"math/big"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gateway-fm/cyclebot/internal/config"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

const (
	// AmountPrecision is the number of decimals amounts are rounded to before
	// conversion to wei.
	AmountPrecision = 8
	// NativeDecimals is the number of decimals of the native asset.
	NativeDecimals = 18
)

// Amount is a sampled amount in both native units and wei.
type Amount struct {
	Value decimal.Decimal
	Wei   *big.Int
}

// String formats the amount with AmountPrecision decimals.
func (a Amount) String() string {
	return a.Value.StringFixed(AmountPrecision)
}

// Float returns the amount as a float64 in native units.
func (a Amount) Float() float64 {
	f, _ := a.Value.Float64()
	return f
}

// Generator produces random amounts and delays.
// It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a generator seeded with seed. Equal seeds yield equal sequences.
func New(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandom creates a generator with a random seed.
func NewRandom() *Generator {
	return New(rand.Uint64())
}

// Amount returns a value uniformly distributed in [b.Min, b.Max], rounded to
// AmountPrecision decimals.
func (g *Generator) Amount(b types.Bounds) (Amount, error) {
	if math.IsNaN(b.Min) || math.IsInf(b.Min, 0) || math.IsNaN(b.Max) || math.IsInf(b.Max, 0) {
		return Amount{}, config.NewConfigurationError("cycles.amounts", "bounds must be finite, got [%v, %v]", b.Min, b.Max)
	}
	if b.Min > b.Max {
		return Amount{}, config.NewConfigurationError("cycles.amounts", "min %v is greater than max %v", b.Min, b.Max)
	}
	if b.Min < 0 {
		return Amount{}, config.NewConfigurationError("cycles.amounts", "min %v is negative", b.Min)
	}

	g.mu.Lock()
	f := g.rng.Float64()
	g.mu.Unlock()

	lo := decimal.NewFromFloat(b.Min)
	hi := decimal.NewFromFloat(b.Max)
	v := lo.Add(hi.Sub(lo).Mul(decimal.NewFromFloat(f))).Round(AmountPrecision)
	// Rounding may step past a bound that has more than AmountPrecision decimals.
	if v.LessThan(lo) {
		v = lo.RoundUp(AmountPrecision)
	}
	if v.GreaterThan(hi) {
		v = hi.RoundDown(AmountPrecision)
	}

	return Amount{Value: v, Wei: ToWei(v)}, nil
}

// Delay returns a duration of a whole number of milliseconds uniformly
// distributed over [b.Min, b.Max]. Bounds are clamped to
// [0, config.MaxDelayMS] and an inverted range collapses to Min.
func (g *Generator) Delay(b types.DelayBounds) time.Duration {
	lo := min(max(b.Min, 0), config.MaxDelayMS)
	hi := min(max(b.Max, lo), config.MaxDelayMS)

	g.mu.Lock()
	ms := lo + g.rng.Int64N(hi-lo+1)
	g.mu.Unlock()

	return time.Duration(ms) * time.Millisecond
}

// Pick returns a uniformly chosen index in [0, n). n must be positive.
func (g *Generator) Pick(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

// ToWei converts a native-unit decimal to wei.
func ToWei(v decimal.Decimal) *big.Int {
	return v.Shift(NativeDecimals).BigInt()
}

// FromWei converts wei to a native-unit decimal.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -NativeDecimals)
}

// FormatUnits formats a raw token amount with the given decimals, rounded to
// places.
func FormatUnits(raw *big.Int, decimals int32, places int32) string {
	if raw == nil {
		return decimal.Zero.StringFixed(places)
	}
	return decimal.NewFromBigInt(raw, -decimals).StringFixed(places)
}

package params

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gateway-fm/cyclebot/internal/config"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

func TestAmount_WithinBounds(t *testing.T) {
	g := New(1)
	b := types.Bounds{Min: 0.001, Max: 0.003}
	lo := decimal.NewFromFloat(b.Min)
	hi := decimal.NewFromFloat(b.Max)

	for i := 0; i < 1000; i++ {
		a, err := g.Amount(b)
		require.NoError(t, err)
		assert.True(t, a.Value.GreaterThanOrEqual(lo), "amount %s below min", a)
		assert.True(t, a.Value.LessThanOrEqual(hi), "amount %s above max", a)
		assert.LessOrEqual(t, -a.Value.Exponent(), int32(AmountPrecision))
		assert.Equal(t, 0, a.Wei.Cmp(ToWei(a.Value)))
	}
}

func TestAmount_InvalidBounds(t *testing.T) {
	tests := []struct {
		name string
		b    types.Bounds
	}{
		{"inverted", types.Bounds{Min: 0.003, Max: 0.001}},
		{"negative min", types.Bounds{Min: -1, Max: 1}},
		{"infinite max", types.Bounds{Min: 0.001, Max: math.Inf(1)}},
		{"infinite min", types.Bounds{Min: math.Inf(-1), Max: 1}},
		{"nan max", types.Bounds{Min: 0.001, Max: math.NaN()}},
		{"nan min", types.Bounds{Min: math.NaN(), Max: 1}},
	}

	g := New(1)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { _, err = g.Amount(tt.b) })
			require.Error(t, err)
			assert.True(t, config.IsConfigurationError(err))
		})
	}
}

func TestAmount_DegenerateBounds(t *testing.T) {
	g := New(7)
	a, err := g.Amount(types.Bounds{Min: 0.002, Max: 0.002})
	require.NoError(t, err)
	assert.Equal(t, "0.00200000", a.String())
	assert.Equal(t, big.NewInt(2_000_000_000_000_000), a.Wei)
	assert.InDelta(t, 0.002, a.Float(), 1e-12)
}

func TestAmount_Reproducible(t *testing.T) {
	b := types.Bounds{Min: 0.1, Max: 5}
	g1, g2 := New(42), New(42)
	for i := 0; i < 20; i++ {
		a1, _ := g1.Amount(b)
		a2, _ := g2.Amount(b)
		assert.True(t, a1.Value.Equal(a2.Value))
	}
}

func TestDelay_WithinBounds(t *testing.T) {
	g := New(3)
	b := types.DelayBounds{Min: 100, Max: 105}
	seen := map[time.Duration]bool{}

	for i := 0; i < 1000; i++ {
		d := g.Delay(b)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 105*time.Millisecond)
		assert.Zero(t, d%time.Millisecond)
		seen[d] = true
	}
	assert.Len(t, seen, 6, "both ends of the inclusive range are reachable")
}

func TestDelay_HugeBoundsDoNotOverflow(t *testing.T) {
	g := New(3)
	maxDelay := time.Duration(config.MaxDelayMS) * time.Millisecond

	for _, b := range []types.DelayBounds{
		{Min: 0, Max: math.MaxInt64},
		{Min: math.MaxInt64, Max: math.MaxInt64},
		{Min: math.MinInt64, Max: math.MaxInt64},
	} {
		var d time.Duration
		require.NotPanics(t, func() { d = g.Delay(b) })
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, maxDelay)
	}
	assert.Equal(t, maxDelay, g.Delay(types.DelayBounds{Min: math.MaxInt64, Max: math.MaxInt64}))
}

func TestDelay_ClampsInvalidBounds(t *testing.T) {
	g := New(3)
	assert.Equal(t, 50*time.Millisecond, g.Delay(types.DelayBounds{Min: 50, Max: 10}))
	assert.Equal(t, time.Duration(0), g.Delay(types.DelayBounds{Min: -5, Max: 0}))
}

func TestPick(t *testing.T) {
	g := New(9)
	for i := 0; i < 100; i++ {
		n := g.Pick(3)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 3)
	}
}

func TestUnitConversion(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5", FromWei(wei).String())
	assert.True(t, FromWei(nil).IsZero())
	assert.Equal(t, wei, ToWei(decimal.RequireFromString("1.5")))

	assert.Equal(t, "1.2346", FormatUnits(big.NewInt(1_234_567), 6, 4))
	assert.Equal(t, "0.00", FormatUnits(nil, 6, 2))
}

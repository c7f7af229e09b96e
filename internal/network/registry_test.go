package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	p := r.Get("monad-testnet")
	require.NotNil(t, p)
	assert.Equal(t, int64(10143), p.ChainID)
	assert.Equal(t, "MON", p.NativeSymbol)

	assert.Nil(t, r.Get("unknown"))
	assert.Equal(t, []string{"anvil", "monad-testnet"}, r.Names())
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := DefaultRegistry()
	p := r.Get("anvil")
	p.ChainID = 1

	assert.Equal(t, int64(31337), r.Get("anvil").ChainID)
}

func TestProfile_TxLink(t *testing.T) {
	tests := []struct {
		name string
		p    *Profile
		want string
	}{
		{"with explorer", MonadTestnet(), "https://testnet.monadexplorer.com/tx/0xabc"},
		{"without explorer", Anvil(), "0xabc"},
		{"nil profile", nil, "0xabc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.TxLink("0xabc"))
		})
	}
}

func TestRegistry_RegisterNil(t *testing.T) {
	r := NewRegistry()
	r.Register(nil)
	assert.Empty(t, r.Names())
	assert.Equal(t, "unknown", (*Profile)(nil).String())
}

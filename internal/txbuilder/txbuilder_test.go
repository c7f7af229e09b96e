package txbuilder

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectors(t *testing.T) {
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	spender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	one := big.NewInt(1)

	balanceOf, err := EncodeBalanceOf(owner)
	require.NoError(t, err)
	allowance, err := EncodeAllowance(owner, spender)
	require.NoError(t, err)
	approve, err := EncodeApprove(spender, one)
	require.NoError(t, err)
	withdraw, err := EncodeWithdraw(one)
	require.NoError(t, err)
	ethForTokens, err := EncodeSwapExactETHForTokens(one, []common.Address{owner, spender}, owner, one)
	require.NoError(t, err)
	tokensForETH, err := EncodeSwapExactTokensForETH(one, one, []common.Address{spender, owner}, owner, one)
	require.NoError(t, err)
	vaultDeposit, err := EncodeVaultDeposit(one, owner)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"balanceOf", balanceOf, "0x70a08231"},
		{"allowance", allowance, "0xdd62ed3e"},
		{"approve", approve, "0x095ea7b3"},
		{"decimals", EncodeDecimals(), "0x313ce567"},
		{"deposit", EncodeDeposit(), "0xd0e30db0"},
		{"withdraw", withdraw, "0x2e1a7d4d"},
		{"swapExactETHForTokens", ethForTokens, "0x7ff36ab5"},
		{"swapExactTokensForETH", tokensForETH, "0x18cbafe5"},
		{"vault deposit", vaultDeposit, "0x6e553f65"},
		{"stake", EncodeStake(), "0xd5575982"},
		{"unstake", EncodeUnstake(one), "0x6fed1ea7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.GreaterOrEqual(t, len(tt.data), 4)
			assert.Equal(t, tt.want, hexutil.Encode(tt.data[:4]))
		})
	}
}

func TestSelector(t *testing.T) {
	assert.Equal(t, "0xa9059cbb", hexutil.Encode(Selector("transfer(address,uint256)")))
}

func TestEncodeSelectorAmount(t *testing.T) {
	amount := big.NewInt(2_000_000_000_000_000) // 0.002 native
	data := EncodeUnstake(amount)

	require.Len(t, data, 36)
	assert.Equal(t, "0x6fed1ea7", hexutil.Encode(data[:4]))
	assert.Equal(t, amount, new(big.Int).SetBytes(data[4:]))
	assert.Len(t, EncodeStake(), 4)
}

func TestEncodeBalanceOf_Layout(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	data, err := EncodeBalanceOf(owner)
	require.NoError(t, err)

	require.Len(t, data, 36)
	assert.Equal(t, owner.Bytes(), data[4+12:])
}

func TestDecodeUint256(t *testing.T) {
	out := common.LeftPadBytes(big.NewInt(12345).Bytes(), 32)

	v, err := DecodeUint256("balanceOf", out)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), v.Int64())

	_, err = DecodeUint256("balanceOf", []byte{0x01})
	assert.Error(t, err)
}

func TestDecodeDecimals(t *testing.T) {
	d, err := DecodeDecimals(common.LeftPadBytes([]byte{6}, 32))
	require.NoError(t, err)
	assert.Equal(t, uint8(6), d)
}

func TestNewTx(t *testing.T) {
	to := common.HexToAddress("0x3333333333333333333333333333333333333333")
	gasPrice := big.NewInt(50_000_000_000)

	t.Run("dynamic", func(t *testing.T) {
		tx := NewTx(Call{ChainID: big.NewInt(10143), Nonce: 7, To: &to, Gas: 21000}, DynamicFees(gasPrice))

		assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
		assert.Equal(t, uint64(7), tx.Nonce())
		assert.Equal(t, &to, tx.To())
		assert.Equal(t, 0, tx.Value().Sign())
		assert.Equal(t, gasPrice, tx.GasTipCap())
		assert.Equal(t, new(big.Int).Mul(gasPrice, big.NewInt(2)), tx.GasFeeCap())
	})

	t.Run("legacy", func(t *testing.T) {
		tx := NewTx(Call{Nonce: 1, To: &to, Value: big.NewInt(5), Gas: 21000}, LegacyFees(gasPrice))

		assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
		assert.Equal(t, gasPrice, tx.GasPrice())
		assert.Equal(t, int64(5), tx.Value().Int64())
	})

	t.Run("create", func(t *testing.T) {
		tx := NewTx(Call{ChainID: big.NewInt(1), Gas: 3_000_000, Data: CounterArtifact}, DynamicFees(gasPrice))

		assert.Nil(t, tx.To())
		assert.Equal(t, CounterArtifact, tx.Data())
	})
}

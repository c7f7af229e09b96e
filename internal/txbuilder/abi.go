package txbuilder

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const erc20ABI = `[
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

const wrappedNativeABI = `[
 {"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]},
 {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]}
]`

const routerABI = `[
 {"type":"function","name":"swapExactETHForTokens","stateMutability":"payable","inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
 {"type":"function","name":"swapExactTokensForETH","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

const vaultABI = `[
 {"type":"function","name":"deposit","stateMutability":"payable","inputs":[{"name":"assets","type":"uint256"},{"name":"receiver","type":"address"}],"outputs":[{"name":"shares","type":"uint256"}]}
]`

var (
	erc20         = mustParse(erc20ABI)
	wrappedNative = mustParse(wrappedNativeABI)
	router        = mustParse(routerABI)
	vault         = mustParse(vaultABI)
)

// Raw selectors of the liquid staking contracts, which are called without an
// ABI. Stake carries the amount as value, unstake as a single 32-byte word.
var (
	SelectorStake   = common.FromHex("0xd5575982")
	SelectorUnstake = common.FromHex("0x6fed1ea7")
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

// Selector computes the 4-byte function selector of sig.
func Selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

// EncodeSelectorAmount encodes selector followed by amount as a 32-byte word.
func EncodeSelectorAmount(selector []byte, amount *big.Int) []byte {
	data := make([]byte, len(selector)+32)
	copy(data, selector)
	amount.FillBytes(data[len(selector):])
	return data
}

// EncodeStake encodes a liquid staking deposit. The amount is sent as value.
func EncodeStake() []byte {
	return common.CopyBytes(SelectorStake)
}

// EncodeUnstake encodes a liquid staking withdrawal of amount.
func EncodeUnstake(amount *big.Int) []byte {
	return EncodeSelectorAmount(SelectorUnstake, amount)
}

// EncodeDeposit encodes a wrapped-native deposit().
func EncodeDeposit() []byte {
	data, _ := wrappedNative.Pack("deposit")
	return data
}

// EncodeWithdraw encodes a wrapped-native withdraw(amount).
func EncodeWithdraw(amount *big.Int) ([]byte, error) {
	return wrappedNative.Pack("withdraw", amount)
}

// EncodeBalanceOf encodes ERC20 balanceOf(owner).
func EncodeBalanceOf(owner common.Address) ([]byte, error) {
	return erc20.Pack("balanceOf", owner)
}

// EncodeAllowance encodes ERC20 allowance(owner, spender).
func EncodeAllowance(owner, spender common.Address) ([]byte, error) {
	return erc20.Pack("allowance", owner, spender)
}

// EncodeApprove encodes ERC20 approve(spender, amount).
func EncodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20.Pack("approve", spender, amount)
}

// EncodeDecimals encodes ERC20 decimals().
func EncodeDecimals() []byte {
	data, _ := erc20.Pack("decimals")
	return data
}

// DecodeUint256 decodes the output of a uint256-returning ERC20 view.
func DecodeUint256(method string, out []byte) (*big.Int, error) {
	values, err := erc20.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode %s: unexpected type %T", method, values[0])
	}
	return v, nil
}

// DecodeDecimals decodes the output of ERC20 decimals().
func DecodeDecimals(out []byte) (uint8, error) {
	values, err := erc20.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("decode decimals: %w", err)
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decode decimals: unexpected type %T", values[0])
	}
	return d, nil
}

// EncodeSwapExactETHForTokens encodes a router swap of native value for path's
// last token, delivered to to.
func EncodeSwapExactETHForTokens(amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return router.Pack("swapExactETHForTokens", amountOutMin, path, to, deadline)
}

// EncodeSwapExactTokensForETH encodes a router swap of amountIn of path's first
// token back to native.
func EncodeSwapExactTokensForETH(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return router.Pack("swapExactTokensForETH", amountIn, amountOutMin, path, to, deadline)
}

// EncodeVaultDeposit encodes an ERC4626 deposit(assets, receiver).
func EncodeVaultDeposit(assets *big.Int, receiver common.Address) ([]byte, error) {
	return vault.Pack("deposit", assets, receiver)
}

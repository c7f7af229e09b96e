// Package txbuilder constructs unsigned transactions and ABI-encodes the
// contract calls issued by the operation adapters.
package txbuilder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Fees carries the fee fields of a transaction. For legacy transactions
// FeeCap is used as the gas price.
type Fees struct {
	TipCap *big.Int
	FeeCap *big.Int
	Legacy bool
}

// LegacyFees returns Fees for a legacy transaction priced at gasPrice.
func LegacyFees(gasPrice *big.Int) Fees {
	return Fees{TipCap: gasPrice, FeeCap: gasPrice, Legacy: true}
}

// DynamicFees derives EIP-1559 fees from the node's gas price: the tip equals
// the gas price and the cap allows one doubling of the base fee.
func DynamicFees(gasPrice *big.Int) Fees {
	return Fees{
		TipCap: new(big.Int).Set(gasPrice),
		FeeCap: new(big.Int).Mul(gasPrice, big.NewInt(2)),
	}
}

// Call describes a transaction to build. A nil To creates a contract.
type Call struct {
	ChainID *big.Int
	Nonce   uint64
	To      *common.Address
	Value   *big.Int
	Gas     uint64
	Data    []byte
}

// NewTx creates either a DynamicFeeTx or LegacyTx depending on fees.Legacy.
func NewTx(c Call, fees Fees) *types.Transaction {
	value := c.Value
	if value == nil {
		value = new(big.Int)
	}
	if fees.Legacy {
		return types.NewTx(&types.LegacyTx{
			Nonce:    c.Nonce,
			GasPrice: fees.FeeCap,
			Gas:      c.Gas,
			To:       c.To,
			Value:    value,
			Data:     c.Data,
		})
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.ChainID,
		Nonce:     c.Nonce,
		GasTipCap: fees.TipCap,
		GasFeeCap: fees.FeeCap,
		Gas:       c.Gas,
		To:        c.To,
		Value:     value,
		Data:      c.Data,
	})
}

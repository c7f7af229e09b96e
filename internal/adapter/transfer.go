package adapter

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/cyclebot/internal/wallet"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

// Transfer sends a random amount to a random address from the recipient list.
type Transfer struct {
	base
	recipients []common.Address
	bounds     types.Bounds
	gas        uint64
}

var _ Transferer = (*Transfer)(nil)

// NewTransfer creates the transfer adapter.
func NewTransfer(name string, recipients []common.Address, bounds types.Bounds, gas uint64, deps Deps) *Transfer {
	return &Transfer{
		base:       newBase(name, common.Address{}, deps),
		recipients: recipients,
		bounds:     bounds,
		gas:        gas,
	}
}

// Initialize fails when there is nobody to send to.
func (t *Transfer) Initialize(ctx context.Context) error {
	if len(t.recipients) == 0 {
		return errors.New("recipient list is empty")
	}
	return nil
}

// SendTransfer draws a recipient and an amount, then submits the transfer.
func (t *Transfer) SendTransfer(ctx context.Context) (types.OperationResult, error) {
	to := t.recipients[t.params.Pick(len(t.recipients))]
	amount, err := t.params.Amount(t.bounds)
	if err != nil {
		return types.ErrorResult(err.Error()), nil
	}

	t.logger.Debug("Sending transfer",
		slog.String("to", wallet.Mask(to.Hex())),
		slog.String("amount", amount.String()),
	)
	return t.submit(ctx, "transfer", wallet.Request{To: &to, Value: amount.Wei, Gas: t.gas})
}

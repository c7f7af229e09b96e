package chain

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrReceiptTimeout is returned when a submitted transaction is not included
// within the confirmation timeout.
var ErrReceiptTimeout = errors.New("timed out waiting for receipt")

// SubmissionError reports that the network rejected a transaction before
// inclusion (insufficient funds, gas too low, nonce conflicts).
type SubmissionError struct {
	Op  string
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s: submission rejected: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// TransactionFailure reports that a transaction was included but reverted.
type TransactionFailure struct {
	TxHash string
}

func (e *TransactionFailure) Error() string {
	return fmt.Sprintf("transaction %s reverted", e.TxHash)
}

// BalanceInsufficientError reports a failed pre-flight balance check.
type BalanceInsufficientError struct {
	Required  *big.Int
	Available *big.Int
}

func (e *BalanceInsufficientError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s wei, available %s wei", e.Required, e.Available)
}

// IsSubmissionError reports whether err wraps a SubmissionError.
func IsSubmissionError(err error) bool {
	var se *SubmissionError
	return errors.As(err, &se)
}

// IsBalanceInsufficient reports whether err wraps a BalanceInsufficientError.
func IsBalanceInsufficient(err error) bool {
	var be *BalanceInsufficientError
	return errors.As(err, &be)
}

package coinctl

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrutil/v4"
)

var (
	// ErrSigningIncomplete is returned when the wallet could not sign
	// every input of a transaction.
	ErrSigningIncomplete = errors.New("transaction signing incomplete")

	// ErrWalletLocked is returned when the wallet could not be unlocked
	// after the allowed number of passphrase attempts, or was locked
	// again before the transaction was signed.
	ErrWalletLocked = errors.New("wallet is locked")

	// ErrNoCoins is returned when none of the source addresses has
	// spendable outputs in the wallet.
	ErrNoCoins = errors.New("no spendable outputs for the given addresses")
)

// ErrInsufficientFunds is returned when the source addresses do not hold
// enough coins to pay for the requested amount and fee.
type ErrInsufficientFunds struct {
	Available dcrutil.Amount
	Needed    dcrutil.Amount
}

func (e *ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("only %v available, need %v", e.Available,
		e.Needed)
}

// FeeErrorKind identifies the reason a transaction fee was rejected.
type FeeErrorKind int

const (
	// FeeNegative means the outputs spend more than the inputs.
	FeeNegative FeeErrorKind = iota

	// FeeUnreasonable means the fee is above the allowed maximum.
	FeeUnreasonable

	// FeeMissingLargeTx means a large transaction pays less than the base
	// fee.
	FeeMissingLargeTx

	// FeeMissingTinyAmount means a transaction moving a tiny amount pays
	// less than the base fee.
	FeeMissingTinyAmount
)

// FeeError is returned by SanityCheckFee when a transaction fee fails one of
// the checks.
type FeeError struct {
	Kind FeeErrorKind
	Fee  dcrutil.Amount
}

func (e *FeeError) Error() string {
	switch e.Kind {
	case FeeNegative:
		return fmt.Sprintf("rejecting transaction, negative fee of %v",
			e.Fee)
	case FeeUnreasonable:
		return fmt.Sprintf("rejecting transaction, unreasonable fee "+
			"of %v", e.Fee)
	case FeeMissingLargeTx:
		return "rejecting no-fee transaction, larger than 1000 bytes"
	case FeeMissingTinyAmount:
		return "rejecting no-fee, tiny-amount transaction"
	default:
		return fmt.Sprintf("rejecting transaction fee of %v", e.Fee)
	}
}

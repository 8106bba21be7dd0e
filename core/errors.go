package core

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownAccount      = errors.New("ecash: unknown account")
	ErrAccountExists       = errors.New("ecash: account already exists")
	ErrInsufficientFunds   = errors.New("ecash: insufficient funds")
	ErrInvalidAmount       = errors.New("ecash: invalid amount")
	ErrInvalidInput        = errors.New("ecash: invalid input")
	ErrProtocolViolation   = errors.New("ecash: protocol violation")
	ErrFraudDetected       = errors.New("ecash: fraud detected")
	ErrSignatureInvalid    = errors.New("ecash: invalid signature")
	ErrStateViolation      = errors.New("ecash: state violation")
	ErrDuplicateRedemption = errors.New("ecash: duplicate redemption attempt")
)

// DoubleSpendError is returned by a redemption that recovered the identity of
// whoever spent the coin twice. It matches ErrFraudDetected.
type DoubleSpendError struct {
	// GUID of the coin that was spent twice.
	GUID string

	// Cheater is the owner identity embedded in the coin.
	Cheater string
}

// Error satisfies the error interface.
func (e *DoubleSpendError) Error() string {
	return fmt.Sprintf("ecash: double spend of coin %s by %q", e.GUID, e.Cheater)
}

// Unwrap makes a DoubleSpendError match ErrFraudDetected.
func (e *DoubleSpendError) Unwrap() error {
	return ErrFraudDetected
}

package wallet

import (
	"errors"
	"fmt"
)

var (
	// ErrWalletNotFound is returned when no directory record exists for the wallet id
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInvalidWalletID is returned for ids outside [A-Za-z0-9_-]{1,64}
	ErrInvalidWalletID = errors.New("invalid wallet id")

	// ErrInvalidPin is returned for PINs shorter than the minimum length
	ErrInvalidPin = fmt.Errorf("pin must be at least %d characters", minPinLength)

	// ErrInvalidAddress is returned for malformed or mis-checksummed destination addresses
	ErrInvalidAddress = errors.New("invalid EVM address")

	// ErrInvalidAmount is returned for amounts that are not unsigned decimals with at most 18 places
	ErrInvalidAmount = errors.New("invalid amount")
)

// WalletExistsError is an error when the wallet id or its address is already registered
type WalletExistsError struct {
	Message string
}

func (e *WalletExistsError) Error() string {
	return e.Message
}

// IsWalletExistsError checks if error is WalletExistsError
func IsWalletExistsError(err error) bool {
	var target *WalletExistsError
	return errors.As(err, &target)
}

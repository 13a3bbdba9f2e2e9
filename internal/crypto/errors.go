package crypto

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMnemonic is returned for malformed or checksum-failing recovery phrases.
	ErrInvalidMnemonic = errors.New("invalid mnemonic phrase")

	// ErrVaultUnseal covers both a wrong PIN and a corrupted blob. Callers get no hint which one.
	ErrVaultUnseal = errors.New("failed to unseal: wrong PIN or corrupted data")
)

// EntropyError is returned when the secure random source cannot be read
type EntropyError struct {
	Err error
}

func (e *EntropyError) Error() string {
	return fmt.Sprintf("secure random source unavailable: %v", e.Err)
}

func (e *EntropyError) Unwrap() error {
	return e.Err
}

// IsEntropyError checks if error is EntropyError
func IsEntropyError(err error) bool {
	var target *EntropyError
	return errors.As(err, &target)
}

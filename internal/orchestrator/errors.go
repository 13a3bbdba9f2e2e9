package orchestrator

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/AlexZinkM/relay-wallet/internal/common"
	"github.com/AlexZinkM/relay-wallet/internal/fee"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	// ErrWalletNotFound is returned when the wallet has no key in either vault tier or no directory record
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrOwnerMismatch is returned when the resolved key does not own the directory wallet
	ErrOwnerMismatch = errors.New("key does not own wallet")

	// ErrInvalidIntent is returned for a malformed send request
	ErrInvalidIntent = errors.New("invalid transaction intent")
)

// SequenceNumberError is returned when the authorization nonce was already consumed
type SequenceNumberError struct {
	WalletID string
	Nonce    *big.Int
	Err      error
}

func (e *SequenceNumberError) Error() string {
	return fmt.Sprintf("stale sequence number %s for wallet %s: %v", e.Nonce, e.WalletID, e.Err)
}

func (e *SequenceNumberError) Unwrap() error {
	return e.Err
}

// RelayerNonceError is returned when the relayer account's transaction nonce
// was already used. The wallet's authorization is still valid.
type RelayerNonceError struct {
	Relayer ethcommon.Address
	Err     error
}

func (e *RelayerNonceError) Error() string {
	return fmt.Sprintf("relayer %s nonce out of sync: %v", e.Relayer.Hex(), e.Err)
}

func (e *RelayerNonceError) Unwrap() error {
	return e.Err
}

// FeeUnderpricedError is returned when the network rejected the quoted price
type FeeUnderpricedError struct {
	Quote *fee.FeeQuote
	Err   error
}

func (e *FeeUnderpricedError) Error() string {
	return fmt.Sprintf("fee underpriced at %s wei per unit: %v", e.Quote.UnitPrice, e.Err)
}

func (e *FeeUnderpricedError) Unwrap() error {
	return e.Err
}

// InsufficientBalanceError is returned when the wallet cannot cover the transfer amount
type InsufficientBalanceError struct {
	Required  *big.Int
	Available *big.Int
	Sponsored bool
}

func (e *InsufficientBalanceError) Error() string {
	msg := fmt.Sprintf("insufficient balance: required %s, available %s",
		common.WeiToNative(e.Required), common.WeiToNative(e.Available))
	if e.Sponsored {
		msg += " after sponsorship"
	}
	return msg
}

// RelayRevertedError is returned when the relayed call was mined but reverted
type RelayRevertedError struct {
	TxID ethcommon.Hash
}

func (e *RelayRevertedError) Error() string {
	return fmt.Sprintf("relayed transaction %s reverted", e.TxID.Hex())
}

// ReceiptTimeoutError is returned when waiting for the receipt stopped.
// The transaction may still be mined.
type ReceiptTimeoutError struct {
	TxID ethcommon.Hash
	Err  error
}

func (e *ReceiptTimeoutError) Error() string {
	return fmt.Sprintf("no receipt for %s yet: %v", e.TxID.Hex(), e.Err)
}

func (e *ReceiptTimeoutError) Unwrap() error {
	return e.Err
}

// IsSequenceNumberError checks if error is SequenceNumberError
func IsSequenceNumberError(err error) bool {
	var target *SequenceNumberError
	return errors.As(err, &target)
}

// IsRelayerNonceError checks if error is RelayerNonceError
func IsRelayerNonceError(err error) bool {
	var target *RelayerNonceError
	return errors.As(err, &target)
}

// IsFeeUnderpricedError checks if error is FeeUnderpricedError
func IsFeeUnderpricedError(err error) bool {
	var target *FeeUnderpricedError
	return errors.As(err, &target)
}

// IsInsufficientBalanceError checks if error is InsufficientBalanceError
func IsInsufficientBalanceError(err error) bool {
	var target *InsufficientBalanceError
	return errors.As(err, &target)
}

// IsReceiptTimeoutError checks if error is ReceiptTimeoutError
func IsReceiptTimeoutError(err error) bool {
	var target *ReceiptTimeoutError
	return errors.As(err, &target)
}

// IsRelayRevertedError checks if error is RelayRevertedError
func IsRelayRevertedError(err error) bool {
	var target *RelayRevertedError
	return errors.As(err, &target)
}

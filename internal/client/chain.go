package client

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrNonceTooLow is returned when a submitted relayer transaction reuses a spent nonce
	ErrNonceTooLow = errors.New("nonce too low")

	// ErrUnderpriced is returned when the network rejects a transaction's gas price
	ErrUnderpriced = errors.New("transaction underpriced")

	// ErrInvalidSequence is returned when the wallet contract rejects the authorization nonce
	ErrInvalidSequence = errors.New("invalid wallet sequence number")
)

// Chain is the narrow view of the EVM network used by the relay pipeline
type Chain interface {
	ChainID(ctx context.Context) (*big.Int, error)
	GetBalance(ctx context.Context, address common.Address) (*big.Int, error)
	// GetSequenceNumber reads the smart-contract wallet's authorization nonce
	GetSequenceNumber(ctx context.Context, wallet common.Address) (*big.Int, error)
	GetFeePrice(ctx context.Context) (*big.Int, error)
	EstimateExecutionCost(ctx context.Context, from, to common.Address, value *big.Int, data []byte) (uint64, error)
	PendingNonce(ctx context.Context, address common.Address) (uint64, error)
	SubmitSignedCall(ctx context.Context, rawTx []byte) (common.Hash, error)
	WaitForReceipt(ctx context.Context, txID common.Hash) (*types.Receipt, error)
}

// ClassifyError maps node error messages onto the package sentinels.
// Unknown errors are returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "nonce too low"):
		return &classifiedError{kind: ErrNonceTooLow, err: err}
	case strings.Contains(msg, "underpriced"), strings.Contains(msg, "fee too low"),
		strings.Contains(msg, "max fee per gas less than block base fee"):
		return &classifiedError{kind: ErrUnderpriced, err: err}
	case strings.Contains(msg, "invalid nonce"), strings.Contains(msg, "invalid sequence"):
		return &classifiedError{kind: ErrInvalidSequence, err: err}
	}
	return err
}

type classifiedError struct {
	kind error
	err  error
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Is(target error) bool {
	return target == e.kind
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

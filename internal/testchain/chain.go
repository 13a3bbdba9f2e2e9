// Package testchain is an in-process EVM stand-in for tests. It executes relayer
// transactions against smart-contract wallets and tracks balances and nonces.
package testchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/AlexZinkM/relay-wallet/internal/client"
	"github.com/AlexZinkM/relay-wallet/internal/crypto"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	TransferGas = 21_000
	ExecuteGas  = 90_000
)

// SequenceRead is one GetSequenceNumber call
type SequenceRead struct {
	Wallet common.Address
	Nonce  uint64
}

// Chain implements client.Chain in memory
type Chain struct {
	mu sync.Mutex

	chainID  *big.Int
	signer   types.Signer
	contract *client.WalletContract

	balances  map[common.Address]*big.Int
	nonces    map[common.Address]uint64
	sequences map[common.Address]uint64
	owners    map[common.Address]common.Address
	receipts  map[common.Hash]*types.Receipt
	block     uint64

	feePrice     *big.Int
	feeFailures  int
	minGasPrice  *big.Int
	submitErrors []error
	holdReceipts bool
	revertNext   int
	reads        []SequenceRead

	// OnSequenceRead runs after every sequence read, outside the chain lock
	OnSequenceRead func(wallet common.Address, nonce uint64)
}

// New creates an empty chain
func New(chainID *big.Int, contract *client.WalletContract) *Chain {
	return &Chain{
		chainID:     chainID,
		signer:      types.LatestSignerForChainID(chainID),
		contract:    contract,
		balances:    make(map[common.Address]*big.Int),
		nonces:      make(map[common.Address]uint64),
		sequences:   make(map[common.Address]uint64),
		owners:      make(map[common.Address]common.Address),
		receipts:    make(map[common.Hash]*types.Receipt),
		feePrice:    big.NewInt(20_000_000_000),
		minGasPrice: big.NewInt(1),
	}
}

// RegisterWallet makes wallet a smart-contract wallet authorized by owner
func (c *Chain) RegisterWallet(wallet, owner common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owners[wallet] = owner
}

// SetBalance overwrites an account balance
func (c *Chain) SetBalance(address common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[address] = new(big.Int).Set(wei)
}

// Balance returns an account balance
func (c *Chain) Balance(address common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.balanceOf(address))
}

// SetSequence overwrites a wallet's authorization nonce
func (c *Chain) SetSequence(wallet common.Address, nonce uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequences[wallet] = nonce
}

// Sequence returns a wallet's authorization nonce
func (c *Chain) Sequence(wallet common.Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sequences[wallet]
}

// SetFeePrice sets the price GetFeePrice returns
func (c *Chain) SetFeePrice(wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feePrice = new(big.Int).Set(wei)
}

// FailFeePrice makes the next n GetFeePrice calls fail
func (c *Chain) FailFeePrice(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feeFailures = n
}

// SetMinGasPrice rejects transactions priced below wei
func (c *Chain) SetMinGasPrice(wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.minGasPrice = new(big.Int).Set(wei)
}

// FailNextSubmit queues errors returned by the next SubmitSignedCall calls
func (c *Chain) FailNextSubmit(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitErrors = append(c.submitErrors, errs...)
}

// HoldReceipts makes WaitForReceipt block until its context ends
func (c *Chain) HoldReceipts(hold bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdReceipts = hold
}

// RevertNext makes the next n wallet executions revert on-chain
func (c *Chain) RevertNext(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revertNext = n
}

// SequenceReads returns every sequence read so far
func (c *Chain) SequenceReads() []SequenceRead {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SequenceRead(nil), c.reads...)
}

// Receipts returns the number of mined transactions
func (c *Chain) Receipts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.receipts)
}

func (c *Chain) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

func (c *Chain) GetBalance(_ context.Context, address common.Address) (*big.Int, error) {
	return c.Balance(address), nil
}

func (c *Chain) GetSequenceNumber(_ context.Context, wallet common.Address) (*big.Int, error) {
	c.mu.Lock()
	nonce := c.sequences[wallet]
	c.reads = append(c.reads, SequenceRead{Wallet: wallet, Nonce: nonce})
	hook := c.OnSequenceRead
	c.mu.Unlock()

	if hook != nil {
		hook(wallet, nonce)
	}
	return new(big.Int).SetUint64(nonce), nil
}

func (c *Chain) GetFeePrice(context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feeFailures > 0 {
		c.feeFailures--
		return nil, errors.New("rpc unavailable")
	}
	return new(big.Int).Set(c.feePrice), nil
}

func (c *Chain) EstimateExecutionCost(_ context.Context, _, to common.Address, _ *big.Int, data []byte) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.owners[to]; !ok || len(data) == 0 {
		return TransferGas, nil
	}
	call, err := c.contract.UnpackExecute(data)
	if err != nil {
		return 0, fmt.Errorf("execution reverted: %w", err)
	}
	if err := c.authorize(to, call); err != nil {
		return 0, client.ClassifyError(err)
	}
	return ExecuteGas, nil
}

func (c *Chain) PendingNonce(_ context.Context, address common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[address], nil
}

// SubmitSignedCall mines the transaction immediately
func (c *Chain) SubmitSignedCall(_ context.Context, rawTx []byte) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.submitErrors) > 0 {
		err := c.submitErrors[0]
		c.submitErrors = c.submitErrors[1:]
		return common.Hash{}, client.ClassifyError(err)
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(rawTx); err != nil {
		return common.Hash{}, fmt.Errorf("rlp: %w", err)
	}
	if tx.ChainId().Cmp(c.chainID) != 0 {
		return common.Hash{}, errors.New("invalid chain id for signer")
	}
	from, err := types.Sender(c.signer, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid sender: %w", err)
	}

	switch expected := c.nonces[from]; {
	case tx.Nonce() < expected:
		return common.Hash{}, client.ClassifyError(fmt.Errorf("nonce too low: next nonce %d, tx nonce %d", expected, tx.Nonce()))
	case tx.Nonce() > expected:
		return common.Hash{}, fmt.Errorf("nonce too high: next nonce %d, tx nonce %d", expected, tx.Nonce())
	}
	if tx.GasPrice().Cmp(c.minGasPrice) < 0 {
		return common.Hash{}, client.ClassifyError(errors.New("transaction underpriced"))
	}

	gasCost := new(big.Int).Mul(tx.GasPrice(), new(big.Int).SetUint64(tx.Gas()))
	if c.balanceOf(from).Cmp(new(big.Int).Add(gasCost, tx.Value())) < 0 {
		return common.Hash{}, errors.New("insufficient funds for gas * price + value")
	}

	c.nonces[from]++
	c.sub(from, gasCost)

	status := types.ReceiptStatusSuccessful
	if err := c.execute(from, tx); err != nil {
		status = types.ReceiptStatusFailed
	}

	c.block++
	c.receipts[tx.Hash()] = &types.Receipt{
		Type:              tx.Type(),
		Status:            status,
		TxHash:            tx.Hash(),
		GasUsed:           tx.Gas(),
		EffectiveGasPrice: tx.GasPrice(),
		BlockNumber:       new(big.Int).SetUint64(c.block),
	}
	return tx.Hash(), nil
}

func (c *Chain) WaitForReceipt(ctx context.Context, txID common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	receipt, ok := c.receipts[txID]
	hold := c.holdReceipts
	c.mu.Unlock()

	if hold || !ok {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return receipt, nil
}

// execute applies the state change of a mined transaction. Caller holds c.mu.
func (c *Chain) execute(from common.Address, tx *types.Transaction) error {
	to := *tx.To()
	if tx.Value().Sign() > 0 {
		c.sub(from, tx.Value())
		c.add(to, tx.Value())
	}

	if _, ok := c.owners[to]; !ok || len(tx.Data()) == 0 {
		return nil
	}

	call, err := c.contract.UnpackExecute(tx.Data())
	if err != nil {
		return err
	}
	if err := c.authorize(to, call); err != nil {
		return err
	}
	if c.revertNext > 0 {
		c.revertNext--
		return errors.New("execution reverted")
	}
	if c.balanceOf(to).Cmp(call.Value) < 0 {
		return errors.New("execution reverted: insufficient balance")
	}

	c.sequences[to]++
	c.sub(to, call.Value)
	c.add(call.Dest, call.Value)
	return nil
}

// authorize is the wallet contract's signature check. Caller holds c.mu.
func (c *Chain) authorize(wallet common.Address, call *client.ExecuteCall) error {
	nonce := new(big.Int).SetUint64(c.sequences[wallet])
	digest := crypto.AuthorizationDigest(c.chainID, wallet, call.Dest, call.Value, call.Data, nonce)

	signer, err := crypto.RecoverAuthorizer(digest, call.Signature)
	if err != nil || signer != c.owners[wallet] {
		return errors.New("execution reverted: invalid nonce or signature")
	}
	return nil
}

func (c *Chain) balanceOf(address common.Address) *big.Int {
	if b, ok := c.balances[address]; ok {
		return b
	}
	return new(big.Int)
}

func (c *Chain) add(address common.Address, wei *big.Int) {
	c.balances[address] = new(big.Int).Add(c.balanceOf(address), wei)
}

func (c *Chain) sub(address common.Address, wei *big.Int) {
	c.balances[address] = new(big.Int).Sub(c.balanceOf(address), wei)
}

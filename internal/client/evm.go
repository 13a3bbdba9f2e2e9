package client

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

const defaultReceiptPollInterval = 2 * time.Second

// EVMClient implements Chain over a JSON-RPC node
type EVMClient struct {
	eth          *ethclient.Client
	wallet       *WalletContract
	pollInterval time.Duration
}

// NewEVMClient dials the node at rpcURL
func NewEVMClient(ctx context.Context, rpcURL string, wallet *WalletContract) (*EVMClient, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial rpc")
	}
	return &EVMClient{eth: eth, wallet: wallet, pollInterval: defaultReceiptPollInterval}, nil
}

// Close closes the RPC connection
func (c *EVMClient) Close() {
	c.eth.Close()
}

func (c *EVMClient) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chain id")
	}
	return id, nil
}

func (c *EVMClient) GetBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	balance, err := c.eth.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get balance")
	}
	return balance, nil
}

func (c *EVMClient) GetSequenceNumber(ctx context.Context, wallet common.Address) (*big.Int, error) {
	input, err := c.wallet.PackNonce()
	if err != nil {
		return nil, err
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &wallet, Data: input}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read wallet nonce")
	}
	return c.wallet.UnpackNonce(out)
}

func (c *EVMClient) GetFeePrice(ctx context.Context) (*big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get gas price")
	}
	return price, nil
}

func (c *EVMClient) EstimateExecutionCost(ctx context.Context, from, to common.Address, value *big.Int, data []byte) (uint64, error) {
	units, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data})
	if err != nil {
		return 0, ClassifyError(errors.Wrap(err, "failed to estimate gas"))
	}
	return units, nil
}

func (c *EVMClient) PendingNonce(ctx context.Context, address common.Address) (uint64, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, address)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get pending nonce")
	}
	return nonce, nil
}

func (c *EVMClient) SubmitSignedCall(ctx context.Context, rawTx []byte) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(rawTx); err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to decode signed transaction")
	}
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, ClassifyError(errors.Wrap(err, "failed to send transaction"))
	}
	return tx.Hash(), nil
}

// WaitForReceipt polls until the transaction is mined or ctx is done
func (c *EVMClient) WaitForReceipt(ctx context.Context, txID common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txID)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, errors.Wrap(err, "failed to get receipt")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

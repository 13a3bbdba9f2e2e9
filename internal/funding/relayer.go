package funding

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/AlexZinkM/relay-wallet/internal/client"
	"github.com/AlexZinkM/relay-wallet/internal/crypto"
	"github.com/AlexZinkM/relay-wallet/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"
)

// RelayerKeyID is the vault entry id of the relayer key
const RelayerKeyID = "relayer"

// Call is one relayer-signed transaction
type Call struct {
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
	GasPrice *big.Int
}

// Relayer owns the shared relayer account. Every transaction it signs goes through Send,
// so the account nonce is read and consumed by one caller at a time.
type Relayer struct {
	mu      sync.Mutex
	chain   client.Chain
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
}

// NewRelayer creates a Relayer for material on chainID
func NewRelayer(chain client.Chain, material *crypto.WalletKeyMaterial, chainID *big.Int) (*Relayer, error) {
	key, err := material.ECDSA()
	if err != nil {
		return nil, fmt.Errorf("failed to load relayer key: %w", err)
	}
	return &Relayer{
		chain:   chain,
		key:     key,
		address: material.Address,
		signer:  types.LatestSignerForChainID(chainID),
	}, nil
}

// Address returns the relayer account, also the manual top-up address
func (r *Relayer) Address() common.Address {
	return r.address
}

// Balance reads the relayer account balance
func (r *Relayer) Balance(ctx context.Context) (*big.Int, error) {
	return r.chain.GetBalance(ctx, r.address)
}

// Send signs call with the next relayer nonce and submits it
func (r *Relayer) Send(ctx context.Context, call Call) (common.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	nonce, err := r.chain.PendingNonce(ctx, r.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get relayer nonce: %w", err)
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	to := call.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: call.GasPrice,
		Gas:      call.GasLimit,
		To:       &to,
		Value:    value,
		Data:     call.Data,
	})

	signed, err := types.SignTx(tx, r.signer, r.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign relayer transaction: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode relayer transaction: %w", err)
	}

	txID, err := r.chain.SubmitSignedCall(ctx, raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to submit relayer transaction: %w", err)
	}

	log.Info().
		Str("tx_id", txID.Hex()).
		Uint64("relayer_nonce", nonce).
		Str("to", to.Hex()).
		Str("gas_price", call.GasPrice.String()).
		Uint64("gas_limit", call.GasLimit).
		Msg("relayer transaction submitted")
	return txID, nil
}

// LoadRelayerKey unseals the relayer key from store under the operator passphrase
func LoadRelayerKey(ctx context.Context, codec *crypto.Codec, store vault.DurableStore, passphrase []byte) (*crypto.WalletKeyMaterial, error) {
	keys := vault.New(codec, store, nil)
	material, err := keys.Unseal(ctx, RelayerKeyID, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal relayer key: %w", err)
	}
	keys.ClearSession(RelayerKeyID)
	return material, nil
}

// CreateRelayerKey generates a relayer key and seals it into store.
// An existing relayer key is never overwritten.
func CreateRelayerKey(ctx context.Context, codec *crypto.Codec, store vault.DurableStore, passphrase []byte) (common.Address, error) {
	keys := vault.New(codec, store, nil)
	exists, err := keys.HasSealed(ctx, RelayerKeyID)
	if err != nil {
		return common.Address{}, err
	}
	if exists {
		return common.Address{}, ErrRelayerKeyExists
	}

	material, err := codec.Generate()
	if err != nil {
		return common.Address{}, err
	}
	defer material.Wipe()

	if err := keys.Seal(ctx, RelayerKeyID, material, passphrase); err != nil {
		return common.Address{}, err
	}
	return material.Address, nil
}

package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/AlexZinkM/relay-wallet/internal/model"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cosmos/go-bip39"
	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	entropyBits = 256

	// BIP-44 path m/44'/60'/0'/0/0
	bip44Purpose  = 44
	coinTypeEther = 60
)

// WalletKeyMaterial is the unsealed key material of one wallet.
// PrivateKey must be wiped by whoever drops the last reference.
type WalletKeyMaterial struct {
	Mnemonic   string
	PrivateKey []byte // 32 bytes
	PublicKey  []byte // 65 bytes uncompressed
	Address    ethcommon.Address
	Words      []string
	CreatedAt  time.Time
}

// ECDSA returns the signing key
func (m *WalletKeyMaterial) ECDSA() (*ecdsa.PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(m.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// Wipe zeroes the private key bytes
func (m *WalletKeyMaterial) Wipe() {
	if m == nil {
		return
	}
	clear(m.PrivateKey)
	m.PrivateKey = nil
	m.Mnemonic = ""
	m.Words = nil
}

// Codec generates and recovers wallet key material and seals it under a PIN
type Codec struct {
	entropy io.Reader
	kdf     KDFParams
}

// Option configures a Codec
type Option func(*Codec)

// WithEntropySource replaces crypto/rand.Reader as the entropy source
func WithEntropySource(r io.Reader) Option {
	return func(c *Codec) {
		c.entropy = r
	}
}

// WithKDFParams overrides the PIN key-derivation work factor
func WithKDFParams(p KDFParams) Option {
	return func(c *Codec) {
		c.kdf = p
	}
}

// NewCodec creates a Codec with secure defaults
func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		entropy: rand.Reader,
		kdf:     DefaultKDFParams(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate creates fresh wallet key material from 256 bits of entropy
func (c *Codec) Generate() (*WalletKeyMaterial, error) {
	entropy := make([]byte, entropyBits/8)
	if _, err := io.ReadFull(c.entropy, entropy); err != nil {
		return nil, &EntropyError{Err: err}
	}
	defer clear(entropy)

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("failed to create mnemonic: %w", err)
	}

	return c.Recover(mnemonic)
}

// Recover deterministically re-derives key material from a mnemonic
func (c *Codec) Recover(mnemonic string) (*WalletKeyMaterial, error) {
	words := strings.Fields(strings.ToLower(mnemonic))
	normalized := strings.Join(words, " ")

	seed, err := bip39.NewSeedWithErrorChecking(normalized, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	defer clear(seed)

	privateKey, err := derivePrivateKey(seed)
	if err != nil {
		return nil, err
	}

	return materialFromKey(normalized, privateKey, time.Now().UTC())
}

// derivePrivateKey walks m/44'/60'/0'/0/0 from the BIP-39 seed
func derivePrivateKey(seed []byte) ([]byte, error) {
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}

	path := []uint32{
		hdkeychain.HardenedKeyStart + bip44Purpose,
		hdkeychain.HardenedKeyStart + coinTypeEther,
		hdkeychain.HardenedKeyStart + 0, // account
		0,                               // external chain
		0,                               // address index
	}

	key := master
	for _, index := range path {
		key, err = key.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child %d: %w", index, err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get private key: %w", err)
	}
	return ethcrypto.FromECDSA(priv.ToECDSA()), nil
}

// materialFromKey fills in the public parts from a raw private key
func materialFromKey(mnemonic string, privateKey []byte, createdAt time.Time) (*WalletKeyMaterial, error) {
	key, err := ethcrypto.ToECDSA(privateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	var words []string
	if mnemonic != "" {
		words = strings.Fields(mnemonic)
	}

	return &WalletKeyMaterial{
		Mnemonic:   mnemonic,
		PrivateKey: privateKey,
		PublicKey:  ethcrypto.FromECDSAPub(&key.PublicKey),
		Address:    ethcrypto.PubkeyToAddress(key.PublicKey),
		Words:      words,
		CreatedAt:  createdAt,
	}, nil
}

// MaterialFromPrivateKey wraps a raw key that has no mnemonic (the relayer key)
func MaterialFromPrivateKey(privateKey []byte) (*WalletKeyMaterial, error) {
	key := make([]byte, len(privateKey))
	copy(key, privateKey)
	return materialFromKey("", key, time.Now().UTC())
}

// EncodeBundle serializes key material for the session cache and the sealed vault.
// Caller must clear the returned bytes after use.
func EncodeBundle(m *WalletKeyMaterial) ([]byte, error) {
	bundle := model.KeyBundle{
		Mnemonic:   m.Mnemonic,
		PrivateKey: m.PrivateKey,
		CreatedAt:  m.CreatedAt.Format(time.RFC3339),
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key bundle: %w", err)
	}
	return data, nil
}

// DecodeBundle parses a serialized bundle and re-derives the public parts
func DecodeBundle(data []byte) (*WalletKeyMaterial, error) {
	var bundle model.KeyBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key bundle: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339, bundle.CreatedAt)
	if err != nil {
		createdAt = time.Time{}
	}

	return materialFromKey(bundle.Mnemonic, bundle.PrivateKey, createdAt)
}

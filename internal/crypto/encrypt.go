package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/AlexZinkM/relay-wallet/internal/model"

	"golang.org/x/crypto/scrypt"
)

const (
	saltLen  = 32
	nonceLen = 12
	keyLen   = 32
)

// KDFParams are the scrypt parameters used to turn a PIN into an AES-256 key
type KDFParams struct {
	N int
	R int
	P int
}

// DefaultKDFParams returns the production work factor.
//
// N=2^18 (~256MB RAM, 0.5-2s per derivation). A 6-digit PIN has a tiny keyspace, so the
// per-guess cost is the only thing standing between a stolen vault blob and the key.
func DefaultKDFParams() KDFParams {
	return KDFParams{N: 1 << 18, R: 8, P: 1}
}

// LightKDFParams returns a cheap work factor for tests
func LightKDFParams() KDFParams {
	return KDFParams{N: 1 << 12, R: 8, P: 1}
}

// Validate checks the parameters are usable by scrypt
func (p KDFParams) Validate() error {
	if p.N <= 1 || p.N&(p.N-1) != 0 {
		return errors.New("scrypt N must be a power of two greater than 1")
	}
	if p.R <= 0 || p.P <= 0 {
		return errors.New("scrypt r and p must be positive")
	}
	return nil
}

// SealedBlob is PIN-encrypted key material
type SealedBlob struct {
	Salt       []byte
	IV         []byte
	CipherText []byte
}

// ToEntry base64-encodes the blob for persistence
func (b *SealedBlob) ToEntry() model.VaultEntry {
	return model.VaultEntry{
		Salt:       base64.StdEncoding.EncodeToString(b.Salt),
		IV:         base64.StdEncoding.EncodeToString(b.IV),
		CipherText: base64.StdEncoding.EncodeToString(b.CipherText),
	}
}

// Seal encrypts key material under pin. associatedData (the wallet id) is authenticated
// but not encrypted, so a blob moved to another wallet id fails to unseal.
// pin must be []byte for security (caller should zero it after use)
func (c *Codec) Seal(material *WalletKeyMaterial, pin, associatedData []byte) (*SealedBlob, error) {
	if len(pin) == 0 {
		return nil, errors.New("pin cannot be empty")
	}

	// Generate salt and nonce
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(c.entropy, salt); err != nil {
		return nil, &EntropyError{Err: err}
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(c.entropy, nonce); err != nil {
		return nil, &EntropyError{Err: err}
	}

	aesGCM, err := c.newGCM(pin, salt)
	if err != nil {
		return nil, err
	}

	// Serialize key material
	plaintext, err := EncodeBundle(material)
	if err != nil {
		return nil, err
	}
	defer clear(plaintext) // wipe plaintext bytes from memory

	return &SealedBlob{
		Salt:       salt,
		IV:         nonce,
		CipherText: aesGCM.Seal(nil, nonce, plaintext, associatedData),
	}, nil
}

// newGCM derives the PIN key and builds the AEAD
func (c *Codec) newGCM(pin, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(pin, salt, c.kdf.N, c.kdf.R, c.kdf.P, keyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}

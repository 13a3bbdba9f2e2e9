package crypto

import (
	"encoding/base64"
	"fmt"

	"github.com/AlexZinkM/relay-wallet/internal/model"
)

// Unseal decrypts a sealed blob. Every failure past parameter derivation is reported as
// ErrVaultUnseal, whether the PIN was wrong or the blob was tampered with.
// pin must be []byte for security (caller should zero it after use)
func (c *Codec) Unseal(blob *SealedBlob, pin, associatedData []byte) (*WalletKeyMaterial, error) {
	if blob == nil || len(blob.Salt) != saltLen || len(blob.IV) != nonceLen {
		return nil, ErrVaultUnseal
	}

	aesGCM, err := c.newGCM(pin, blob.Salt)
	if err != nil {
		return nil, err
	}

	// Decrypt
	plaintext, err := aesGCM.Open(nil, blob.IV, blob.CipherText, associatedData)
	if err != nil {
		return nil, ErrVaultUnseal
	}
	defer clear(plaintext) // wipe decrypted bytes from memory

	material, err := DecodeBundle(plaintext)
	if err != nil {
		return nil, ErrVaultUnseal
	}
	return material, nil
}

// BlobFromEntry decodes a persisted vault entry
func BlobFromEntry(entry model.VaultEntry) (*SealedBlob, error) {
	salt, err := base64.StdEncoding.DecodeString(entry.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}

	iv, err := base64.StdEncoding.DecodeString(entry.IV)
	if err != nil {
		return nil, fmt.Errorf("failed to decode iv: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(entry.CipherText)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	return &SealedBlob{Salt: salt, IV: iv, CipherText: ciphertext}, nil
}

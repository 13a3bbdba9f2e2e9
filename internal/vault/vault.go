package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/AlexZinkM/relay-wallet/internal/crypto"

	"github.com/rs/zerolog/log"
)

// ErrVaultUnseal is returned for a wrong PIN or a corrupted entry, without saying which
var ErrVaultUnseal = crypto.ErrVaultUnseal

// Status is the outcome of resolving a wallet's signing key
type Status int

const (
	StatusNotFound Status = iota
	StatusResolved
	StatusPinRequired
)

func (s Status) String() string {
	switch s {
	case StatusResolved:
		return "resolved"
	case StatusPinRequired:
		return "pin_required"
	default:
		return "not_found"
	}
}

// Resolution is the result of Resolve. Material is set only for StatusResolved.
type Resolution struct {
	Status   Status
	Material *crypto.WalletKeyMaterial
}

// KeyVault holds wallet keys in two tiers: a session cache in memory and PIN-sealed
// entries in a DurableStore
type KeyVault struct {
	codec   *crypto.Codec
	store   DurableStore
	session *sessionCache
}

// New creates a KeyVault
func New(codec *crypto.Codec, store DurableStore, session *SessionContext) *KeyVault {
	return &KeyVault{
		codec:   codec,
		store:   store,
		session: newSessionCache(session),
	}
}

// CacheForSession stores material in the session tier, replacing any previous entry
func (v *KeyVault) CacheForSession(walletID string, material *crypto.WalletKeyMaterial) error {
	if err := v.session.put(walletID, material); err != nil {
		return fmt.Errorf("failed to cache session: %w", err)
	}
	log.Debug().Str("wallet_id", walletID).Msg("key cached for session")
	return nil
}

// ReadSession returns the cached material if it has not expired
func (v *KeyVault) ReadSession(walletID string) (*crypto.WalletKeyMaterial, bool) {
	return v.session.get(walletID)
}

// Seal encrypts material under pin and writes it to the durable store.
// pin must be []byte for security (caller should zero it after use)
func (v *KeyVault) Seal(ctx context.Context, walletID string, material *crypto.WalletKeyMaterial, pin []byte) error {
	blob, err := v.codec.Seal(material, pin, []byte(walletID))
	if err != nil {
		return err
	}
	if err := v.store.Put(ctx, walletID, blob.ToEntry()); err != nil {
		return fmt.Errorf("failed to store vault entry: %w", err)
	}
	log.Info().Str("wallet_id", walletID).Msg("key sealed")
	return nil
}

// Unseal decrypts the durable entry and caches the result for the session
func (v *KeyVault) Unseal(ctx context.Context, walletID string, pin []byte) (*crypto.WalletKeyMaterial, error) {
	material, err := v.unseal(ctx, walletID, pin)
	if err != nil {
		return nil, err
	}
	if err := v.CacheForSession(walletID, material); err != nil {
		material.Wipe()
		return nil, err
	}
	log.Info().Str("wallet_id", walletID).Msg("key unsealed")
	return material, nil
}

func (v *KeyVault) unseal(ctx context.Context, walletID string, pin []byte) (*crypto.WalletKeyMaterial, error) {
	entry, err := v.store.Get(ctx, walletID)
	if err != nil {
		if errors.Is(err, ErrNoVaultEntry) {
			return nil, ErrNoVaultEntry
		}
		return nil, fmt.Errorf("failed to read vault entry: %w", err)
	}

	blob, err := crypto.BlobFromEntry(entry)
	if err != nil {
		return nil, ErrVaultUnseal
	}

	material, err := v.codec.Unseal(blob, pin, []byte(walletID))
	if err != nil {
		log.Warn().Str("wallet_id", walletID).Msg("unseal failed")
		return nil, err
	}
	return material, nil
}

// HasSealed reports whether a durable entry exists
func (v *KeyVault) HasSealed(ctx context.Context, walletID string) (bool, error) {
	if _, err := v.store.Get(ctx, walletID); err != nil {
		if errors.Is(err, ErrNoVaultEntry) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read vault entry: %w", err)
	}
	return true, nil
}

// RequiresPin is true when there is no live session entry but a sealed one exists
func (v *KeyVault) RequiresPin(ctx context.Context, walletID string) (bool, error) {
	if material, ok := v.session.get(walletID); ok {
		material.Wipe()
		return false, nil
	}
	return v.HasSealed(ctx, walletID)
}

// Resolve returns the signing key from the session tier, or tells the caller a PIN is needed
func (v *KeyVault) Resolve(ctx context.Context, walletID string) (Resolution, error) {
	if material, ok := v.session.get(walletID); ok {
		return Resolution{Status: StatusResolved, Material: material}, nil
	}

	sealed, err := v.HasSealed(ctx, walletID)
	if err != nil {
		return Resolution{}, err
	}
	if sealed {
		return Resolution{Status: StatusPinRequired}, nil
	}
	return Resolution{Status: StatusNotFound}, nil
}

// ChangePin re-seals the durable entry under newPin with a fresh salt and IV
func (v *KeyVault) ChangePin(ctx context.Context, walletID string, oldPin, newPin []byte) error {
	material, err := v.unseal(ctx, walletID, oldPin)
	if err != nil {
		return err
	}
	defer material.Wipe()

	if err := v.Seal(ctx, walletID, material, newPin); err != nil {
		return err
	}
	log.Info().Str("wallet_id", walletID).Msg("pin changed")
	return nil
}

// ClearSession drops the session entry only
func (v *KeyVault) ClearSession(walletID string) {
	v.session.delete(walletID)
}

// Clear drops both tiers for one wallet
func (v *KeyVault) Clear(ctx context.Context, walletID string) error {
	v.session.delete(walletID)
	if err := v.store.Delete(ctx, walletID); err != nil {
		return fmt.Errorf("failed to delete vault entry: %w", err)
	}
	log.Info().Str("wallet_id", walletID).Msg("wallet keys cleared")
	return nil
}

// ClearAll drops every wallet from both tiers
func (v *KeyVault) ClearAll(ctx context.Context) error {
	v.session.deleteAll()
	if err := v.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to clear vault: %w", err)
	}
	log.Info().Msg("all wallet keys cleared")
	return nil
}

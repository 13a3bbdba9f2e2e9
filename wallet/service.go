// Package wallet implements the wallet operations behind the API and CLI:
// create and recover wallets, lock and unlock keys, read balances and send.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/AlexZinkM/relay-wallet/internal/client"
	"github.com/AlexZinkM/relay-wallet/internal/crypto"
	"github.com/AlexZinkM/relay-wallet/internal/directory"
	"github.com/AlexZinkM/relay-wallet/internal/funding"
	"github.com/AlexZinkM/relay-wallet/internal/model"
	"github.com/AlexZinkM/relay-wallet/internal/orchestrator"
	"github.com/AlexZinkM/relay-wallet/internal/vault"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

const minPinLength = 4

var walletIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Directory stores wallet records
type Directory interface {
	Register(ctx context.Context, record model.WalletRecord) error
	Lookup(ctx context.Context, id string) (*model.WalletRecord, error)
	AddressExists(ctx context.Context, walletAddress string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// PriceSource quotes the native coin in fiat
type PriceSource interface {
	GetRate(ctx context.Context) (string, error)
	Currency() string
}

// Deps are the collaborators of a Service
type Deps struct {
	Codec        *crypto.Codec
	Keys         *vault.KeyVault
	Directory    Directory
	Contract     *client.WalletContract
	Chain        client.Chain
	Agent        *funding.Agent
	Orchestrator *orchestrator.Orchestrator
	// Prices is optional; balances omit fiat values without it
	Prices PriceSource
}

// Service runs wallet operations
type Service struct {
	codec    *crypto.Codec
	keys     *vault.KeyVault
	dir      Directory
	contract *client.WalletContract
	chain    client.Chain
	agent    *funding.Agent
	orch     *orchestrator.Orchestrator
	prices   PriceSource
}

// NewService creates a Service
func NewService(deps Deps) *Service {
	return &Service{
		codec:    deps.Codec,
		keys:     deps.Keys,
		dir:      deps.Directory,
		contract: deps.Contract,
		chain:    deps.Chain,
		agent:    deps.Agent,
		orch:     deps.Orchestrator,
		prices:   deps.Prices,
	}
}

// Generate creates a wallet, seals its key under pin and unlocks it for the session.
// The response carries the mnemonic; it is never returned again.
// pin must be []byte for security (caller should zero it after use)
func (s *Service) Generate(ctx context.Context, walletID string, pin []byte) (*model.GenerateResponse, error) {
	if err := validateCredentials(walletID, pin); err != nil {
		return nil, err
	}

	material, err := s.codec.Generate()
	if err != nil {
		return nil, err
	}
	defer material.Wipe()

	resp, err := s.register(ctx, walletID, material, pin)
	if err != nil {
		return nil, err
	}
	resp.Message = "Wallet generated successfully"
	resp.Mnemonic = material.Mnemonic
	return resp, nil
}

// Recover restores a wallet from its mnemonic. Recovering onto the id the wallet was
// registered under re-seals the key for this device.
func (s *Service) Recover(ctx context.Context, walletID, mnemonic string, pin []byte) (*model.GenerateResponse, error) {
	if err := validateCredentials(walletID, pin); err != nil {
		return nil, err
	}

	material, err := s.codec.Recover(mnemonic)
	if err != nil {
		return nil, err
	}
	defer material.Wipe()

	record, err := s.dir.Lookup(ctx, walletID)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		resp, err := s.register(ctx, walletID, material, pin)
		if err != nil {
			return nil, err
		}
		resp.Message = "Wallet recovered successfully"
		return resp, nil
	case err != nil:
		return nil, fmt.Errorf("failed to look up wallet: %w", err)
	}

	if !strings.EqualFold(record.OwnerAddress, material.Address.Hex()) {
		return nil, &WalletExistsError{Message: "wallet id is registered to a different key"}
	}
	if err := s.storeKey(ctx, walletID, material, pin); err != nil {
		return nil, err
	}

	log.Info().Str("wallet_id", walletID).Msg("wallet restored on device")
	return s.response(record, "Wallet recovered successfully")
}

// register writes the directory record and stores the key
func (s *Service) register(ctx context.Context, walletID string, material *crypto.WalletKeyMaterial, pin []byte) (*model.GenerateResponse, error) {
	walletAddress := s.contract.AddressFor(material.Address)

	exists, err := s.dir.AddressExists(ctx, walletAddress.Hex())
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &WalletExistsError{Message: "wallet address is already registered"}
	}

	record := model.WalletRecord{
		ID:            walletID,
		OwnerAddress:  material.Address.Hex(),
		WalletAddress: walletAddress.Hex(),
		MnemonicHash:  crypto.Hash([]byte(material.Mnemonic)).Hex(),
	}
	if err := s.dir.Register(ctx, record); err != nil {
		if errors.Is(err, directory.ErrWalletExists) {
			return nil, &WalletExistsError{Message: "wallet already exists"}
		}
		return nil, err
	}

	if err := s.storeKey(ctx, walletID, material, pin); err != nil {
		if delErr := s.dir.Delete(ctx, walletID); delErr != nil {
			log.Error().Err(delErr).Str("wallet_id", walletID).Msg("failed to roll back wallet record")
		}
		return nil, err
	}

	log.Info().
		Str("wallet_id", walletID).
		Str("owner", record.OwnerAddress).
		Str("wallet", record.WalletAddress).
		Msg("wallet registered")
	return s.response(&record, "")
}

func (s *Service) storeKey(ctx context.Context, walletID string, material *crypto.WalletKeyMaterial, pin []byte) error {
	if err := s.keys.Seal(ctx, walletID, material, pin); err != nil {
		return fmt.Errorf("failed to seal key: %w", err)
	}
	return s.keys.CacheForSession(walletID, material)
}

func (s *Service) response(record *model.WalletRecord, message string) (*model.GenerateResponse, error) {
	walletAddress := ethcommon.HexToAddress(record.WalletAddress).Hex()
	qrCode, err := generateQRCode(walletAddress)
	if err != nil {
		return nil, err
	}
	return &model.GenerateResponse{
		Success:       true,
		Message:       message,
		WalletID:      record.ID,
		OwnerAddress:  ethcommon.HexToAddress(record.OwnerAddress).Hex(),
		WalletAddress: walletAddress,
		QR:            qrCode,
	}, nil
}

// Unlock unseals the wallet key into the session cache
func (s *Service) Unlock(ctx context.Context, walletID string, pin []byte) error {
	material, err := s.keys.Unseal(ctx, walletID, pin)
	if err != nil {
		if errors.Is(err, vault.ErrNoVaultEntry) {
			return ErrWalletNotFound
		}
		return err
	}
	material.Wipe()
	return nil
}

// Lock drops the wallet key from the session cache
func (s *Service) Lock(walletID string) {
	s.keys.ClearSession(walletID)
	log.Info().Str("wallet_id", walletID).Msg("wallet locked")
}

// Forget erases the wallet key from this device. The directory record stays so the
// wallet can be recovered from its mnemonic.
func (s *Service) Forget(ctx context.Context, walletID string) error {
	return s.keys.Clear(ctx, walletID)
}

// ChangePin re-seals the wallet key under newPin
func (s *Service) ChangePin(ctx context.Context, walletID string, oldPin, newPin []byte) error {
	if len(newPin) < minPinLength {
		return ErrInvalidPin
	}
	err := s.keys.ChangePin(ctx, walletID, oldPin, newPin)
	if errors.Is(err, vault.ErrNoVaultEntry) {
		return ErrWalletNotFound
	}
	return err
}

// Status reports whether sending needs the PIN first
func (s *Service) Status(ctx context.Context, walletID string) (*model.StatusResponse, error) {
	if _, err := s.lookup(ctx, walletID); err != nil {
		return nil, err
	}
	requiresPin, err := s.keys.RequiresPin(ctx, walletID)
	if err != nil {
		return nil, err
	}
	msg := "Wallet unlocked"
	if requiresPin {
		msg = "PIN required"
	}
	return &model.StatusResponse{Success: true, Message: msg, RequiresPin: requiresPin}, nil
}

func (s *Service) lookup(ctx context.Context, walletID string) (*model.WalletRecord, error) {
	record, err := s.dir.Lookup(ctx, walletID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to look up wallet: %w", err)
	}
	return record, nil
}

func validateCredentials(walletID string, pin []byte) error {
	if !walletIDPattern.MatchString(walletID) {
		return ErrInvalidWalletID
	}
	if len(pin) < minPinLength {
		return ErrInvalidPin
	}
	return nil
}

package model

import "time"

// VaultFile represents the durable vault file structure
type VaultFile struct {
	Network string                `json:"network"`
	Entries map[string]VaultEntry `json:"entries"`
}

// VaultEntry is one PIN-sealed key bundle, keyed by wallet id
type VaultEntry struct {
	Salt       string `json:"salt"`
	IV         string `json:"iv"`
	CipherText string `json:"cipherText"`
}

// KeyBundle represents serialized wallet key material (sealed in the vault, encoded in the session cache)
type KeyBundle struct {
	Mnemonic   string `json:"mnemonic"`
	PrivateKey []byte `json:"privateKey"` // 32 bytes secp256k1 scalar (stored as base64 in JSON)
	CreatedAt  string `json:"createdAt"`
}

// WalletRecord is a wallet directory row
type WalletRecord struct {
	ID            string    `json:"id"`
	OwnerAddress  string    `json:"ownerAddress"`  // EOA derived from the mnemonic
	WalletAddress string    `json:"walletAddress"` // smart-contract wallet holding the funds
	MnemonicHash  string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
}

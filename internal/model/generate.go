package model

// GenerateRequest represents request for POST /wallets/generate
type GenerateRequest struct {
	WalletID string `json:"walletId"`
	Pin      string `json:"pin"`
}

// RecoverRequest represents request for POST /wallets/recover
type RecoverRequest struct {
	WalletID string `json:"walletId"`
	Mnemonic string `json:"mnemonic"`
	Pin      string `json:"pin"`
}

// GenerateResponse represents response for POST /wallets/generate and /wallets/recover
type GenerateResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	WalletID      string `json:"walletId"`
	OwnerAddress  string `json:"ownerAddress"`
	WalletAddress string `json:"walletAddress"`
	Mnemonic      string `json:"mnemonic,omitempty"` // only on generate, shown once
	QR            string `json:"QR"`                 // base64 PNG of WalletAddress
}

// UnlockRequest represents request for POST /wallets/{id}/unlock
type UnlockRequest struct {
	Pin string `json:"pin"`
}

// ChangePinRequest represents request for POST /wallets/{id}/pin
type ChangePinRequest struct {
	OldPin string `json:"oldPin"`
	NewPin string `json:"newPin"`
}

// StatusResponse is a generic success response
type StatusResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	RequiresPin bool   `json:"requiresPin"`
}

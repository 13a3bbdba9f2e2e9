package model

// BalanceResponse represents response for GET /wallets/{id}/balance
type BalanceResponse struct {
	WalletID      string `json:"walletId"`
	WalletAddress string `json:"walletAddress"`
	Native        string `json:"native"`
	Rate          string `json:"rate"`
	Fiat          string `json:"fiat"`
	FiatCurrency  string `json:"fiatCurrency"`
}

// RelayerResponse represents response for GET /relayer
type RelayerResponse struct {
	Address   string `json:"address"`
	Balance   string `json:"balance"`
	Reserve   string `json:"reserve"`
	Available string `json:"available"`
	QR        string `json:"QR"` // base64 PNG top-up address
}

package model

// ErrorResponse is the consistent JSON structure for all API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`

	// Set for RELAYER_UNDERFUNDED so the caller can show a manual top-up address.
	Required     string `json:"required,omitempty"`
	Available    string `json:"available,omitempty"`
	TopUpAddress string `json:"topUpAddress,omitempty"`
	TopUpQR      string `json:"topUpQR,omitempty"`

	// Set when a transaction was submitted before the failure
	TxID string `json:"txId,omitempty"`

	RequestID string `json:"requestId,omitempty"`
}

// Error codes returned in ErrorResponse.Code
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeWalletExists       = "WALLET_EXISTS"
	CodeWalletNotFound     = "WALLET_NOT_FOUND"
	CodeInvalidMnemonic    = "INVALID_MNEMONIC"
	CodeVaultUnseal        = "VAULT_UNSEAL_FAILED"
	CodePinRequired        = "PIN_REQUIRED"
	CodeInsufficientFunds  = "INSUFFICIENT_BALANCE"
	CodeRelayerUnderfunded = "RELAYER_UNDERFUNDED"
	CodeSequenceNumber     = "SEQUENCE_NUMBER"
	CodeRelayerNonce       = "RELAYER_NONCE"
	CodeFeeUnderpriced     = "FEE_UNDERPRICED"
	CodeReceiptTimeout     = "RECEIPT_TIMEOUT"
	CodeRelayReverted      = "RELAY_REVERTED"
	CodeEntropy            = "ENTROPY_UNAVAILABLE"
	CodeInternal           = "INTERNAL"
)

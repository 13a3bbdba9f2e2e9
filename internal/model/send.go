package model

// SendRequest represents request for POST /wallets/{id}/send
type SendRequest struct {
	ToAddress string `json:"toAddress"`
	Amount    string `json:"amount"`         // native currency decimal string
	Data      string `json:"data,omitempty"` // optional 0x-prefixed call data
}

// SendResponse represents response for POST /wallets/{id}/send
type SendResponse struct {
	Status    string `json:"status"`
	TxID      string `json:"txId,omitempty"`
	Sponsored bool   `json:"sponsored"`
	FeeCost   string `json:"feeCost,omitempty"`
	FundingTx string `json:"fundingTxId,omitempty"`
	Nonce     string `json:"nonce,omitempty"`
}

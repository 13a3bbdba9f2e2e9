package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AlexZinkM/relay-wallet/internal/common"
	"github.com/AlexZinkM/relay-wallet/internal/crypto"
	"github.com/AlexZinkM/relay-wallet/internal/funding"
	"github.com/AlexZinkM/relay-wallet/internal/model"
	"github.com/AlexZinkM/relay-wallet/internal/orchestrator"
	"github.com/AlexZinkM/relay-wallet/wallet"

	"github.com/rs/zerolog/log"
)

// RequestIDHeader carries the request id set by the router
const RequestIDHeader = "X-Request-ID"

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

// WriteError writes an ErrorResponse with an explicit status and code
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, model.ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: r.Header.Get(RequestIDHeader),
	})
}

// writeServiceError maps a service error to its status and machine code
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	resp := model.ErrorResponse{
		Error:     err.Error(),
		RequestID: r.Header.Get(RequestIDHeader),
	}
	status := http.StatusInternalServerError

	var (
		underfunded *funding.RelayerUnderfundedError
		timeout     *orchestrator.ReceiptTimeoutError
		reverted    *orchestrator.RelayRevertedError
	)
	switch {
	case errors.Is(err, wallet.ErrInvalidWalletID),
		errors.Is(err, wallet.ErrInvalidPin),
		errors.Is(err, wallet.ErrInvalidAddress),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, orchestrator.ErrInvalidIntent):
		status, resp.Code = http.StatusBadRequest, model.CodeBadRequest
	case errors.Is(err, crypto.ErrInvalidMnemonic):
		status, resp.Code = http.StatusBadRequest, model.CodeInvalidMnemonic
	case errors.Is(err, crypto.ErrVaultUnseal):
		status, resp.Code = http.StatusUnauthorized, model.CodeVaultUnseal
	case errors.Is(err, orchestrator.ErrOwnerMismatch):
		status, resp.Code = http.StatusForbidden, model.CodeUnauthorized
	case errors.Is(err, wallet.ErrWalletNotFound), errors.Is(err, orchestrator.ErrWalletNotFound):
		status, resp.Code = http.StatusNotFound, model.CodeWalletNotFound
	case wallet.IsWalletExistsError(err):
		status, resp.Code = http.StatusConflict, model.CodeWalletExists
	case orchestrator.IsInsufficientBalanceError(err):
		status, resp.Code = http.StatusPaymentRequired, model.CodeInsufficientFunds
	case errors.As(err, &underfunded):
		status, resp.Code = http.StatusServiceUnavailable, model.CodeRelayerUnderfunded
		resp.Required = common.WeiToNative(underfunded.Required)
		resp.Available = common.WeiToNative(underfunded.Available)
		resp.TopUpAddress = underfunded.TopUpAddress.Hex()
		if qr, qrErr := wallet.TopUpQR(resp.TopUpAddress); qrErr == nil {
			resp.TopUpQR = qr
		}
	case errors.As(err, &timeout):
		status, resp.Code = http.StatusGatewayTimeout, model.CodeReceiptTimeout
		resp.TxID = timeout.TxID.Hex()
	case errors.As(err, &reverted):
		status, resp.Code = http.StatusBadGateway, model.CodeRelayReverted
		resp.TxID = reverted.TxID.Hex()
	case orchestrator.IsSequenceNumberError(err):
		status, resp.Code = http.StatusConflict, model.CodeSequenceNumber
	case orchestrator.IsRelayerNonceError(err):
		status, resp.Code = http.StatusServiceUnavailable, model.CodeRelayerNonce
	case orchestrator.IsFeeUnderpricedError(err):
		status, resp.Code = http.StatusServiceUnavailable, model.CodeFeeUnderpriced
	case crypto.IsEntropyError(err):
		status, resp.Code = http.StatusServiceUnavailable, model.CodeEntropy
	default:
		resp.Code = model.CodeInternal
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", resp.RequestID).Str("code", resp.Code).Msg("request failed")
	}
	writeJSON(w, status, resp)
}

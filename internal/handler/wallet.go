package handler

import (
	"encoding/json"
	"net/http"

	"github.com/AlexZinkM/relay-wallet/internal/auth"
	"github.com/AlexZinkM/relay-wallet/internal/model"
	"github.com/AlexZinkM/relay-wallet/internal/orchestrator"
	"github.com/AlexZinkM/relay-wallet/wallet"
)

// WalletHandler serves the wallet API
type WalletHandler struct {
	svc *wallet.Service
}

// NewWalletHandler creates a new WalletHandler
func NewWalletHandler(svc *wallet.Service) *WalletHandler {
	return &WalletHandler{svc: svc}
}

// decode reads a JSON body, writing a 400 on failure
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteError(w, r, http.StatusBadRequest, model.CodeBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// authorize writes a 401 when the token is for another wallet
func authorize(w http.ResponseWriter, r *http.Request, id string) bool {
	if !auth.Allows(r.Context(), id) {
		WriteError(w, r, http.StatusUnauthorized, model.CodeUnauthorized, "token does not grant access to this wallet")
		return false
	}
	return true
}

// Generate handles POST /wallets/generate
// @Summary      Generate new wallet
// @Description  Creates a wallet, seals its key under the PIN and unlocks it. The mnemonic is returned once.
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        request  body      model.GenerateRequest  true  "Wallet id and PIN"
// @Success      200      {object}  model.GenerateResponse
// @Failure      400      {object}  model.ErrorResponse
// @Failure      409      {object}  model.ErrorResponse
// @Security     BearerAuth
// @Router       /wallets/generate [post]
func (h *WalletHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateRequest
	if !decode(w, r, &req) {
		return
	}
	if !authorize(w, r, req.WalletID) {
		return
	}

	pin := []byte(req.Pin)
	defer clear(pin) // Always clear PIN from memory

	resp, err := h.svc.Generate(r.Context(), req.WalletID, pin)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Recover handles POST /wallets/recover
// @Summary      Recover wallet
// @Description  Restores a wallet from its mnemonic and seals the key under the PIN
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        request  body      model.RecoverRequest  true  "Wallet id, mnemonic and PIN"
// @Success      200      {object}  model.GenerateResponse
// @Failure      400      {object}  model.ErrorResponse
// @Failure      409      {object}  model.ErrorResponse
// @Security     BearerAuth
// @Router       /wallets/recover [post]
func (h *WalletHandler) Recover(w http.ResponseWriter, r *http.Request) {
	var req model.RecoverRequest
	if !decode(w, r, &req) {
		return
	}
	if !authorize(w, r, req.WalletID) {
		return
	}

	pin := []byte(req.Pin)
	defer clear(pin)

	resp, err := h.svc.Recover(r.Context(), req.WalletID, req.Mnemonic, pin)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Unlock handles POST /wallets/{id}/unlock
// @Summary      Unlock wallet
// @Description  Unseals the wallet key with the PIN and caches it for the session
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        id       path      string              true  "Wallet id"
// @Param        request  body      model.UnlockRequest  true  "PIN"
// @Success      200      {object}  model.StatusResponse
// @Failure      401      {object}  model.ErrorResponse
// @Failure      404      {object}  model.ErrorResponse
// @Security     BearerAuth
// @Router       /wallets/{id}/unlock [post]
func (h *WalletHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !authorize(w, r, id) {
		return
	}
	var req model.UnlockRequest
	if !decode(w, r, &req) {
		return
	}

	pin := []byte(req.Pin)
	defer clear(pin)

	if err := h.svc.Unlock(r.Context(), id, pin); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.StatusResponse{Success: true, Message: "Wallet unlocked"})
}

// Lock handles POST /wallets/{id}/lock
// @Summary      Lock wallet
// @Description  Drops the cached key; the next send needs the PIN
// @Tags         wallets
// @Produce      json
// @Param        id   path      string  true  "Wallet id"
// @Success      200  {object}  model.StatusResponse
// @Security     BearerAuth
// @Router       /wallets/{id}/lock [post]
func (h *WalletHandler) Lock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !authorize(w, r, id) {
		return
	}
	h.svc.Lock(id)
	writeJSON(w, http.StatusOK, model.StatusResponse{Success: true, Message: "Wallet locked", RequiresPin: true})
}

// ChangePin handles POST /wallets/{id}/pin
// @Summary      Change PIN
// @Description  Re-seals the wallet key under a new PIN
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        id       path      string                  true  "Wallet id"
// @Param        request  body      model.ChangePinRequest  true  "Old and new PIN"
// @Success      200      {object}  model.StatusResponse
// @Failure      401      {object}  model.ErrorResponse
// @Security     BearerAuth
// @Router       /wallets/{id}/pin [post]
func (h *WalletHandler) ChangePin(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !authorize(w, r, id) {
		return
	}
	var req model.ChangePinRequest
	if !decode(w, r, &req) {
		return
	}

	oldPin, newPin := []byte(req.OldPin), []byte(req.NewPin)
	defer clear(oldPin)
	defer clear(newPin)

	if err := h.svc.ChangePin(r.Context(), id, oldPin, newPin); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.StatusResponse{Success: true, Message: "PIN changed"})
}

// Forget handles DELETE /wallets/{id}/device
// @Summary      Forget wallet on this device
// @Description  Erases the sealed and cached key. The wallet can be recovered from its mnemonic.
// @Tags         wallets
// @Produce      json
// @Param        id   path      string  true  "Wallet id"
// @Success      200  {object}  model.StatusResponse
// @Security     BearerAuth
// @Router       /wallets/{id}/device [delete]
func (h *WalletHandler) Forget(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !authorize(w, r, id) {
		return
	}
	if err := h.svc.Forget(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.StatusResponse{Success: true, Message: "Wallet removed from device"})
}

// Status handles GET /wallets/{id}/status
// @Summary      Wallet lock status
// @Description  Reports whether sending requires the PIN
// @Tags         wallets
// @Produce      json
// @Param        id   path      string  true  "Wallet id"
// @Success      200  {object}  model.StatusResponse
// @Failure      404  {object}  model.ErrorResponse
// @Security     BearerAuth
// @Router       /wallets/{id}/status [get]
func (h *WalletHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !authorize(w, r, id) {
		return
	}
	resp, err := h.svc.Status(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetBalance handles GET /wallets/{id}/balance
// @Summary      Get wallet balance
// @Description  Gets the native balance of the smart-contract wallet with its fiat value
// @Tags         wallets
// @Produce      json
// @Param        id   path      string  true  "Wallet id"
// @Success      200  {object}  model.BalanceResponse
// @Failure      404  {object}  model.ErrorResponse
// @Security     BearerAuth
// @Router       /wallets/{id}/balance [get]
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !authorize(w, r, id) {
		return
	}
	resp, err := h.svc.Balance(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /wallets/{id}/send
// @Summary      Send native currency
// @Description  Signs a transfer with the wallet key and relays it. Fees above the sponsor threshold are funded by the relayer.
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        id       path      string             true  "Wallet id"
// @Param        request  body      model.SendRequest  true  "Transfer"
// @Success      200      {object}  model.SendResponse
// @Failure      402      {object}  model.ErrorResponse
// @Failure      428      {object}  model.ErrorResponse
// @Failure      503      {object}  model.ErrorResponse
// @Failure      504      {object}  model.ErrorResponse
// @Security     BearerAuth
// @Router       /wallets/{id}/send [post]
func (h *WalletHandler) Send(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !authorize(w, r, id) {
		return
	}
	var req model.SendRequest
	if !decode(w, r, &req) {
		return
	}

	resp, err := h.svc.Send(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if resp.Status == string(orchestrator.StatusPinRequired) {
		WriteError(w, r, http.StatusPreconditionRequired, model.CodePinRequired, "wallet is locked: unlock with PIN and retry")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Relayer handles GET /relayer
// @Summary      Relayer status
// @Description  Gets the sponsoring relayer's balance and top-up address
// @Tags         relayer
// @Produce      json
// @Success      200  {object}  model.RelayerResponse
// @Router       /relayer [get]
func (h *WalletHandler) Relayer(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Relayer(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

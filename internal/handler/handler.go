package handler

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rakeshpathania/crypto-exchange-BE/internal/repository"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/scheduler"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/service"
	"github.com/rakeshpathania/crypto-exchange-BE/pkg/errors"
	"github.com/rakeshpathania/crypto-exchange-BE/pkg/logger"
)

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// statusForError maps domain error codes to HTTP statuses.
func statusForError(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrUnsupportedNetwork, errors.ErrInvalidState, errors.ErrPaymentFailed:
		return http.StatusBadRequest
	case errors.ErrUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func secureCompare(provided, expected string) bool {
	if provided == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// WebhookHandler receives signed push notifications from blockchain
// infrastructure providers.
type WebhookHandler struct {
	reconciler *service.DepositReconciler
	apiKey     string
}

func NewWebhookHandler(reconciler *service.DepositReconciler, apiKey string) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, apiKey: apiKey}
}

type webhookTransactionRequest struct {
	TxHash  string `json:"txHash"`
	Address string `json:"address"`
	Amount  string `json:"amount"`
	Network string `json:"network"`
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HandleTransaction authenticates the sender and hands the observation to
// the reconciler. Processing failures are reported in the body with a 200
// status so the sender does not thrash us with retries; only a bad API key
// gets a non-200.
func (h *WebhookHandler) HandleTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !secureCompare(r.Header.Get("x-api-key"), h.apiKey) {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	var req webhookTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, webhookResponse{
			Success: false,
			Message: "invalid request body",
		})
		return
	}

	if req.TxHash == "" || req.Address == "" {
		writeJSON(w, http.StatusOK, webhookResponse{
			Success: false,
			Message: "txHash and address are required",
		})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusOK, webhookResponse{
			Success: false,
			Message: "invalid amount: " + req.Amount,
		})
		return
	}

	outcome, err := h.reconciler.Reconcile(r.Context(), req.TxHash, req.Address, amount, req.Network)
	if err != nil {
		logger.WithError(err).WithField("tx_hash", req.TxHash).Error("webhook reconcile failed")
		writeJSON(w, http.StatusOK, webhookResponse{
			Success: false,
			Message: fmt.Sprintf("error processing transaction: %v", err),
		})
		return
	}

	success := true
	message := fmt.Sprintf("Transaction %s processed successfully", req.TxHash)
	switch outcome {
	case service.ReconcileDuplicate:
		message = fmt.Sprintf("Transaction %s already processed", req.TxHash)
	case service.ReconcileNotConfirmed:
		message = fmt.Sprintf("Transaction %s pending confirmation", req.TxHash)
	case service.ReconcileInvalid:
		success = false
		message = fmt.Sprintf("Transaction %s failed verification", req.TxHash)
	case service.ReconcileNoMatch:
		success = false
		message = fmt.Sprintf("No pending deposit for address %s", req.Address)
	}

	writeJSON(w, http.StatusOK, webhookResponse{Success: success, Message: message})
}

// DepositHandler fronts deposit initiation and listing.
type DepositHandler struct {
	depositSvc *service.DepositService
}

func NewDepositHandler(depositSvc *service.DepositService) *DepositHandler {
	return &DepositHandler{depositSvc: depositSvc}
}

type cryptoDepositRequest struct {
	UserID  string `json:"userId"`
	AssetID string `json:"assetId"`
	Network string `json:"network"`
}

func (h *DepositHandler) InitiateCrypto(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req cryptoDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.depositSvc.InitiateCryptoDeposit(r.Context(), req.UserID, req.AssetID, req.Network)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

type cardDepositRequest struct {
	UserID  string `json:"userId"`
	AssetID string `json:"assetId"`
	Amount  string `json:"amount"`
}

func (h *DepositHandler) InitiateCard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req cardDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be a positive decimal")
		return
	}

	result, err := h.depositSvc.InitiateCardDeposit(r.Context(), req.UserID, req.AssetID, amount)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

type confirmCardRequest struct {
	DepositID string `json:"depositId"`
}

func (h *DepositHandler) ConfirmCard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req confirmCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	deposit, err := h.depositSvc.ConfirmCardDeposit(r.Context(), req.DepositID)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, deposit)
}

func (h *DepositHandler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	deposits, err := h.depositSvc.GetUserDeposits(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list deposits: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": deposits,
		"total": len(deposits),
	})
}

// MonitoringHandler exposes admin control over the deposit monitor.
type MonitoringHandler struct {
	monitor  *scheduler.DepositMonitor
	adminKey string
}

func NewMonitoringHandler(monitor *scheduler.DepositMonitor, adminKey string) *MonitoringHandler {
	return &MonitoringHandler{monitor: monitor, adminKey: adminKey}
}

func (h *MonitoringHandler) authorized(r *http.Request) bool {
	return secureCompare(r.Header.Get("x-admin-key"), h.adminKey)
}

func (h *MonitoringHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid admin key")
		return
	}

	scanned := h.monitor.TriggerManualScan(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":          "Manual scan completed",
		"addressesScanned": scanned,
	})
}

func (h *MonitoringHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid admin key")
		return
	}

	writeJSON(w, http.StatusOK, h.monitor.Status())
}

// BalanceHandler serves balance reads.
type BalanceHandler struct {
	balances *repository.BalanceRepository
}

func NewBalanceHandler(balances *repository.BalanceRepository) *BalanceHandler {
	return &BalanceHandler{balances: balances}
}

func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 4 {
		writeError(w, http.StatusBadRequest, "invalid path format, expected /api/balance/{user_id}/{asset_id}")
		return
	}

	userID := pathParts[2]
	assetID := pathParts[3]

	balance, err := h.balances.GetByUserAsset(r.Context(), userID, assetID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get balance: "+err.Error())
		return
	}

	amount := decimal.Zero
	if balance != nil {
		amount = balance.Balance
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId":    userID,
		"assetId":   assetID,
		"balance":   amount,
		"updatedAt": time.Now().Format(time.RFC3339),
	})
}

func (h *BalanceHandler) ListBalances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	balances, err := h.balances.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list balances: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": balances,
		"total": len(balances),
	})
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

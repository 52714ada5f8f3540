// Package handlers provides HTTP handlers for broker account
// management and the auth handshake.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ravitejakamalapuram/copytradepro/internal/domain"
	"github.com/ravitejakamalapuram/copytradepro/internal/handshake"
	"github.com/ravitejakamalapuram/copytradepro/internal/modules/accounts"
	"github.com/ravitejakamalapuram/copytradepro/internal/taxonomy"
)

// AccountHandlers contains HTTP handlers for the accounts API
type AccountHandlers struct {
	service *accounts.Service
	log     zerolog.Logger
}

// NewAccountHandlers creates a new account handlers instance
func NewAccountHandlers(service *accounts.Service, log zerolog.Logger) *AccountHandlers {
	return &AccountHandlers{
		service: service,
		log:     log.With().Str("handler", "accounts").Logger(),
	}
}

type linkRequest struct {
	BrokerKind  string            `json:"brokerKind"`
	Credentials map[string]string `json:"credentials"`
}

type authCodeRequest struct {
	AuthCode string `json:"authCode"`
}

type errorResponse struct {
	Error            string   `json:"error"`
	Kind             string   `json:"kind,omitempty"`
	SuggestedActions []string `json:"suggestedActions,omitempty"`
}

// HandleListAccounts returns all linked accounts
// GET /api/accounts
func (h *AccountHandlers) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accountList, err := h.service.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list accounts")
		http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accountList})
}

// HandleLinkAccount links a broker account, possibly starting an auth
// handshake
// POST /api/accounts/link
func (h *AccountHandlers) HandleLinkAccount(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	outcome, err := h.service.Link(r.Context(), domain.BrokerKind(req.BrokerKind), req.Credentials)
	if err != nil {
		h.writeLinkError(w, err)
		return
	}

	status := http.StatusOK
	if outcome.HandshakeID != "" {
		status = http.StatusAccepted
	}
	writeJSON(w, status, outcome)
}

func (h *AccountHandlers) writeLinkError(w http.ResponseWriter, err error) {
	var hsErr *handshake.HandshakeError
	switch {
	case errors.Is(err, handshake.ErrHandshakeInFlight):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &hsErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:            hsErr.Entry.UserMessage,
			Kind:             string(hsErr.Entry.Kind),
			SuggestedActions: hsErr.Entry.SuggestedActions,
		})
	default:
		entry := taxonomy.Classify(err)
		h.log.Error().Err(err).Str("kind", string(entry.Kind)).Msg("Account link failed")
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:            entry.UserMessage,
			Kind:             string(entry.Kind),
			SuggestedActions: entry.SuggestedActions,
		})
	}
}

type activateRequest struct {
	Credentials map[string]string `json:"credentials"`
}

// HandleActivateAccount re-authenticates a linked account
// POST /api/accounts/{accountID}/activate
func (h *AccountHandlers) HandleActivateAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	outcome, err := h.service.Activate(r.Context(), accountID, req.Credentials)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "account not found"})
			return
		}
		h.writeLinkError(w, err)
		return
	}

	status := http.StatusOK
	if outcome.HandshakeID != "" {
		status = http.StatusAccepted
	}
	writeJSON(w, status, outcome)
}

// HandleSubmitAuthCode accepts a manually entered auth code
// POST /api/accounts/{accountID}/auth-code
func (h *AccountHandlers) HandleSubmitAuthCode(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req authCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AuthCode == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "authCode is required"})
		return
	}

	if err := h.service.SubmitAuthCode(accountID, req.AuthCode); err != nil {
		if errors.Is(err, handshake.ErrHandshakeFinished) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "no handshake in flight for this account"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "code submitted"})
}

// HandleHandshakeStatus reports the account's in-flight handshake state
// GET /api/accounts/{accountID}/handshake
func (h *AccountHandlers) HandleHandshakeStatus(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	state, ok := h.service.HandshakeState(accountID)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no handshake in flight for this account"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(state)})
}

// HandleCancelHandshake aborts the account's in-flight handshake
// DELETE /api/accounts/{accountID}/handshake
func (h *AccountHandlers) HandleCancelHandshake(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	if err := h.service.CancelHandshake(accountID); err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no handshake in flight for this account"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// HandleDeactivateAccount marks an account inactive
// POST /api/accounts/{accountID}/deactivate
func (h *AccountHandlers) HandleDeactivateAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	if err := h.service.Deactivate(r.Context(), accountID); err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "account not found"})
			return
		}
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to deactivate account")
		http.Error(w, "Failed to deactivate account", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// HandleUnlinkAccount removes an account
// DELETE /api/accounts/{accountID}
func (h *AccountHandlers) HandleUnlinkAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	if err := h.service.Unlink(r.Context(), accountID); err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "account not found"})
			return
		}
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to unlink account")
		http.Error(w, "Failed to unlink account", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unlinked"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/token-contests/internal/api/httpx"
	"github.com/baharkarakas/token-contests/internal/middleware"
	"github.com/baharkarakas/token-contests/internal/services"
)

type BalanceHandler struct {
	Svc *services.BalanceService
}

func NewBalanceHandler(svc *services.BalanceService) *BalanceHandler {
	return &BalanceHandler{Svc: svc}
}

type balanceResp struct {
	UserID         string          `json:"user_id,omitempty"`
	Feature        string          `json:"feature,omitempty"`
	FeatureTokenID string          `json:"feature_token_id,omitempty"`
	TokenID        string          `json:"token_id"`
	Balance        decimal.Decimal `json:"balance"`
}

// User returns the caller's balance, or ?user_id= for another account.
func (h *BalanceHandler) User(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("user_id")
	if uid == "" {
		uid, _ = middleware.UserID(r.Context())
	}
	token := chi.URLParam(r, "tokenID")
	bal, err := h.Svc.GetUserBalance(r.Context(), uid, token)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, balanceResp{UserID: uid, TokenID: token, Balance: bal})
}

func (h *BalanceHandler) Feature(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "tokenID")
	feature := chi.URLParam(r, "feature")
	featureToken := r.URL.Query().Get("feature_token_id")
	if featureToken == "" {
		featureToken = token
	}
	bal, err := h.Svc.GetFeatureBalance(r.Context(), token, feature, featureToken)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, balanceResp{Feature: feature, FeatureTokenID: featureToken, TokenID: token, Balance: bal})
}

func (h *BalanceHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.Reconcile(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

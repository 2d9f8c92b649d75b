package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/token-contests/internal/api/httpx"
	"github.com/baharkarakas/token-contests/internal/api/validate"
	"github.com/baharkarakas/token-contests/internal/middleware"
	"github.com/baharkarakas/token-contests/internal/models"
	"github.com/baharkarakas/token-contests/internal/services"
)

type TransferHandler struct {
	Svc *services.TransferService
}

func NewTransferHandler(svc *services.TransferService) *TransferHandler {
	return &TransferHandler{Svc: svc}
}

type moveReq struct {
	UserID    string `json:"user_id"`
	ToUserID  string `json:"to_user_id"`
	TokenID   string `json:"token_id"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

func decodeMove(w http.ResponseWriter, r *http.Request, op string) (moveReq, decimal.Decimal, bool) {
	var req moveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json", nil)
		return req, decimal.Zero, false
	}
	var (
		errs   validate.Errs
		amount decimal.Decimal
	)
	errs.Add(validate.Required("token_id", req.TokenID))
	errs.Add(validate.Decimal("amount", req.Amount, &amount))
	if err := errs.Err(op); err != nil {
		httpx.WriteErr(w, err)
		return req, decimal.Zero, false
	}
	return req, amount, true
}

// Deposit credits user_id from outside the platform. Admin only.
func (h *TransferHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	req, amount, ok := decodeMove(w, r, "transfer.deposit")
	if !ok {
		return
	}
	rec, err := h.Svc.Deposit(r.Context(), req.UserID, req.TokenID, amount, req.Reference)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, rec)
}

func (h *TransferHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	req, amount, ok := decodeMove(w, r, "transfer.withdraw")
	if !ok {
		return
	}
	uid, _ := middleware.UserID(r.Context())
	rec, err := h.Svc.Withdraw(r.Context(), uid, req.TokenID, amount, req.Reference)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, rec)
}

func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	req, amount, ok := decodeMove(w, r, "transfer.transfer")
	if !ok {
		return
	}
	uid, _ := middleware.UserID(r.Context())
	rec, err := h.Svc.Transfer(r.Context(), uid, req.ToUserID, req.TokenID, amount, req.Reference)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, rec)
}

func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rec)
}

// List filters by ?token_id, ?kind and an account given as ?user_id or
// ?feature&feature_token_id. Without an account it lists the caller's records.
func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.TransferFilter{TokenID: q.Get("token_id"), Kind: models.TransferKind(q.Get("kind"))}
	switch {
	case q.Get("feature") != "":
		a := models.FeatureAccount(q.Get("feature"), q.Get("feature_token_id"))
		f.Account = &a
	case q.Get("user_id") != "":
		a := models.UserAccount(q.Get("user_id"))
		f.Account = &a
	default:
		uid, _ := middleware.UserID(r.Context())
		a := models.UserAccount(uid)
		f.Account = &a
	}
	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	out, err := h.Svc.List(r.Context(), f, limit)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

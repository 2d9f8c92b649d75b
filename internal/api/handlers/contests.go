package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/token-contests/internal/api/httpx"
	"github.com/baharkarakas/token-contests/internal/api/validate"
	"github.com/baharkarakas/token-contests/internal/middleware"
	"github.com/baharkarakas/token-contests/internal/services"
)

type ContestHandler struct {
	Svc *services.ContestService
}

func NewContestHandler(svc *services.ContestService) *ContestHandler {
	return &ContestHandler{Svc: svc}
}

type createContestReq struct {
	TokenID      string `json:"token_id"`
	PrizeAmount  string `json:"prize_token_amount"`
	PrizeWinners int    `json:"prize_token_winners"`
	EndDate      string `json:"end_date"`
	Title        string `json:"title"`
	Description  string `json:"description"`
}

func (h *ContestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createContestReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json", nil)
		return
	}
	var (
		errs  validate.Errs
		prize decimal.Decimal
		end   time.Time
	)
	errs.Add(validate.Decimal("prize_token_amount", req.PrizeAmount, &prize))
	errs.Add(validate.Time("end_date", req.EndDate, &end))
	if err := errs.Err("contest.create"); err != nil {
		httpx.WriteErr(w, err)
		return
	}

	uid, _ := middleware.UserID(r.Context())
	c, err := h.Svc.Create(r.Context(), uid, services.CreateContestInput{
		TokenID:     req.TokenID,
		PrizeAmount: prize,
		WinnerCount: req.PrizeWinners,
		EndDate:     end,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, c)
}

type updateContestReq struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	EndDate     *string `json:"end_date"`
}

func (h *ContestHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateContestReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json", nil)
		return
	}
	in := services.UpdateContestInput{Title: req.Title, Description: req.Description}
	if req.EndDate != nil {
		var (
			errs validate.Errs
			end  time.Time
		)
		errs.Add(validate.Time("end_date", *req.EndDate, &end))
		if err := errs.Err("contest.update"); err != nil {
			httpx.WriteErr(w, err)
			return
		}
		in.EndDate = &end
	}
	uid, _ := middleware.UserID(r.Context())
	c, err := h.Svc.Update(r.Context(), uid, chi.URLParam(r, "id"), in)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *ContestHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

type submitEntryReq struct {
	SubmissionURL string `json:"submission_url"`
}

func (h *ContestHandler) SubmitEntry(w http.ResponseWriter, r *http.Request) {
	var req submitEntryReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json", nil)
		return
	}
	uid, _ := middleware.UserID(r.Context())
	e, err := h.Svc.SubmitEntry(r.Context(), uid, chi.URLParam(r, "id"), req.SubmissionURL)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, e)
}

func (h *ContestHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	out, err := h.Svc.ListEntries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *ContestHandler) AssignWinner(w http.ResponseWriter, r *http.Request) {
	e, err := h.Svc.AssignWinner(r.Context(), chi.URLParam(r, "entryID"))
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, e)
}

func (h *ContestHandler) Close(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())
	c, err := h.Svc.Close(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/baharkarakas/token-contests/internal/api/handlers"
	"github.com/baharkarakas/token-contests/internal/auth"
	"github.com/baharkarakas/token-contests/internal/config"
	"github.com/baharkarakas/token-contests/internal/metrics"
	"github.com/baharkarakas/token-contests/internal/middleware"
	"github.com/baharkarakas/token-contests/internal/services"
)

type RouterDeps struct {
	Cfg       config.Config
	Tokens    *auth.TokenManager
	Contests  *services.ContestService
	Balances  *services.BalanceService
	Transfers *services.TransferService
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.RateLimit(d.Cfg.RateRPS), middleware.HTTPMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
	}))

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	authH := handlers.NewAuthHandler(d.Tokens, d.Cfg.Env)
	contestH := handlers.NewContestHandler(d.Contests)
	balanceH := handlers.NewBalanceHandler(d.Balances)
	transferH := handlers.NewTransferHandler(d.Transfers)
	authMW := middleware.NewAuthMiddleware(d.Tokens, d.Cfg.Env)

	r.Route("/api/v1", func(r chi.Router) {
		// ---------- auth ----------
		r.Post("/auth/login", authH.Login)
		r.Post("/auth/refresh", authH.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(authMW.Auth)

			// ---------- contests ----------
			r.Post("/contests", contestH.Create)
			r.Get("/contests/{id}", contestH.Get)
			r.Patch("/contests/{id}", contestH.Update)
			r.Post("/contests/{id}/close", contestH.Close)
			r.Get("/contests/{id}/entries", contestH.ListEntries)
			r.Post("/contests/{id}/entries", contestH.SubmitEntry)
			r.Post("/entries/{entryID}/win", contestH.AssignWinner)

			// ---------- balances ----------
			r.Get("/balances/{tokenID}", balanceH.User)
			r.Get("/balances/{tokenID}/features/{feature}", balanceH.Feature)

			// ---------- transfers ----------
			r.Post("/transfers", transferH.Transfer)
			r.Post("/transfers/withdraw", transferH.Withdraw)
			r.Get("/transfers", transferH.List)
			r.Get("/transfers/{id}", transferH.Get)

			// ---------- admin ----------
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole("admin"))
				r.Post("/admin/deposits", transferH.Deposit)
				r.Post("/admin/reconcile", balanceH.Reconcile)
			})
		})
	})

	return r
}

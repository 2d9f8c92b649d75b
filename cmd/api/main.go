package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/baharkarakas/token-contests/internal/api"
	"github.com/baharkarakas/token-contests/internal/auth"
	"github.com/baharkarakas/token-contests/internal/config"
	"github.com/baharkarakas/token-contests/internal/db"
	"github.com/baharkarakas/token-contests/internal/logger"
	"github.com/baharkarakas/token-contests/internal/metrics"
	"github.com/baharkarakas/token-contests/internal/repository"
	"github.com/baharkarakas/token-contests/internal/repository/memory"
	"github.com/baharkarakas/token-contests/internal/repository/postgres"
	"github.com/baharkarakas/token-contests/internal/services"
	"github.com/baharkarakas/token-contests/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store repository.Store
	switch cfg.StoreBackend {
	case "memory":
		log.Warn("using in-memory store; state is lost on exit")
		store = memory.NewStore()
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("db connect", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if cfg.Migrate {
			if err := db.RunMigrations(ctx, pool); err != nil {
				log.Error("migrations", "err", err)
				os.Exit(1)
			}
		}
		store = postgres.NewStore(pool)
	}

	wp := worker.NewPool(cfg.Workers)

	agg := services.NewAggregator()
	balanceSvc := services.NewBalanceService(store, agg, wp, log)
	contestSvc := services.NewContestService(store, agg, cfg.EscrowStrict, log)
	transferSvc := services.NewTransferService(store, agg, log)

	metrics.Init()
	r := api.NewRouter(api.RouterDeps{
		Cfg:       cfg,
		Tokens:    auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL),
		Contests:  contestSvc,
		Balances:  balanceSvc,
		Transfers: transferSvc,
	})

	var loops sync.WaitGroup
	if cfg.ReconcileInterval > 0 {
		loops.Add(1)
		go func() {
			defer loops.Done()
			reconcileLoop(ctx, balanceSvc, cfg.ReconcileInterval, log)
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "store", cfg.StoreBackend, "escrow_strict", cfg.EscrowStrict)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	// the loop submits to the pool, so it has to be gone before the pool closes
	loops.Wait()
	wp.Stop()
}

func reconcileLoop(ctx context.Context, svc *services.BalanceService, every time.Duration, log *slog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := svc.Reconcile(ctx); err != nil {
				log.Error("reconcile", "err", err)
			}
		}
	}
}

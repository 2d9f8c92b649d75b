package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/baharkarakas/token-contests/internal/metrics"
	"github.com/baharkarakas/token-contests/internal/models"
	repo "github.com/baharkarakas/token-contests/internal/repository"
	"github.com/baharkarakas/token-contests/internal/worker"
)

// BalanceService is the read path over the balance cache. A missing row is
// materialised from the ledger before it is returned.
type BalanceService struct {
	store repo.Store
	agg   *Aggregator
	wp    *worker.Pool
	log   *slog.Logger
	group singleflight.Group
}

func NewBalanceService(store repo.Store, agg *Aggregator, wp *worker.Pool, log *slog.Logger) *BalanceService {
	return &BalanceService{store: store, agg: agg, wp: wp, log: log.With("component", "balances")}
}

func (s *BalanceService) GetUserBalance(ctx context.Context, userID, tokenID string) (decimal.Decimal, error) {
	if userID == "" || tokenID == "" {
		return decimal.Zero, models.Validation("balance.get_user",
			models.FieldError{Field: "user_id/token_id", Msg: "required"})
	}
	var (
		bal   models.UserBalance
		found bool
	)
	err := s.store.WithTx(ctx, nil, func(tx repo.Tx) error {
		var err error
		bal, found, err = tx.Balances().GetUser(ctx, userID, tokenID)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	if found {
		return bal.Balance, nil
	}
	metrics.CacheMisses.WithLabelValues("user").Inc()
	return s.materialise(ctx, models.UserKey(userID, tokenID))
}

// GetFeatureBalance returns zero without touching the cache when the feature
// name or feature token is blank.
func (s *BalanceService) GetFeatureBalance(ctx context.Context, tokenID, feature, featureTokenID string) (decimal.Decimal, error) {
	if blankFeature(tokenID, feature, featureTokenID) {
		return decimal.Zero, nil
	}
	var (
		bal   models.FeatureBalance
		found bool
	)
	err := s.store.WithTx(ctx, nil, func(tx repo.Tx) error {
		var err error
		bal, found, err = tx.Balances().GetFeature(ctx, tokenID, feature, featureTokenID)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	if found {
		return bal.Balance, nil
	}
	metrics.CacheMisses.WithLabelValues("feature").Inc()
	return s.materialise(ctx, models.FeatureKey(tokenID, feature, featureTokenID))
}

// materialise refreshes the row under its key lock. Concurrent misses on the
// same key share one refresh.
func (s *BalanceService) materialise(ctx context.Context, k models.BalanceKey) (decimal.Decimal, error) {
	v, err, _ := s.group.Do(k.LockKey(), func() (any, error) {
		var bal decimal.Decimal
		err := s.store.WithTx(ctx, []string{k.LockKey()}, func(tx repo.Tx) error {
			var err error
			bal, err = s.agg.Refresh(ctx, tx, k)
			return err
		})
		return bal, err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

type ReconcileResult struct {
	Keys    int `json:"keys"`
	Drifted int `json:"drifted"`
	Failed  int `json:"failed"`
}

// Reconcile recomputes every cache row that the ledger can produce, fanning
// the keys out over the worker pool. Rows whose cached value differed from the
// fold are counted as drifted and repaired.
func (s *BalanceService) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var keys []models.BalanceKey
	err := s.store.WithTx(ctx, nil, func(tx repo.Tx) error {
		var err error
		keys, err = tx.Ledger().Keys(ctx)
		return err
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	var (
		wg      sync.WaitGroup
		drifted atomic.Int64
		mu      sync.Mutex
		errs    []error
	)
	for _, k := range keys {
		// a cancelled run stops feeding the pool, which may be stopping too
		if err := ctx.Err(); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}
		wg.Add(1)
		s.wp.Submit(func() {
			defer wg.Done()
			d, err := s.reconcileKey(ctx, k)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}
			if d {
				drifted.Add(1)
			}
		})
	}
	wg.Wait()

	res := ReconcileResult{Keys: len(keys), Drifted: int(drifted.Load()), Failed: len(errs)}
	metrics.ReconcileDrift.Add(float64(res.Drifted))
	s.log.Info("reconcile finished", "keys", res.Keys, "drifted", res.Drifted, "failed", res.Failed)
	return res, errors.Join(errs...)
}

func (s *BalanceService) reconcileKey(ctx context.Context, k models.BalanceKey) (bool, error) {
	var drifted bool
	err := s.store.WithTx(ctx, []string{k.LockKey()}, func(tx repo.Tx) error {
		var (
			cached decimal.Decimal
			found  bool
			err    error
		)
		if k.IsUser() {
			var b models.UserBalance
			b, found, err = tx.Balances().GetUser(ctx, k.UserID, k.TokenID)
			cached = b.Balance
		} else {
			var b models.FeatureBalance
			b, found, err = tx.Balances().GetFeature(ctx, k.TokenID, k.Feature, k.FeatureTokenID)
			cached = b.Balance
		}
		if err != nil {
			return err
		}
		fresh, err := s.agg.Refresh(ctx, tx, k)
		if err != nil {
			return err
		}
		drifted = !found || !cached.Equal(fresh)
		if drifted {
			s.log.Warn("balance cache drift", "key", k.LockKey(), "cached", cached.String(), "ledger", fresh.String(), "found", found)
		}
		return nil
	})
	return drifted, err
}

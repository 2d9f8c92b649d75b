package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/token-contests/internal/logger"
	"github.com/baharkarakas/token-contests/internal/models"
	repo "github.com/baharkarakas/token-contests/internal/repository"
	"github.com/baharkarakas/token-contests/internal/worker"
)

// appendRaw writes a record straight to the ledger without touching the
// cache, leaving the derived rows stale or missing.
func appendRaw(t *testing.T, f *fixture, r models.TransferRecord) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.WithTx(ctx, nil, func(tx repo.Tx) error {
		_, err := tx.Ledger().Append(ctx, r)
		return err
	}))
}

func TestGetUserBalanceMaterialisesMissingRow(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	appendRaw(t, f, models.TransferRecord{
		Amount: dec(7), TokenID: "T",
		From: models.FeatureAccount(models.FeatureMint, "T"), To: models.UserAccount("alice"),
		Kind: models.KindDeposit,
	})

	require.NoError(t, f.store.WithTx(ctx, nil, func(tx repo.Tx) error {
		_, found, err := tx.Balances().GetUser(ctx, "alice", "T")
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	}))

	requireAmount(t, "7", f.userBalance(t, "alice"))

	require.NoError(t, f.store.WithTx(ctx, nil, func(tx repo.Tx) error {
		b, found, err := tx.Balances().GetUser(ctx, "alice", "T")
		require.NoError(t, err)
		assert.True(t, found)
		requireAmount(t, "7", b.Balance)
		return nil
	}))
}

func TestGetUserBalanceUnknownIsZero(t *testing.T) {
	f := newFixture(t, false)
	requireAmount(t, "0", f.userBalance(t, "nobody"))
}

func TestGetUserBalanceRejectsBlank(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.balances.GetUserBalance(context.Background(), "", "T")
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = f.balances.GetUserBalance(context.Background(), "alice", "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestConcurrentMissesAgree(t *testing.T) {
	f := newFixture(t, false)
	appendRaw(t, f, models.TransferRecord{
		Amount: dec(9), TokenID: "T",
		From: models.FeatureAccount(models.FeatureMint, "T"), To: models.UserAccount("alice"),
		Kind: models.KindDeposit,
	})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := f.balances.GetUserBalance(context.Background(), "alice", "T")
			assert.NoError(t, err)
			assert.Equal(t, "9", b.String())
		}()
	}
	wg.Wait()
}

func TestReconcileRepairsDrift(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.fund(t, "alice", 100)
	f.createContest(t, "alice", 40, 2)

	// corrupt one row and leave another missing entirely
	require.NoError(t, f.store.WithTx(ctx, nil, func(tx repo.Tx) error {
		return tx.Balances().UpsertUser(ctx, models.UserBalance{UserID: "alice", TokenID: "T", Balance: dec(999)})
	}))
	appendRaw(t, f, models.TransferRecord{
		Amount: dec(5), TokenID: "T",
		From: models.FeatureAccount(models.FeatureMint, "T"), To: models.UserAccount("bob"),
		Kind: models.KindDeposit,
	})

	res, err := f.balances.Reconcile(ctx)
	require.NoError(t, err)
	// alice, bob, MINT and the escrow
	assert.Equal(t, 4, res.Keys)
	// alice was corrupted, bob was missing, MINT went stale with bob's deposit
	assert.Equal(t, 3, res.Drifted)
	assert.Zero(t, res.Failed)

	requireAmount(t, "60", f.userBalance(t, "alice"))
	requireAmount(t, "5", f.userBalance(t, "bob"))
	requireAmount(t, "40", f.escrowBalance(t))

	again, err := f.balances.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Drifted)
}

func TestReconcileEmptyLedger(t *testing.T) {
	f := newFixture(t, false)
	res, err := f.balances.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{}, res)
}

// cancelAfterTx cancels the caller's context once the first transaction has
// committed, the way a shutdown signal lands mid-run.
type cancelAfterTx struct {
	repo.Store
	cancel context.CancelFunc
}

func (s cancelAfterTx) WithTx(ctx context.Context, locks []string, fn func(repo.Tx) error) error {
	err := s.Store.WithTx(ctx, locks, fn)
	s.cancel()
	return err
}

func TestReconcileStopsSubmittingOnceCancelled(t *testing.T) {
	f := newFixture(t, false)
	f.fund(t, "alice", 10)
	f.fund(t, "bob", 10)

	// a stopped pool panics on Submit, so any submission after cancel fails the test
	wp := worker.NewPool(1)
	wp.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewBalanceService(cancelAfterTx{Store: f.store, cancel: cancel}, f.agg, wp, logger.Discard())

	var (
		res ReconcileResult
		err error
	)
	require.NotPanics(t, func() { res, err = svc.Reconcile(ctx) })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, res.Keys)
	assert.Zero(t, res.Drifted)
}

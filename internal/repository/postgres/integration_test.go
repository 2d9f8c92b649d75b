//go:build integration

package postgres_test

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/baharkarakas/token-contests/internal/db"
	"github.com/baharkarakas/token-contests/internal/logger"
	"github.com/baharkarakas/token-contests/internal/models"
	repo "github.com/baharkarakas/token-contests/internal/repository"
	"github.com/baharkarakas/token-contests/internal/repository/postgres"
	"github.com/baharkarakas/token-contests/internal/services"
	"github.com/baharkarakas/token-contests/internal/worker"
)

// testPool connects to TEST_DB_URL when set, otherwise to a throwaway
// postgres container. Migrations are applied either way.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	url := os.Getenv("TEST_DB_URL")
	if url == "" {
		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("contests_test"),
			tcpostgres.WithUsername("test"),
			tcpostgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		require.NoError(t, err)
		t.Cleanup(func() {
			require.NoError(t, container.Terminate(context.Background()))
		})
		url, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	pool, err := db.NewPool(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.RunMigrations(ctx, pool))
	// a second run is a no-op
	require.NoError(t, db.RunMigrations(ctx, pool))
	return pool
}

type env struct {
	pool      *pgxpool.Pool
	store     *postgres.Store
	contests  *services.ContestService
	balances  *services.BalanceService
	transfers *services.TransferService
}

func newEnv(t *testing.T, strict bool) *env {
	pool := testPool(t)
	store := postgres.NewStore(pool)
	agg := services.NewAggregator()
	wp := worker.NewPool(4)
	t.Cleanup(wp.Stop)
	log := logger.Discard()
	return &env{
		pool:      pool,
		store:     store,
		contests:  services.NewContestService(store, agg, strict, log),
		balances:  services.NewBalanceService(store, agg, wp, log),
		transfers: services.NewTransferService(store, agg, log),
	}
}

// Token ids are unique per test so one container can serve several tests.
func token(t *testing.T) string { return "tok-" + t.Name() }

func amount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestPostgresContestLifecycle(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	tok := token(t)

	_, err := e.transfers.Deposit(ctx, "alice", tok, decimal.NewFromInt(100), "seed")
	require.NoError(t, err)

	c, err := e.contests.Create(ctx, "alice", services.CreateContestInput{
		TokenID: tok, PrizeAmount: decimal.NewFromInt(45), WinnerCount: 2, Title: "pg",
	})
	require.NoError(t, err)

	bal, err := e.balances.GetUserBalance(ctx, "alice", tok)
	require.NoError(t, err)
	amount(t, "55", bal)

	e1, err := e.contests.SubmitEntry(ctx, "bob", c.ID, "https://example.com/bob")
	require.NoError(t, err)
	won, err := e.contests.AssignWinner(ctx, e1.ID)
	require.NoError(t, err)
	require.NotNil(t, won.WinnerTransferID)

	bal, err = e.balances.GetUserBalance(ctx, "bob", tok)
	require.NoError(t, err)
	amount(t, "22", bal)

	closed, err := e.contests.Close(ctx, "alice", c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContestClosed, closed.Status)

	escrow, err := e.balances.GetFeatureBalance(ctx, tok, models.FeatureContest, tok)
	require.NoError(t, err)
	amount(t, "-22", escrow)

	// CLOSED is terminal at the schema level too
	_, err = e.pool.Exec(ctx, `UPDATE contests SET status = 'OPEN' WHERE id = $1`, c.ID)
	assert.Error(t, err)
}

func TestPostgresLedgerIsAppendOnly(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	rec, err := e.transfers.Deposit(ctx, "alice", token(t), decimal.RequireFromString("1.0000000001"), "")
	require.NoError(t, err)
	amount(t, "1.0000000001", rec.Amount)

	_, err = e.pool.Exec(ctx, `UPDATE transfers SET amount = 2 WHERE id = $1`, rec.ID)
	assert.Error(t, err)
	_, err = e.pool.Exec(ctx, `DELETE FROM transfers WHERE id = $1`, rec.ID)
	assert.Error(t, err)

	got, err := e.transfers.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	amount(t, "1.0000000001", got.Amount)

	_, err = e.transfers.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPostgresQueryIgnoresLaterAppends(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	tok := token(t)
	_, err := e.transfers.Deposit(ctx, "alice", tok, decimal.NewFromInt(1), "")
	require.NoError(t, err)

	require.NoError(t, e.store.WithTx(ctx, nil, func(tx repo.Tx) error {
		seq := tx.Ledger().Query(ctx, models.TransferFilter{TokenID: tok})
		_, err := e.transfers.Deposit(ctx, "bob", tok, decimal.NewFromInt(1), "")
		require.NoError(t, err)
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		assert.Equal(t, 1, n)
		return nil
	}))
}

func TestPostgresConcurrentCreatesNeverOverdraw(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	tok := token(t)
	_, err := e.transfers.Deposit(ctx, "alice", tok, decimal.NewFromInt(50), "")
	require.NoError(t, err)

	var ok atomic.Int32
	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			_, err := e.contests.Create(ctx, "alice", services.CreateContestInput{
				TokenID: tok, PrizeAmount: decimal.NewFromInt(30), WinnerCount: 1,
			})
			if err == nil {
				ok.Add(1)
				return nil
			}
			if assert.ErrorIs(t, err, models.ErrInsufficientBalance) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), ok.Load())

	bal, err := e.balances.GetUserBalance(ctx, "alice", tok)
	require.NoError(t, err)
	amount(t, "20", bal)
}

func TestPostgresReconcile(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	tok := token(t)
	_, err := e.transfers.Deposit(ctx, "alice", tok, decimal.NewFromInt(10), "")
	require.NoError(t, err)

	_, err = e.pool.Exec(ctx, `UPDATE user_balances SET balance = 999 WHERE user_id = 'alice' AND token_id = $1`, tok)
	require.NoError(t, err)

	res, err := e.balances.Reconcile(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Drifted, 1)

	bal, err := e.balances.GetUserBalance(ctx, "alice", tok)
	require.NoError(t, err)
	amount(t, "10", bal)
}

func TestPostgresPrizeMatchesEscrowedAmount(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	tok := token(t)
	_, err := e.transfers.Deposit(ctx, "alice", tok, decimal.NewFromInt(5), "")
	require.NoError(t, err)

	_, err = e.contests.Create(ctx, "alice", services.CreateContestInput{
		TokenID: tok, PrizeAmount: decimal.RequireFromString("0.00000000001"), WinnerCount: 1,
	})
	require.ErrorIs(t, err, models.ErrValidation)

	// numeric(45,10) would round this up; the row must hold what was escrowed
	c, err := e.contests.Create(ctx, "alice", services.CreateContestInput{
		TokenID: tok, PrizeAmount: decimal.RequireFromString("1.00000000009"), WinnerCount: 1,
	})
	require.NoError(t, err)
	got, err := e.contests.Get(ctx, c.ID)
	require.NoError(t, err)
	amount(t, "1", got.PrizeAmount)

	_, err = e.contests.Close(ctx, "alice", c.ID)
	require.NoError(t, err)
	escrow, err := e.balances.GetFeatureBalance(ctx, tok, models.FeatureContest, tok)
	require.NoError(t, err)
	amount(t, "0", escrow)
	bal, err := e.balances.GetUserBalance(ctx, "alice", tok)
	require.NoError(t, err)
	amount(t, "5", bal)
}

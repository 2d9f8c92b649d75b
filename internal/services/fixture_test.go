package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/token-contests/internal/logger"
	"github.com/baharkarakas/token-contests/internal/models"
	"github.com/baharkarakas/token-contests/internal/repository/memory"
	"github.com/baharkarakas/token-contests/internal/worker"
)

type fixture struct {
	store     *memory.Store
	agg       *Aggregator
	contests  *ContestService
	balances  *BalanceService
	transfers *TransferService
}

func newFixture(t *testing.T, strict bool) *fixture {
	t.Helper()
	store := memory.NewStore()
	agg := NewAggregator()
	wp := worker.NewPool(2)
	t.Cleanup(wp.Stop)
	log := logger.Discard()
	return &fixture{
		store:     store,
		agg:       agg,
		contests:  NewContestService(store, agg, strict, log),
		balances:  NewBalanceService(store, agg, wp, log),
		transfers: NewTransferService(store, agg, log),
	}
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	w, err := decimal.NewFromString(want)
	require.NoError(t, err)
	require.Truef(t, w.Equal(got), "want %s, got %s", want, got)
}

func (f *fixture) fund(t *testing.T, user string, amount int64) {
	t.Helper()
	_, err := f.transfers.Deposit(context.Background(), user, "T", dec(amount), "test")
	require.NoError(t, err)
}

func (f *fixture) userBalance(t *testing.T, user string) decimal.Decimal {
	t.Helper()
	b, err := f.balances.GetUserBalance(context.Background(), user, "T")
	require.NoError(t, err)
	return b
}

func (f *fixture) escrowBalance(t *testing.T) decimal.Decimal {
	t.Helper()
	b, err := f.balances.GetFeatureBalance(context.Background(), "T", models.FeatureContest, "T")
	require.NoError(t, err)
	return b
}

func (f *fixture) createContest(t *testing.T, creator string, prize int64, winners int) models.Contest {
	t.Helper()
	c, err := f.contests.Create(context.Background(), creator, CreateContestInput{
		TokenID:     "T",
		PrizeAmount: dec(prize),
		WinnerCount: winners,
		Title:       "best meme",
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) enter(t *testing.T, contestID, user string) models.ContestEntry {
	t.Helper()
	e, err := f.contests.SubmitEntry(context.Background(), user, contestID, "https://example.com/"+user)
	require.NoError(t, err)
	return e
}

package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/token-contests/internal/models"
	repo "github.com/baharkarakas/token-contests/internal/repository"
)

func deposit(user string, amount int64) models.TransferRecord {
	return models.TransferRecord{
		Amount:  decimal.NewFromInt(amount),
		TokenID: "T",
		From:    models.FeatureAccount(models.FeatureMint, "T"),
		To:      models.UserAccount(user),
		Kind:    models.KindDeposit,
	}
}

func collect(t *testing.T, l repo.Ledger, f models.TransferFilter) []models.TransferRecord {
	t.Helper()
	var out []models.TransferRecord
	for r, err := range l.Query(context.Background(), f) {
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}

func TestRollbackDiscardsWrites(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, []string{"k"}, func(tx repo.Tx) error {
		_, err := tx.Ledger().Append(ctx, deposit("alice", 10))
		require.NoError(t, err)
		require.NoError(t, tx.Balances().UpsertUser(ctx, models.UserBalance{UserID: "alice", TokenID: "T", Balance: decimal.NewFromInt(10)}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.WithTx(ctx, nil, func(tx repo.Tx) error {
		assert.Empty(t, collect(t, tx.Ledger(), models.TransferFilter{}))
		_, found, err := tx.Balances().GetUser(ctx, "alice", "T")
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	}))
}

func TestAppendRejectsMalformed(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	err := s.WithTx(ctx, nil, func(tx repo.Tx) error {
		_, err := tx.Ledger().Append(ctx, models.TransferRecord{TokenID: "T", Kind: models.KindTransfer})
		return err
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAppendNormalisesBeforeValidating(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	tiny := deposit("alice", 0)
	tiny.Amount = decimal.RequireFromString("0.00000000001")
	err := s.WithTx(ctx, nil, func(tx repo.Tx) error {
		_, err := tx.Ledger().Append(ctx, tiny)
		return err
	})
	require.ErrorIs(t, err, models.ErrValidation)

	long := deposit("alice", 0)
	long.Amount = decimal.RequireFromString("3.00000000019")
	require.NoError(t, s.WithTx(ctx, nil, func(tx repo.Tx) error {
		_, err := tx.Ledger().Append(ctx, long)
		return err
	}))

	require.NoError(t, s.WithTx(ctx, nil, func(tx repo.Tx) error {
		got := collect(t, tx.Ledger(), models.TransferFilter{})
		require.Len(t, got, 1)
		assert.Equal(t, "3.0000000001", got[0].Amount.String())
		return nil
	}))
}

func TestQueryIsBoundedAndRestartable(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, nil, func(tx repo.Tx) error {
		_, err := tx.Ledger().Append(ctx, deposit("alice", 10))
		return err
	}))

	require.NoError(t, s.WithTx(ctx, nil, func(tx repo.Tx) error {
		seq := tx.Ledger().Query(ctx, models.TransferFilter{TokenID: "T"})

		// a later append must not leak into the sequence taken above
		require.NoError(t, s.WithTx(ctx, nil, func(tx2 repo.Tx) error {
			_, err := tx2.Ledger().Append(ctx, deposit("bob", 5))
			return err
		}))

		for range 2 {
			n := 0
			for _, err := range seq {
				require.NoError(t, err)
				n++
			}
			assert.Equal(t, 1, n)
		}
		return nil
	}))

	require.NoError(t, s.WithTx(ctx, nil, func(tx repo.Tx) error {
		bob := models.UserAccount("bob")
		got := collect(t, tx.Ledger(), models.TransferFilter{Account: &bob})
		require.Len(t, got, 1)
		assert.Equal(t, "5", got[0].Amount.String())
		assert.NotEmpty(t, got[0].ID)
		return nil
	}))
}

func TestLedgerKeys(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, nil, func(tx repo.Tx) error {
		for _, r := range []models.TransferRecord{deposit("alice", 10), deposit("alice", 3), deposit("bob", 1)} {
			if _, err := tx.Ledger().Append(ctx, r); err != nil {
				return err
			}
		}
		keys, err := tx.Ledger().Keys(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []models.BalanceKey{
			models.FeatureKey("T", models.FeatureMint, "T"),
			models.UserKey("alice", "T"),
			models.UserKey("bob", "T"),
		}, keys)
		return nil
	}))
}

func TestWithTxSerialisesSameKey(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithTx(ctx, []string{"b", "a"}, func(tx repo.Tx) error {
				n := inside.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestEntriesLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	var entryID string
	require.NoError(t, s.WithTx(ctx, nil, func(tx repo.Tx) error {
		c, err := tx.Contests().Create(ctx, models.Contest{Creator: "alice", PrizeTokenID: "T", Status: models.ContestOpen})
		require.NoError(t, err)
		e, err := tx.Entries().Create(ctx, models.ContestEntry{ContestID: c.ID, Submitter: "bob", SubmissionURL: "https://x.test"})
		require.NoError(t, err)
		entryID = e.ID
		list, err := tx.Entries().ListByContest(ctx, c.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)
		return nil
	}))

	require.NoError(t, s.WithTx(ctx, nil, func(tx repo.Tx) error {
		require.NoError(t, tx.Entries().MarkWinner(ctx, entryID, "tr-1"))
		e, err := tx.Entries().GetByID(ctx, entryID)
		require.NoError(t, err)
		assert.True(t, e.IsWinner)
		require.NotNil(t, e.WinnerTransferID)
		assert.Equal(t, "tr-1", *e.WinnerTransferID)
		return nil
	}))

	err := s.WithTx(ctx, nil, func(tx repo.Tx) error {
		_, err := tx.Entries().GetByID(ctx, "missing")
		return err
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestClosedContestIsTerminal(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	err := s.WithTx(ctx, nil, func(tx repo.Tx) error {
		c, err := tx.Contests().Create(ctx, models.Contest{Creator: "alice", PrizeTokenID: "T", Status: models.ContestClosed})
		require.NoError(t, err)
		c.Status = models.ContestOpen
		return tx.Contests().Update(ctx, c)
	})
	assert.ErrorIs(t, err, models.ErrState)
}

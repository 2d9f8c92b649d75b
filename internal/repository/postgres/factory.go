package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baharkarakas/token-contests/internal/models"
	repo "github.com/baharkarakas/token-contests/internal/repository"
)

// maxAttempts bounds retries of a transaction aborted by a serialization
// failure or deadlock.
const maxAttempts = 5

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

var _ repo.Store = (*Store)(nil)

func (s *Store) WithTx(ctx context.Context, locks []string, fn func(repo.Tx) error) error {
	keys := slices.Clone(locks)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.runTx(ctx, keys, fn)
		if !retryable(err) {
			return err
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", maxAttempts, err)
}

// runTx executes one attempt. Advisory locks are scoped to the transaction
// and released on commit or rollback. Every writer of a balance holds that
// balance's lock, so read committed is enough: each statement after the locks
// sees the writes of whoever held them before.
func (s *Store) runTx(ctx context.Context, keys []string, fn func(repo.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, k := range keys {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, k); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("lock %s: %w", k, err)
		}
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) Ledger() repo.Ledger         { return &transfersRepo{t.tx} }
func (t *pgTx) Balances() repo.BalanceCache { return &balancesRepo{t.tx} }
func (t *pgTx) Contests() repo.Contests     { return &contestsRepo{t.tx} }
func (t *pgTx) Entries() repo.Entries       { return &entriesRepo{t.tx} }

func notFound(op, what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.NotFound(op, what)
	}
	return fmt.Errorf("%s: %w", op, err)
}

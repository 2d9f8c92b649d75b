package repository

import (
	"context"
	"iter"

	"github.com/baharkarakas/token-contests/internal/models"
)

// Ledger is the append-only transfer log.
type Ledger interface {
	// Append stores a validated record and returns its id. Existing records
	// are never touched.
	Append(ctx context.Context, r models.TransferRecord) (string, error)
	Get(ctx context.Context, id string) (models.TransferRecord, error)
	// Query yields matching records in append order. The sequence may be
	// ranged over more than once and only sees records present at call time.
	Query(ctx context.Context, f models.TransferFilter) iter.Seq2[models.TransferRecord, error]
	// Keys lists every (account, token) pair that appears in the ledger.
	Keys(ctx context.Context) ([]models.BalanceKey, error)
}

// BalanceCache holds the derived balance snapshots.
type BalanceCache interface {
	GetUser(ctx context.Context, userID, tokenID string) (models.UserBalance, bool, error)
	UpsertUser(ctx context.Context, b models.UserBalance) error
	GetFeature(ctx context.Context, tokenID, feature, featureTokenID string) (models.FeatureBalance, bool, error)
	UpsertFeature(ctx context.Context, b models.FeatureBalance) error
}

type Contests interface {
	Create(ctx context.Context, c models.Contest) (models.Contest, error)
	GetByID(ctx context.Context, id string) (models.Contest, error)
	Update(ctx context.Context, c models.Contest) error
}

type Entries interface {
	Create(ctx context.Context, e models.ContestEntry) (models.ContestEntry, error)
	GetByID(ctx context.Context, id string) (models.ContestEntry, error)
	ListByContest(ctx context.Context, contestID string) ([]models.ContestEntry, error)
	MarkWinner(ctx context.Context, id, transferID string) error
}

// Tx is a unit of work. Everything written through it commits or rolls back
// together.
type Tx interface {
	Ledger() Ledger
	Balances() BalanceCache
	Contests() Contests
	Entries() Entries
}

type Store interface {
	// WithTx runs fn in a transaction holding exclusive locks on every key in
	// locks. Locks are taken in sorted order and released at commit or
	// rollback. fn returning an error rolls the transaction back.
	WithTx(ctx context.Context, locks []string, fn func(Tx) error) error
}

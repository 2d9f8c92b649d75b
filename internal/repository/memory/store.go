// Package memory is an in-process Store used for local runs and tests. It
// honours the same locking and rollback contract as the Postgres store.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/baharkarakas/token-contests/internal/models"
	repo "github.com/baharkarakas/token-contests/internal/repository"
)

type featureKey struct{ tokenID, feature, featureTokenID string }
type userKey struct{ userID, tokenID string }

type Store struct {
	keyMu sync.Mutex
	keys  map[string]*sync.Mutex

	mu        sync.RWMutex
	transfers []models.TransferRecord
	byID      map[string]int
	users     map[userKey]models.UserBalance
	features  map[featureKey]models.FeatureBalance
	contests  map[string]models.Contest
	entries   map[string]models.ContestEntry
	entryIDs  []string

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		keys:     map[string]*sync.Mutex{},
		byID:     map[string]int{},
		users:    map[userKey]models.UserBalance{},
		features: map[featureKey]models.FeatureBalance{},
		contests: map[string]models.Contest{},
		entries:  map[string]models.ContestEntry{},
		now:      time.Now,
	}
}

var _ repo.Store = (*Store)(nil)

func (s *Store) lockFor(key string) *sync.Mutex {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	m, ok := s.keys[key]
	if !ok {
		m = &sync.Mutex{}
		s.keys[key] = m
	}
	return m
}

func (s *Store) WithTx(ctx context.Context, locks []string, fn func(repo.Tx) error) error {
	keys := slices.Clone(locks)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*sync.Mutex, 0, len(keys))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}()
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		m := s.lockFor(k)
		m.Lock()
		held = append(held, m)
	}

	t := newTx(s)
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.commit(t)
	return nil
}

func (s *Store) commit(t *tx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range t.transfers {
		s.byID[r.ID] = len(s.transfers)
		s.transfers = append(s.transfers, r)
	}
	for k, v := range t.users {
		s.users[k] = v
	}
	for k, v := range t.features {
		s.features[k] = v
	}
	for k, v := range t.contests {
		s.contests[k] = v
	}
	for k, v := range t.entries {
		s.entries[k] = v
	}
	s.entryIDs = append(s.entryIDs, t.newEntries...)
}

// tx stages writes until commit. Reads see staged values first.
type tx struct {
	s          *Store
	transfers  []models.TransferRecord
	users      map[userKey]models.UserBalance
	features   map[featureKey]models.FeatureBalance
	contests   map[string]models.Contest
	entries    map[string]models.ContestEntry
	newEntries []string
}

func newTx(s *Store) *tx {
	return &tx{
		s:        s,
		users:    map[userKey]models.UserBalance{},
		features: map[featureKey]models.FeatureBalance{},
		contests: map[string]models.Contest{},
		entries:  map[string]models.ContestEntry{},
	}
}

func (t *tx) Ledger() repo.Ledger         { return ledger{t} }
func (t *tx) Balances() repo.BalanceCache { return balances{t} }
func (t *tx) Contests() repo.Contests     { return contests{t} }
func (t *tx) Entries() repo.Entries       { return entries{t} }

package memory

import (
	"context"
	"iter"

	"github.com/google/uuid"

	"github.com/baharkarakas/token-contests/internal/models"
)

type ledger struct{ t *tx }

func (l ledger) Append(ctx context.Context, r models.TransferRecord) (string, error) {
	r.Amount = models.NormalizeAmount(r.Amount)
	if err := r.Validate(); err != nil {
		return "", err
	}
	r.ID = uuid.NewString()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = l.t.s.now().UTC()
	}
	l.t.transfers = append(l.t.transfers, r)
	return r.ID, nil
}

func (l ledger) Get(ctx context.Context, id string) (models.TransferRecord, error) {
	for _, r := range l.t.transfers {
		if r.ID == id {
			return r, nil
		}
	}
	s := l.t.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.byID[id]; ok {
		return s.transfers[i], nil
	}
	return models.TransferRecord{}, models.NotFound("ledger.get", "transfer "+id)
}

// snapshot captures the committed prefix plus staged records. Committed
// records are immutable, so sharing the backing array is safe.
func (l ledger) snapshot() []models.TransferRecord {
	s := l.t.s
	s.mu.RLock()
	committed := s.transfers[:len(s.transfers):len(s.transfers)]
	s.mu.RUnlock()
	if len(l.t.transfers) == 0 {
		return committed
	}
	out := make([]models.TransferRecord, 0, len(committed)+len(l.t.transfers))
	out = append(out, committed...)
	return append(out, l.t.transfers...)
}

func (l ledger) Query(ctx context.Context, f models.TransferFilter) iter.Seq2[models.TransferRecord, error] {
	snap := l.snapshot()
	return func(yield func(models.TransferRecord, error) bool) {
		for _, r := range snap {
			if err := ctx.Err(); err != nil {
				yield(models.TransferRecord{}, err)
				return
			}
			if !f.Match(r) {
				continue
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

func (l ledger) Keys(ctx context.Context) ([]models.BalanceKey, error) {
	seen := map[models.BalanceKey]struct{}{}
	var out []models.BalanceKey
	add := func(a models.Account, tokenID string) {
		k := models.UserKey(a.UserID, tokenID)
		if a.IsFeature() {
			k = models.FeatureKey(tokenID, a.Feature, a.FeatureTokenID)
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	for _, r := range l.snapshot() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		add(r.From, r.TokenID)
		add(r.To, r.TokenID)
	}
	return out, nil
}

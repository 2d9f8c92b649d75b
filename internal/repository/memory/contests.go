package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/baharkarakas/token-contests/internal/models"
)

type contests struct{ t *tx }

func (c contests) Create(ctx context.Context, v models.Contest) (models.Contest, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := c.t.s.now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	c.t.contests[v.ID] = v
	return v, nil
}

func (c contests) GetByID(ctx context.Context, id string) (models.Contest, error) {
	if v, ok := c.t.contests[id]; ok {
		return v, nil
	}
	c.t.s.mu.RLock()
	defer c.t.s.mu.RUnlock()
	if v, ok := c.t.s.contests[id]; ok {
		return v, nil
	}
	return models.Contest{}, models.NotFound("contests.get", "contest "+id)
}

func (c contests) Update(ctx context.Context, v models.Contest) error {
	cur, err := c.GetByID(ctx, v.ID)
	if err != nil {
		return err
	}
	if cur.Status == models.ContestClosed && v.Status != models.ContestClosed {
		return models.StateErr("contests.update", "contest "+v.ID+" is closed")
	}
	v.UpdatedAt = c.t.s.now().UTC()
	c.t.contests[v.ID] = v
	return nil
}

type entries struct{ t *tx }

func (e entries) Create(ctx context.Context, v models.ContestEntry) (models.ContestEntry, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.CreatedAt = e.t.s.now().UTC()
	e.t.entries[v.ID] = v
	e.t.newEntries = append(e.t.newEntries, v.ID)
	return v, nil
}

func (e entries) GetByID(ctx context.Context, id string) (models.ContestEntry, error) {
	if v, ok := e.t.entries[id]; ok {
		return v, nil
	}
	e.t.s.mu.RLock()
	defer e.t.s.mu.RUnlock()
	if v, ok := e.t.s.entries[id]; ok {
		return v, nil
	}
	return models.ContestEntry{}, models.NotFound("entries.get", "entry "+id)
}

func (e entries) ListByContest(ctx context.Context, contestID string) ([]models.ContestEntry, error) {
	e.t.s.mu.RLock()
	ids := append(append([]string(nil), e.t.s.entryIDs...), e.t.newEntries...)
	e.t.s.mu.RUnlock()

	out := []models.ContestEntry{}
	for _, id := range ids {
		v, err := e.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if v.ContestID == contestID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (e entries) MarkWinner(ctx context.Context, id, transferID string) error {
	v, err := e.GetByID(ctx, id)
	if err != nil {
		return err
	}
	v.IsWinner = true
	v.WinnerTransferID = &transferID
	e.t.entries[id] = v
	return nil
}

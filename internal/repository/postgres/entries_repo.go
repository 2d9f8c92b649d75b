package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/baharkarakas/token-contests/internal/models"
)

type entriesRepo struct{ tx pgx.Tx }

const entryCols = `id::text, contest_id::text, submitter, submission_url, is_winner, winner_transfer_id::text, created_at`

func (r *entriesRepo) Create(ctx context.Context, e models.ContestEntry) (models.ContestEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	out, err := scanEntry(r.tx.QueryRow(ctx, `
INSERT INTO contest_entries (id, contest_id, submitter, submission_url, is_winner)
VALUES ($1, $2, $3, $4, false)
RETURNING `+entryCols,
		e.ID, e.ContestID, e.Submitter, e.SubmissionURL,
	))
	if err != nil {
		return models.ContestEntry{}, fmt.Errorf("insert entry: %w", err)
	}
	return out, nil
}

func (r *entriesRepo) GetByID(ctx context.Context, id string) (models.ContestEntry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.ContestEntry{}, models.NotFound("entries.get", "entry "+id)
	}
	e, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryCols+` FROM contest_entries WHERE id = $1`, id))
	if err != nil {
		return models.ContestEntry{}, notFound("entries.get", "entry "+id, err)
	}
	return e, nil
}

func (r *entriesRepo) ListByContest(ctx context.Context, contestID string) ([]models.ContestEntry, error) {
	out := []models.ContestEntry{}
	if _, err := uuid.Parse(contestID); err != nil {
		return out, nil
	}
	rows, err := r.tx.Query(ctx,
		`SELECT `+entryCols+` FROM contest_entries WHERE contest_id = $1 ORDER BY created_at, id`,
		contestID,
	)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *entriesRepo) MarkWinner(ctx context.Context, id, transferID string) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE contest_entries SET is_winner = true, winner_transfer_id = $2 WHERE id = $1`,
		id, transferID,
	)
	if err != nil {
		return fmt.Errorf("mark winner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.NotFound("entries.mark_winner", "entry "+id)
	}
	return nil
}

func scanEntry(row pgx.Row) (models.ContestEntry, error) {
	var e models.ContestEntry
	err := row.Scan(&e.ID, &e.ContestID, &e.Submitter, &e.SubmissionURL,
		&e.IsWinner, &e.WinnerTransferID, &e.CreatedAt)
	return e, err
}

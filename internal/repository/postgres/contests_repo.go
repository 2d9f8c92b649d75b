package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/token-contests/internal/models"
)

type contestsRepo struct{ tx pgx.Tx }

const contestCols = `id::text, creator, title, description, prize_token_id,
  prize_token_amount::text, prize_token_winners, status, end_date, created_at, updated_at`

func (r *contestsRepo) Create(ctx context.Context, c models.Contest) (models.Contest, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := r.tx.QueryRow(ctx, `
INSERT INTO contests (
  id, creator, title, description, prize_token_id,
  prize_token_amount, prize_token_winners, status, end_date
) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)
RETURNING `+contestCols,
		c.ID, c.Creator, c.Title, c.Description, c.PrizeTokenID,
		models.NormalizeAmount(c.PrizeAmount).String(), c.PrizeWinners, string(c.Status), nullTime(c.EndDate),
	)
	out, err := scanContest(row)
	if err != nil {
		return models.Contest{}, fmt.Errorf("insert contest: %w", err)
	}
	return out, nil
}

func (r *contestsRepo) GetByID(ctx context.Context, id string) (models.Contest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Contest{}, models.NotFound("contests.get", "contest "+id)
	}
	c, err := scanContest(r.tx.QueryRow(ctx, `SELECT `+contestCols+` FROM contests WHERE id = $1`, id))
	if err != nil {
		return models.Contest{}, notFound("contests.get", "contest "+id, err)
	}
	return c, nil
}

func (r *contestsRepo) Update(ctx context.Context, c models.Contest) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE contests
		    SET title = $2, description = $3, end_date = $4, status = $5, updated_at = now()
		  WHERE id = $1`,
		c.ID, c.Title, c.Description, nullTime(c.EndDate), string(c.Status),
	)
	if err != nil {
		return fmt.Errorf("update contest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.NotFound("contests.update", "contest "+c.ID)
	}
	return nil
}

func scanContest(row pgx.Row) (models.Contest, error) {
	var c models.Contest
	var amount, status string
	var end *time.Time
	err := row.Scan(&c.ID, &c.Creator, &c.Title, &c.Description, &c.PrizeTokenID,
		&amount, &c.PrizeWinners, &status, &end, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	c.Status = models.ContestStatus(status)
	if end != nil {
		c.EndDate = *end
	}
	c.PrizeAmount, err = decimal.NewFromString(amount)
	return c, err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

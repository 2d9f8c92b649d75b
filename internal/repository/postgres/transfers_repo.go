package postgres

import (
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/token-contests/internal/models"
)

type transfersRepo struct{ tx pgx.Tx }

const transferCols = `id::text, amount::text, token_id,
  from_user_id, from_feature, from_feature_token_id,
  to_user_id, to_feature, to_feature_token_id,
  kind, reference, created_at`

func (r *transfersRepo) Append(ctx context.Context, rec models.TransferRecord) (string, error) {
	rec.Amount = models.NormalizeAmount(rec.Amount)
	if err := rec.Validate(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err := r.tx.Exec(ctx, `
INSERT INTO transfers (
  id, amount, token_id,
  from_user_id, from_feature, from_feature_token_id,
  to_user_id, to_feature, to_feature_token_id,
  kind, reference
) VALUES ($1, $2::numeric, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id, rec.Amount.String(), rec.TokenID,
		rec.From.UserID, rec.From.Feature, rec.From.FeatureTokenID,
		rec.To.UserID, rec.To.Feature, rec.To.FeatureTokenID,
		string(rec.Kind), rec.Reference,
	)
	if err != nil {
		return "", fmt.Errorf("insert transfer: %w", err)
	}
	return id, nil
}

func (r *transfersRepo) Get(ctx context.Context, id string) (models.TransferRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.TransferRecord{}, models.NotFound("ledger.get", "transfer "+id)
	}
	rec, err := scanTransfer(r.tx.QueryRow(ctx, `SELECT `+transferCols+` FROM transfers WHERE id = $1`, id))
	if err != nil {
		return models.TransferRecord{}, notFound("ledger.get", "transfer "+id, err)
	}
	return rec, nil
}

// Query pins the upper bound of the sequence to the ledger head at call time;
// each range re-runs the parameterised query.
func (r *transfersRepo) Query(ctx context.Context, f models.TransferFilter) iter.Seq2[models.TransferRecord, error] {
	var head int64
	headErr := r.tx.QueryRow(ctx, `SELECT coalesce(max(seq), 0) FROM transfers`).Scan(&head)

	var acct models.Account
	if f.Account != nil {
		acct = *f.Account
	}
	return func(yield func(models.TransferRecord, error) bool) {
		if headErr != nil {
			yield(models.TransferRecord{}, fmt.Errorf("ledger head: %w", headErr))
			return
		}
		rows, err := r.tx.Query(ctx, `
SELECT `+transferCols+`
  FROM transfers
 WHERE seq <= $1
   AND ($2 = '' OR token_id = $2)
   AND ($3 = '' OR kind = $3)
   AND (NOT $4::bool
        OR (from_user_id = $5 AND from_feature = $6 AND from_feature_token_id = $7)
        OR (to_user_id = $5 AND to_feature = $6 AND to_feature_token_id = $7))
 ORDER BY seq`,
			head, f.TokenID, string(f.Kind), f.Account != nil,
			acct.UserID, acct.Feature, acct.FeatureTokenID,
		)
		if err != nil {
			yield(models.TransferRecord{}, fmt.Errorf("query transfers: %w", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanTransfer(rows)
			if err != nil {
				yield(models.TransferRecord{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.TransferRecord{}, err)
		}
	}
}

func (r *transfersRepo) Keys(ctx context.Context) ([]models.BalanceKey, error) {
	rows, err := r.tx.Query(ctx, `
SELECT from_user_id, token_id, from_feature, from_feature_token_id FROM transfers
UNION
SELECT to_user_id, token_id, to_feature, to_feature_token_id FROM transfers`)
	if err != nil {
		return nil, fmt.Errorf("query ledger keys: %w", err)
	}
	defer rows.Close()

	var out []models.BalanceKey
	for rows.Next() {
		var k models.BalanceKey
		if err := rows.Scan(&k.UserID, &k.TokenID, &k.Feature, &k.FeatureTokenID); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func scanTransfer(row pgx.Row) (models.TransferRecord, error) {
	var rec models.TransferRecord
	var amount, kind string
	err := row.Scan(
		&rec.ID, &amount, &rec.TokenID,
		&rec.From.UserID, &rec.From.Feature, &rec.From.FeatureTokenID,
		&rec.To.UserID, &rec.To.Feature, &rec.To.FeatureTokenID,
		&kind, &rec.Reference, &rec.CreatedAt,
	)
	if err != nil {
		return rec, err
	}
	rec.Kind = models.TransferKind(kind)
	rec.Amount, err = decimal.NewFromString(amount)
	return rec, err
}

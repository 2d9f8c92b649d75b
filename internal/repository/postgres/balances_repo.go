package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/token-contests/internal/models"
)

type balancesRepo struct{ tx pgx.Tx }

func (r *balancesRepo) GetUser(ctx context.Context, userID, tokenID string) (models.UserBalance, bool, error) {
	b := models.UserBalance{UserID: userID, TokenID: tokenID}
	var amount string
	err := r.tx.QueryRow(ctx,
		`SELECT balance::text, updated_at
		   FROM user_balances
		  WHERE user_id = $1 AND token_id = $2`,
		userID, tokenID,
	).Scan(&amount, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, false, nil
	}
	if err != nil {
		return b, false, fmt.Errorf("get user balance: %w", err)
	}
	b.Balance, err = decimal.NewFromString(amount)
	return b, err == nil, err
}

func (r *balancesRepo) UpsertUser(ctx context.Context, b models.UserBalance) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO user_balances (user_id, token_id, balance, updated_at)
		 VALUES ($1, $2, $3::numeric, now())
		 ON CONFLICT (user_id, token_id) DO UPDATE
		    SET balance = EXCLUDED.balance,
		        updated_at = now()`,
		b.UserID, b.TokenID, b.Balance.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert user balance: %w", err)
	}
	return nil
}

func (r *balancesRepo) GetFeature(ctx context.Context, tokenID, feature, featureTokenID string) (models.FeatureBalance, bool, error) {
	b := models.FeatureBalance{TokenID: tokenID, Feature: feature, FeatureTokenID: featureTokenID}
	var amount string
	err := r.tx.QueryRow(ctx,
		`SELECT balance::text, updated_at
		   FROM feature_balances
		  WHERE token_id = $1 AND feature = $2 AND feature_token_id = $3`,
		tokenID, feature, featureTokenID,
	).Scan(&amount, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, false, nil
	}
	if err != nil {
		return b, false, fmt.Errorf("get feature balance: %w", err)
	}
	b.Balance, err = decimal.NewFromString(amount)
	return b, err == nil, err
}

func (r *balancesRepo) UpsertFeature(ctx context.Context, b models.FeatureBalance) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO feature_balances (token_id, feature, feature_token_id, balance, updated_at)
		 VALUES ($1, $2, $3, $4::numeric, now())
		 ON CONFLICT (token_id, feature, feature_token_id) DO UPDATE
		    SET balance = EXCLUDED.balance,
		        updated_at = now()`,
		b.TokenID, b.Feature, b.FeatureTokenID, b.Balance.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert feature balance: %w", err)
	}
	return nil
}

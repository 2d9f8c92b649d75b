package services

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/token-contests/internal/metrics"
	"github.com/baharkarakas/token-contests/internal/models"
	repo "github.com/baharkarakas/token-contests/internal/repository"
)

// Aggregator derives balances by folding the ledger. Compute* are pure reads;
// Refresh* also write the cache row through the same transaction.
type Aggregator struct{}

func NewAggregator() *Aggregator { return &Aggregator{} }

func (a *Aggregator) fold(ctx context.Context, tx repo.Tx, acct models.Account, tokenID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for r, err := range tx.Ledger().Query(ctx, models.TransferFilter{TokenID: tokenID, Account: &acct}) {
		if err != nil {
			return decimal.Zero, err
		}
		if r.To == acct {
			sum = sum.Add(r.Amount)
		}
		if r.From == acct {
			sum = sum.Sub(r.Amount)
		}
	}
	return sum, nil
}

func (a *Aggregator) ComputeUserBalance(ctx context.Context, tx repo.Tx, userID, tokenID string) (decimal.Decimal, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(tokenID) == "" {
		return decimal.Zero, nil
	}
	return a.fold(ctx, tx, models.UserAccount(userID), tokenID)
}

func (a *Aggregator) RefreshUserBalance(ctx context.Context, tx repo.Tx, userID, tokenID string) (decimal.Decimal, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(tokenID) == "" {
		return decimal.Zero, models.Validation("balance.refresh_user",
			models.FieldError{Field: "user_id/token_id", Msg: "required"})
	}
	bal, err := a.ComputeUserBalance(ctx, tx, userID, tokenID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := tx.Balances().UpsertUser(ctx, models.UserBalance{UserID: userID, TokenID: tokenID, Balance: bal}); err != nil {
		return decimal.Zero, err
	}
	metrics.CacheRefreshes.WithLabelValues("user").Inc()
	return bal, nil
}

// ComputeFeatureBalance returns zero for a blank feature name or feature
// token; such a balance is meaningless rather than an error.
func (a *Aggregator) ComputeFeatureBalance(ctx context.Context, tx repo.Tx, tokenID, feature, featureTokenID string) (decimal.Decimal, error) {
	if blankFeature(tokenID, feature, featureTokenID) {
		return decimal.Zero, nil
	}
	return a.fold(ctx, tx, models.FeatureAccount(feature, featureTokenID), tokenID)
}

// RefreshFeatureBalance skips the cache write for blank identifiers.
func (a *Aggregator) RefreshFeatureBalance(ctx context.Context, tx repo.Tx, tokenID, feature, featureTokenID string) (decimal.Decimal, error) {
	if blankFeature(tokenID, feature, featureTokenID) {
		return decimal.Zero, nil
	}
	bal, err := a.ComputeFeatureBalance(ctx, tx, tokenID, feature, featureTokenID)
	if err != nil {
		return decimal.Zero, err
	}
	err = tx.Balances().UpsertFeature(ctx, models.FeatureBalance{
		TokenID: tokenID, Feature: feature, FeatureTokenID: featureTokenID, Balance: bal,
	})
	if err != nil {
		return decimal.Zero, err
	}
	metrics.CacheRefreshes.WithLabelValues("feature").Inc()
	return bal, nil
}

// Refresh recomputes the cache row addressed by k.
func (a *Aggregator) Refresh(ctx context.Context, tx repo.Tx, k models.BalanceKey) (decimal.Decimal, error) {
	if k.IsUser() {
		return a.RefreshUserBalance(ctx, tx, k.UserID, k.TokenID)
	}
	return a.RefreshFeatureBalance(ctx, tx, k.TokenID, k.Feature, k.FeatureTokenID)
}

func blankFeature(tokenID, feature, featureTokenID string) bool {
	return strings.TrimSpace(tokenID) == "" ||
		strings.TrimSpace(feature) == "" ||
		strings.TrimSpace(featureTokenID) == ""
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type UserBalance struct {
	UserID    string          `json:"user_id"`
	TokenID   string          `json:"token_id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type FeatureBalance struct {
	TokenID        string          `json:"token_id"`
	Feature        string          `json:"feature"`
	FeatureTokenID string          `json:"feature_token_id"`
	Balance        decimal.Decimal `json:"balance"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// BalanceKey addresses a single cache row. Feature keys leave UserID empty.
type BalanceKey struct {
	UserID         string
	TokenID        string
	Feature        string
	FeatureTokenID string
}

func UserKey(userID, tokenID string) BalanceKey {
	return BalanceKey{UserID: userID, TokenID: tokenID}
}

func FeatureKey(tokenID, feature, featureTokenID string) BalanceKey {
	return BalanceKey{TokenID: tokenID, Feature: feature, FeatureTokenID: featureTokenID}
}

func (k BalanceKey) IsUser() bool { return k.UserID != "" }

// Account returns the ledger account the key folds over.
func (k BalanceKey) Account() Account {
	if k.IsUser() {
		return UserAccount(k.UserID)
	}
	return FeatureAccount(k.Feature, k.FeatureTokenID)
}

// LockKey is the per-(account, token) serialisation key.
func (k BalanceKey) LockKey() string { return k.Account().Key(k.TokenID) }

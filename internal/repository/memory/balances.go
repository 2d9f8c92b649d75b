package memory

import (
	"context"

	"github.com/baharkarakas/token-contests/internal/models"
)

type balances struct{ t *tx }

func (b balances) GetUser(ctx context.Context, userID, tokenID string) (models.UserBalance, bool, error) {
	k := userKey{userID, tokenID}
	if v, ok := b.t.users[k]; ok {
		return v, true, nil
	}
	b.t.s.mu.RLock()
	defer b.t.s.mu.RUnlock()
	v, ok := b.t.s.users[k]
	return v, ok, nil
}

func (b balances) UpsertUser(ctx context.Context, v models.UserBalance) error {
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = b.t.s.now().UTC()
	}
	b.t.users[userKey{v.UserID, v.TokenID}] = v
	return nil
}

func (b balances) GetFeature(ctx context.Context, tokenID, feature, featureTokenID string) (models.FeatureBalance, bool, error) {
	k := featureKey{tokenID, feature, featureTokenID}
	if v, ok := b.t.features[k]; ok {
		return v, true, nil
	}
	b.t.s.mu.RLock()
	defer b.t.s.mu.RUnlock()
	v, ok := b.t.s.features[k]
	return v, ok, nil
}

func (b balances) UpsertFeature(ctx context.Context, v models.FeatureBalance) error {
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = b.t.s.now().UTC()
	}
	b.t.features[featureKey{v.TokenID, v.Feature, v.FeatureTokenID}] = v
	return nil
}

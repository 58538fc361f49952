package repository

import (
	"context"
	"time"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
)

// -----------------------------
// User subscriptions
// -----------------------------

type SubscriptionRepository interface {
	// FindByUserID locks the row (FOR UPDATE) when tx is a transaction.
	FindByUserID(ctx context.Context, tx Tx, userID string) (*model.UserSubscription, error)
	// Upsert writes the single row keyed by user id; the last write wins.
	Upsert(ctx context.Context, tx Tx, s *model.UserSubscription) error
	// DeactivateExpired clears is_active on non-lifetime rows past their expiry.
	DeactivateExpired(ctx context.Context, tx Tx, now time.Time) (int, error)
}

// -----------------------------
// Renewal audit
// -----------------------------

type RenewalRepository interface {
	// Save appends a record; inserted is false when the purchase already has one.
	Save(ctx context.Context, tx Tx, r *model.RenewalRecord) (inserted bool, err error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.RenewalRecord, error)
}

package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `
user_id, plan_id, plan_name, tier, purchase_id, started_at, expires_at, is_lifetime, is_active,
can_see_who_liked, can_use_advanced_filters, has_all_regions, can_video_call, is_profile_boosted,
daily_swipes_limit, auto_renew, mechanism, next_charge_at, failed_charges, updated_at`

func (r *subscriptionRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID string) (*model.UserSubscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE user_id=$1`
	if isTx(tx) {
		q += ` FOR UPDATE`
	}
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}

	var (
		s         model.UserSubscription
		tier      int16
		mechanism string
	)
	err = row.Scan(
		&s.UserID, &s.PlanID, &s.PlanName, &tier, &s.PurchaseID, &s.StartedAt, &s.ExpiresAt, &s.IsLifetime, &s.IsActive,
		&s.CanSeeWhoLiked, &s.CanUseAdvancedFilters, &s.HasAllRegions, &s.CanVideoCall, &s.IsProfileBoosted,
		&s.DailySwipesLimit, &s.AutoRenew, &mechanism, &s.NextChargeAt, &s.FailedCharges, &s.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, mapScanErr(err)
	}
	s.Tier = model.PlanTier(tier)
	s.Mechanism = model.PaymentMethod(mechanism)
	return &s, nil
}

// Upsert replaces the user's row wholesale. Expiry is whatever the caller
// computed; nothing is carried over from the previous row.
func (r *subscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.UserSubscription) error {
	if s == nil || s.UserID == "" {
		return domain.ErrInvalidArgument
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	const q = `
INSERT INTO user_subscriptions (` + subscriptionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (user_id) DO UPDATE SET
  plan_id=EXCLUDED.plan_id, plan_name=EXCLUDED.plan_name, tier=EXCLUDED.tier,
  purchase_id=EXCLUDED.purchase_id, started_at=EXCLUDED.started_at, expires_at=EXCLUDED.expires_at,
  is_lifetime=EXCLUDED.is_lifetime, is_active=EXCLUDED.is_active,
  can_see_who_liked=EXCLUDED.can_see_who_liked, can_use_advanced_filters=EXCLUDED.can_use_advanced_filters,
  has_all_regions=EXCLUDED.has_all_regions, can_video_call=EXCLUDED.can_video_call,
  is_profile_boosted=EXCLUDED.is_profile_boosted, daily_swipes_limit=EXCLUDED.daily_swipes_limit,
  auto_renew=EXCLUDED.auto_renew, mechanism=EXCLUDED.mechanism, next_charge_at=EXCLUDED.next_charge_at,
  failed_charges=EXCLUDED.failed_charges, updated_at=EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		s.UserID, s.PlanID, s.PlanName, int16(s.Tier), s.PurchaseID, s.StartedAt, s.ExpiresAt, s.IsLifetime, s.IsActive,
		s.CanSeeWhoLiked, s.CanUseAdvancedFilters, s.HasAllRegions, s.CanVideoCall, s.IsProfileBoosted,
		s.DailySwipesLimit, s.AutoRenew, string(s.Mechanism), s.NextChargeAt, s.FailedCharges, s.UpdatedAt,
	)
	return mapErr(err)
}

func (r *subscriptionRepo) DeactivateExpired(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	const q = `
UPDATE user_subscriptions
   SET is_active=false, updated_at=$1
 WHERE is_active AND NOT is_lifetime AND expires_at IS NOT NULL AND expires_at < $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(tag.RowsAffected()), nil
}

package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/ports/repository"
)

var _ repository.RenewalRepository = (*renewalRepo)(nil)

type renewalRepo struct {
	pool *pgxpool.Pool
}

func NewRenewalRepo(pool *pgxpool.Pool) *renewalRepo {
	return &renewalRepo{pool: pool}
}

// Save is append-only; a second record for the same purchase is dropped.
func (r *renewalRepo) Save(ctx context.Context, tx repository.Tx, rec *model.RenewalRecord) (bool, error) {
	if rec == nil || rec.ID == "" || rec.PurchaseID == "" {
		return false, domain.ErrInvalidArgument
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	const q = `
INSERT INTO subscription_renewals (
  id, user_id, purchase_id, previous_plan_id, previous_tier, previous_expires_at,
  new_plan_id, new_tier, new_expires_at, revenue_cents, is_upgrade, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (purchase_id) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		rec.ID, rec.UserID, rec.PurchaseID, rec.PreviousPlanID, int16(rec.PreviousTier), rec.PreviousExpiresAt,
		rec.NewPlanID, int16(rec.NewTier), rec.NewExpiresAt, rec.RevenueCents, rec.IsUpgrade, rec.CreatedAt,
	)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *renewalRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.RenewalRecord, error) {
	const q = `
SELECT id, user_id, purchase_id, previous_plan_id, previous_tier, previous_expires_at,
       new_plan_id, new_tier, new_expires_at, revenue_cents, is_upgrade, created_at
  FROM subscription_renewals
 WHERE user_id=$1
 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*model.RenewalRecord
	for rows.Next() {
		var (
			rec          model.RenewalRecord
			prevT, nextT int16
		)
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.PurchaseID, &rec.PreviousPlanID, &prevT, &rec.PreviousExpiresAt,
			&rec.NewPlanID, &nextT, &rec.NewExpiresAt, &rec.RevenueCents, &rec.IsUpgrade, &rec.CreatedAt,
		); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		rec.PreviousTier = model.PlanTier(prevT)
		rec.NewTier = model.PlanTier(nextT)
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

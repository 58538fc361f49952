package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/ports/repository"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/logging"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/metrics"
)

// Compile-time check
var _ ActivationUseCase = (*activationUC)(nil)

// ActivationUseCase turns a PAID, owned purchase into the user's entitlement row.
type ActivationUseCase interface {
	Activate(ctx context.Context, p *model.Purchase) (*model.UserSubscription, error)
	// ActivateByPaymentID re-runs activation for a stored purchase. It is the
	// repair path when an earlier activation failed after the ledger committed.
	ActivateByPaymentID(ctx context.Context, paymentID string) (*model.UserSubscription, error)
}

type activationUC struct {
	purchases repository.PurchaseRepository
	subs      repository.SubscriptionRepository
	renewals  repository.RenewalRepository
	tm        repository.TransactionManager
	now       func() time.Time
	log       *zerolog.Logger
}

func NewActivationUseCase(
	purchases repository.PurchaseRepository,
	subs repository.SubscriptionRepository,
	renewals repository.RenewalRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *activationUC {
	l := logger.With().Str("component", "ActivationUC").Logger()
	return &activationUC{
		purchases: purchases,
		subs:      subs,
		renewals:  renewals,
		tm:        tm,
		now:       func() time.Time { return time.Now().UTC() },
		log:       &l,
	}
}

// Activate upserts the subscription and, when the user already had one from
// another purchase, appends a renewal record. Expiry is always now + duration.
func (u *activationUC) Activate(ctx context.Context, p *model.Purchase) (*model.UserSubscription, error) {
	defer logging.TraceDuration(u.log, "ActivationUC.Activate")()

	if p == nil {
		return nil, domain.ErrInvalidArgument
	}
	if p.Status != model.PurchaseStatusPaid {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrPurchaseNotPaid, p.PaymentID, p.Status)
	}
	if !p.HasUser() {
		return nil, domain.ErrMissingUser
	}
	userID := *p.UserID
	now := u.now()

	var (
		result  *model.UserSubscription
		granted bool
		renewal *model.RenewalRecord
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		prev, err := u.subs.FindByUserID(ctx, tx, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if prev != nil && prev.PurchaseID == p.ID {
			// already granted by this purchase
			result = prev
			return nil
		}

		next, err := model.NewUserSubscription(userID, p, now)
		if err != nil {
			return err
		}
		if err := u.subs.Upsert(ctx, tx, next); err != nil {
			return err
		}
		result, granted = next, true

		if prev == nil {
			return nil
		}
		rec := model.NewRenewalRecord(prev, next, p.TotalPriceCents, now)
		inserted, err := u.renewals.Save(ctx, tx, rec)
		if err != nil {
			return err
		}
		if inserted {
			renewal = rec
		}
		return nil
	})
	if err != nil {
		u.log.Error().Err(err).Str("payment_id", p.PaymentID).Str("user_id", userID).Msg("activation failed")
		return nil, err
	}

	if granted {
		metrics.IncSubscriptionActivated(result.Tier.String())
		ev := u.log.Info().Str("payment_id", p.PaymentID).Str("user_id", userID).Str("plan", result.PlanID).Bool("lifetime", result.IsLifetime)
		if result.ExpiresAt != nil {
			ev = ev.Time("expires_at", *result.ExpiresAt)
		}
		ev.Msg("subscription activated")
	}
	if renewal != nil {
		metrics.IncRenewal(renewal.Direction())
	}
	return result, nil
}

func (u *activationUC) ActivateByPaymentID(ctx context.Context, paymentID string) (*model.UserSubscription, error) {
	p, err := u.purchases.FindByPaymentID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	return u.Activate(ctx, p)
}

package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/ports/repository"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/metrics"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

type SubscriptionUseCase interface {
	Get(ctx context.Context, userID string) (*model.UserSubscription, error)
	History(ctx context.Context, userID string) ([]*model.RenewalRecord, error)
	// ExpireOverdue clears the active flag of non-lifetime rows past expiry.
	ExpireOverdue(ctx context.Context) (int, error)
}

type subscriptionUC struct {
	subs     repository.SubscriptionRepository
	renewals repository.RenewalRepository
	now      func() time.Time
	log      *zerolog.Logger
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, renewals repository.RenewalRepository, logger *zerolog.Logger) *subscriptionUC {
	l := logger.With().Str("component", "SubscriptionUC").Logger()
	return &subscriptionUC{
		subs:     subs,
		renewals: renewals,
		now:      func() time.Time { return time.Now().UTC() },
		log:      &l,
	}
}

func (u *subscriptionUC) Get(ctx context.Context, userID string) (*model.UserSubscription, error) {
	return u.subs.FindByUserID(ctx, repository.NoTX, userID)
}

func (u *subscriptionUC) History(ctx context.Context, userID string) ([]*model.RenewalRecord, error) {
	return u.renewals.ListByUser(ctx, repository.NoTX, userID)
}

func (u *subscriptionUC) ExpireOverdue(ctx context.Context) (int, error) {
	n, err := u.subs.DeactivateExpired(ctx, repository.NoTX, u.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.IncSubscriptionsExpired(n)
		u.log.Info().Int("count", n).Msg("expired subscriptions deactivated")
	}
	return n, nil
}

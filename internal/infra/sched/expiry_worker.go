package sched

import (
	"context"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/usecase"
)

const JobExpiry = "expiry"

// ExpiryWorker clears the active flag of overdue subscriptions.
type ExpiryWorker struct {
	subs usecase.SubscriptionUseCase
}

var _ Job = (*ExpiryWorker)(nil)

func NewExpiryWorker(subs usecase.SubscriptionUseCase) *ExpiryWorker {
	return &ExpiryWorker{subs: subs}
}

func (w *ExpiryWorker) Name() string { return JobExpiry }

func (w *ExpiryWorker) Run(ctx context.Context) (int, error) {
	return w.subs.ExpireOverdue(ctx)
}

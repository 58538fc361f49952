package sched

import (
	"context"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/usecase"
)

const JobReconcile = "reconcile"

// PaymentReconciler re-queries recent PENDING purchases so a missed webhook or
// an abandoned poll still settles the ledger.
type PaymentReconciler struct {
	ledger usecase.LedgerUseCase
}

var _ Job = (*PaymentReconciler)(nil)

func NewPaymentReconciler(ledger usecase.LedgerUseCase) *PaymentReconciler {
	return &PaymentReconciler{ledger: ledger}
}

func (w *PaymentReconciler) Name() string { return JobReconcile }

func (w *PaymentReconciler) Run(ctx context.Context) (int, error) {
	res, err := w.ledger.ReconcilePending(ctx)
	return res.Paid + res.Failed, err
}

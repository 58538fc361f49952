package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/ports/adapter"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/ports/repository"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/logging"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/metrics"
)

// Compile-time check
var _ LedgerUseCase = (*ledgerUC)(nil)

const (
	EventChargeCompleted = "OPENPIX:CHARGE_COMPLETED"
	EventChargeConfirmed = "OPENPIX:CHARGE_CONFIRMED"
)

// GatewayEvent is an inbound provider notification about one charge.
type GatewayEvent struct {
	Event        string
	PaymentID    string
	ChargeStatus string
}

// IsPaid reports whether the event announces a settled charge.
func (e GatewayEvent) IsPaid() bool {
	switch strings.ToUpper(e.Event) {
	case EventChargeCompleted, EventChargeConfirmed:
		return true
	}
	switch strings.ToUpper(e.ChargeStatus) {
	case "COMPLETED", "CONFIRMED":
		return true
	}
	return false
}

// SweepResult summarizes one reconciliation pass.
type SweepResult struct {
	Scanned       int
	Paid          int
	Failed        int
	StillPending  int
	GatewayErrors int
}

type LedgerConfig struct {
	PendingWindow time.Duration
	Batch         int
}

// LedgerUseCase owns purchase status. Status moves PENDING -> PAID | FAILED
// once; side effects run only for the caller that performed the move.
type LedgerUseCase interface {
	RecordPending(ctx context.Context, p *model.Purchase) error
	// AttachCharge stores the buyer-facing charge fields on a recorded purchase.
	AttachCharge(ctx context.Context, p *model.Purchase) error
	Get(ctx context.Context, paymentID string) (*model.Purchase, error)
	ApplyStatus(ctx context.Context, paymentID string, status model.PurchaseStatus) (*model.Purchase, bool, error)
	// Refresh is the client status poll: one gateway query, then ApplyStatus.
	Refresh(ctx context.Context, paymentID string) (*model.Purchase, error)
	ReconcilePending(ctx context.Context) (SweepResult, error)
	HandleGatewayEvent(ctx context.Context, ev GatewayEvent) (bool, error)
}

type ledgerUC struct {
	purchases  repository.PurchaseRepository
	gateway    adapter.PaymentGateway
	activation ActivationUseCase
	notifier   adapter.OrderNotifier
	cfg        LedgerConfig
	now        func() time.Time
	log        *zerolog.Logger
}

func NewLedgerUseCase(
	purchases repository.PurchaseRepository,
	gateway adapter.PaymentGateway,
	activation ActivationUseCase,
	notifier adapter.OrderNotifier,
	cfg LedgerConfig,
	logger *zerolog.Logger,
) *ledgerUC {
	if cfg.PendingWindow <= 0 {
		cfg.PendingWindow = 24 * time.Hour
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	l := logger.With().Str("component", "LedgerUC").Logger()
	return &ledgerUC{
		purchases:  purchases,
		gateway:    gateway,
		activation: activation,
		notifier:   notifier,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		log:        &l,
	}
}

func (u *ledgerUC) RecordPending(ctx context.Context, p *model.Purchase) error {
	if p == nil || p.PaymentID == "" {
		return domain.ErrInvalidArgument
	}
	p.Status = model.PurchaseStatusPending
	if p.ID == "" {
		p.ID = model.NewID()
	}
	if err := u.purchases.Save(ctx, repository.NoTX, p); err != nil {
		return fmt.Errorf("record pending purchase: %w", err)
	}
	metrics.IncPayment(string(model.PurchaseStatusPending))
	return nil
}

func (u *ledgerUC) AttachCharge(ctx context.Context, p *model.Purchase) error {
	if p == nil || p.PaymentID == "" {
		return domain.ErrInvalidArgument
	}
	if err := u.purchases.SetChargeDetails(ctx, repository.NoTX, p.PaymentID, p.PixCode, p.QRImage, p.PaymentLinkURL); err != nil {
		return fmt.Errorf("attach charge: %w", err)
	}
	return nil
}

func (u *ledgerUC) Get(ctx context.Context, paymentID string) (*model.Purchase, error) {
	return u.purchases.FindByPaymentID(ctx, repository.NoTX, paymentID)
}

func (u *ledgerUC) ApplyStatus(ctx context.Context, paymentID string, status model.PurchaseStatus) (*model.Purchase, bool, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.ApplyStatus")()

	if !status.Valid() {
		return nil, false, fmt.Errorf("%w: status %q", domain.ErrInvalidArgument, status)
	}
	p, err := u.purchases.FindByPaymentID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, false, err
	}
	if status == model.PurchaseStatusPending || p.Status.IsTerminal() {
		return p, false, nil
	}

	now := u.now()
	var paidAt *time.Time
	if status == model.PurchaseStatusPaid {
		paidAt = &now
	}
	changed, err := u.purchases.UpdateStatusIfPending(ctx, repository.NoTX, paymentID, status, paidAt)
	if err != nil {
		return p, false, err
	}
	if !changed {
		// another poller or webhook won the race
		cur, err := u.purchases.FindByPaymentID(ctx, repository.NoTX, paymentID)
		if err != nil {
			return p, false, err
		}
		return cur, false, nil
	}

	p.Status = status
	p.PaidAt = paidAt
	p.UpdatedAt = now
	metrics.IncPayment(string(status))
	u.log.Info().Str("payment_id", paymentID).Str("status", string(status)).Msg("purchase status changed")

	if status == model.PurchaseStatusPaid {
		metrics.AddPaymentRevenue(string(p.Method), p.TotalPriceCents)
		u.afterPaid(ctx, p)
	}
	return p, true, nil
}

// afterPaid activates owned purchases and emits the paid order event. Neither
// step can undo the committed status.
func (u *ledgerUC) afterPaid(ctx context.Context, p *model.Purchase) {
	if p.HasUser() {
		if _, err := u.activation.Activate(ctx, p); err != nil {
			u.log.Error().Err(err).Str("payment_id", p.PaymentID).Msg("activation after payment failed; repair via admin activate")
		}
	}
	u.notifier.Notify(ctx, adapter.OrderEvent{Status: adapter.OrderPaid, Purchase: p})
}

func (u *ledgerUC) Refresh(ctx context.Context, paymentID string) (*model.Purchase, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.Refresh")()

	p, err := u.purchases.FindByPaymentID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status.IsTerminal() {
		return p, nil
	}

	status, err := u.gateway.QueryStatus(ctx, paymentID)
	if err != nil {
		u.log.Warn().Err(err).Str("payment_id", paymentID).Msg("status query failed")
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
		}
		return p, err
	}
	if !status.IsTerminal() {
		return p, nil
	}
	cur, _, err := u.ApplyStatus(ctx, paymentID, status)
	if err != nil {
		return p, err
	}
	return cur, nil
}

// ReconcilePending re-queries recent PENDING rows. Rows older than the window
// stay PENDING for good.
func (u *ledgerUC) ReconcilePending(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	since := u.now().Add(-u.cfg.PendingWindow)
	pending, err := u.purchases.ListPendingSince(ctx, repository.NoTX, since, u.cfg.Batch)
	if err != nil {
		return res, fmt.Errorf("list pending: %w", err)
	}

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Scanned++
		status, err := u.gateway.QueryStatus(ctx, p.PaymentID)
		if err != nil {
			res.GatewayErrors++
			u.log.Warn().Err(err).Str("payment_id", p.PaymentID).Msg("reconcile: status query failed")
			continue
		}
		if !status.IsTerminal() {
			res.StillPending++
			continue
		}
		_, changed, err := u.ApplyStatus(ctx, p.PaymentID, status)
		if err != nil {
			u.log.Error().Err(err).Str("payment_id", p.PaymentID).Msg("reconcile: apply status failed")
			continue
		}
		if !changed {
			continue
		}
		if status == model.PurchaseStatusPaid {
			res.Paid++
		} else {
			res.Failed++
		}
	}

	if res.Scanned > 0 {
		u.log.Info().
			Int("scanned", res.Scanned).Int("paid", res.Paid).Int("failed", res.Failed).
			Int("pending", res.StillPending).Int("gateway_errors", res.GatewayErrors).
			Msg("pending purchases reconciled")
	}
	return res, nil
}

// HandleGatewayEvent applies settled-charge notifications and acknowledges
// everything else without side effects.
func (u *ledgerUC) HandleGatewayEvent(ctx context.Context, ev GatewayEvent) (bool, error) {
	if !ev.IsPaid() || ev.PaymentID == "" {
		u.log.Debug().Str("event", ev.Event).Msg("gateway event ignored")
		return false, nil
	}
	_, changed, err := u.ApplyStatus(ctx, ev.PaymentID, model.PurchaseStatusPaid)
	if errors.Is(err, domain.ErrNotFound) {
		u.log.Warn().Str("payment_id", ev.PaymentID).Str("event", ev.Event).Msg("gateway event for unknown charge")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return changed, nil
}

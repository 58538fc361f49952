package usecase

import (
	"context"
	"fmt"
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
var _ LinkerUseCase = (*linkerUC)(nil)

// LinkResult counts what happened to each orphan purchase looked at.
type LinkResult struct {
	Linked        int `json:"linked"`
	Activated     int `json:"activated"`
	Unconfirmed   int `json:"unconfirmed"`
	TrustedLedger int `json:"trusted_ledger"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
}

// LinkerUseCase attaches PAID purchases made before sign-up to the account
// with the same email, then activates them.
type LinkerUseCase interface {
	LinkByEmail(ctx context.Context, userID, email string) (LinkResult, error)
	SweepOrphans(ctx context.Context) (LinkResult, error)
}

type linkerUC struct {
	purchases  repository.PurchaseRepository
	users      repository.UserRepository
	gateway    adapter.PaymentGateway
	activation ActivationUseCase
	batch      int
	log        *zerolog.Logger
}

func NewLinkerUseCase(
	purchases repository.PurchaseRepository,
	users repository.UserRepository,
	gateway adapter.PaymentGateway,
	activation ActivationUseCase,
	batch int,
	logger *zerolog.Logger,
) *linkerUC {
	if batch <= 0 {
		batch = 100
	}
	l := logger.With().Str("component", "LinkerUC").Logger()
	return &linkerUC{
		purchases:  purchases,
		users:      users,
		gateway:    gateway,
		activation: activation,
		batch:      batch,
		log:        &l,
	}
}

// LinkByEmail runs right after sign-up. It records the account mirror and
// claims every PAID orphan for that email, oldest first.
func (u *linkerUC) LinkByEmail(ctx context.Context, userID, email string) (LinkResult, error) {
	defer logging.TraceDuration(u.log, "LinkerUC.LinkByEmail")()

	var res LinkResult
	if userID == "" {
		return res, fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)
	}
	user, err := model.NewUser(userID, email)
	if err != nil {
		return res, err
	}
	if err := u.users.Save(ctx, repository.NoTX, user); err != nil {
		return res, fmt.Errorf("save account mirror: %w", err)
	}

	orphans, err := u.purchases.ListPaidOrphansByEmail(ctx, repository.NoTX, user.Email)
	if err != nil {
		return res, fmt.Errorf("list orphans: %w", err)
	}
	for _, p := range orphans {
		u.link(ctx, p, user.ID, &res)
	}
	if len(orphans) > 0 {
		u.logResult(res, "orphans linked on sign-up")
	}
	return res, nil
}

// SweepOrphans handles a bounded batch of PAID orphans whose email already
// belongs to an account. Orphans without an account never reach the batch.
func (u *linkerUC) SweepOrphans(ctx context.Context) (LinkResult, error) {
	var res LinkResult
	orphans, err := u.purchases.ListLinkableOrphans(ctx, repository.NoTX, u.batch)
	if err != nil {
		return res, fmt.Errorf("list orphans: %w", err)
	}

	for _, o := range orphans {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		u.link(ctx, o.Purchase, o.UserID, &res)
	}
	if res.Linked > 0 || res.Unconfirmed > 0 || res.Failed > 0 {
		u.logResult(res, "orphan sweep finished")
	}
	return res, nil
}

// link confirms with the gateway before claiming, so an orphan the gateway
// does not report PAID stays unowned and is retried by the next sweep or
// sign-up.
func (u *linkerUC) link(ctx context.Context, p *model.Purchase, userID string, res *LinkResult) {
	trusted := false
	if !p.Method.Recurring() {
		status, err := u.confirm(ctx, p.PaymentID)
		switch {
		case err != nil:
			u.log.Warn().Err(err).Str("payment_id", p.PaymentID).Msg("gateway unreachable; trusting ledger PAID")
			trusted = true
		case status != model.PurchaseStatusPaid:
			u.log.Warn().Str("payment_id", p.PaymentID).Str("gateway_status", string(status)).
				Msg("ledger PAID not confirmed by gateway; left unlinked")
			res.Unconfirmed++
			metrics.IncOrphanLink("unconfirmed")
			if err := u.purchases.DeferOrphan(ctx, repository.NoTX, p.ID); err != nil {
				u.log.Warn().Err(err).Str("payment_id", p.PaymentID).Msg("defer orphan failed")
			}
			return
		}
	}

	claimed, err := u.purchases.SetUserIfUnset(ctx, repository.NoTX, p.ID, userID)
	if err != nil {
		u.log.Error().Err(err).Str("payment_id", p.PaymentID).Msg("claim failed")
		res.Failed++
		metrics.IncOrphanLink("failed")
		return
	}
	if !claimed {
		res.Skipped++
		metrics.IncOrphanLink("skipped")
		return
	}
	res.Linked++
	p.UserID = &userID

	if _, err := u.activation.Activate(ctx, p); err != nil {
		u.log.Error().Err(err).Str("payment_id", p.PaymentID).Str("user_id", userID).Msg("activation of linked purchase failed")
		res.Failed++
		metrics.IncOrphanLink("failed")
		return
	}
	res.Activated++
	if trusted {
		res.TrustedLedger++
		metrics.IncOrphanLink("trusted_ledger")
		return
	}
	metrics.IncOrphanLink("activated")
}

func (u *linkerUC) confirm(ctx context.Context, paymentID string) (model.PurchaseStatus, error) {
	cctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	return u.gateway.QueryStatus(cctx, paymentID)
}

func (u *linkerUC) logResult(res LinkResult, msg string) {
	u.log.Info().
		Int("linked", res.Linked).Int("activated", res.Activated).Int("unconfirmed", res.Unconfirmed).
		Int("trusted_ledger", res.TrustedLedger).Int("skipped", res.Skipped).Int("failed", res.Failed).
		Msg(msg)
}

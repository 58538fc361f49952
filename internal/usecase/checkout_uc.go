package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/ports/adapter"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/ports/repository"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/logging"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

// CheckoutInput is one plan selection from the funnel.
type CheckoutInput struct {
	PlanID      string
	AddOns      []string
	Method      model.PaymentMethod
	Customer    model.Customer
	Attribution model.Attribution
	QuizAnswers model.QuizAnswers
	// Buyer is set when the request carried a verified account token.
	Buyer *model.User
}

type CheckoutUseCase interface {
	Start(ctx context.Context, in CheckoutInput) (*model.Purchase, error)
}

type checkoutUC struct {
	gateway  adapter.PaymentGateway
	ledger   LedgerUseCase
	users    repository.UserRepository
	notifier adapter.OrderNotifier
	log      *zerolog.Logger
}

func NewCheckoutUseCase(
	gateway adapter.PaymentGateway,
	ledger LedgerUseCase,
	users repository.UserRepository,
	notifier adapter.OrderNotifier,
	logger *zerolog.Logger,
) *checkoutUC {
	l := logger.With().Str("component", "CheckoutUC").Logger()
	return &checkoutUC{gateway: gateway, ledger: ledger, users: users, notifier: notifier, log: &l}
}

// Start records the PENDING ledger row under a fresh correlation id and only
// then asks the gateway for the charge, so no charge can exist without a row.
// A double submit creates two charges; nothing dedupes by content.
func (u *checkoutUC) Start(ctx context.Context, in CheckoutInput) (*model.Purchase, error) {
	defer logging.TraceDuration(u.log, "CheckoutUC.Start")()

	plan, err := model.PlanByID(in.PlanID)
	if err != nil {
		return nil, err
	}
	addOns, err := model.ParseAddOns(in.AddOns)
	if err != nil {
		return nil, err
	}
	email, err := model.NormalizeEmail(in.Customer.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Customer.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: customer name is required", domain.ErrInvalidArgument)
	}
	method := in.Method
	if method == "" {
		method = model.PaymentMethodPix
	}
	if !method.Valid() {
		return nil, fmt.Errorf("%w: payment method %q", domain.ErrInvalidArgument, method)
	}
	if err := in.QuizAnswers.Validate(); err != nil {
		return nil, err
	}

	customer := model.Customer{Name: name, Email: email, Phone: strings.TrimSpace(in.Customer.Phone)}
	total := model.TotalCents(plan, addOns)

	req := adapter.ChargeRequest{
		Plan:        plan,
		Method:      method,
		AmountCents: total,
		AddOns:      addOns,
		Customer:    customer,
	}
	req.PaymentID = u.gateway.NewPaymentID(req)

	p := &model.Purchase{
		ID:              model.NewID(),
		PaymentID:       req.PaymentID,
		PlanID:          plan.ID,
		PlanPriceCents:  plan.PriceCents,
		TotalPriceCents: total,
		AddOns:          addOns,
		Method:          method,
		Status:          model.PurchaseStatusPending,
		Customer:        customer,
		Attribution:     in.Attribution,
		QuizAnswers:     in.QuizAnswers,
	}
	if in.Buyer != nil && in.Buyer.ID != "" {
		if err := u.users.Save(ctx, repository.NoTX, in.Buyer); err != nil {
			u.log.Warn().Err(err).Str("user_id", in.Buyer.ID).Msg("buyer mirror not saved; purchase stays unlinked")
		} else {
			id := in.Buyer.ID
			p.UserID = &id
		}
	}

	if err := u.ledger.RecordPending(ctx, p); err != nil {
		return nil, err
	}

	charge, err := u.gateway.CreateCharge(ctx, req)
	if err != nil {
		// the provider may still have registered it; reconciliation settles the row
		u.log.Warn().Err(err).Str("payment_id", p.PaymentID).Msg("charge not confirmed; purchase left PENDING")
		return nil, fmt.Errorf("create charge: %w", err)
	}
	p.PixCode = charge.PixCode
	p.QRImage = charge.QRImage
	p.PaymentLinkURL = charge.PaymentLinkURL
	if err := u.ledger.AttachCharge(ctx, p); err != nil {
		u.log.Error().Err(err).Str("payment_id", p.PaymentID).Msg("charge details not stored on purchase")
	}

	u.log.Info().Str("payment_id", p.PaymentID).Str("plan", plan.ID).Int64("total_cents", total).
		Str("method", string(method)).Msg("checkout started")
	u.notifier.Notify(ctx, adapter.OrderEvent{Status: adapter.OrderWaitingPayment, Purchase: p})
	return p, nil
}

package adapter

import (
	"context"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
)

// ChargeRequest describes a charge for a plan selection. Amounts are in cents.
type ChargeRequest struct {
	// PaymentID is the correlation id to register the charge under. Empty means
	// the gateway picks one.
	PaymentID   string
	Plan        model.Plan
	Method      model.PaymentMethod
	AmountCents int64
	AddOns      []model.AddOn
	Customer    model.Customer
}

// Charge is what the buyer needs to pay: a PIX copy-paste code, a QR image
// reference and an optional hosted payment page.
type Charge struct {
	PaymentID      string // correlation id the charge was registered under
	PixCode        string
	QRImage        string
	PaymentLinkURL string
}

// PaymentGateway is the hex port for PIX providers.
//
// Errors returned by either call mean "unknown, retry later"; implementations
// wrap them with domain.ErrGatewayUnavailable and never report them as FAILED.
type PaymentGateway interface {
	Name() string

	// NewPaymentID returns a fresh correlation id for req, so the ledger row can
	// exist before the provider is called. A double submit yields two ids.
	NewPaymentID(req ChargeRequest) string
	// CreateCharge registers a new charge under req.PaymentID.
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	// QueryStatus maps the provider status onto PENDING | PAID | FAILED.
	QueryStatus(ctx context.Context, paymentID string) (model.PurchaseStatus, error)
}

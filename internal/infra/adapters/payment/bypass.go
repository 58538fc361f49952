package payment

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/ports/adapter"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*TestBypassGateway)(nil)

// TestBypassGateway short-circuits QA traffic: customers whose email matches
// the configured pattern get a synthetic charge, and payment ids carrying the
// test prefix always report PAID. Everything else goes to the wrapped gateway.
type TestBypassGateway struct {
	next   adapter.PaymentGateway
	email  *regexp.Regexp
	prefix string
	log    *zerolog.Logger
}

func NewTestBypassGateway(next adapter.PaymentGateway, emailPattern, prefix string, logger *zerolog.Logger) (*TestBypassGateway, error) {
	var re *regexp.Regexp
	if emailPattern != "" {
		var err error
		if re, err = regexp.Compile(emailPattern); err != nil {
			return nil, fmt.Errorf("test email pattern: %w", err)
		}
	}
	if prefix == "" {
		prefix = "test_"
	}
	l := logger.With().Str("component", "TestBypassGateway").Logger()
	return &TestBypassGateway{next: next, email: re, prefix: prefix, log: &l}, nil
}

func (g *TestBypassGateway) Name() string { return g.next.Name() }

func (g *TestBypassGateway) isTestEmail(email string) bool {
	return g.email != nil && g.email.MatchString(strings.ToLower(strings.TrimSpace(email)))
}

// IsTestPayment reports whether a payment id was issued by the bypass.
func (g *TestBypassGateway) IsTestPayment(paymentID string) bool {
	return strings.HasPrefix(paymentID, g.prefix)
}

func (g *TestBypassGateway) NewPaymentID(req adapter.ChargeRequest) string {
	if g.isTestEmail(req.Customer.Email) {
		return g.prefix + model.NewID()
	}
	return g.next.NewPaymentID(req)
}

func (g *TestBypassGateway) CreateCharge(ctx context.Context, req adapter.ChargeRequest) (*adapter.Charge, error) {
	if !g.isTestEmail(req.Customer.Email) {
		return g.next.CreateCharge(ctx, req)
	}
	id := req.PaymentID
	if !g.IsTestPayment(id) {
		id = g.prefix + model.NewID()
	}
	code := fmt.Sprintf("00020126TEST%s5204000053039865802BR", id)
	qr, err := QRDataURI(code)
	if err != nil {
		g.log.Warn().Err(err).Str("payment_id", id).Msg("qr for test charge failed")
	}
	metrics.IncGatewayBypass(opCreateCharge)
	g.log.Info().Str("payment_id", id).Msg("test charge issued")
	return &adapter.Charge{PaymentID: id, PixCode: code, QRImage: qr}, nil
}

func (g *TestBypassGateway) QueryStatus(ctx context.Context, paymentID string) (model.PurchaseStatus, error) {
	if g.IsTestPayment(paymentID) {
		metrics.IncGatewayBypass(opQueryStatus)
		return model.PurchaseStatusPaid, nil
	}
	return g.next.QueryStatus(ctx, paymentID)
}

// File: internal/infra/adapters/payment/pix_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/ports/adapter"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*PixGateway)(nil)

const (
	opCreateCharge       = "create_charge"
	opCreateSubscription = "create_subscription"
	opQueryStatus        = "query_status"
)

// PixGateway implements adapter.PaymentGateway against an OpenPix/Woovi style
// REST API: one-time charges, recurring PIX subscriptions, and status lookup by
// correlation id.
type PixGateway struct {
	baseURL string
	appID   string
	client  *http.Client
	newID   func() string
	log     *zerolog.Logger
}

func NewPixGateway(baseURL, appID string, timeout time.Duration, logger *zerolog.Logger) (*PixGateway, error) {
	if appID == "" {
		return nil, errors.New("pix app id empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid pix base url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	l := logger.With().Str("component", "PixGateway").Logger()
	return &PixGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		appID:   appID,
		client:  &http.Client{Timeout: timeout},
		newID:   uuid.NewString,
		log:     &l,
	}, nil
}

func (g *PixGateway) Name() string { return "openpix" }

type pixCustomer struct {
	Name    string   `json:"name"`
	Email   string   `json:"email,omitempty"`
	Phone   string   `json:"phone,omitempty"`
	TaxID   string   `json:"taxID,omitempty"`
	Address *Address `json:"address,omitempty"`
}

type pixCharge struct {
	CorrelationID  string `json:"correlationID"`
	Status         string `json:"status"`
	BrCode         string `json:"brCode"`
	QRCodeImage    string `json:"qrCodeImage"`
	PaymentLinkURL string `json:"paymentLinkUrl"`
}

// CreateCharge picks the one-time or recurring endpoint from req.Method.
func (g *PixGateway) NewPaymentID(adapter.ChargeRequest) string { return g.newID() }

// billingDay is the day of month recurring charges are generated on. Days past
// the 28th are clamped so every month has one.
func billingDay(t time.Time) int {
	if d := t.Day(); d < 28 {
		return d
	}
	return 28
}

func (g *PixGateway) CreateCharge(ctx context.Context, req adapter.ChargeRequest) (*adapter.Charge, error) {
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}
	correlationID := req.PaymentID
	if correlationID == "" {
		correlationID = g.newID()
	}

	customer := pixCustomer{
		Name:  req.Customer.Name,
		Email: req.Customer.Email,
		Phone: req.Customer.Phone,
	}

	var (
		op      = opCreateCharge
		path    = "/api/v1/charge"
		payload map[string]any
	)
	if req.Method.Recurring() {
		taxID, err := GenerateCPF(nil)
		if err != nil {
			return nil, err
		}
		addr := SyntheticAddress()
		customer.TaxID = taxID
		customer.Address = &addr

		op = opCreateSubscription
		path = "/api/v1/subscriptions"
		payload = map[string]any{
			"correlationID":     correlationID,
			"value":             req.AmountCents,
			"comment":           req.Plan.Name,
			"customer":          customer,
			"frequency":         frequencyFor(req.Plan),
			"dayGenerateCharge": billingDay(time.Now()),
			"type":              "PIX_RECURRING",
		}
	} else {
		payload = map[string]any{
			"correlationID": correlationID,
			"value":         req.AmountCents,
			"comment":       req.Plan.Name,
			"customer":      customer,
		}
	}

	var out struct {
		Charge       *pixCharge `json:"charge"`
		Subscription *struct {
			CorrelationID string     `json:"correlationID"`
			Charge        *pixCharge `json:"charge"`
		} `json:"subscription"`
	}
	start := time.Now()
	err := g.do(ctx, http.MethodPost, path, payload, &out)
	metrics.ObserveGateway(op, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	ch := out.Charge
	if ch == nil && out.Subscription != nil {
		ch = out.Subscription.Charge
	}
	if ch == nil || ch.BrCode == "" {
		return nil, fmt.Errorf("%w: %s: response without charge", domain.ErrGatewayUnavailable, op)
	}

	qr := ch.QRCodeImage
	if qr == "" {
		if qr, err = QRDataURI(ch.BrCode); err != nil {
			g.log.Warn().Err(err).Str("payment_id", correlationID).Msg("qr fallback failed")
		}
	}
	return &adapter.Charge{
		PaymentID:      correlationID,
		PixCode:        ch.BrCode,
		QRImage:        qr,
		PaymentLinkURL: ch.PaymentLinkURL,
	}, nil
}

// QueryStatus fetches the charge by correlation id.
func (g *PixGateway) QueryStatus(ctx context.Context, paymentID string) (model.PurchaseStatus, error) {
	if paymentID == "" {
		return "", fmt.Errorf("%w: empty payment id", domain.ErrInvalidArgument)
	}
	var out struct {
		Charge *pixCharge `json:"charge"`
	}
	start := time.Now()
	err := g.do(ctx, http.MethodGet, "/api/v1/charge/"+url.PathEscape(paymentID), nil, &out)
	metrics.ObserveGateway(opQueryStatus, time.Since(start), err)
	if err != nil {
		return "", err
	}
	if out.Charge == nil {
		return "", fmt.Errorf("%w: query_status: response without charge", domain.ErrGatewayUnavailable)
	}
	return MapProviderStatus(out.Charge.Status), nil
}

// MapProviderStatus folds the provider enum onto the ledger taxonomy.
func MapProviderStatus(s string) model.PurchaseStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "COMPLETED", "CONFIRMED":
		return model.PurchaseStatusPaid
	case "EXPIRED", "ERROR":
		return model.PurchaseStatusFailed
	default:
		return model.PurchaseStatusPending
	}
}

func frequencyFor(p model.Plan) string {
	if p.DurationDays > 0 && p.DurationDays <= 7 {
		return "WEEKLY"
	}
	return "MONTHLY"
}

// do performs one JSON call. Transport failures, non-2xx responses and
// undecodable bodies are all wrapped with domain.ErrGatewayUnavailable.
func (g *PixGateway) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("pix: marshal: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("pix: build request: %w", err)
	}
	req.Header.Set("Authorization", g.appID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrGatewayUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", domain.ErrGatewayUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("pix provider returned non-2xx")
		return fmt.Errorf("%w: %s %s: status %d", domain.ErrGatewayUnavailable, method, path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode: %v", domain.ErrGatewayUnavailable, err)
	}
	return nil
}

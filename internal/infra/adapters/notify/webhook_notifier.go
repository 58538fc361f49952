package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/config"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/ports/adapter"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/metrics"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/worker"
)

var _ adapter.OrderNotifier = (*WebhookNotifier)(nil)

// WebhookNotifier posts order snapshots to an automation endpoint.
// Delivery is best effort: nothing is retried and nothing is reported back.
type WebhookNotifier struct {
	cfg    config.NotifierConfig
	client *http.Client
	queue  worker.Dispatcher
	now    func() time.Time
	log    *zerolog.Logger
}

func NewWebhookNotifier(cfg config.NotifierConfig, queue worker.Dispatcher, logger *zerolog.Logger) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	l := logger.With().Str("component", "WebhookNotifier").Logger()
	return &WebhookNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		queue:  queue,
		now:    time.Now,
		log:    &l,
	}
}

type orderCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type orderProduct struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Qty   int     `json:"quantity"`
}

type orderPayload struct {
	OrderID       string            `json:"orderId"`
	Platform      string            `json:"platform"`
	Status        string            `json:"status"`
	CreatedAt     string            `json:"createdAt"`
	ApprovedDate  *string           `json:"approvedDate"`
	Customer      orderCustomer     `json:"customer"`
	Products      []orderProduct    `json:"products"`
	TotalPrice    float64           `json:"totalPrice"`
	PaymentMethod string            `json:"paymentMethod"`
	Tracking      map[string]string `json:"tracking"`
	UTM           model.UTM         `json:"utm"`
}

// Notify never blocks on the network and never fails the caller.
func (n *WebhookNotifier) Notify(ctx context.Context, ev adapter.OrderEvent) {
	if !n.cfg.Enabled || n.cfg.URL == "" {
		n.log.Debug().Str("status", string(ev.Status)).Msg("order webhook disabled")
		metrics.IncOrderWebhook("disabled")
		return
	}
	if ev.Purchase == nil {
		return
	}
	body, err := json.Marshal(n.payload(ev))
	if err != nil {
		n.log.Error().Err(err).Str("payment_id", ev.Purchase.PaymentID).Msg("marshal order payload")
		metrics.IncOrderWebhook("failed")
		return
	}
	paymentID := ev.Purchase.PaymentID
	// The request outlives the caller; values are kept, cancellation is not.
	detached := context.WithoutCancel(ctx)

	err = n.queue.Submit(func(context.Context) error {
		return n.post(detached, paymentID, body)
	})
	if err != nil {
		n.log.Warn().Err(err).Str("payment_id", paymentID).Msg("order webhook dropped")
		metrics.IncOrderWebhook("dropped")
	}
}

func (n *WebhookNotifier) post(ctx context.Context, paymentID string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		metrics.IncOrderWebhook("failed")
		return fmt.Errorf("order webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn().Err(err).Str("payment_id", paymentID).Msg("order webhook failed")
		metrics.IncOrderWebhook("failed")
		return nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		n.log.Warn().Int("status", resp.StatusCode).Str("payment_id", paymentID).Msg("order webhook rejected")
		metrics.IncOrderWebhook("failed")
		return nil
	}
	metrics.IncOrderWebhook("sent")
	return nil
}

func (n *WebhookNotifier) payload(ev adapter.OrderEvent) orderPayload {
	p := ev.Purchase
	out := orderPayload{
		OrderID:       p.PaymentID,
		Platform:      n.cfg.Platform,
		Status:        string(ev.Status),
		CreatedAt:     p.CreatedAt.UTC().Format(time.RFC3339),
		Customer:      orderCustomer{Name: p.Customer.Name, Email: p.Customer.Email, Phone: p.Customer.Phone},
		Products:      products(p),
		TotalPrice:    reais(p.TotalPriceCents),
		PaymentMethod: paymentMethodLabel(p.Method),
		Tracking:      p.Attribution.Tracking,
		UTM:           p.Attribution.UTM,
	}
	if out.Tracking == nil {
		out.Tracking = map[string]string{}
	}
	if ev.Status == adapter.OrderPaid {
		at := n.now()
		if p.PaidAt != nil {
			at = *p.PaidAt
		}
		s := at.UTC().Format(time.RFC3339)
		out.ApprovedDate = &s
	}
	return out
}

// products lists the plan and each add-on at their catalog price.
func products(p *model.Purchase) []orderProduct {
	out := make([]orderProduct, 0, 1+len(p.AddOns))
	plan, err := model.PlanByID(p.PlanID)
	if err != nil {
		out = append(out, orderProduct{ID: p.PlanID, Name: p.PlanID, Price: reais(p.PlanPriceCents), Qty: 1})
	} else {
		out = append(out, orderProduct{ID: plan.ID, Name: plan.Name, Price: reais(plan.PriceCents), Qty: 1})
	}
	for _, a := range p.AddOns {
		out = append(out, orderProduct{ID: string(a), Name: a.Name(), Price: reais(a.PriceCents()), Qty: 1})
	}
	return out
}

func paymentMethodLabel(m model.PaymentMethod) string {
	if m.Recurring() {
		return "pix_recurring"
	}
	return "pix"
}

func reais(cents int64) float64 { return float64(cents) / 100 }

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/logging"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/redis"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/usecase"
)

const (
	maxCheckoutBody = 64 << 10
	maxWebhookBody  = 64 << 10
)

// ---- plans ----

type planDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Tier         string `json:"tier"`
	DurationDays int    `json:"duration_days"`
	PriceCents   int64  `json:"price_cents"`
	Lifetime     bool   `json:"lifetime"`
}

type addOnDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

func (s *Server) handlePlans(w http.ResponseWriter, _ *http.Request) {
	plans := model.Plans()
	out := struct {
		Plans  []planDTO  `json:"plans"`
		AddOns []addOnDTO `json:"add_ons"`
	}{
		Plans:  make([]planDTO, 0, len(plans)),
		AddOns: make([]addOnDTO, 0, len(model.AllAddOns())),
	}
	for _, p := range plans {
		out.Plans = append(out.Plans, planDTO{
			ID: p.ID, Name: p.Name, Tier: p.Tier.String(),
			DurationDays: p.DurationDays, PriceCents: p.PriceCents, Lifetime: p.Lifetime,
		})
	}
	for _, a := range model.AllAddOns() {
		out.AddOns = append(out.AddOns, addOnDTO{ID: string(a), Name: a.Name(), PriceCents: a.PriceCents()})
	}
	writeJSON(w, http.StatusOK, out)
}

// ---- checkout ----

type checkoutRequest struct {
	PlanID        string            `json:"plan_id"`
	AddOns        []string          `json:"add_ons"`
	PaymentMethod string            `json:"payment_method"`
	Customer      customerDTO       `json:"customer"`
	UTM           model.UTM         `json:"utm"`
	Tracking      map[string]string `json:"tracking"`
	QuizAnswers   map[string]string `json:"quiz_answers"`
}

type customerDTO struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type purchaseDTO struct {
	PurchaseID      string   `json:"purchase_id"`
	PaymentID       string   `json:"payment_id"`
	Status          string   `json:"status"`
	PlanID          string   `json:"plan_id"`
	AddOns          []string `json:"add_ons"`
	TotalPriceCents int64    `json:"total_price_cents"`
	PaymentMethod   string   `json:"payment_method"`
	PixCode         string   `json:"pix_code,omitempty"`
	QRCodeImage     string   `json:"qr_code_image,omitempty"`
	PaymentLinkURL  string   `json:"payment_link_url,omitempty"`
	PaidAt          *string  `json:"paid_at,omitempty"`
}

func toPurchaseDTO(p *model.Purchase, withCharge bool) purchaseDTO {
	dto := purchaseDTO{
		PurchaseID:      p.ID,
		PaymentID:       p.PaymentID,
		Status:          string(p.Status),
		PlanID:          p.PlanID,
		AddOns:          model.AddOnStrings(p.AddOns),
		TotalPriceCents: p.TotalPriceCents,
		PaymentMethod:   string(p.Method),
	}
	if withCharge {
		dto.PixCode, dto.QRCodeImage, dto.PaymentLinkURL = p.PixCode, p.QRImage, p.PaymentLinkURL
	}
	if p.PaidAt != nil {
		ts := p.PaidAt.UTC().Format(time.RFC3339)
		dto.PaidAt = &ts
	}
	return dto
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.allow(ctx, redis.CheckoutKey(clientIP(r)), s.opt.CheckoutPerMinute) {
		writeError(w, http.StatusTooManyRequests, "too many checkout attempts")
		return
	}

	var req checkoutRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxCheckoutBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	in := usecase.CheckoutInput{
		PlanID:      req.PlanID,
		AddOns:      req.AddOns,
		Method:      model.PaymentMethod(strings.ToUpper(strings.TrimSpace(req.PaymentMethod))),
		Customer:    model.Customer{Name: req.Customer.Name, Email: req.Customer.Email, Phone: req.Customer.Phone},
		Attribution: model.Attribution{UTM: req.UTM, Tracking: req.Tracking},
		QuizAnswers: model.QuizAnswers(req.QuizAnswers),
	}

	// a signed-in buyer owns the purchase right away
	if raw, present, err := bearer(r); present {
		if err != nil {
			writeDomainError(w, err)
			return
		}
		claims, err := s.opt.Tokens.Verify(raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		in.Buyer = &model.User{ID: claims.Subject, Email: strings.ToLower(claims.Email)}
	}

	p, err := s.opt.Checkout.Start(ctx, in)
	if err != nil {
		l := logging.With(ctx, s.log)
		l.Warn().Err(err).Str("plan", req.PlanID).Str("email", logging.Redact(req.Customer.Email, s.opt.Dev)).Msg("checkout rejected")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPurchaseDTO(p, true))
}

// ---- status poll ----

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")
	ctx := logging.WithPaymentID(r.Context(), paymentID)
	if !s.allow(ctx, redis.PollKey(paymentID), s.opt.PollPerMinute) {
		writeError(w, http.StatusTooManyRequests, "polling too fast")
		return
	}

	p, err := s.opt.Ledger.Refresh(ctx, paymentID)
	if err != nil {
		if p != nil && errors.Is(err, domain.ErrGatewayUnavailable) {
			// the client keeps polling with the last known status
			writeJSON(w, http.StatusBadGateway, struct {
				purchaseDTO
				Error string `json:"error"`
			}{toPurchaseDTO(p, false), "payment gateway unavailable"})
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseDTO(p, false))
}

// ---- inbound gateway webhook ----

type pixWebhook struct {
	Event  string `json:"event"`
	Charge struct {
		CorrelationID string `json:"correlationID"`
		Status        string `json:"status"`
	} `json:"charge"`
}

func (s *Server) handlePixWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if s.opt.WebhookSecret != "" && !VerifyWebhookSignature(s.opt.WebhookSecret, body, r.Header.Get(SignatureHeader)) {
		s.log.Warn().Str("ip", clientIP(r)).Msg("webhook signature mismatch")
		writeDomainError(w, domain.ErrInvalidSignature)
		return
	}

	var ev pixWebhook
	if err := json.Unmarshal(body, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	ctx := logging.WithPaymentID(r.Context(), ev.Charge.CorrelationID)
	changed, err := s.opt.Ledger.HandleGatewayEvent(ctx, usecase.GatewayEvent{
		Event:        ev.Event,
		PaymentID:    ev.Charge.CorrelationID,
		ChargeStatus: ev.Charge.Status,
	})
	if err != nil {
		// non-2xx makes the provider redeliver
		l := logging.With(ctx, s.log)
		l.Error().Err(err).Str("event", ev.Event).Msg("webhook processing failed")
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "applied": changed})
}

// ---- account link ----

func (s *Server) handleAccountLink(w http.ResponseWriter, r *http.Request) {
	raw, present, err := bearer(r)
	if !present {
		err = domain.ErrUnauthorized
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	claims, err := s.opt.Tokens.Verify(raw)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	ctx := logging.WithUserID(r.Context(), claims.Subject)
	res, err := s.opt.Linker.LinkByEmail(ctx, claims.Subject, claims.Email)
	if err != nil {
		l := logging.With(ctx, s.log)
		l.Error().Err(err).Msg("account link failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ---- helpers ----

// allow fails open when the limiter itself errors.
func (s *Server) allow(ctx context.Context, key string, perMinute int) bool {
	if s.opt.Limiter == nil || perMinute <= 0 {
		return true
	}
	ok, err := s.opt.Limiter.Allow(ctx, key, perMinute, time.Minute)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
		return true
	}
	return ok
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

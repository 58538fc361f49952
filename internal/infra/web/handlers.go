package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/logging"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/metrics"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/sched"
)

type purchaseView struct {
	ID              string            `json:"id"`
	PaymentID       string            `json:"payment_id"`
	PlanID          string            `json:"plan_id"`
	AddOns          []string          `json:"add_ons"`
	PlanPriceCents  int64             `json:"plan_price_cents"`
	TotalPriceCents int64             `json:"total_price_cents"`
	Method          string            `json:"payment_method"`
	Status          string            `json:"status"`
	CustomerName    string            `json:"customer_name"`
	CustomerEmail   string            `json:"customer_email"`
	UserID          *string           `json:"user_id,omitempty"`
	Attribution     model.Attribution `json:"attribution"`
	CreatedAt       time.Time         `json:"created_at"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
}

func toPurchaseView(p *model.Purchase) purchaseView {
	return purchaseView{
		ID:              p.ID,
		PaymentID:       p.PaymentID,
		PlanID:          p.PlanID,
		AddOns:          model.AddOnStrings(p.AddOns),
		PlanPriceCents:  p.PlanPriceCents,
		TotalPriceCents: p.TotalPriceCents,
		Method:          string(p.Method),
		Status:          string(p.Status),
		CustomerName:    p.Customer.Name,
		CustomerEmail:   p.Customer.Email,
		UserID:          p.UserID,
		Attribution:     p.Attribution,
		CreatedAt:       p.CreatedAt,
		PaidAt:          p.PaidAt,
	}
}

type subscriptionView struct {
	UserID                string     `json:"user_id"`
	PlanID                string     `json:"plan_id"`
	PlanName              string     `json:"plan_name"`
	Tier                  string     `json:"tier"`
	PurchaseID            string     `json:"purchase_id"`
	StartedAt             time.Time  `json:"started_at"`
	ExpiresAt             *time.Time `json:"expires_at,omitempty"`
	IsLifetime            bool       `json:"is_lifetime"`
	IsActive              bool       `json:"is_active"`
	AutoRenew             bool       `json:"auto_renew"`
	CanSeeWhoLiked        bool       `json:"can_see_who_liked"`
	CanUseAdvancedFilters bool       `json:"can_use_advanced_filters"`
	HasAllRegions         bool       `json:"has_all_regions"`
	CanVideoCall          bool       `json:"can_video_call"`
	IsProfileBoosted      bool       `json:"is_profile_boosted"`
	DailySwipesLimit      int        `json:"daily_swipes_limit"`
}

func toSubscriptionView(s *model.UserSubscription) subscriptionView {
	return subscriptionView{
		UserID:                s.UserID,
		PlanID:                s.PlanID,
		PlanName:              s.PlanName,
		Tier:                  s.Tier.String(),
		PurchaseID:            s.PurchaseID,
		StartedAt:             s.StartedAt,
		ExpiresAt:             s.ExpiresAt,
		IsLifetime:            s.IsLifetime,
		IsActive:              s.IsActive,
		AutoRenew:             s.AutoRenew,
		CanSeeWhoLiked:        s.CanSeeWhoLiked,
		CanUseAdvancedFilters: s.CanUseAdvancedFilters,
		HasAllRegions:         s.HasAllRegions,
		CanVideoCall:          s.CanVideoCall,
		IsProfileBoosted:      s.IsProfileBoosted,
		DailySwipesLimit:      s.DailySwipesLimit,
	}
}

type renewalView struct {
	PurchaseID     string     `json:"purchase_id"`
	PreviousPlanID string     `json:"previous_plan_id"`
	NewPlanID      string     `json:"new_plan_id"`
	NewExpiresAt   *time.Time `json:"new_expires_at,omitempty"`
	RevenueCents   int64      `json:"revenue_cents"`
	IsUpgrade      bool       `json:"is_upgrade"`
	CreatedAt      time.Time  `json:"created_at"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps domain sentinels onto plain-text HTTP errors.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrLockHeld):
		http.Error(w, "Sweep already running", http.StatusConflict)
	case errors.Is(err, domain.ErrPurchaseNotPaid), errors.Is(err, domain.ErrMissingUser):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

// handleSessionCreate exchanges the static API key for a session token.
func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil || s.apiKey == "" {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if !s.apiKeyMatches(r) {
		metrics.IncAdminRequest("session", "unauthorized")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	tok, exp, err := s.auth.Mint(w, "admin")
	if err != nil {
		s.log.Error().Err(err).Msg("mint admin session")
		metrics.IncAdminRequest("session", "error")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	metrics.IncAdminRequest("session", "ok")
	writeJSON(w, http.StatusCreated, map[string]any{"token": tok, "expires_at": exp.UTC()})
}

func (s *Server) handleSessionClear(w http.ResponseWriter, _ *http.Request) {
	if s.auth != nil {
		s.auth.Clear(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePurchaseGet(w http.ResponseWriter, r *http.Request) {
	p, err := s.ledgerUC.Get(r.Context(), r.PathValue("paymentID"))
	metrics.IncAdminRequest("purchase_get", statusLabel(err))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseView(p))
}

// handlePurchaseActivate re-runs activation for a paid purchase.
func (s *Server) handlePurchaseActivate(w http.ResponseWriter, r *http.Request) {
	paymentID := r.PathValue("paymentID")
	ctx := logging.WithPaymentID(r.Context(), paymentID)
	sub, err := s.activationUC.ActivateByPaymentID(ctx, paymentID)
	metrics.IncAdminRequest("purchase_activate", statusLabel(err))
	if err != nil {
		l := logging.With(ctx, s.log)
		l.Warn().Err(err).Msg("manual activation failed")
		writeErr(w, err)
		return
	}
	s.log.Info().Str("payment_id", paymentID).Str("user_id", sub.UserID).Msg("manual activation applied")
	writeJSON(w, http.StatusOK, toSubscriptionView(sub))
}

func (s *Server) handleSubscriptionGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("userID")

	sub, err := s.subUC.Get(ctx, userID)
	if err != nil {
		metrics.IncAdminRequest("subscription_get", statusLabel(err))
		writeErr(w, err)
		return
	}
	history, err := s.subUC.History(ctx, userID)
	metrics.IncAdminRequest("subscription_get", statusLabel(err))
	if err != nil {
		writeErr(w, err)
		return
	}

	renewals := make([]renewalView, 0, len(history))
	for _, h := range history {
		renewals = append(renewals, renewalView{
			PurchaseID:     h.PurchaseID,
			PreviousPlanID: h.PreviousPlanID,
			NewPlanID:      h.NewPlanID,
			NewExpiresAt:   h.NewExpiresAt,
			RevenueCents:   h.RevenueCents,
			IsUpgrade:      h.IsUpgrade,
			CreatedAt:      h.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Subscription subscriptionView `json:"subscription"`
		Renewals     []renewalView    `json:"renewals"`
	}{toSubscriptionView(sub), renewals})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	job := r.PathValue("job")
	switch job {
	case sched.JobReconcile, sched.JobOrphans:
	default:
		http.NotFound(w, r)
		return
	}
	if s.sweeps == nil {
		http.Error(w, "Sweeps disabled", http.StatusServiceUnavailable)
		return
	}
	n, err := s.sweeps.RunNow(r.Context(), job)
	metrics.IncAdminRequest("sweep_"+job, statusLabel(err))
	if err != nil {
		if !errors.Is(err, domain.ErrLockHeld) {
			s.log.Error().Err(err).Str("job", job).Msg("manual sweep failed")
		}
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job, "items": n})
}

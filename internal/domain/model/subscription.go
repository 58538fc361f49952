package model

import (
	"time"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
)

// UnlimitedSwipes marks a daily swipe cap that does not apply.
const UnlimitedSwipes = -1

var swipeLimits = map[PlanTier]int{
	TierBronze: 20,
	TierSilver: 100,
	TierGold:   UnlimitedSwipes,
}

// Entitlements are the feature flags a subscription grants.
type Entitlements struct {
	CanSeeWhoLiked        bool
	CanUseAdvancedFilters bool
	HasAllRegions         bool
	CanVideoCall          bool
	IsProfileBoosted      bool
	DailySwipesLimit      int
}

// ComputeEntitlements derives flags from tier, lifetime and add-ons only.
// Each flag is an OR of tier threshold, lifetime and its matching add-on.
// Add-ons never raise the swipe cap.
func ComputeEntitlements(plan Plan, lifetime bool, addOns []AddOn) Entitlements {
	mid := plan.Tier >= TierSilver
	top := plan.Tier >= TierGold

	swipes, ok := swipeLimits[plan.Tier]
	if !ok {
		swipes = swipeLimits[TierBronze]
	}
	if lifetime {
		swipes = UnlimitedSwipes
	}

	return Entitlements{
		CanSeeWhoLiked:        mid || lifetime,
		CanUseAdvancedFilters: mid || lifetime || HasAddOn(addOns, AddOnAdvancedFilters),
		HasAllRegions:         mid || lifetime || HasAddOn(addOns, AddOnAllRegions),
		CanVideoCall:          top || lifetime,
		IsProfileBoosted:      top || lifetime || HasAddOn(addOns, AddOnProfileBoost),
		DailySwipesLimit:      swipes,
	}
}

// UserSubscription is the single entitlement row per user.
type UserSubscription struct {
	UserID     string
	PlanID     string
	PlanName   string
	Tier       PlanTier
	PurchaseID string
	StartedAt  time.Time
	ExpiresAt  *time.Time // nil encodes lifetime
	IsLifetime bool
	IsActive   bool

	Entitlements

	AutoRenew     bool
	Mechanism     PaymentMethod
	NextChargeAt  *time.Time
	FailedCharges int
	UpdatedAt     time.Time
}

// NewUserSubscription builds the row granted by a paid purchase. Expiry is
// always computed from now; a renewal replaces the previous expiry.
// TODO: confirm with product whether an early renewal should stack on the remaining time.
func NewUserSubscription(userID string, p *Purchase, now time.Time) (*UserSubscription, error) {
	if userID == "" || p == nil {
		return nil, domain.ErrInvalidArgument
	}
	plan, err := PlanByID(p.PlanID)
	if err != nil {
		return nil, err
	}
	lifetime := plan.Lifetime || HasAddOn(p.AddOns, AddOnLifetime)

	s := &UserSubscription{
		UserID:       userID,
		PlanID:       plan.ID,
		PlanName:     plan.Name,
		Tier:         plan.Tier,
		PurchaseID:   p.ID,
		StartedAt:    now,
		IsLifetime:   lifetime,
		IsActive:     true,
		Entitlements: ComputeEntitlements(plan, lifetime, p.AddOns),
		Mechanism:    p.Method,
		UpdatedAt:    now,
	}
	if !lifetime {
		ex := now.AddDate(0, 0, plan.DurationDays)
		s.ExpiresAt = &ex
		if p.Method.Recurring() {
			s.AutoRenew = true
			next := ex
			s.NextChargeAt = &next
		}
	}
	return s, nil
}

// IsExpired reports whether a non-lifetime subscription is past its expiry.
func (s *UserSubscription) IsExpired(now time.Time) bool {
	if s.IsLifetime || s.ExpiresAt == nil {
		return false
	}
	return now.After(*s.ExpiresAt)
}

// RenewalRecord is an append-only audit row for a plan transition.
type RenewalRecord struct {
	ID                string
	UserID            string
	PurchaseID        string
	PreviousPlanID    string
	PreviousTier      PlanTier
	PreviousExpiresAt *time.Time
	NewPlanID         string
	NewTier           PlanTier
	NewExpiresAt      *time.Time
	RevenueCents      int64
	IsUpgrade         bool
	CreatedAt         time.Time
}

// NewRenewalRecord compares prev and next; IsUpgrade follows tier ordinals.
func NewRenewalRecord(prev, next *UserSubscription, revenueCents int64, now time.Time) *RenewalRecord {
	return &RenewalRecord{
		ID:                NewID(),
		UserID:            next.UserID,
		PurchaseID:        next.PurchaseID,
		PreviousPlanID:    prev.PlanID,
		PreviousTier:      prev.Tier,
		PreviousExpiresAt: prev.ExpiresAt,
		NewPlanID:         next.PlanID,
		NewTier:           next.Tier,
		NewExpiresAt:      next.ExpiresAt,
		RevenueCents:      revenueCents,
		IsUpgrade:         next.Tier > prev.Tier,
		CreatedAt:         now,
	}
}

// Direction labels the transition for metrics.
func (r *RenewalRecord) Direction() string {
	switch {
	case r.NewTier > r.PreviousTier:
		return "upgrade"
	case r.NewTier < r.PreviousTier:
		return "downgrade"
	default:
		return "renewal"
	}
}

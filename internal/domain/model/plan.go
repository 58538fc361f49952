package model

import (
	"fmt"
	"strings"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
)

// PlanTier is an ordinal ranking; higher values unlock more entitlements.
type PlanTier int

const (
	TierBronze PlanTier = 1
	TierSilver PlanTier = 2
	TierGold   PlanTier = 3
)

func (t PlanTier) String() string {
	switch t {
	case TierBronze:
		return "bronze"
	case TierSilver:
		return "silver"
	case TierGold:
		return "gold"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Plan is a sellable subscription tier. Prices are in centavos (BRL minor units).
type Plan struct {
	ID           string
	Name         string
	Tier         PlanTier
	DurationDays int
	PriceCents   int64
	Lifetime     bool
}

const (
	PlanBronze   = "bronze"
	PlanSilver   = "silver"
	PlanGold     = "gold"
	PlanLifetime = "lifetime"
)

var catalog = []Plan{
	{ID: PlanBronze, Name: "Plano Bronze", Tier: TierBronze, DurationDays: 7, PriceCents: 1290},
	{ID: PlanSilver, Name: "Plano Prata", Tier: TierSilver, DurationDays: 30, PriceCents: 2990},
	{ID: PlanGold, Name: "Plano Ouro", Tier: TierGold, DurationDays: 30, PriceCents: 4990},
	{ID: PlanLifetime, Name: "Acesso Vitalício", Tier: TierGold, DurationDays: 0, PriceCents: 19700, Lifetime: true},
}

// Plans returns a copy of the static catalog in tier order.
func Plans() []Plan {
	out := make([]Plan, len(catalog))
	copy(out, catalog)
	return out
}

// PlanByID resolves a plan id (case-insensitive) against the catalog.
func PlanByID(id string) (Plan, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range catalog {
		if p.ID == id {
			return p, nil
		}
	}
	return Plan{}, fmt.Errorf("%w: %q", domain.ErrUnknownPlan, id)
}

// TotalCents is the plan base price plus every selected add-on.
func TotalCents(plan Plan, addOns []AddOn) int64 {
	total := plan.PriceCents
	for _, a := range addOns {
		total += a.PriceCents()
	}
	return total
}

package model

import (
	"fmt"
	"strings"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
)

// AddOn is an order bump selected at checkout. The set is closed: anything
// outside the constants below is rejected at the boundary.
type AddOn string

const (
	AddOnAllRegions      AddOn = "all-regions"
	AddOnAdvancedFilters AddOn = "advanced-filters"
	AddOnProfileBoost    AddOn = "profile-boost"
	AddOnLifetime        AddOn = "lifetime"
)

var addOnInfo = map[AddOn]struct {
	name  string
	price int64
}{
	AddOnAllRegions:      {name: "Desbloquear Todas as Regiões", price: 990},
	AddOnAdvancedFilters: {name: "Filtros Avançados", price: 790},
	AddOnProfileBoost:    {name: "Perfil em Destaque", price: 990},
	AddOnLifetime:        {name: "Acesso Vitalício", price: 9700},
}

// AllAddOns lists the recognized add-ons in a stable order.
func AllAddOns() []AddOn {
	return []AddOn{AddOnAllRegions, AddOnAdvancedFilters, AddOnProfileBoost, AddOnLifetime}
}

func (a AddOn) Valid() bool {
	_, ok := addOnInfo[a]
	return ok
}

func (a AddOn) Name() string { return addOnInfo[a].name }

func (a AddOn) PriceCents() int64 { return addOnInfo[a].price }

// ParseAddOn normalizes and validates a single add-on id.
func ParseAddOn(s string) (AddOn, error) {
	a := AddOn(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownAddOn, s)
	}
	return a, nil
}

// ParseAddOns validates a list of ids, dropping duplicates while keeping order.
func ParseAddOns(ids []string) ([]AddOn, error) {
	out := make([]AddOn, 0, len(ids))
	seen := make(map[AddOn]struct{}, len(ids))
	for _, id := range ids {
		a, err := ParseAddOn(id)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}

// HasAddOn reports whether want is among addOns.
func HasAddOn(addOns []AddOn, want AddOn) bool {
	for _, a := range addOns {
		if a == want {
			return true
		}
	}
	return false
}

// AddOnStrings is the storage form of an add-on list.
func AddOnStrings(addOns []AddOn) []string {
	out := make([]string, len(addOns))
	for i, a := range addOns {
		out[i] = string(a)
	}
	return out
}

package profile

import (
	"fmt"

	"github.com/refundworks/refundflow/internal/model"
)

// Resolver chooses between a vendor's historical allocation percentage and
// the global methodology default. A nil result means neither exists and the
// caller must flag the row for manual input; it is never silently zero.
type Resolver struct {
	profiles map[string]*model.VendorProfile
	defaults map[string]float64
}

// NewResolver builds a resolver over a profile snapshot and the global
// methodology allocation defaults. Defaults outside [0,1] are rejected.
func NewResolver(profiles []model.VendorProfile, defaults map[string]float64) (*Resolver, error) {
	for meth, pct := range defaults {
		if pct < 0 || pct > 1 {
			return nil, fmt.Errorf("allocation default for %q out of range: %v", meth, pct)
		}
	}

	indexed := make(map[string]*model.VendorProfile, len(profiles))
	for i := range profiles {
		indexed[profiles[i].VendorKey] = &profiles[i]
	}

	return &Resolver{profiles: indexed, defaults: defaults}, nil
}

// Resolve returns the allocation percentage for a vendor and methodology:
// the vendor's historical average when the profile has one, else the global
// default, else nil.
func (r *Resolver) Resolve(vendorKey, methodology string) *float64 {
	if p, ok := r.profiles[vendorKey]; ok {
		if stats, ok := p.MethodologyMix[methodology]; ok && stats.AveragePct != nil {
			pct := *stats.AveragePct
			return &pct
		}
	}

	if pct, ok := r.defaults[methodology]; ok {
		return &pct
	}

	return nil
}

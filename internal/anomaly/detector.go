// Package anomaly detects tax hidden inside rounded invoice totals.
package anomaly

import (
	"math"

	"github.com/refundworks/refundflow/internal/model"
)

// DefaultRate is the applicable tax rate assumed when the vendor or
// jurisdiction rate is unknown.
const DefaultRate = 0.0825

// minImpliedTax is the smallest implied tax worth flagging, in cents.
const minImpliedTax = 1

// Detect looks for hidden tax: a zero tax_amount paired with a total whose
// shape only makes sense as a round base price grossed up by the tax rate.
// All amounts are in cents. The result is advisory evidence for the
// classifier, never applied on its own.
func Detect(total, taxAmount int64, rate float64) model.AnomalyResult {
	if taxAmount != 0 || total <= 0 || rate <= 0 {
		return model.AnomalyResult{}
	}

	impliedBase := int64(math.Round(float64(total) / (1 + rate)))
	impliedTax := total - impliedBase

	if impliedTax <= minImpliedTax {
		return model.AnomalyResult{}
	}

	// The implied base must be a whole-dollar figure that grosses back up to
	// the observed total. Anything else is ordinary pricing, not hidden tax.
	if impliedBase%100 != 0 {
		return model.AnomalyResult{}
	}
	reconstructed := int64(math.Round(float64(impliedBase) * (1 + rate)))
	if abs(reconstructed-total) > 1 {
		return model.AnomalyResult{}
	}

	// Flag only when stripping the rate exposes a rounder figure than the
	// total itself: $55,250.00 at 10.5% yields exactly $50,000.00.
	if granularity(impliedBase) <= granularity(total) {
		return model.AnomalyResult{}
	}

	return model.AnomalyResult{
		Flagged:     true,
		ImpliedBase: impliedBase,
		ImpliedTax:  impliedTax,
	}
}

// granularity returns the largest power-of-ten dollar amount (in cents) that
// evenly divides the amount, or 0 when the amount has loose cents.
func granularity(cents int64) int64 {
	var g int64
	for unit := int64(100); unit <= 100_000_000; unit *= 10 {
		if cents%unit != 0 {
			break
		}
		g = unit
	}
	return g
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

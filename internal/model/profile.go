package model

import "time"

// DominantValue is the most frequent value for a field across a vendor's
// human-confirmed rows. Ties are broken by first-seen order, so rebuilds over
// the same ordered input always agree.
type DominantValue struct {
	Value string
	Count int
}

// MethodologyStats summarizes historical usage of one methodology by a vendor.
// AveragePct is nil when no row recorded a valid allocation percentage.
type MethodologyStats struct {
	Count      int
	AveragePct *float64 // in [0,1]
}

// FewShotExample is a representative human-confirmed row kept on the profile
// as semantic-classification context.
type FewShotExample struct {
	Description string
	TaxCategory string
	RefundBasis string
	Methodology string
	Decision    Decision
	Notes       string
}

// VendorProfile aggregates a vendor's human-confirmed classification history.
// Profiles are rebuilt wholesale from the full historical row set and replaced
// atomically; they are never mutated in place.
type VendorProfile struct {
	VendorKey string
	TotalRows int

	CategoryCounts    map[string]int
	BasisCounts       map[string]int
	MethodologyCounts map[string]int

	DominantCategory    DominantValue
	DominantBasis       DominantValue
	DominantMethodology DominantValue

	MethodologyMix  map[string]MethodologyStats
	FewShotExamples []FewShotExample

	RebuiltAt time.Time
}

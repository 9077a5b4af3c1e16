// Package profile builds per-vendor statistical profiles from human-confirmed
// rows and resolves allocation percentages against them.
package profile

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/refundworks/refundflow/internal/common"
	"github.com/refundworks/refundflow/internal/model"
)

// Config holds aggregation thresholds.
type Config struct {
	// MinRows is the minimum number of human-confirmed rows a vendor needs
	// before a profile is worth building.
	MinRows int
	// FewShotLimit caps the representative examples kept per profile.
	FewShotLimit int
}

// DefaultConfig returns the default aggregation thresholds.
func DefaultConfig() Config {
	return Config{
		MinRows:      3,
		FewShotLimit: 5,
	}
}

// Aggregator rebuilds vendor profiles from scratch. Profiles are never
// mutated in place: every rebuild consumes the full human-confirmed history
// and produces a replacement set.
type Aggregator struct {
	cfg Config
}

// NewAggregator creates an aggregator with the given thresholds.
func NewAggregator(cfg Config) *Aggregator {
	if cfg.MinRows <= 0 {
		cfg.MinRows = DefaultConfig().MinRows
	}
	if cfg.FewShotLimit <= 0 {
		cfg.FewShotLimit = DefaultConfig().FewShotLimit
	}
	return &Aggregator{cfg: cfg}
}

// Rebuild produces profiles for every vendor with enough human-confirmed
// rows. Row order determines tie-breaks, so the same ordered input always
// yields the same profiles. A vendor whose build fails is skipped and
// reported; the rebuild never aborts as a whole.
func (a *Aggregator) Rebuild(rows []model.TransactionRow) ([]model.VendorProfile, []error) {
	confirmed := make([]model.TransactionRow, 0, len(rows))
	for _, row := range rows {
		if row.HumanConfirmed {
			confirmed = append(confirmed, row)
		}
	}

	// Group by vendor key, preserving first-seen vendor order and the
	// caller's row order within each group.
	groups := make(map[string][]model.TransactionRow)
	var order []string
	for _, row := range confirmed {
		key := row.VendorKey()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}

	var profiles []model.VendorProfile
	var errs []error

	for _, key := range order {
		vendorRows := groups[key]
		if len(vendorRows) < a.cfg.MinRows {
			slog.Debug("skipping vendor with insufficient confirmed rows",
				"vendor", key,
				"rows", len(vendorRows),
				"min_rows", a.cfg.MinRows)
			continue
		}

		p, err := a.buildProfile(key, vendorRows)
		if err != nil {
			errs = append(errs, &common.AggregationError{VendorKey: key, Err: err})
			continue
		}
		profiles = append(profiles, p)
	}

	return profiles, errs
}

func (a *Aggregator) buildProfile(key string, rows []model.TransactionRow) (model.VendorProfile, error) {
	if key == "" {
		return model.VendorProfile{}, fmt.Errorf("empty vendor key")
	}

	p := model.VendorProfile{
		VendorKey:         key,
		TotalRows:         len(rows),
		CategoryCounts:    make(map[string]int),
		BasisCounts:       make(map[string]int),
		MethodologyCounts: make(map[string]int),
		MethodologyMix:    make(map[string]model.MethodologyStats),
		RebuiltAt:         time.Now(),
	}

	categories := newFrequencyTable()
	bases := newFrequencyTable()
	methodologies := newFrequencyTable()
	pctSums := make(map[string]float64)
	pctCounts := make(map[string]int)

	for _, row := range rows {
		categories.add(row.TaxCategory)
		bases.add(row.RefundBasis)
		methodologies.add(row.Methodology)

		if row.Methodology != "" && row.AllocationPct != nil {
			pct := *row.AllocationPct
			if pct >= 0 && pct <= 1 {
				pctSums[row.Methodology] += pct
				pctCounts[row.Methodology]++
			}
		}
	}

	p.CategoryCounts = categories.counts
	p.BasisCounts = bases.counts
	p.MethodologyCounts = methodologies.counts

	p.DominantCategory = categories.dominant()
	p.DominantBasis = bases.dominant()
	p.DominantMethodology = methodologies.dominant()

	for meth, count := range methodologies.counts {
		stats := model.MethodologyStats{Count: count}
		if n := pctCounts[meth]; n > 0 {
			avg := pctSums[meth] / float64(n)
			stats.AveragePct = &avg
		}
		p.MethodologyMix[meth] = stats
	}

	p.FewShotExamples = a.selectFewShots(rows)

	return p, nil
}

// frequencyTable counts values while remembering first-seen order for the
// stable dominant tie-break.
type frequencyTable struct {
	counts    map[string]int
	firstSeen map[string]int
	next      int
}

func newFrequencyTable() *frequencyTable {
	return &frequencyTable{
		counts:    make(map[string]int),
		firstSeen: make(map[string]int),
	}
}

func (f *frequencyTable) add(value string) {
	if value == "" {
		return
	}
	if _, seen := f.firstSeen[value]; !seen {
		f.firstSeen[value] = f.next
		f.next++
	}
	f.counts[value]++
}

// dominant returns the highest-count value; ties go to the value seen first.
func (f *frequencyTable) dominant() model.DominantValue {
	var best model.DominantValue
	bestSeen := -1

	for value, count := range f.counts {
		seen := f.firstSeen[value]
		switch {
		case count > best.Count:
		case count == best.Count && seen < bestSeen:
		default:
			continue
		}
		best = model.DominantValue{Value: value, Count: count}
		bestSeen = seen
	}

	return best
}

// selectFewShots picks diverse, information-dense examples: group rows by
// (category, basis), order groups by descending size, and keep each selected
// group's longest-note row until the cap is reached.
func (a *Aggregator) selectFewShots(rows []model.TransactionRow) []model.FewShotExample {
	type pair struct {
		category string
		basis    string
	}

	groups := make(map[pair][]model.TransactionRow)
	firstSeen := make(map[pair]int)
	var order []pair

	for i, row := range rows {
		p := pair{category: row.TaxCategory, basis: row.RefundBasis}
		if _, seen := firstSeen[p]; !seen {
			firstSeen[p] = i
			order = append(order, p)
		}
		groups[p] = append(groups[p], row)
	}

	// Descending group size; equal sizes keep first-seen order.
	sort.SliceStable(order, func(i, j int) bool {
		return len(groups[order[i]]) > len(groups[order[j]])
	})

	examples := make([]model.FewShotExample, 0, a.cfg.FewShotLimit)
	for _, p := range order {
		if len(examples) >= a.cfg.FewShotLimit {
			break
		}

		best := groups[p][0]
		for _, row := range groups[p][1:] {
			if len(row.Notes) > len(best.Notes) {
				best = row
			}
		}

		examples = append(examples, model.FewShotExample{
			Description: best.Description,
			TaxCategory: best.TaxCategory,
			RefundBasis: best.RefundBasis,
			Methodology: best.Methodology,
			Decision:    best.FinalDecision,
			Notes:       best.Notes,
		})
	}

	return examples
}

// Package rules implements the ordered keyword cascade at the core of the
// refund classifier. Rules are evaluated top to bottom and the first match
// wins; the ordering is a versioned contract covered by tests.
package rules

import (
	"strings"
	"time"

	"github.com/refundworks/refundflow/internal/model"
)

// CascadeVersion identifies the rule ordering contract. Bump it whenever a
// rule is added, removed, or reordered.
const CascadeVersion = 3

// FallbackConfidence is assigned when no rule matches.
const FallbackConfidence = 65

// Rule pairs a predicate with the classification template it yields.
type Rule struct {
	Name string

	// Keywords match case-insensitively against the row description. A rule
	// matches when any keyword is present and Extra (if set) also holds.
	Keywords []string
	Extra    func(row *model.TransactionRow) bool

	Category    string
	Basis       string
	Methodology string
	Decision    model.Decision
	Confidence  int
	Citation    string
	Note        string

	// Semantic marks rules whose verdict needs confirmation from the
	// external semantic-classification service.
	Semantic bool
}

// Matches reports whether the rule fires for the row.
func (r *Rule) Matches(row *model.TransactionRow) bool {
	desc := strings.ToLower(row.Description)

	matched := len(r.Keywords) == 0
	for _, kw := range r.Keywords {
		if strings.Contains(desc, kw) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	if r.Extra != nil {
		return r.Extra(row)
	}
	return true
}

// Cascade is an ordered rule list.
type Cascade struct {
	rules []Rule
}

// NewCascade builds a cascade from an explicit rule order.
func NewCascade(ruleList []Rule) *Cascade {
	return &Cascade{rules: ruleList}
}

// DefaultCascade returns the standard sales/use-tax rule ordering: most
// specific signal first.
func DefaultCascade() *Cascade {
	return NewCascade([]Rule{
		{
			Name:       "explicit-exemption",
			Keywords:   []string{"tax exempt", "exemption certificate", "for resale", "resale certificate"},
			Category:   "Exempt Purchase",
			Basis:      "Exemption certificate on file",
			Decision:   model.DecisionAddToClaim,
			Confidence: 95,
			Citation:   "34 TAC 3.287 (exemption certificates)",
			Note:       "Description carries an explicit exemption marker.",
		},
		{
			Name:        "professional-services",
			Keywords:    []string{"consulting", "professional services", "legal services", "accounting services", "engineering services", "advisory"},
			Category:    "Professional Services",
			Basis:       "Nontaxable professional service",
			Methodology: "Direct Exclusion",
			Decision:    model.DecisionAddToClaim,
			Confidence:  92,
			Citation:    "34 TAC 3.330(a) (professional services)",
			Note:        "Professional service charges are outside the taxable base.",
		},
		{
			Name:        "digital-hosting",
			Keywords:    []string{"saas", "software as a service", "cloud hosting", "web hosting", "hosting services", "data processing", "subscription"},
			Category:    "Digital Services",
			Basis:       "Multistate benefit of electronically delivered service",
			Methodology: "MPU",
			Decision:    model.DecisionAddToClaim,
			Confidence:  90,
			Citation:    "34 TAC 3.330(f) (multistate benefit)",
			Note:        "Electronically delivered service eligible for multiple-points-of-use allocation.",
			Semantic:    true,
		},
		{
			Name:        "licensing-hardware",
			Keywords:    []string{"software license", "perpetual license", "license renewal", "hardware", "server equipment", "network equipment"},
			Category:    "Licensed Software & Hardware",
			Basis:       "Concurrent use outside the taxing jurisdiction",
			Methodology: "MPU",
			Decision:    model.DecisionNeedsReview,
			Confidence:  80,
			Citation:    "34 TAC 3.308 (computer hardware and programs)",
			Note:        "License or hardware purchase; usage location governs refund share.",
			Semantic:    true,
		},
		{
			Name:        "installation-maintenance",
			Keywords:    []string{"installation", "maintenance agreement", "repair labor", "separately stated labor"},
			Category:    "Installation & Maintenance",
			Basis:       "Separately stated nontaxable labor",
			Methodology: "Direct Exclusion",
			Decision:    model.DecisionAddToClaim,
			Confidence:  85,
			Citation:    "34 TAC 3.357 (labor charges)",
			Note:        "Separately stated labor is excluded from the taxable base.",
		},
		{
			Name:        "construction-retainage",
			Keywords:    []string{"construction", "retainage", "general contractor", "lump sum contract"},
			Category:    "Construction",
			Basis:       "Lump-sum contract treatment",
			Methodology: "Contract Review",
			Decision:    model.DecisionNeedsReview,
			Confidence:  75,
			Citation:    "34 TAC 3.291 (contractors)",
			Note:        "Contract structure determines taxability; review contract terms.",
			Semantic:    true,
		},
		{
			Name:        "training-testing",
			Keywords:    []string{"training", "instructor", "certification exam", "testing services"},
			Category:    "Training & Testing",
			Basis:       "Nontaxable instructional service",
			Methodology: "Direct Exclusion",
			Decision:    model.DecisionAddToClaim,
			Confidence:  88,
			Citation:    "34 TAC 3.330(a) (instructional services)",
			Note:        "Instructional services are not enumerated taxable services.",
		},
		{
			Name:     "use-tax-accrual",
			Keywords: []string{"use tax", "self-assessed", "accrual"},
			Extra: func(row *model.TransactionRow) bool {
				return row.TaxRemitted > 0
			},
			Category:    "Use Tax Accrual",
			Basis:       "Overaccrued use tax",
			Methodology: "Accrual Review",
			Decision:    model.DecisionNeedsReview,
			Confidence:  70,
			Citation:    "34 TAC 3.346 (use tax)",
			Note:        "Self-assessed use tax; verify the accrual against the invoice.",
			Semantic:    true,
		},
	})
}

// Rules exposes the ordered rule list for auditing and tests.
func (c *Cascade) Rules() []Rule {
	return c.rules
}

// IsSemantic reports whether the named rule requires confirmation from the
// external semantic-classification service.
func (c *Cascade) IsSemantic(name string) bool {
	for i := range c.rules {
		if c.rules[i].Name == name {
			return c.rules[i].Semantic
		}
	}
	return false
}

// Classify runs the cascade for a row. The first matching rule wins; with no
// match the row is routed to manual review at the fixed fallback confidence.
// Anomaly evidence feeds the refund estimate, and a vendor profile may break
// category ambiguity without overriding an explicit high-confidence match.
func (c *Cascade) Classify(row *model.TransactionRow, anom model.AnomalyResult, profile *model.VendorProfile) model.ClassificationResult {
	result := model.ClassificationResult{
		RowID:        row.ID,
		Decision:     model.DecisionNeedsReview,
		Confidence:   FallbackConfidence,
		Citation:     "Requires manual review",
		Status:       model.StatusClassifiedByRule,
		ClassifiedAt: time.Now(),
	}

	matched := false
	for i := range c.rules {
		rule := &c.rules[i]
		if !rule.Matches(row) {
			continue
		}

		result.RuleName = rule.Name
		result.TaxCategory = rule.Category
		result.RefundBasis = rule.Basis
		result.Methodology = rule.Methodology
		result.Decision = rule.Decision
		result.Confidence = rule.Confidence
		result.Citation = rule.Citation
		result.Notes = rule.Note
		matched = true
		break
	}

	if anom.Flagged {
		result.Notes = strings.TrimSpace(result.Notes +
			" Possible hidden tax detected in rounded total.")
	}

	result = applyProfileTieBreak(result, matched, profile)
	result.EstimatedRefund = EstimateRefund(result.Decision, row.TaxAmount, anom)

	return result
}

// highConfidence is the floor above which a rule match is treated as explicit
// and immune to profile bias.
const highConfidence = 90

// applyProfileTieBreak biases an ambiguous result toward the vendor's
// dominant history. Explicit high-confidence matches are left alone.
func applyProfileTieBreak(result model.ClassificationResult, matched bool, profile *model.VendorProfile) model.ClassificationResult {
	if profile == nil || result.Confidence >= highConfidence {
		return result
	}

	// The profile only weighs in when the rule category is absent or already
	// one of the vendor's frequent categories.
	if matched && result.TaxCategory != "" {
		if profile.CategoryCounts[result.TaxCategory] == 0 {
			return result
		}
	}

	if profile.DominantCategory.Value != "" && result.TaxCategory == "" {
		result.TaxCategory = profile.DominantCategory.Value
		result.Notes = strings.TrimSpace(result.Notes +
			" Category suggested by vendor history.")
	}
	if profile.DominantMethodology.Value != "" && result.Methodology == "" {
		result.Methodology = profile.DominantMethodology.Value
		result.Notes = strings.TrimSpace(result.Notes +
			" Methodology suggested by vendor history.")
	}

	return result
}

// EstimateRefund computes the refund estimate for a decision: the itemized
// tax when present, otherwise the implied hidden tax, otherwise zero.
// Amounts are in cents.
func EstimateRefund(decision model.Decision, taxAmount int64, anom model.AnomalyResult) int64 {
	if decision != model.DecisionAddToClaim {
		return 0
	}
	if taxAmount > 0 {
		return taxAmount
	}
	if anom.Flagged {
		return anom.ImpliedTax
	}
	return 0
}

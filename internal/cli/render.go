package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/refundworks/refundflow/internal/model"
	"github.com/refundworks/refundflow/internal/service"
)

// FormatMoney renders cents as a dollar amount.
func FormatMoney(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// decisionStyle maps a decision to its display style.
func decisionStyle(d model.Decision) func(...string) string {
	switch d {
	case model.DecisionAddToClaim:
		return SuccessStyle.Render
	case model.DecisionDoNotAdd:
		return ErrorStyle.Render
	case model.DecisionNeedsReview:
		return WarningStyle.Render
	default:
		return SubtleStyle.Render
	}
}

// RenderReviewQueue renders the rows awaiting human attention as a table.
func RenderReviewQueue(rows []model.TransactionRow) string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Review Queue"))
	b.WriteString("\n")

	if len(rows) == 0 {
		b.WriteString(SubtleStyle.Render("Nothing awaiting review."))
		b.WriteString("\n")
		return b.String()
	}

	header := fmt.Sprintf("%-12s %-24s %-22s %-14s %5s %12s",
		"ROW", "VENDOR", "CATEGORY", "DECISION", "CONF", "EST. REFUND")
	b.WriteString(TableHeaderStyle.Render(header))
	b.WriteString("\n")

	for _, row := range rows {
		line := fmt.Sprintf("%-12s %-24s %-22s %-14s %4d%% %12s",
			truncate(row.ID, 12),
			truncate(row.Vendor, 24),
			truncate(row.TaxCategory, 22),
			decisionStyle(row.FinalDecision)(string(row.FinalDecision)),
			row.Confidence,
			FormatMoney(row.EstimatedRefund))
		b.WriteString(TableCellStyle.Render(line))
		b.WriteString("\n")
	}

	b.WriteString(SubtleStyle.Render(fmt.Sprintf("%d row(s) awaiting review", len(rows))))
	b.WriteString("\n")
	return b.String()
}

// RenderProfile renders one vendor profile.
func RenderProfile(p *model.VendorProfile) string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render(p.VendorKey))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Confirmed rows: %s\n", BoldStyle.Render(fmt.Sprintf("%d", p.TotalRows))))

	if p.DominantCategory.Value != "" {
		b.WriteString(fmt.Sprintf("Dominant category: %s (%d)\n", p.DominantCategory.Value, p.DominantCategory.Count))
	}
	if p.DominantBasis.Value != "" {
		b.WriteString(fmt.Sprintf("Dominant basis: %s (%d)\n", p.DominantBasis.Value, p.DominantBasis.Count))
	}
	if p.DominantMethodology.Value != "" {
		b.WriteString(fmt.Sprintf("Dominant methodology: %s (%d)\n", p.DominantMethodology.Value, p.DominantMethodology.Count))
	}

	if len(p.MethodologyMix) > 0 {
		b.WriteString("Methodology mix:\n")
		for name, stats := range p.MethodologyMix {
			if stats.AveragePct != nil {
				b.WriteString(fmt.Sprintf("  %s: %d row(s), avg allocation %.0f%%\n", name, stats.Count, *stats.AveragePct*100))
			} else {
				b.WriteString(fmt.Sprintf("  %s: %d row(s), no recorded allocation\n", name, stats.Count))
			}
		}
	}

	if len(p.FewShotExamples) > 0 {
		b.WriteString(SubtleStyle.Render(fmt.Sprintf("%d few-shot example(s) on file", len(p.FewShotExamples))))
		b.WriteString("\n")
	}

	return b.String()
}

// RenderCompletionStats renders the outcome of a classification run.
func RenderCompletionStats(stats service.CompletionStats) string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Classification Complete"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Total rows:        %d\n", stats.TotalRows))
	b.WriteString(fmt.Sprintf("Classified (rule): %s\n", SuccessStyle.Render(fmt.Sprintf("%d", stats.ClassifiedByRule))))
	b.WriteString(fmt.Sprintf("Classified (AI):   %s\n", SuccessStyle.Render(fmt.Sprintf("%d", stats.ClassifiedByAI))))
	b.WriteString(fmt.Sprintf("Needs review:      %s\n", WarningStyle.Render(fmt.Sprintf("%d", stats.NeedsReview))))
	b.WriteString(fmt.Sprintf("Skipped (no change): %d\n", stats.Skipped))

	if stats.Unprocessed > 0 {
		b.WriteString(fmt.Sprintf("Unprocessed:       %s\n", ErrorStyle.Render(fmt.Sprintf("%d", stats.Unprocessed))))
	}

	b.WriteString(SubtleStyle.Render(fmt.Sprintf("Finished in %s", stats.Duration.Round(time.Millisecond))))
	b.WriteString("\n")
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

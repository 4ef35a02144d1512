package digest

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/feed-audit/internal/domain"
)

// buildDigestPrompt renders the day's audit output as a compact table the
// model can summarize. The prompt pins the output format so the digest can
// go straight into a chat channel.
func buildDigestPrompt(loadDate civil.Date, summary *domain.RunSummary, rows []domain.DailyAuditRow, offenders []domain.TopNRow) string {
	var b strings.Builder

	b.WriteString("You are a data quality analyst. Write a short daily briefing about feed audit results.\n\n")
	b.WriteString("Output rules:\n")
	b.WriteString("- Plain text only, no Markdown, no code fences.\n")
	b.WriteString("- At most 6 sentences.\n")
	b.WriteString("- Lead with the worst file, then overall health, then anything unusual.\n")
	b.WriteString("- Mention error rates as percentages with one decimal.\n\n")

	fmt.Fprintf(&b, "Load date: %s\n\n", loadDate)

	if summary != nil {
		b.WriteString("Run summary:\n")
		fmt.Fprintf(&b, "- events processed: %d\n", summary.RowsProcessed)
		fmt.Fprintf(&b, "- rows written: %d\n", summary.RowsWritten)
		fmt.Fprintf(&b, "- structural defects dropped: %d\n", summary.StructuralDefects)
		fmt.Fprintf(&b, "- ambiguous join keys excluded: %d\n", summary.AmbiguousJoinKeys)
		fmt.Fprintf(&b, "- failed partitions: %d\n", summary.PartitionsFailed)
		b.WriteString("\n")
	}

	b.WriteString("Per-file daily results (file, total, invalid, error rate):\n")
	for _, row := range rows {
		rate := "n/a"
		if row.ErrorRate != nil {
			rate = fmt.Sprintf("%.4f", *row.ErrorRate)
		}
		fmt.Fprintf(&b, "- %s, %d, %d, %s\n", row.FileName, row.NbTotal, row.NbInvalid, rate)
	}
	b.WriteString("\n")

	if len(offenders) > 0 {
		b.WriteString("Top offenders by error rate:\n")
		for _, off := range offenders {
			rate := "n/a"
			if off.ErrorRate != nil {
				rate = fmt.Sprintf("%.4f", *off.ErrorRate)
			}
			fmt.Fprintf(&b, "%d. %s (%s)\n", off.Rank, off.FileName, rate)
		}
		b.WriteString("\n")
	}

	b.WriteString("Write the briefing now.\n")

	return b.String()
}

package audit

import (
	"sort"

	"github.com/dvloznov/feed-audit/internal/domain"
)

// DefaultTopK is how many worst offenders are retained per load date when
// none is configured.
const DefaultTopK = 3

// RankTopOffenders orders one load date's daily rows by error rate
// descending and keeps rows ranked 1..topK. Rows with a nil error rate sort
// last; equal rates break ties by file name ascending so the ranking is
// deterministic. All input rows must share a load date.
func RankTopOffenders(rows []domain.DailyAuditRow, topK int) []domain.TopNRow {
	if topK < 1 {
		topK = DefaultTopK
	}
	if len(rows) == 0 {
		return nil
	}

	ordered := make([]domain.DailyAuditRow, len(rows))
	copy(ordered, rows)

	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := ordered[i].ErrorRate, ordered[j].ErrorRate
		switch {
		case ri == nil && rj == nil:
			return ordered[i].FileName < ordered[j].FileName
		case ri == nil:
			return false
		case rj == nil:
			return true
		case *ri != *rj:
			return *ri > *rj
		default:
			return ordered[i].FileName < ordered[j].FileName
		}
	})

	n := topK
	if n > len(ordered) {
		n = len(ordered)
	}

	top := make([]domain.TopNRow, 0, n)
	for i := 0; i < n; i++ {
		row := domain.TopNRow{
			LoadDate: ordered[i].LoadDate,
			FileName: ordered[i].FileName,
			Rank:     i + 1,
		}
		if ordered[i].ErrorRate != nil {
			rate := *ordered[i].ErrorRate
			row.ErrorRate = &rate
		}
		top = append(top, row)
	}
	return top
}

package audit

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/feed-audit/internal/domain"
)

// Partial is the combinable per-partition accumulator. Merging partials is
// associative and commutative, so chunked or parallel aggregation over the
// same records always reduces to the same counts.
type Partial struct {
	NbTotal   int
	NbInvalid int
}

// Accumulate folds joined records into per-file partials.
func Accumulate(records []domain.JoinedRecord) map[string]Partial {
	partials := make(map[string]Partial)
	for _, rec := range records {
		p := partials[rec.Event.FileName]
		p.NbTotal++
		if rec.IsInvalid {
			p.NbInvalid++
		}
		partials[rec.Event.FileName] = p
	}
	return partials
}

// Combine merges partial maps produced by independent batches.
func Combine(parts ...map[string]Partial) map[string]Partial {
	merged := make(map[string]Partial)
	for _, part := range parts {
		for file, p := range part {
			m := merged[file]
			m.NbTotal += p.NbTotal
			m.NbInvalid += p.NbInvalid
			merged[file] = m
		}
	}
	return merged
}

// Reduce turns combined partials into daily audit rows for the load date,
// sorted by file name. An empty partition yields a nil error rate rather
// than a division error. Counts that cannot arise from valid inputs fail
// with KindInvariantViolation.
func Reduce(loadDate civil.Date, partials map[string]Partial) ([]domain.DailyAuditRow, error) {
	rows := make([]domain.DailyAuditRow, 0, len(partials))
	for file, p := range partials {
		if p.NbTotal < 0 || p.NbInvalid < 0 || p.NbInvalid > p.NbTotal {
			return nil, Ef(KindInvariantViolation, "Reduce",
				"file %q: nb_invalid=%d nb_total=%d", file, p.NbInvalid, p.NbTotal)
		}

		row := domain.DailyAuditRow{
			LoadDate:  loadDate,
			FileName:  file,
			NbTotal:   p.NbTotal,
			NbInvalid: p.NbInvalid,
		}
		if p.NbTotal > 0 {
			rate := float64(p.NbInvalid) / float64(p.NbTotal)
			row.ErrorRate = &rate
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].FileName < rows[j].FileName
	})
	return rows, nil
}

// Aggregate is the single-batch path: accumulate and reduce in one call.
func Aggregate(loadDate civil.Date, records []domain.JoinedRecord) ([]domain.DailyAuditRow, error) {
	return Reduce(loadDate, Accumulate(records))
}

package audit

import (
	"sort"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/feed-audit/internal/domain"
)

// DefaultWindowSize is the trailing window length when none is configured.
const DefaultWindowSize = 7

// Smoother maintains the trailing error-rate window for every file name it
// has observed. Rows for one file must arrive in load-date order; an
// out-of-order (backfill) row invalidates the cached running sum and forces
// recomputation from the inserted point forward for that file only. Files
// are independent of each other, so callers may feed different files from
// different goroutines; the arena itself is locked.
type Smoother struct {
	window int

	mu    sync.Mutex
	files map[string]*fileHistory
}

// fileHistory is the per-file state: the full observed daily rows ascending
// by load date, plus a cached trailing set of the most recent non-nil rates
// and their running sum. Nil-rate rows stay in history but never join a
// window.
type fileHistory struct {
	entries []domain.DailyAuditRow
	trail   []float64
	sum     float64
}

// NewSmoother creates a smoother with the given row-based window size.
// Sizes below 1 fall back to DefaultWindowSize.
func NewSmoother(window int) *Smoother {
	if window < 1 {
		window = DefaultWindowSize
	}
	return &Smoother{
		window: window,
		files:  make(map[string]*fileHistory),
	}
}

// WindowSize returns the configured trailing window length.
func (s *Smoother) WindowSize() int {
	return s.window
}

// HasFile reports whether the smoother already carries state for a file.
func (s *Smoother) HasFile(fileName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[fileName]
	return ok
}

// DailyRow returns the observed daily row for one (file, date) pair. It is
// how a backfill rewrite recovers the counts of dates outside the current
// run.
func (s *Smoother) DailyRow(fileName string, date civil.Date) (domain.DailyAuditRow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fh := s.files[fileName]
	if fh == nil {
		return domain.DailyAuditRow{}, false
	}
	pos := sort.Search(len(fh.entries), func(i int) bool {
		return !fh.entries[i].LoadDate.Before(date)
	})
	if pos == len(fh.entries) || fh.entries[pos].LoadDate != date {
		return domain.DailyAuditRow{}, false
	}
	return copyDaily(fh.entries[pos]), true
}

// Seed replaces a file's state with previously persisted daily rows. History
// is sorted ascending by load date before the running sum is rebuilt.
func (s *Smoother) Seed(fileName string, history []domain.DailyAuditRow) {
	entries := make([]domain.DailyAuditRow, 0, len(history))
	for _, row := range history {
		entries = append(entries, copyDaily(row))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LoadDate.Before(entries[j].LoadDate)
	})

	fh := &fileHistory{entries: entries}
	fh.rebuildTrail(s.window)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[fileName] = fh
}

// Observe folds one daily row into its file's history and returns the
// rolling rows whose values this observation determines. The common append
// path reuses the cached running sum and yields at most one row. A backfill
// (load date at or before an already observed date) recomputes every rolling
// value from the inserted point forward and returns them all, so the caller
// can re-upsert the affected keys.
func (s *Smoother) Observe(row domain.DailyAuditRow) []domain.RollingAuditRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	fh := s.files[row.FileName]
	if fh == nil {
		fh = &fileHistory{}
		s.files[row.FileName] = fh
	}

	entry := copyDaily(row)

	// Fast path: strictly newer than everything observed so far.
	if n := len(fh.entries); n == 0 || fh.entries[n-1].LoadDate.Before(row.LoadDate) {
		fh.entries = append(fh.entries, entry)
		fh.push(entry, s.window)
		if len(fh.trail) == 0 {
			return nil
		}
		return []domain.RollingAuditRow{{
			LoadDate:         row.LoadDate,
			FileName:         row.FileName,
			RollingErrorRate: fh.sum / float64(len(fh.trail)),
		}}
	}

	// Backfill: insert (or replace, on a re-run of the same date) and
	// recompute from that point forward.
	pos := sort.Search(len(fh.entries), func(i int) bool {
		return !fh.entries[i].LoadDate.Before(row.LoadDate)
	})
	if pos < len(fh.entries) && fh.entries[pos].LoadDate == row.LoadDate {
		fh.entries[pos] = entry
	} else {
		fh.entries = append(fh.entries, domain.DailyAuditRow{})
		copy(fh.entries[pos+1:], fh.entries[pos:])
		fh.entries[pos] = entry
	}

	return fh.recomputeFrom(pos, row.FileName, s.window)
}

// push advances the cached trailing set by one entry.
func (fh *fileHistory) push(e domain.DailyAuditRow, window int) {
	if e.ErrorRate == nil {
		return
	}
	fh.trail = append(fh.trail, *e.ErrorRate)
	fh.sum += *e.ErrorRate
	if len(fh.trail) > window {
		fh.sum -= fh.trail[0]
		fh.trail = fh.trail[1:]
	}
}

// rebuildTrail recomputes the cached trailing set from the full history.
func (fh *fileHistory) rebuildTrail(window int) {
	fh.trail = nil
	fh.sum = 0
	for _, e := range fh.entries {
		fh.push(e, window)
	}
}

// recomputeFrom replays the history through a fresh running sum and collects
// the rolling rows for every entry at or after index from. The final state
// of the replay becomes the new cached trail.
func (fh *fileHistory) recomputeFrom(from int, fileName string, window int) []domain.RollingAuditRow {
	fh.trail = nil
	fh.sum = 0

	var affected []domain.RollingAuditRow
	for i, e := range fh.entries {
		fh.push(e, window)
		if i < from || len(fh.trail) == 0 {
			continue
		}
		affected = append(affected, domain.RollingAuditRow{
			LoadDate:         e.LoadDate,
			FileName:         fileName,
			RollingErrorRate: fh.sum / float64(len(fh.trail)),
		})
	}
	return affected
}

// copyDaily detaches a daily row from its caller's memory.
func copyDaily(in domain.DailyAuditRow) domain.DailyAuditRow {
	out := in
	if in.ErrorRate != nil {
		rate := *in.ErrorRate
		out.ErrorRate = &rate
	}
	return out
}

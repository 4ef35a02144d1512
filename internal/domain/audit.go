package domain

import (
	"cloud.google.com/go/civil"
)

// DailyAuditRow is the per (load_date, file_name) quality summary produced by
// the aggregator. ErrorRate is nil exactly when NbTotal is zero.
type DailyAuditRow struct {
	LoadDate  civil.Date
	FileName  string
	NbTotal   int
	NbInvalid int
	ErrorRate *float64 // NbInvalid / NbTotal, nil when NbTotal == 0
}

// RollingAuditRow carries the trailing-window mean of ErrorRate for one file,
// ending at LoadDate. The window is row-based over observed daily rows with a
// non-nil error rate, not calendar-based.
type RollingAuditRow struct {
	LoadDate         civil.Date
	FileName         string
	RollingErrorRate float64
}

// TopNRow marks a file as one of the worst offenders for its load date.
// Rank starts at 1 for the highest daily error rate; ErrorRate carries the
// daily rate the rank was computed from.
type TopNRow struct {
	LoadDate  civil.Date
	FileName  string
	ErrorRate *float64
	Rank      int
}

// AuditResult is the full row triple for one (file_name, load_date) key.
// The writer commits a result atomically: either all three parts land or
// none do. Rolling and TopN are nil when the key produced no such row.
type AuditResult struct {
	Daily   DailyAuditRow
	Rolling *RollingAuditRow
	TopN    *TopNRow
}

// Key returns the (file_name, load_date) identity of the result.
func (r *AuditResult) Key() AuditKey {
	return AuditKey{FileName: r.Daily.FileName, LoadDate: r.Daily.LoadDate}
}

// RowCount returns how many audit table rows the result carries.
func (r *AuditResult) RowCount() int {
	n := 1
	if r.Rolling != nil {
		n++
	}
	if r.TopN != nil {
		n++
	}
	return n
}

// AuditKey identifies one audit table entry.
type AuditKey struct {
	FileName string
	LoadDate civil.Date
}

// RunSummary is what a run-for-date invocation reports back to its caller.
// Dropped and excluded records are counted here so no data loss is silent.
type RunSummary struct {
	RunID             string         `json:"run_id"`
	LoadDate          civil.Date     `json:"load_date"`
	RowsProcessed     int            `json:"rows_processed"`
	RowsWritten       int            `json:"rows_written"`
	PartitionsFailed  int            `json:"partitions_failed"`
	StructuralDefects int            `json:"structural_defects"`
	AmbiguousJoinKeys int            `json:"ambiguous_join_keys"`
	ErrorKinds        map[string]int `json:"error_kinds,omitempty"`
}

// Package bigquery holds the BigQuery-backed audit sink and feed source.
// One repository struct per concern, each holding a shared client; every
// operation also exists as a WithClient function so callers managing their
// own client can reuse it.
package bigquery

import (
	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/feed-audit/internal/domain"
)

// Default dataset layout. The project is always passed in; dataset and
// table names can be overridden through the repository options.
const (
	DefaultDataset = "feed_audit"

	auditTable     = "audit_results"
	rawEventsTable = "raw_events"
	rawTxTable     = "raw_transactions"
)

// AuditResultRow is the audit_results table schema. One row per
// (file_name, load_date): the daily counts plus the optional rolling and
// top-N attributes, kept in one row so a single MERGE commits or rejects
// the whole triple.
type AuditResultRow struct {
	FileName         string                 `bigquery:"file_name"`
	LoadDate         civil.Date             `bigquery:"load_date"`
	NbTotal          int64                  `bigquery:"nb_total"`
	NbInvalid        int64                  `bigquery:"nb_invalid"`
	ErrorRate        bigquery.NullFloat64   `bigquery:"error_rate"`
	RollingErrorRate bigquery.NullFloat64   `bigquery:"rolling_error_rate"`
	TopRank          bigquery.NullInt64     `bigquery:"top_rank"`
	UpdatedTS        bigquery.NullTimestamp `bigquery:"updated_ts"`
}

// auditRowFromResult flattens a domain row triple into the table schema.
func auditRowFromResult(result *domain.AuditResult) *AuditResultRow {
	row := &AuditResultRow{
		FileName:  result.Daily.FileName,
		LoadDate:  result.Daily.LoadDate,
		NbTotal:   int64(result.Daily.NbTotal),
		NbInvalid: int64(result.Daily.NbInvalid),
	}
	if result.Daily.ErrorRate != nil {
		row.ErrorRate = bigquery.NullFloat64{Float64: *result.Daily.ErrorRate, Valid: true}
	}
	if result.Rolling != nil {
		row.RollingErrorRate = bigquery.NullFloat64{Float64: result.Rolling.RollingErrorRate, Valid: true}
	}
	if result.TopN != nil {
		row.TopRank = bigquery.NullInt64{Int64: int64(result.TopN.Rank), Valid: true}
	}
	return row
}

// DailyRow converts the stored row back into the domain daily row.
func (r *AuditResultRow) DailyRow() domain.DailyAuditRow {
	row := domain.DailyAuditRow{
		LoadDate:  r.LoadDate,
		FileName:  r.FileName,
		NbTotal:   int(r.NbTotal),
		NbInvalid: int(r.NbInvalid),
	}
	if r.ErrorRate.Valid {
		rate := r.ErrorRate.Float64
		row.ErrorRate = &rate
	}
	return row
}

// AuditTableDDL documents the audit_results table. It is applied manually;
// the service itself never issues DDL.
const AuditTableDDL = `
CREATE TABLE IF NOT EXISTS ` + "`%s." + DefaultDataset + "." + auditTable + "`" + ` (
  file_name           STRING    NOT NULL,
  load_date           DATE      NOT NULL,
  nb_total            INT64     NOT NULL,
  nb_invalid          INT64     NOT NULL,
  error_rate          FLOAT64,
  rolling_error_rate  FLOAT64,
  top_rank            INT64,
  updated_ts          TIMESTAMP
)
PARTITION BY load_date
CLUSTER BY file_name
`

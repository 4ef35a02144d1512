package audit

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/feed-audit/internal/domain"
)

// RawRow is one unparsed feed row, keyed by column name. All values are
// strings; the normalizer owns every cast.
type RawRow map[string]string

// RecordSource yields the raw event and transaction rows for one load date.
// Implementations exist for CSV feeds on GCS and for raw BigQuery tables;
// both must respect context cancellation so a caller-supplied timeout bounds
// every fetch.
type RecordSource interface {
	FetchEvents(ctx context.Context, loadDate civil.Date) ([]RawRow, error)
	FetchTransactions(ctx context.Context, loadDate civil.Date) ([]RawRow, error)
}

// AuditSink durably persists computed audit results. Upsert is keyed by
// (file_name, load_date) and must be idempotent: replaying the same result
// leaves the sink byte-identical. A single Upsert call is the atomicity
// boundary - the whole row triple commits or none of it does. Existing keys
// are never deleted as a side effect of writing new ones.
type AuditSink interface {
	Upsert(ctx context.Context, result *domain.AuditResult) error
	Close() error
}

// HistoryReader provides read-only access to previously persisted daily
// rows, used to seed the rolling smoother for files it has not seen in this
// process. Rows come back ascending by load date. The full history is
// returned, not just the rows before the run date: an out-of-order run needs
// the later rows in the arena so their rolling values can be recomputed.
type HistoryReader interface {
	DailyHistory(ctx context.Context, fileName string) ([]domain.DailyAuditRow, error)
}

// TopOffenderReader is an optional extension of HistoryReader. A backfilled
// date changes only the rolling values of the dates after it, never their
// daily rates, so their persisted ranks stay correct; a history reader that
// can report them lets the backfill rewrite carry those ranks instead of
// erasing them.
type TopOffenderReader interface {
	TopOffenders(ctx context.Context, loadDate civil.Date) ([]domain.TopNRow, error)
}

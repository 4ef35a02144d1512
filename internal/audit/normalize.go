package audit

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cast"

	"github.com/dvloznov/feed-audit/internal/domain"
)

// Feed column names shared by the CSV and BigQuery sources.
const (
	ColEventID       = "event_id"
	ColTransactionID = "transaction_id"
	ColFileName      = "file_name"
	ColStatus        = "status"
	ColEventTime     = "event_time"
	ColAmount        = "amount"
	ColCustomerID    = "customer_id"
	ColLoadTime      = "load_time"
)

// timestampLayouts are the accepted feed timestamp formats, tried in order.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// RowDefect describes one raw row dropped during normalization. Defects are
// reported, never silently discarded.
type RowDefect struct {
	Index  int    // zero-based position in the raw feed
	Field  string // offending column
	Reason string
}

func (d RowDefect) String() string {
	return fmt.Sprintf("row %d: field %q: %s", d.Index, d.Field, d.Reason)
}

// NormalizeEvents casts raw event rows for a load date into typed records.
// Rows with a malformed timestamp or a missing identifying field are dropped
// and returned as defects; normalization never fails the run.
func NormalizeEvents(loadDate civil.Date, rows []RawRow) ([]domain.EventRecord, []RowDefect) {
	records := make([]domain.EventRecord, 0, len(rows))
	var defects []RowDefect

	for i, row := range rows {
		eventID := strings.TrimSpace(row[ColEventID])
		if eventID == "" {
			defects = append(defects, RowDefect{Index: i, Field: ColEventID, Reason: "missing"})
			continue
		}
		fileName := strings.TrimSpace(row[ColFileName])
		if fileName == "" {
			defects = append(defects, RowDefect{Index: i, Field: ColFileName, Reason: "missing"})
			continue
		}
		eventTime, err := parseTimestamp(row[ColEventTime])
		if err != nil {
			defects = append(defects, RowDefect{Index: i, Field: ColEventTime, Reason: err.Error()})
			continue
		}

		records = append(records, domain.EventRecord{
			EventID:       eventID,
			TransactionID: strings.TrimSpace(row[ColTransactionID]),
			FileName:      fileName,
			Status:        strings.TrimSpace(row[ColStatus]),
			EventTime:     eventTime,
			LoadDate:      loadDate,
		})
	}

	return records, defects
}

// NormalizeTransactions casts raw transaction rows into typed records.
// An amount that does not parse to a decimal is carried as nil, not treated
// as a defect; the classification engine judges nil amounts, the normalizer
// only judges structure.
func NormalizeTransactions(loadDate civil.Date, rows []RawRow) ([]domain.TransactionRecord, []RowDefect) {
	records := make([]domain.TransactionRecord, 0, len(rows))
	var defects []RowDefect

	for i, row := range rows {
		txID := strings.TrimSpace(row[ColTransactionID])
		if txID == "" {
			defects = append(defects, RowDefect{Index: i, Field: ColTransactionID, Reason: "missing"})
			continue
		}
		loadTime, err := parseTimestamp(row[ColLoadTime])
		if err != nil {
			defects = append(defects, RowDefect{Index: i, Field: ColLoadTime, Reason: err.Error()})
			continue
		}

		records = append(records, domain.TransactionRecord{
			TransactionID: txID,
			Amount:        parseAmount(row[ColAmount]),
			CustomerID:    strings.TrimSpace(row[ColCustomerID]),
			LoadTime:      loadTime,
			LoadDate:      loadDate,
		})
	}

	return records, defects
}

// parseAmount returns nil for empty, "null", or unparseable values.
func parseAmount(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	v, err := cast.ToFloat64E(s)
	if err != nil {
		return nil
	}
	return &v
}

func parseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

package audit

import (
	"testing"
	"time"

	"github.com/dvloznov/feed-audit/internal/domain"
)

func event(id, txID, file, status string) domain.EventRecord {
	return domain.EventRecord{
		EventID:       id,
		TransactionID: txID,
		FileName:      file,
		Status:        status,
		EventTime:     time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		LoadDate:      testDate,
	}
}

func transaction(id string, amount *float64) domain.TransactionRecord {
	return domain.TransactionRecord{
		TransactionID: id,
		Amount:        amount,
		CustomerID:    "c-" + id,
		LoadTime:      time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		LoadDate:      testDate,
	}
}

func TestJoinAndClassify_InvalidPredicate(t *testing.T) {
	// The reference scenario: OK/100.0 is valid, NOK/null and OK/-10.0 are not.
	events := []domain.EventRecord{
		event("e1", "t1", "f.csv", "OK"),
		event("e2", "t2", "f.csv", "NOK"),
		event("e3", "t3", "f.csv", "OK"),
	}
	txs := []domain.TransactionRecord{
		transaction("t1", f64(100.0)),
		transaction("t2", nil),
		transaction("t3", f64(-10.0)),
	}

	result := JoinAndClassify(events, BuildTxIndex(txs))

	if len(result.Records) != 3 {
		t.Fatalf("Expected 3 joined records, got %d", len(result.Records))
	}
	if len(result.Excluded) != 0 {
		t.Fatalf("Expected no exclusions, got %d", len(result.Excluded))
	}

	wantInvalid := []bool{false, true, true}
	for i, rec := range result.Records {
		if rec.IsInvalid != wantInvalid[i] {
			t.Errorf("Record %d (%s): is_invalid = %v, want %v", i, rec.Event.EventID, rec.IsInvalid, wantInvalid[i])
		}
	}
}

func TestJoinAndClassify_UnmatchedEventIsInvalid(t *testing.T) {
	events := []domain.EventRecord{event("e1", "missing", "f.csv", "OK")}

	result := JoinAndClassify(events, BuildTxIndex(nil))

	if len(result.Records) != 1 {
		t.Fatalf("Expected unmatched event to be kept, got %d records", len(result.Records))
	}
	rec := result.Records[0]
	if rec.Transaction != nil {
		t.Error("Expected nil transaction for unmatched event")
	}
	if !rec.IsInvalid {
		t.Error("Unmatched event must be invalid")
	}
}

func TestJoinAndClassify_AmbiguousKeyExcluded(t *testing.T) {
	events := []domain.EventRecord{
		event("e1", "dup", "f.csv", "OK"),
		event("e2", "t2", "f.csv", "OK"),
	}
	txs := []domain.TransactionRecord{
		transaction("dup", f64(1)),
		transaction("dup", f64(2)),
		transaction("t2", f64(3)),
	}

	idx := BuildTxIndex(txs)
	result := JoinAndClassify(events, idx)

	if len(result.Records) != 1 {
		t.Fatalf("Expected 1 joined record, got %d", len(result.Records))
	}
	if result.Records[0].Event.EventID != "e2" {
		t.Errorf("Expected e2 to survive, got %s", result.Records[0].Event.EventID)
	}
	if len(result.Excluded) != 1 || result.Excluded[0].EventID != "e1" {
		t.Errorf("Expected e1 excluded, got %+v", result.Excluded)
	}
	if got := idx.AmbiguousIDs(); len(got) != 1 || got[0] != "dup" {
		t.Errorf("Expected ambiguous id [dup], got %v", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status string
		tx     *domain.TransactionRecord
		want   bool
	}{
		{"ok with positive amount", "OK", txPtr(transaction("t", f64(10))), false},
		{"ok with zero amount", "OK", txPtr(transaction("t", f64(0))), false},
		{"non-ok status", "NOK", txPtr(transaction("t", f64(10))), true},
		{"null amount", "OK", txPtr(transaction("t", nil)), true},
		{"negative amount", "OK", txPtr(transaction("t", f64(-0.01))), true},
		{"no transaction", "OK", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(event("e", "t", "f.csv", tt.status), tt.tx)
			if got != tt.want {
				t.Errorf("classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func txPtr(tx domain.TransactionRecord) *domain.TransactionRecord {
	return &tx
}

func TestJoinAndClassify_Deterministic(t *testing.T) {
	events := []domain.EventRecord{
		event("e1", "t1", "a.csv", "OK"),
		event("e2", "t2", "b.csv", "NOK"),
		event("e3", "t9", "a.csv", "OK"),
	}
	txs := []domain.TransactionRecord{
		transaction("t2", f64(5)),
		transaction("t1", f64(7)),
	}

	first := JoinAndClassify(events, BuildTxIndex(txs))
	second := JoinAndClassify(events, BuildTxIndex(txs))

	if len(first.Records) != len(second.Records) {
		t.Fatalf("Runs disagree on record count: %d vs %d", len(first.Records), len(second.Records))
	}
	for i := range first.Records {
		if first.Records[i].Event.EventID != second.Records[i].Event.EventID ||
			first.Records[i].IsInvalid != second.Records[i].IsInvalid {
			t.Errorf("Record %d differs between identical runs", i)
		}
	}
}

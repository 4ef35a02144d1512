package audit

import (
	"errors"
	"math"
	"testing"

	"github.com/dvloznov/feed-audit/internal/domain"
)

func joined(file string, invalid bool) domain.JoinedRecord {
	return domain.JoinedRecord{
		Event:     event("e", "t", file, "OK"),
		IsInvalid: invalid,
	}
}

func TestAggregate(t *testing.T) {
	records := []domain.JoinedRecord{
		joined("f.csv", false),
		joined("f.csv", true),
		joined("f.csv", true),
		joined("g.csv", false),
	}

	rows, err := Aggregate(testDate, records)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}

	// Rows come back sorted by file name.
	f := rows[0]
	if f.FileName != "f.csv" || f.NbTotal != 3 || f.NbInvalid != 2 {
		t.Errorf("Unexpected f.csv row: %+v", f)
	}
	if f.ErrorRate == nil {
		t.Fatal("Expected non-nil error rate for f.csv")
	}
	if math.Abs(*f.ErrorRate-2.0/3.0) > 1e-12 {
		t.Errorf("Expected error rate 2/3, got %v", *f.ErrorRate)
	}

	g := rows[1]
	if g.FileName != "g.csv" || g.NbTotal != 1 || g.NbInvalid != 0 {
		t.Errorf("Unexpected g.csv row: %+v", g)
	}
	if g.ErrorRate == nil || *g.ErrorRate != 0 {
		t.Errorf("Expected error rate 0 for g.csv, got %v", g.ErrorRate)
	}
}

func TestReduce_EmptyPartitionHasNilRate(t *testing.T) {
	rows, err := Reduce(testDate, map[string]Partial{"empty.csv": {}})
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	if rows[0].ErrorRate != nil {
		t.Errorf("Expected nil error rate for empty partition, got %v", *rows[0].ErrorRate)
	}
}

func TestReduce_InvariantViolation(t *testing.T) {
	tests := []struct {
		name    string
		partial Partial
	}{
		{"invalid exceeds total", Partial{NbTotal: 1, NbInvalid: 2}},
		{"negative total", Partial{NbTotal: -1}},
		{"negative invalid", Partial{NbTotal: 1, NbInvalid: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reduce(testDate, map[string]Partial{"f.csv": tt.partial})
			if err == nil {
				t.Fatal("Expected invariant violation, got nil")
			}
			var ae *Error
			if !errors.As(err, &ae) || ae.Kind != KindInvariantViolation {
				t.Errorf("Expected KindInvariantViolation, got %v", err)
			}
			if !IsFatal(err) {
				t.Error("Invariant violations must be fatal")
			}
		})
	}
}

func TestCombine_AssociativeCommutative(t *testing.T) {
	a := map[string]Partial{"f": {NbTotal: 2, NbInvalid: 1}}
	b := map[string]Partial{"f": {NbTotal: 3, NbInvalid: 0}, "g": {NbTotal: 1, NbInvalid: 1}}
	c := map[string]Partial{"g": {NbTotal: 4, NbInvalid: 2}}

	abThenC := Combine(Combine(a, b), c)
	aThenBC := Combine(a, Combine(b, c))
	reversed := Combine(c, b, a)

	for name, want := range map[string]Partial{
		"f": {NbTotal: 5, NbInvalid: 1},
		"g": {NbTotal: 5, NbInvalid: 3},
	} {
		for label, got := range map[string]map[string]Partial{
			"(a+b)+c": abThenC,
			"a+(b+c)": aThenBC,
			"c+b+a":   reversed,
		} {
			if got[name] != want {
				t.Errorf("%s[%s] = %+v, want %+v", label, name, got[name], want)
			}
		}
	}
}

func TestAccumulate_MatchesSplitBatches(t *testing.T) {
	records := []domain.JoinedRecord{
		joined("f", true), joined("f", false), joined("g", true), joined("f", true),
	}

	whole := Accumulate(records)
	split := Combine(Accumulate(records[:2]), Accumulate(records[2:]))

	if len(whole) != len(split) {
		t.Fatalf("Partial maps differ in size: %d vs %d", len(whole), len(split))
	}
	for file, p := range whole {
		if split[file] != p {
			t.Errorf("File %s: whole=%+v split=%+v", file, p, split[file])
		}
	}
}

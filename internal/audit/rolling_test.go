package audit

import (
	"math"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/feed-audit/internal/domain"
)

func daily(file string, day int, rate *float64) domain.DailyAuditRow {
	nbTotal := 10
	nbInvalid := 0
	if rate != nil {
		nbInvalid = int(*rate * 10)
	} else {
		nbTotal = 0
	}
	return domain.DailyAuditRow{
		LoadDate:  civil.Date{Year: 2025, Month: 6, Day: day},
		FileName:  file,
		NbTotal:   nbTotal,
		NbInvalid: nbInvalid,
		ErrorRate: rate,
	}
}

func observeOne(t *testing.T, s *Smoother, row domain.DailyAuditRow) float64 {
	t.Helper()
	rows := s.Observe(row)
	if len(rows) != 1 {
		t.Fatalf("Expected 1 rolling row for %v, got %d", row.LoadDate, len(rows))
	}
	return rows[0].RollingErrorRate
}

func TestSmoother_TrailingWindow(t *testing.T) {
	// Ten consecutive days 0.1..1.0 with window 7: day 10 = mean(0.4..1.0).
	s := NewSmoother(7)

	var last float64
	for day := 1; day <= 10; day++ {
		rate := float64(day) / 10.0
		last = observeOne(t, s, daily("f.csv", day, &rate))
	}

	if math.Abs(last-0.7) > 1e-12 {
		t.Errorf("Day 10 rolling value = %v, want 0.7", last)
	}
}

func TestSmoother_ShortHistoryAveragesAvailableRows(t *testing.T) {
	s := NewSmoother(7)

	got := observeOne(t, s, daily("f.csv", 1, f64(0.2)))
	if got != 0.2 {
		t.Errorf("Single-row rolling value = %v, want 0.2", got)
	}

	got = observeOne(t, s, daily("f.csv", 2, f64(0.4)))
	if math.Abs(got-0.3) > 1e-12 {
		t.Errorf("Two-row rolling value = %v, want 0.3", got)
	}
}

func TestSmoother_NullDaysExcluded(t *testing.T) {
	s := NewSmoother(3)

	observeOne(t, s, daily("f.csv", 1, f64(0.3)))
	observeOne(t, s, daily("f.csv", 2, f64(0.6)))

	// A day with no records: nil rate. It still yields a rolling row from the
	// trailing non-null set, unchanged.
	got := observeOne(t, s, daily("f.csv", 3, nil))
	if math.Abs(got-0.45) > 1e-12 {
		t.Errorf("Null-day rolling value = %v, want 0.45", got)
	}

	// The null day must not occupy a window slot: the next observation still
	// sees both earlier rates.
	got = observeOne(t, s, daily("f.csv", 4, f64(0.9)))
	if math.Abs(got-0.6) > 1e-12 {
		t.Errorf("Post-null rolling value = %v, want 0.6", got)
	}
}

func TestSmoother_NullOnlyHistoryYieldsNoRollingRow(t *testing.T) {
	s := NewSmoother(7)
	if rows := s.Observe(daily("f.csv", 1, nil)); len(rows) != 0 {
		t.Errorf("Expected no rolling row for null-only history, got %v", rows)
	}
}

func TestSmoother_Seed(t *testing.T) {
	s := NewSmoother(7)
	if s.HasFile("f.csv") {
		t.Fatal("Unexpected state before seeding")
	}

	// Seed out of order; Seed must sort ascending itself.
	s.Seed("f.csv", []domain.DailyAuditRow{
		daily("f.csv", 3, f64(0.3)),
		daily("f.csv", 1, f64(0.1)),
		daily("f.csv", 2, f64(0.2)),
	})

	if !s.HasFile("f.csv") {
		t.Fatal("Expected state after seeding")
	}

	got := observeOne(t, s, daily("f.csv", 4, f64(0.4)))
	if math.Abs(got-0.25) > 1e-12 {
		t.Errorf("Seeded rolling value = %v, want 0.25", got)
	}
}

func TestSmoother_BackfillRecomputesForward(t *testing.T) {
	s := NewSmoother(2)

	observeOne(t, s, daily("f.csv", 1, f64(0.1)))
	observeOne(t, s, daily("f.csv", 3, f64(0.3)))
	observeOne(t, s, daily("f.csv", 4, f64(0.4)))

	// Backfill day 2. Days 2, 3, and 4 are all affected with window 2.
	rows := s.Observe(daily("f.csv", 2, f64(0.2)))
	if len(rows) != 3 {
		t.Fatalf("Expected 3 affected rolling rows, got %d", len(rows))
	}

	want := map[int]float64{2: 0.15, 3: 0.25, 4: 0.35}
	for _, row := range rows {
		if math.Abs(row.RollingErrorRate-want[row.LoadDate.Day]) > 1e-12 {
			t.Errorf("Day %d rolling value = %v, want %v", row.LoadDate.Day, row.RollingErrorRate, want[row.LoadDate.Day])
		}
	}

	// The cache must be valid again after the recompute.
	got := observeOne(t, s, daily("f.csv", 5, f64(0.5)))
	if math.Abs(got-0.45) > 1e-12 {
		t.Errorf("Post-backfill rolling value = %v, want 0.45", got)
	}
}

func TestSmoother_DailyRow(t *testing.T) {
	s := NewSmoother(7)

	observeOne(t, s, daily("f.csv", 1, f64(0.1)))
	observeOne(t, s, daily("f.csv", 2, f64(0.4)))

	row, ok := s.DailyRow("f.csv", civil.Date{Year: 2025, Month: 6, Day: 2})
	if !ok {
		t.Fatal("Expected stored daily row for day 2")
	}
	if row.NbTotal != 10 || row.NbInvalid != 4 {
		t.Errorf("Daily row counts = %+v, want nb_total=10 nb_invalid=4", row)
	}
	if row.ErrorRate == nil || *row.ErrorRate != 0.4 {
		t.Errorf("Daily row rate = %v, want 0.4", row.ErrorRate)
	}

	// The returned row is detached from the arena.
	*row.ErrorRate = 0.99
	again, _ := s.DailyRow("f.csv", civil.Date{Year: 2025, Month: 6, Day: 2})
	if *again.ErrorRate != 0.4 {
		t.Errorf("DailyRow returned shared state: %v", *again.ErrorRate)
	}

	if _, ok := s.DailyRow("f.csv", civil.Date{Year: 2025, Month: 6, Day: 9}); ok {
		t.Error("Expected no row for an unobserved date")
	}
	if _, ok := s.DailyRow("other.csv", civil.Date{Year: 2025, Month: 6, Day: 1}); ok {
		t.Error("Expected no row for an unobserved file")
	}
}

func TestSmoother_RerunSameDateIsIdempotent(t *testing.T) {
	s := NewSmoother(7)

	observeOne(t, s, daily("f.csv", 1, f64(0.2)))
	first := observeOne(t, s, daily("f.csv", 2, f64(0.4)))
	second := observeOne(t, s, daily("f.csv", 2, f64(0.4)))

	if first != second {
		t.Errorf("Re-running the same date changed the rolling value: %v vs %v", first, second)
	}
}

func TestSmoother_FilesAreIndependent(t *testing.T) {
	s := NewSmoother(7)

	observeOne(t, s, daily("a.csv", 1, f64(0.9)))
	got := observeOne(t, s, daily("b.csv", 1, f64(0.1)))

	if got != 0.1 {
		t.Errorf("b.csv rolling value = %v, want 0.1 (must not see a.csv history)", got)
	}
}

func TestNewSmoother_DefaultWindow(t *testing.T) {
	if got := NewSmoother(0).WindowSize(); got != DefaultWindowSize {
		t.Errorf("Default window = %d, want %d", got, DefaultWindowSize)
	}
}

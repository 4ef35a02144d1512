// Package inmemory provides an audit sink backed by process memory. It is
// the sink used by tests and local runs; production writes go through the
// BigQuery repository instead. Data is lost on restart.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/feed-audit/internal/domain"
)

// Sink stores audit results keyed by (file_name, load_date). It is safe for
// concurrent use; each Upsert replaces the whole row triple for its key
// under the lock, so concurrent writers to the same key settle on
// last-writer-wins and never interleave partial triples.
type Sink struct {
	mu      sync.RWMutex
	results map[domain.AuditKey]*domain.AuditResult
	closed  bool
}

// NewSink creates an empty in-memory audit sink.
func NewSink() *Sink {
	return &Sink{
		results: make(map[domain.AuditKey]*domain.AuditResult),
	}
}

// Upsert implements the audit sink contract: insert or fully overwrite the
// triple for the result's key. Other keys are never touched.
func (s *Sink) Upsert(ctx context.Context, result *domain.AuditResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if result.Daily.FileName == "" {
		return fmt.Errorf("Upsert: file name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("Upsert: sink is closed")
	}

	// Store a deep copy so callers cannot mutate persisted state.
	s.results[result.Key()] = copyResult(result)
	return nil
}

// Get returns a copy of the stored triple for a key, or nil when absent.
func (s *Sink) Get(fileName string, loadDate civil.Date) *domain.AuditResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.results[domain.AuditKey{FileName: fileName, LoadDate: loadDate}]
	if !ok {
		return nil
	}
	return copyResult(result)
}

// Len returns the number of stored keys.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Snapshot returns every stored triple ordered by (file_name, load_date).
// Two sinks holding the same state produce element-wise equal snapshots,
// which is how tests assert idempotent replay.
func (s *Sink) Snapshot() []*domain.AuditResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.AuditResult, 0, len(s.results))
	for _, result := range s.results {
		out = append(out, copyResult(result))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Daily.FileName != out[j].Daily.FileName {
			return out[i].Daily.FileName < out[j].Daily.FileName
		}
		return out[i].Daily.LoadDate.Before(out[j].Daily.LoadDate)
	})
	return out
}

// DailyHistory returns every stored daily row for one file, ascending by
// load date. This lets the sink double as the smoother's history reader in
// tests and local runs.
func (s *Sink) DailyHistory(ctx context.Context, fileName string) ([]domain.DailyAuditRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []domain.DailyAuditRow
	for key, result := range s.results {
		if key.FileName != fileName {
			continue
		}
		rows = append(rows, copyResult(result).Daily)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].LoadDate.Before(rows[j].LoadDate)
	})
	return rows, nil
}

// TopOffenders returns the stored ranking for one load date, ascending by
// rank. Backfill rewrites use it to keep a date's ranks intact.
func (s *Sink) TopOffenders(ctx context.Context, loadDate civil.Date) ([]domain.TopNRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []domain.TopNRow
	for key, result := range s.results {
		if key.LoadDate != loadDate || result.TopN == nil {
			continue
		}
		rows = append(rows, *copyResult(result).TopN)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Rank < rows[j].Rank
	})
	return rows, nil
}

// Close marks the sink closed; later upserts fail.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func copyResult(in *domain.AuditResult) *domain.AuditResult {
	out := &domain.AuditResult{Daily: in.Daily}
	if in.Daily.ErrorRate != nil {
		rate := *in.Daily.ErrorRate
		out.Daily.ErrorRate = &rate
	}
	if in.Rolling != nil {
		rolling := *in.Rolling
		out.Rolling = &rolling
	}
	if in.TopN != nil {
		top := *in.TopN
		if in.TopN.ErrorRate != nil {
			rate := *in.TopN.ErrorRate
			top.ErrorRate = &rate
		}
		out.TopN = &top
	}
	return out
}

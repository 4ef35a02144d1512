package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/feed-audit/internal/audit"
)

// DirSource reads daily CSV feeds from a local directory laid out like the
// GCS source: <root>/<load_date>/events.csv. Used for local development and
// integration tests; production feeds live on GCS.
type DirSource struct {
	root string
}

// NewDirSource creates a source over the given root directory.
func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

// FetchEvents implements the record source contract for the events feed.
func (s *DirSource) FetchEvents(ctx context.Context, loadDate civil.Date) ([]audit.RawRow, error) {
	return s.fetch(ctx, loadDate, EventsObject)
}

// FetchTransactions implements the record source contract for the
// transactions feed.
func (s *DirSource) FetchTransactions(ctx context.Context, loadDate civil.Date) ([]audit.RawRow, error) {
	return s.fetch(ctx, loadDate, TransactionsObject)
}

func (s *DirSource) fetch(ctx context.Context, loadDate civil.Date, name string) ([]audit.RawRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	feedPath := filepath.Join(s.root, loadDate.String(), name)
	data, err := os.ReadFile(feedPath)
	if err != nil {
		return nil, fmt.Errorf("DirSource.fetch: %w", err)
	}

	rows, err := ParseFeed(data)
	if err != nil {
		return nil, fmt.Errorf("DirSource.fetch: %s: %w", feedPath, err)
	}
	return rows, nil
}

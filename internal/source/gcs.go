package source

import (
	"context"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/feed-audit/internal/audit"

	"cloud.google.com/go/civil"
)

// GCSSource reads daily CSV feeds from a bucket laid out as
// <prefix>/<load_date>/events.csv and <prefix>/<load_date>/transactions.csv.
type GCSSource struct {
	bucket string
	prefix string
}

// NewGCSSource creates a source over the given bucket and object prefix.
func NewGCSSource(bucket, prefix string) *GCSSource {
	return &GCSSource{bucket: bucket, prefix: prefix}
}

// FetchEvents implements the record source contract for the events feed.
func (s *GCSSource) FetchEvents(ctx context.Context, loadDate civil.Date) ([]audit.RawRow, error) {
	return s.fetch(ctx, loadDate, EventsObject)
}

// FetchTransactions implements the record source contract for the
// transactions feed.
func (s *GCSSource) FetchTransactions(ctx context.Context, loadDate civil.Date) ([]audit.RawRow, error) {
	return s.fetch(ctx, loadDate, TransactionsObject)
}

func (s *GCSSource) fetch(ctx context.Context, loadDate civil.Date, object string) ([]audit.RawRow, error) {
	objectName := path.Join(s.prefix, loadDate.String(), object)

	data, err := downloadObject(ctx, s.bucket, objectName)
	if err != nil {
		return nil, fmt.Errorf("GCSSource.fetch: gs://%s/%s: %w", s.bucket, objectName, err)
	}

	rows, err := ParseFeed(data)
	if err != nil {
		return nil, fmt.Errorf("GCSSource.fetch: gs://%s/%s: %w", s.bucket, objectName, err)
	}
	return rows, nil
}

func downloadObject(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}

	return data, nil
}

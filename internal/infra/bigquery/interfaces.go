package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/feed-audit/internal/audit"
	"github.com/dvloznov/feed-audit/internal/domain"
)

// AuditRepository is the BigQuery-backed audit sink plus the read-only
// history view the rolling smoother seeds from. It satisfies both
// audit.AuditSink and audit.HistoryReader.
type AuditRepository struct {
	client  *bigquery.Client
	project string
	dataset string
}

// NewAuditRepository creates a repository with a shared BigQuery client.
// dataset may be empty to use DefaultDataset.
func NewAuditRepository(ctx context.Context, project, dataset string) (*AuditRepository, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewAuditRepository: creating client: %w", err)
	}
	return &AuditRepository{client: client, project: project, dataset: dataset}, nil
}

// Upsert delegates to UpsertWithClient using the shared client.
func (r *AuditRepository) Upsert(ctx context.Context, result *domain.AuditResult) error {
	return UpsertWithClient(ctx, r.client, r.project, r.dataset, result)
}

// DailyHistory delegates to DailyHistoryWithClient using the shared client.
func (r *AuditRepository) DailyHistory(ctx context.Context, fileName string) ([]domain.DailyAuditRow, error) {
	return DailyHistoryWithClient(ctx, r.client, r.project, r.dataset, fileName)
}

// DailyRows delegates to DailyRowsWithClient using the shared client.
func (r *AuditRepository) DailyRows(ctx context.Context, loadDate civil.Date) ([]domain.DailyAuditRow, error) {
	return DailyRowsWithClient(ctx, r.client, r.project, r.dataset, loadDate)
}

// TopOffenders delegates to TopOffendersWithClient using the shared client.
func (r *AuditRepository) TopOffenders(ctx context.Context, loadDate civil.Date) ([]domain.TopNRow, error) {
	return TopOffendersWithClient(ctx, r.client, r.project, r.dataset, loadDate)
}

// Close closes the BigQuery client connection.
func (r *AuditRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// FeedRepository serves raw feed rows from the raw_events and
// raw_transactions tables. It satisfies audit.RecordSource for deployments
// where feeds land in BigQuery instead of GCS.
type FeedRepository struct {
	client  *bigquery.Client
	project string
	dataset string
}

// NewFeedRepository creates a repository with a shared BigQuery client.
func NewFeedRepository(ctx context.Context, project, dataset string) (*FeedRepository, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewFeedRepository: creating client: %w", err)
	}
	return &FeedRepository{client: client, project: project, dataset: dataset}, nil
}

// FetchEvents returns the raw event rows for a load date.
func (r *FeedRepository) FetchEvents(ctx context.Context, loadDate civil.Date) ([]audit.RawRow, error) {
	return fetchFeedWithClient(ctx, r.client, r.project, r.dataset, rawEventsTable, eventColumns, loadDate)
}

// FetchTransactions returns the raw transaction rows for a load date.
func (r *FeedRepository) FetchTransactions(ctx context.Context, loadDate civil.Date) ([]audit.RawRow, error) {
	return fetchFeedWithClient(ctx, r.client, r.project, r.dataset, rawTxTable, transactionColumns, loadDate)
}

// Close closes the BigQuery client connection.
func (r *FeedRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Ensure the repositories satisfy the pipeline interfaces.
var _ audit.AuditSink = (*AuditRepository)(nil)
var _ audit.HistoryReader = (*AuditRepository)(nil)
var _ audit.TopOffenderReader = (*AuditRepository)(nil)
var _ audit.RecordSource = (*FeedRepository)(nil)

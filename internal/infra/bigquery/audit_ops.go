package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/feed-audit/internal/domain"
)

// UpsertWithClient merges one audit result into audit_results using the
// provided BigQuery client. The MERGE is a single statement keyed by
// (file_name, load_date), so the whole row triple commits atomically:
// replaying the same result is a no-op update and other keys are never
// touched.
func UpsertWithClient(ctx context.Context, client *bigquery.Client, project, dataset string, result *domain.AuditResult) error {
	row := auditRowFromResult(result)

	q := client.Query(fmt.Sprintf(`
		MERGE `+"`%s.%s.%s`"+` T
		USING (SELECT @file_name AS file_name, @load_date AS load_date) S
		ON T.file_name = S.file_name AND T.load_date = S.load_date
		WHEN MATCHED THEN UPDATE SET
			nb_total = @nb_total,
			nb_invalid = @nb_invalid,
			error_rate = @error_rate,
			rolling_error_rate = @rolling_error_rate,
			top_rank = @top_rank,
			updated_ts = CURRENT_TIMESTAMP()
		WHEN NOT MATCHED THEN INSERT (
			file_name, load_date, nb_total, nb_invalid,
			error_rate, rolling_error_rate, top_rank, updated_ts
		)
		VALUES (
			@file_name, @load_date, @nb_total, @nb_invalid,
			@error_rate, @rolling_error_rate, @top_rank, CURRENT_TIMESTAMP()
		)
	`, project, dataset, auditTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "file_name", Value: row.FileName},
		{Name: "load_date", Value: row.LoadDate},
		{Name: "nb_total", Value: row.NbTotal},
		{Name: "nb_invalid", Value: row.NbInvalid},
		{Name: "error_rate", Value: row.ErrorRate},
		{Name: "rolling_error_rate", Value: row.RollingErrorRate},
		{Name: "top_rank", Value: row.TopRank},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("UpsertWithClient: running merge: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("UpsertWithClient: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("UpsertWithClient: job error: %w", err)
	}

	return nil
}

// DailyHistoryWithClient returns the full persisted daily history for one
// file, ascending by load date, using the provided client. Only the daily
// columns come back; rolling and rank values are outputs of the pipeline,
// never inputs.
func DailyHistoryWithClient(ctx context.Context, client *bigquery.Client, project, dataset, fileName string) ([]domain.DailyAuditRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			file_name,
			load_date,
			nb_total,
			nb_invalid,
			error_rate
		FROM `+"`%s.%s.%s`"+`
		WHERE file_name = @file_name
		ORDER BY load_date
	`, project, dataset, auditTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "file_name", Value: fileName},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("DailyHistoryWithClient: query read: %w", err)
	}

	var rows []domain.DailyAuditRow
	for {
		var row AuditResultRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("DailyHistoryWithClient: iterating: %w", err)
		}
		rows = append(rows, row.DailyRow())
	}

	return rows, nil
}

// DailyRowsWithClient returns all persisted daily rows for one load date,
// ordered by file name.
func DailyRowsWithClient(ctx context.Context, client *bigquery.Client, project, dataset string, loadDate civil.Date) ([]domain.DailyAuditRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			file_name,
			load_date,
			nb_total,
			nb_invalid,
			error_rate
		FROM `+"`%s.%s.%s`"+`
		WHERE load_date = @load_date
		ORDER BY file_name
	`, project, dataset, auditTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "load_date", Value: loadDate},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("DailyRowsWithClient: query read: %w", err)
	}

	var rows []domain.DailyAuditRow
	for {
		var row AuditResultRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("DailyRowsWithClient: iterating: %w", err)
		}
		rows = append(rows, row.DailyRow())
	}

	return rows, nil
}

// TopOffendersWithClient returns the ranked offender rows for one load
// date, ordered by rank.
func TopOffendersWithClient(ctx context.Context, client *bigquery.Client, project, dataset string, loadDate civil.Date) ([]domain.TopNRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			file_name,
			load_date,
			nb_total,
			nb_invalid,
			error_rate,
			top_rank
		FROM `+"`%s.%s.%s`"+`
		WHERE load_date = @load_date
		  AND top_rank IS NOT NULL
		ORDER BY top_rank
	`, project, dataset, auditTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "load_date", Value: loadDate},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("TopOffendersWithClient: query read: %w", err)
	}

	var rows []domain.TopNRow
	for {
		var row AuditResultRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("TopOffendersWithClient: iterating: %w", err)
		}

		offender := domain.TopNRow{
			LoadDate: row.LoadDate,
			FileName: row.FileName,
			Rank:     int(row.TopRank.Int64),
		}
		if row.ErrorRate.Valid {
			rate := row.ErrorRate.Float64
			offender.ErrorRate = &rate
		}
		rows = append(rows, offender)
	}

	return rows, nil
}

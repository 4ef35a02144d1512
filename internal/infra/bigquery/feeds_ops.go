package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/spf13/cast"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/feed-audit/internal/audit"
)

// Raw feed columns selected per table. Every column is cast to STRING in
// the query so the normalizer sees exactly what a CSV feed would have
// carried, and owns every typed cast.
var (
	eventColumns = []string{
		audit.ColEventID,
		audit.ColTransactionID,
		audit.ColFileName,
		audit.ColStatus,
		audit.ColEventTime,
	}
	transactionColumns = []string{
		audit.ColTransactionID,
		audit.ColAmount,
		audit.ColCustomerID,
		audit.ColLoadTime,
	}
)

func fetchFeedWithClient(ctx context.Context, client *bigquery.Client, project, dataset, table string, columns []string, loadDate civil.Date) ([]audit.RawRow, error) {
	selects := make([]string, len(columns))
	for i, col := range columns {
		selects[i] = fmt.Sprintf("CAST(%s AS STRING) AS %s", col, col)
	}

	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM `+"`%s.%s.%s`"+`
		WHERE load_date = @load_date
	`, strings.Join(selects, ", "), project, dataset, table))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "load_date", Value: loadDate},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetchFeedWithClient: %s: query read: %w", table, err)
	}

	var rows []audit.RawRow
	for {
		var values map[string]bigquery.Value
		err := it.Next(&values)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetchFeedWithClient: %s: iterating: %w", table, err)
		}

		row := make(audit.RawRow, len(values))
		for name, value := range values {
			if value == nil {
				continue
			}
			row[name] = cast.ToString(value)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

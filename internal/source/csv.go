// Package source provides record sources that serve raw feed rows for a
// load date. Feeds are CSV files named events.csv and transactions.csv,
// grouped under one folder per load date.
package source

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/feed-audit/internal/audit"
)

// Feed object names within a load date folder.
const (
	EventsObject       = "events.csv"
	TransactionsObject = "transactions.csv"
)

// ParseFeed reads a CSV feed into raw rows keyed by the header columns.
// Header names are trimmed and lower-cased so feeds with cosmetic header
// differences normalize to the same keys. Ragged rows fail the whole feed:
// that is a malformed file, not a row-level defect.
func ParseFeed(data []byte) ([]audit.RawRow, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("ParseFeed: empty feed")
	}
	if err != nil {
		return nil, fmt.Errorf("ParseFeed: reading header: %w", err)
	}

	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = strings.ToLower(strings.TrimSpace(name))
	}

	var rows []audit.RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ParseFeed: reading row %d: %w", len(rows)+1, err)
		}

		row := make(audit.RawRow, len(columns))
		for i, value := range record {
			row[columns[i]] = value
		}
		rows = append(rows, row)
	}

	return rows, nil
}

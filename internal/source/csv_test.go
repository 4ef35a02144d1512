package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"
)

func TestParseFeed(t *testing.T) {
	data := []byte("event_id,transaction_id,file_name,status,event_time\n" +
		"e1,t1,f.csv,OK,2025-06-01T10:00:00Z\n" +
		"e2,t2,f.csv,NOK,2025-06-01T10:05:00Z\n")

	rows, err := ParseFeed(data)
	if err != nil {
		t.Fatalf("ParseFeed failed: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0]["event_id"] != "e1" || rows[0]["status"] != "OK" {
		t.Errorf("Unexpected first row: %v", rows[0])
	}
	if rows[1]["transaction_id"] != "t2" {
		t.Errorf("Unexpected second row: %v", rows[1])
	}
}

func TestParseFeed_NormalizesHeaderCase(t *testing.T) {
	data := []byte("Event_ID, Status\ne1,OK\n")

	rows, err := ParseFeed(data)
	if err != nil {
		t.Fatalf("ParseFeed failed: %v", err)
	}
	if rows[0]["event_id"] != "e1" {
		t.Errorf("Expected lower-cased header keys, got %v", rows[0])
	}
}

func TestParseFeed_HeaderOnly(t *testing.T) {
	rows, err := ParseFeed([]byte("event_id,status\n"))
	if err != nil {
		t.Fatalf("ParseFeed failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected no rows, got %d", len(rows))
	}
}

func TestParseFeed_Empty(t *testing.T) {
	if _, err := ParseFeed(nil); err == nil {
		t.Error("Expected error for empty feed")
	}
}

func TestParseFeed_RaggedRowFailsFeed(t *testing.T) {
	data := []byte("a,b\n1,2\n3\n")
	if _, err := ParseFeed(data); err == nil {
		t.Error("Expected error for ragged row")
	}
}

func TestDirSource(t *testing.T) {
	root := t.TempDir()
	loadDate := civil.Date{Year: 2025, Month: 6, Day: 1}

	dayDir := filepath.Join(root, loadDate.String())
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		t.Fatal(err)
	}
	events := "event_id,transaction_id,file_name,status,event_time\ne1,t1,f.csv,OK,2025-06-01\n"
	txs := "transaction_id,amount,customer_id,load_time\nt1,10.5,c1,2025-06-01\n"
	if err := os.WriteFile(filepath.Join(dayDir, EventsObject), []byte(events), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dayDir, TransactionsObject), []byte(txs), 0o644); err != nil {
		t.Fatal(err)
	}

	src := NewDirSource(root)
	ctx := context.Background()

	eventRows, err := src.FetchEvents(ctx, loadDate)
	if err != nil {
		t.Fatalf("FetchEvents failed: %v", err)
	}
	if len(eventRows) != 1 || eventRows[0]["event_id"] != "e1" {
		t.Errorf("Unexpected event rows: %v", eventRows)
	}

	txRows, err := src.FetchTransactions(ctx, loadDate)
	if err != nil {
		t.Fatalf("FetchTransactions failed: %v", err)
	}
	if len(txRows) != 1 || txRows[0]["amount"] != "10.5" {
		t.Errorf("Unexpected transaction rows: %v", txRows)
	}
}

func TestDirSource_MissingDate(t *testing.T) {
	src := NewDirSource(t.TempDir())
	_, err := src.FetchEvents(context.Background(), civil.Date{Year: 2025, Month: 1, Day: 1})
	if err == nil {
		t.Error("Expected error for missing feed folder")
	}
}

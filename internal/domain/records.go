package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// EventRecord is one normalized event row from a daily feed file.
// Records are immutable once produced by the normalizer; downstream stages
// only read them.
type EventRecord struct {
	EventID       string     // unique within a load run
	TransactionID string     // join key against TransactionRecord
	FileName      string     // logical source file group, the partition key
	Status        string     // business status flag; "OK" means clean
	EventTime     time.Time  // parsed from "event_time"
	LoadDate      civil.Date // calendar date of the load run
}

// TransactionRecord is one normalized transaction row from a daily feed.
type TransactionRecord struct {
	TransactionID string     // primary key within a load run
	Amount        *float64   // nil when the raw value was missing or unparseable
	CustomerID    string     // from "customer_id"
	LoadTime      time.Time  // parsed from "load_time"
	LoadDate      civil.Date // calendar date of the load run
}

// JoinedRecord is the left-join of one EventRecord against at most one
// TransactionRecord on TransactionID. Transaction fields stay nil/zero when
// the event found no match.
type JoinedRecord struct {
	Event       EventRecord
	Transaction *TransactionRecord // nil for unmatched events
	IsInvalid   bool               // verdict of the invalid-record predicate
}

package audit

import (
	"sort"

	"github.com/dvloznov/feed-audit/internal/domain"
)

// statusOK is the only event status considered clean by the classifier.
const statusOK = "OK"

// ExcludedEvent reports one event dropped from the join because its
// transaction id matched more than one transaction row.
type ExcludedEvent struct {
	EventID       string
	TransactionID string
}

// JoinResult is the output of the join and classification stage.
type JoinResult struct {
	Records  []domain.JoinedRecord
	Excluded []ExcludedEvent // ambiguous join keys, reported per event
}

// txIndex maps transaction ids to their single transaction row, tracking ids
// that appeared more than once.
type txIndex struct {
	byID      map[string]*domain.TransactionRecord
	ambiguous map[string]bool
}

// BuildTxIndex indexes transactions by id. Duplicate ids are remembered as
// ambiguous; every event referencing one is later excluded rather than
// joined to an arbitrary row.
func BuildTxIndex(txs []domain.TransactionRecord) *txIndex {
	idx := &txIndex{
		byID:      make(map[string]*domain.TransactionRecord, len(txs)),
		ambiguous: make(map[string]bool),
	}
	for i := range txs {
		tx := &txs[i]
		if _, seen := idx.byID[tx.TransactionID]; seen {
			idx.ambiguous[tx.TransactionID] = true
			continue
		}
		idx.byID[tx.TransactionID] = tx
	}
	return idx
}

// JoinAndClassify left-joins events to transactions on transaction id and
// applies the invalid-record predicate to every joined record. Unmatched
// events are kept, carry a nil transaction, and are always invalid. The
// output preserves event order, so identical inputs produce identical
// output regardless of how partitions were scheduled.
func JoinAndClassify(events []domain.EventRecord, idx *txIndex) JoinResult {
	result := JoinResult{
		Records: make([]domain.JoinedRecord, 0, len(events)),
	}

	for _, ev := range events {
		if idx.ambiguous[ev.TransactionID] {
			result.Excluded = append(result.Excluded, ExcludedEvent{
				EventID:       ev.EventID,
				TransactionID: ev.TransactionID,
			})
			continue
		}

		tx := idx.byID[ev.TransactionID]
		result.Records = append(result.Records, domain.JoinedRecord{
			Event:       ev,
			Transaction: tx,
			IsInvalid:   classify(ev, tx),
		})
	}

	return result
}

// classify implements the invalid-record predicate:
//
//	is_invalid = (status != "OK") OR (amount IS NULL) OR (amount < 0)
//
// A missing transaction is treated as a null amount.
func classify(ev domain.EventRecord, tx *domain.TransactionRecord) bool {
	if ev.Status != statusOK {
		return true
	}
	if tx == nil || tx.Amount == nil {
		return true
	}
	return *tx.Amount < 0
}

// AmbiguousIDs returns the sorted set of transaction ids the index flagged
// as duplicated, for run-summary reporting.
func (idx *txIndex) AmbiguousIDs() []string {
	ids := make([]string, 0, len(idx.ambiguous))
	for id := range idx.ambiguous {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

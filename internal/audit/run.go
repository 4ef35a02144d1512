package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/feed-audit/internal/domain"
	"github.com/dvloznov/feed-audit/internal/logger"
)

// Config tunes one Runner. Zero values fall back to the defaults below.
type Config struct {
	WindowSize   int           // trailing window length, default 7
	TopK         int           // offenders retained per load date, default 3
	Workers      int           // concurrent file partitions, default 4
	FetchTimeout time.Duration // bound on each source fetch, default 2m
	WriteTimeout time.Duration // bound on each sink upsert, default 30s
}

const (
	defaultWorkers      = 4
	defaultFetchTimeout = 2 * time.Minute
	defaultWriteTimeout = 30 * time.Second
)

// Runner drives the full audit for one load date: fetch, normalize, join,
// classify, aggregate, smooth, rank, and write. The runner owns the rolling
// smoother arena, so a long-lived runner processes consecutive dates
// incrementally instead of rescanning history.
type Runner struct {
	source   RecordSource
	sink     AuditSink
	history  HistoryReader // optional; nil disables smoother seeding
	smoother *Smoother

	topK         int
	workers      int
	fetchTimeout time.Duration
	writeTimeout time.Duration
}

// NewRunner wires a runner to its source and sink. history may be nil when
// no persisted daily rows exist to seed the smoother from.
func NewRunner(source RecordSource, sink AuditSink, history HistoryReader, cfg Config) *Runner {
	if cfg.TopK < 1 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Workers < 1 {
		cfg.Workers = defaultWorkers
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Runner{
		source:       source,
		sink:         sink,
		history:      history,
		smoother:     NewSmoother(cfg.WindowSize),
		topK:         cfg.TopK,
		workers:      cfg.Workers,
		fetchTimeout: cfg.FetchTimeout,
		writeTimeout: cfg.WriteTimeout,
	}
}

// RunForDate audits one load date end to end and reports what happened.
// Partition-scoped failures are counted into the summary and do not abort
// the rest of the run; only KindInvariantViolation (or a failed feed fetch,
// which leaves nothing to audit) returns an error.
func (r *Runner) RunForDate(ctx context.Context, loadDate civil.Date) (*domain.RunSummary, error) {
	runID := uuid.NewString()
	log := logger.WithRun(logger.FromContext(ctx), runID, loadDate.String())

	summary := &domain.RunSummary{
		RunID:      runID,
		LoadDate:   loadDate,
		ErrorKinds: make(map[string]int),
	}

	log.Info().Msg("Starting audit run")

	// 1. Fetch both feeds, bounded by the fetch timeout.
	rawEvents, rawTxs, err := r.fetchFeeds(ctx, loadDate)
	if err != nil {
		return summary, err
	}

	// 2. Normalize. Defective rows are dropped, counted, and logged.
	events, eventDefects := NormalizeEvents(loadDate, rawEvents)
	txs, txDefects := NormalizeTransactions(loadDate, rawTxs)
	for _, d := range append(eventDefects, txDefects...) {
		log.Warn().Str("defect", d.String()).Msg("Dropped structurally defective row")
	}
	summary.StructuralDefects = len(eventDefects) + len(txDefects)
	if summary.StructuralDefects > 0 {
		summary.ErrorKinds[string(KindStructuralDefect)] = summary.StructuralDefects
	}

	// 3. Index transactions once; the index is read-only across partitions.
	idx := BuildTxIndex(txs)
	if ambiguous := idx.AmbiguousIDs(); len(ambiguous) > 0 {
		log.Warn().Strs("transaction_ids", ambiguous).Msg("Duplicate transaction ids in feed")
	}

	// 4. Join, classify, and accumulate per file partition, concurrently.
	partials, excluded := r.processPartitions(events, idx)
	summary.AmbiguousJoinKeys = len(excluded)
	if len(excluded) > 0 {
		summary.ErrorKinds[string(KindAmbiguousJoinKey)] = len(excluded)
	}
	for _, ex := range excluded {
		log.Warn().
			Str("event_id", ex.EventID).
			Str("transaction_id", ex.TransactionID).
			Msg("Excluded event with ambiguous join key")
	}

	// 5. Reduce to daily rows. A broken invariant here is a logic bug and
	// halts the run.
	dailyRows, err := Reduce(loadDate, partials)
	if err != nil {
		log.Error().Err(err).Msg("Aggregation invariant violated")
		return summary, err
	}
	for _, row := range dailyRows {
		summary.RowsProcessed += row.NbTotal
	}

	// 6. Smooth and rank.
	rolling := r.smooth(ctx, log, dailyRows, summary)
	topN := RankTopOffenders(dailyRows, r.topK)

	// 7. Assemble the row triple per key and upsert. An out-of-order date
	// also rewrites every later key whose rolling value its insertion
	// changed.
	results := assembleResults(dailyRows, rolling, topN)
	results = append(results, r.backfillResults(ctx, log, dailyRows, rolling)...)
	r.writeResults(ctx, log, results, summary)

	log.Info().
		Int("rows_processed", summary.RowsProcessed).
		Int("rows_written", summary.RowsWritten).
		Int("partitions_failed", summary.PartitionsFailed).
		Msg("Audit run finished")

	return summary, ctx.Err()
}

func (r *Runner) fetchFeeds(ctx context.Context, loadDate civil.Date) ([]RawRow, []RawRow, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	rawEvents, err := r.source.FetchEvents(fetchCtx, loadDate)
	if err != nil {
		return nil, nil, E(KindSourceUnavailable, "RunForDate", fmt.Errorf("fetching events: %w", err))
	}
	rawTxs, err := r.source.FetchTransactions(fetchCtx, loadDate)
	if err != nil {
		return nil, nil, E(KindSourceUnavailable, "RunForDate", fmt.Errorf("fetching transactions: %w", err))
	}
	return rawEvents, rawTxs, nil
}

// processPartitions runs join+classify+accumulate for every file partition
// on a bounded worker pool. Partitions share only the immutable transaction
// index and write their partials into the combined map under a mutex.
func (r *Runner) processPartitions(events []domain.EventRecord, idx *txIndex) (map[string]Partial, []ExcludedEvent) {
	partitions := make(map[string][]domain.EventRecord)
	for _, ev := range events {
		partitions[ev.FileName] = append(partitions[ev.FileName], ev)
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		combined = make(map[string]Partial)
		excluded []ExcludedEvent
	)

	work := make(chan []domain.EventRecord)
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range work {
				result := JoinAndClassify(batch, idx)
				partial := Accumulate(result.Records)

				mu.Lock()
				for file, p := range partial {
					c := combined[file]
					c.NbTotal += p.NbTotal
					c.NbInvalid += p.NbInvalid
					combined[file] = c
				}
				excluded = append(excluded, result.Excluded...)
				mu.Unlock()
			}
		}()
	}

	for _, batch := range partitions {
		work <- batch
	}
	close(work)
	wg.Wait()

	return combined, excluded
}

// smooth seeds the smoother for files it has not seen, then folds each daily
// row in. A failed history read fails only that file's partition: its daily
// row still exists but no rolling value is produced for it this run.
func (r *Runner) smooth(ctx context.Context, log zerolog.Logger, rows []domain.DailyAuditRow, summary *domain.RunSummary) map[domain.AuditKey]*domain.RollingAuditRow {
	rolling := make(map[domain.AuditKey]*domain.RollingAuditRow)

	for _, row := range rows {
		if r.history != nil && !r.smoother.HasFile(row.FileName) {
			histCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
			history, err := r.history.DailyHistory(histCtx, row.FileName)
			cancel()
			if err != nil {
				summary.PartitionsFailed++
				summary.ErrorKinds[string(KindSourceUnavailable)]++
				log.Warn().Str("file_name", row.FileName).Err(err).
					Msg("Failed to seed rolling history, skipping rolling value")
				continue
			}
			r.smoother.Seed(row.FileName, history)
		}

		for _, rr := range r.smoother.Observe(row) {
			rr := rr
			rolling[domain.AuditKey{FileName: rr.FileName, LoadDate: rr.LoadDate}] = &rr
		}
	}
	return rolling
}

// assembleResults builds the row triples for the run date's own keys.
// Rolling rows for other keys (produced by a backfill recomputation) are
// assembled separately by backfillResults.
func assembleResults(daily []domain.DailyAuditRow, rolling map[domain.AuditKey]*domain.RollingAuditRow, topN []domain.TopNRow) []*domain.AuditResult {
	topByFile := make(map[string]*domain.TopNRow, len(topN))
	for i := range topN {
		topByFile[topN[i].FileName] = &topN[i]
	}

	results := make([]*domain.AuditResult, 0, len(daily))
	for _, row := range daily {
		results = append(results, &domain.AuditResult{
			Daily:   row,
			Rolling: rolling[domain.AuditKey{FileName: row.FileName, LoadDate: row.LoadDate}],
			TopN:    topByFile[row.FileName],
		})
	}
	return results
}

// backfillResults builds rewrite triples for the keys outside this run whose
// rolling values changed when an out-of-order date was inserted. The daily
// row comes from the smoother's own history; the persisted rank is carried
// over where the history reader can report it, since a backfill never
// changes another date's daily rates.
func (r *Runner) backfillResults(ctx context.Context, log zerolog.Logger, daily []domain.DailyAuditRow, rolling map[domain.AuditKey]*domain.RollingAuditRow) []*domain.AuditResult {
	current := make(map[domain.AuditKey]bool, len(daily))
	for _, row := range daily {
		current[domain.AuditKey{FileName: row.FileName, LoadDate: row.LoadDate}] = true
	}

	var results []*domain.AuditResult
	ranks := make(map[civil.Date]map[string]*domain.TopNRow)
	for key, rr := range rolling {
		if current[key] {
			continue
		}
		dailyRow, ok := r.smoother.DailyRow(key.FileName, key.LoadDate)
		if !ok {
			continue
		}
		results = append(results, &domain.AuditResult{
			Daily:   dailyRow,
			Rolling: rr,
			TopN:    r.lookupRank(ctx, log, ranks, key),
		})
	}
	return results
}

// lookupRank fetches the persisted ranking of a backfill-affected date, one
// read per date per run. Without a TopOffenderReader the rewrite carries no
// rank.
func (r *Runner) lookupRank(ctx context.Context, log zerolog.Logger, cache map[civil.Date]map[string]*domain.TopNRow, key domain.AuditKey) *domain.TopNRow {
	reader, ok := r.history.(TopOffenderReader)
	if !ok {
		return nil
	}

	byFile, ok := cache[key.LoadDate]
	if !ok {
		readCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
		offenders, err := reader.TopOffenders(readCtx, key.LoadDate)
		cancel()
		if err != nil {
			log.Warn().Str("load_date", key.LoadDate.String()).Err(err).
				Msg("Failed to read persisted ranks for backfill rewrite")
			offenders = nil
		}
		byFile = make(map[string]*domain.TopNRow, len(offenders))
		for i := range offenders {
			byFile[offenders[i].FileName] = &offenders[i]
		}
		cache[key.LoadDate] = byFile
	}
	return byFile[key.FileName]
}

// writeResults upserts every key's triple. Keys are disjoint, so writes run
// on the worker pool; each failure aborts only its own key.
func (r *Runner) writeResults(ctx context.Context, log zerolog.Logger, results []*domain.AuditResult, summary *domain.RunSummary) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	work := make(chan *domain.AuditResult)
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for result := range work {
				writeCtx, cancel := context.WithTimeout(ctx, r.writeTimeout)
				err := r.sink.Upsert(writeCtx, result)
				cancel()

				mu.Lock()
				if err != nil {
					summary.PartitionsFailed++
					summary.ErrorKinds[string(KindWriteFailure)]++
					log.Warn().
						Str("file_name", result.Daily.FileName).
						Err(err).
						Msg("Upsert failed, key left untouched")
				} else {
					summary.RowsWritten += result.RowCount()
				}
				mu.Unlock()
			}
		}()
	}

	for _, result := range results {
		if ctx.Err() != nil {
			break
		}
		work <- result
	}
	close(work)
	wg.Wait()
}

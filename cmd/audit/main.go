package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/feed-audit/internal/audit"
	infraBQ "github.com/dvloznov/feed-audit/internal/infra/bigquery"
	"github.com/dvloznov/feed-audit/internal/logger"
	"github.com/dvloznov/feed-audit/internal/sink/inmemory"
	"github.com/dvloznov/feed-audit/internal/source"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	var (
		dateStr    = flag.String("date", "", "Load date to audit in YYYY-MM-DD format (default: yesterday UTC)")
		feedSource = flag.String("source", "gcs", "Feed source: gcs, bigquery or dir")
		sinkKind   = flag.String("sink", "bigquery", "Audit sink: bigquery or memory (memory = dry run)")
		feedDir    = flag.String("feed-dir", "", "Local feed directory (required for --source=dir)")
		bucket     = flag.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket holding the feeds (or set GCS_BUCKET env)")
		prefix     = flag.String("prefix", "feeds", "Object prefix inside the bucket")
		project    = flag.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project ID (or set BQ_PROJECT env)")
		dataset    = flag.String("dataset", os.Getenv("BQ_DATASET"), "BigQuery dataset (default: feed_audit)")
		window     = flag.Int("window", audit.DefaultWindowSize, "Trailing window length in rows")
		topK       = flag.Int("top-k", audit.DefaultTopK, "Number of top offenders to rank")
		workers    = flag.Int("workers", 0, "Concurrent file partitions (0 = default)")
	)
	flag.Parse()

	loadDate := civil.DateOf(time.Now().UTC().AddDate(0, 0, -1))
	if *dateStr != "" {
		parsed, err := civil.ParseDate(*dateStr)
		if err != nil {
			log.Fatal().Err(err).Str("date", *dateStr).Msg("Error: invalid date format, expected YYYY-MM-DD")
		}
		loadDate = parsed
	}

	if *project == "" && (*sinkKind == "bigquery" || *feedSource == "bigquery") {
		log.Fatal().Msg("Error: --project is required (or set BQ_PROJECT env)")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	// Add logger to context
	ctx = logger.WithContext(ctx, log)

	// Build the feed source
	var src audit.RecordSource
	switch *feedSource {
	case "gcs":
		if *bucket == "" {
			log.Fatal().Msg("Error: --bucket is required for --source=gcs (or set GCS_BUCKET env)")
		}
		src = source.NewGCSSource(*bucket, *prefix)
	case "bigquery":
		feeds, err := infraBQ.NewFeedRepository(ctx, *project, *dataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create feed repository")
		}
		defer feeds.Close()
		src = feeds
	case "dir":
		if *feedDir == "" {
			log.Fatal().Msg("Error: --feed-dir is required for --source=dir")
		}
		src = source.NewDirSource(*feedDir)
	default:
		log.Fatal().Str("source", *feedSource).Msg("Error: unknown feed source")
	}

	// Build the audit sink. The memory sink makes a full dry run: the
	// pipeline executes end to end but nothing is persisted.
	var sink audit.AuditSink
	var history audit.HistoryReader
	switch *sinkKind {
	case "bigquery":
		repo, err := infraBQ.NewAuditRepository(ctx, *project, *dataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create audit repository")
		}
		defer repo.Close()
		sink, history = repo, repo
	case "memory":
		mem := inmemory.NewSink()
		sink, history = mem, mem
	default:
		log.Fatal().Str("sink", *sinkKind).Msg("Error: unknown sink")
	}

	runner := audit.NewRunner(src, sink, history, audit.Config{
		WindowSize: *window,
		TopK:       *topK,
		Workers:    *workers,
	})

	log.Info().Str("load_date", loadDate.String()).Str("source", *feedSource).Msg("Starting audit run")

	summary, err := runner.RunForDate(ctx, loadDate)
	if err != nil {
		log.Fatal().Err(err).Msg("Audit run failed")
	}

	log.Info().
		Str("run_id", summary.RunID).
		Int("rows_processed", summary.RowsProcessed).
		Int("rows_written", summary.RowsWritten).
		Int("structural_defects", summary.StructuralDefects).
		Int("ambiguous_join_keys", summary.AmbiguousJoinKeys).
		Int("partitions_failed", summary.PartitionsFailed).
		Msg("Audit run completed")

	if summary.PartitionsFailed > 0 {
		fmt.Printf("Audit run completed with %d failed partitions.\n", summary.PartitionsFailed)
		os.Exit(1)
	}

	fmt.Println("Audit run completed successfully.")
}

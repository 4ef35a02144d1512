package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/feed-audit/internal/audit"
	infraBQ "github.com/dvloznov/feed-audit/internal/infra/bigquery"
	"github.com/dvloznov/feed-audit/internal/jobs"
	"github.com/dvloznov/feed-audit/internal/jobs/inmemory"
	"github.com/dvloznov/feed-audit/internal/logger"
	"github.com/dvloznov/feed-audit/internal/scheduler"
	"github.com/dvloznov/feed-audit/internal/source"
)

func main() {
	// Initialize logger
	log := logger.New()

	// Parse CLI flags
	var (
		bucket   = flag.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket holding the feeds (or set GCS_BUCKET env)")
		prefix   = flag.String("prefix", "feeds", "Object prefix inside the bucket")
		project  = flag.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project ID (or set BQ_PROJECT env)")
		dataset  = flag.String("dataset", os.Getenv("BQ_DATASET"), "BigQuery dataset (default: feed_audit)")
		cronSpec = flag.String("cron", scheduler.DefaultCronSpec, "Cron expression for the daily trigger (with seconds)")
	)
	flag.Parse()

	if *project == "" {
		log.Fatal().Msg("Error: --project is required (or set BQ_PROJECT env)")
	}
	if *bucket == "" {
		log.Fatal().Msg("Error: --bucket is required (or set GCS_BUCKET env)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewAuditRepository(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create audit repository")
	}
	defer repo.Close()

	src := source.NewGCSSource(*bucket, *prefix)

	// Initialize job store and queue
	// In production, this would be replaced with Cloud Tasks or Pub/Sub
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 1, jobStore)

	log.Info().Msg("Starting audit worker service")

	// Create job handler that processes audit runs
	handler := func(ctx context.Context, job *jobs.RunAuditJob) error {
		log.Info().
			Str("job_id", job.JobID).
			Str("load_date", job.LoadDate.String()).
			Msg("Processing audit run job")

		runner := audit.NewRunner(src, repo, repo, audit.Config{
			WindowSize: job.WindowSize,
			TopK:       job.TopK,
		})

		summary, err := runner.RunForDate(ctx, job.LoadDate)
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", job.JobID).
				Str("load_date", job.LoadDate.String()).
				Msg("Audit run failed")
			return err
		}

		job.Summary = summary

		log.Info().
			Str("job_id", job.JobID).
			Str("run_id", summary.RunID).
			Int("rows_written", summary.RowsWritten).
			Int("partitions_failed", summary.PartitionsFailed).
			Msg("Audit run completed")

		return nil
	}

	// Start consuming jobs
	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	// Start the daily cron trigger
	sched := scheduler.New(jobQueue, *cronSpec, log)
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	log.Info().Msg("Audit worker started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down audit worker...")

	sched.Stop()
	cancel()

	// Give in-flight jobs a moment to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Queue shutdown timed out")
	}

	log.Info().Msg("Audit worker stopped")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/feed-audit/internal/digest"
	infraBQ "github.com/dvloznov/feed-audit/internal/infra/bigquery"
	"github.com/dvloznov/feed-audit/internal/logger"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	var (
		dateStr = flag.String("date", "", "Load date to summarize in YYYY-MM-DD format (default: yesterday UTC)")
		project = flag.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project ID (or set BQ_PROJECT env)")
		dataset = flag.String("dataset", os.Getenv("BQ_DATASET"), "BigQuery dataset (default: feed_audit)")
		model   = flag.String("model", digest.DefaultModelName, "Gemini model name")
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

	if *project == "" {
		log.Fatal().Msg("Error: --project is required (or set BQ_PROJECT env)")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewAuditRepository(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create audit repository")
	}
	defer repo.Close()

	rows, err := repo.DailyRows(ctx, loadDate)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read audit rows")
	}
	if len(rows) == 0 {
		log.Fatal().Str("load_date", loadDate.String()).Msg("No audit rows for load date, run the audit first")
	}

	offenders, err := repo.TopOffenders(ctx, loadDate)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read top offenders")
	}

	log.Info().
		Str("load_date", loadDate.String()).
		Int("row_count", len(rows)).
		Int("offender_count", len(offenders)).
		Msg("Generating digest")

	gen := digest.NewGenerator(*model)
	text, err := gen.Generate(ctx, loadDate, nil, rows, offenders)
	if err != nil {
		log.Fatal().Err(err).Msg("Digest generation failed")
	}

	fmt.Println(text)
}

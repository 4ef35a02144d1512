package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"

	infraBQ "github.com/dvloznov/feed-audit/internal/infra/bigquery"
	"github.com/dvloznov/feed-audit/internal/logger"
	"github.com/dvloznov/feed-audit/internal/notionsync"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	var (
		dateStr     = flag.String("date", "", "Load date to sync in YYYY-MM-DD format (default: yesterday UTC)")
		project     = flag.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project ID (or set BQ_PROJECT env)")
		dataset     = flag.String("dataset", os.Getenv("BQ_DATASET"), "BigQuery dataset (default: feed_audit)")
		notionToken = flag.String("notion-token", os.Getenv("NOTION_API_KEY"), "Notion API token (or set NOTION_API_KEY env)")
		notionDBID  = flag.String("notion-db-id", os.Getenv("NOTION_DATABASE_ID"), "Notion database ID (or set NOTION_DATABASE_ID env)")
		dryRun      = flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
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

	// Validate required flags
	if *project == "" {
		log.Fatal().Msg("Error: --project is required (or set BQ_PROJECT env)")
	}
	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required (or set NOTION_API_KEY env)")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required (or set NOTION_DATABASE_ID env)")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewAuditRepository(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create audit repository")
	}
	defer repo.Close()

	offenders, err := repo.TopOffenders(ctx, loadDate)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read top offenders")
	}
	if len(offenders) == 0 {
		log.Warn().Str("load_date", loadDate.String()).Msg("No top offenders for load date, nothing to sync")
	}

	notionClient := notionsync.NewClient(*notionToken)

	if err := notionsync.SyncTopOffenders(ctx, notionClient, *notionDBID, offenders, *dryRun); err != nil {
		log.Fatal().Err(err).Msg("Notion sync failed")
	}

	fmt.Println("Notion sync completed successfully.")
}

package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/feed-audit/internal/domain"
	"github.com/dvloznov/feed-audit/internal/logger"
)

// SyncTopOffenders mirrors one day's top offender list into a Notion
// database. The page title carries the (file_name, load_date) key, so the
// sync is idempotent:
// 1. Queries all existing pages from Notion
// 2. Archives stale pages for the same load date that fell off the list
// 3. Creates missing pages and updates existing ones in place
func SyncTopOffenders(ctx context.Context, notionClient NotionAPI, notionDBID string, offenders []domain.TopNRow, dryRun bool) error {
	log := logger.FromContext(ctx)

	log.Info().
		Int("offender_count", len(offenders)).
		Bool("dry_run", dryRun).
		Msg("Starting top offender sync to Notion")

	validKeys := make(map[string]bool)
	loadDates := make(map[string]bool)
	for _, row := range offenders {
		validKeys[offenderKey(row.FileName, row.LoadDate.String())] = true
		loadDates[row.LoadDate.String()] = true
	}

	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return fmt.Errorf("failed to query Notion pages: %w", err)
	}

	log.Info().Int("notion_page_count", len(notionPages)).Msg("Retrieved existing Notion pages")

	// Map existing pages by offender key
	existingPages := make(map[string]string)
	for _, page := range notionPages {
		key := extractOffenderKey(page)
		if key != "" {
			existingPages[key] = string(page.ID)
		}
	}

	// Archive stale pages for the load dates being synced. Pages from
	// other dates are left alone so the database keeps history.
	var deleted int
	for _, page := range notionPages {
		key := extractOffenderKey(page)
		if key == "" || validKeys[key] {
			continue
		}
		if !pageOnLoadDates(key, loadDates) {
			continue
		}

		if dryRun {
			log.Info().
				Str("offender", key).
				Str("page_id", string(page.ID)).
				Msg("[DRY RUN] Would archive stale Notion page")
			deleted++
			continue
		}

		if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
			log.Warn().
				Err(err).
				Str("offender", key).
				Str("page_id", string(page.ID)).
				Msg("Failed to archive stale Notion page")
			continue
		}
		log.Info().
			Str("offender", key).
			Str("page_id", string(page.ID)).
			Msg("Archived stale Notion page")
		deleted++
	}

	var created, updated int
	for _, row := range offenders {
		key := offenderKey(row.FileName, row.LoadDate.String())
		pageID, exists := existingPages[key]

		if dryRun {
			if exists {
				log.Info().Str("offender", key).Str("page_id", pageID).Msg("[DRY RUN] Would update Notion page")
				updated++
			} else {
				log.Info().Str("offender", key).Msg("[DRY RUN] Would create Notion page")
				created++
			}
			continue
		}

		props := OffenderToNotionProperties(row)

		if exists {
			if _, err := notionClient.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().
					Err(err).
					Str("offender", key).
					Str("page_id", pageID).
					Msg("Failed to update Notion page")
				continue
			}
			log.Info().Str("offender", key).Str("page_id", pageID).Msg("Updated Notion page")
			updated++
		} else {
			page, err := notionClient.CreatePage(ctx, notionDBID, props)
			if err != nil {
				log.Warn().
					Err(err).
					Str("offender", key).
					Msg("Failed to create Notion page")
				continue
			}
			log.Info().Str("offender", key).Str("page_id", string(page.ID)).Msg("Created Notion page")
			created++
		}
	}

	log.Info().
		Int("deleted", deleted).
		Int("created", created).
		Int("updated", updated).
		Int("total", len(offenders)).
		Msg("Top offender sync completed")

	return nil
}

// pageOnLoadDates reports whether an offender key's date suffix matches one
// of the load dates being synced. Keys look like "file.csv @ 2025-06-01".
func pageOnLoadDates(key string, loadDates map[string]bool) bool {
	const dateLen = len("2006-01-02")
	if len(key) < dateLen {
		return false
	}
	return loadDates[key[len(key)-dateLen:]]
}

// queryAllNotionPages queries all pages from a Notion database and returns them.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, notionClient NotionAPI, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}

		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}

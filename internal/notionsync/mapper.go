package notionsync

import (
	"fmt"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/feed-audit/internal/domain"
)

// offenderKey is the natural key of an offender page, used for matching
// existing Notion pages to audit rows.
func offenderKey(fileName string, loadDate string) string {
	return fileName + " @ " + loadDate
}

// OffenderToNotionProperties converts a top offender row to Notion properties.
// The "Offender" title property carries the natural key so reruns find and
// update the same page.
func OffenderToNotionProperties(row domain.TopNRow) notionapi.Properties {
	props := notionapi.Properties{
		"Offender": notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: offenderKey(row.FileName, row.LoadDate.String()),
					},
				},
			},
		},
		"File Name": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: row.FileName,
					},
				},
			},
		},
		"Rank": notionapi.NumberProperty{
			Number: float64(row.Rank),
		},
	}

	props["Load Date"] = notionapi.DateProperty{
		Date: &notionapi.DateObject{
			Start: func() *notionapi.Date {
				d := notionapi.Date(time.Date(
					row.LoadDate.Year,
					time.Month(row.LoadDate.Month),
					row.LoadDate.Day,
					0, 0, 0, 0, time.UTC,
				))
				return &d
			}(),
		},
	}

	if row.ErrorRate != nil {
		props["Error Rate"] = notionapi.NumberProperty{
			Number: *row.ErrorRate,
		}
		props["Error Rate %"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: fmt.Sprintf("%.1f%%", *row.ErrorRate*100),
					},
				},
			},
		}
	}

	return props
}

// extractOffenderKey extracts the offender key from a Notion page's properties.
// Returns empty string if not found.
func extractOffenderKey(page notionapi.Page) string {
	if prop, ok := page.Properties["Offender"]; ok {
		if title, ok := prop.(*notionapi.TitleProperty); ok {
			if len(title.Title) > 0 {
				return title.Title[0].PlainText
			}
		}
	}
	return ""
}

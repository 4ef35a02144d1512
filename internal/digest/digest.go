// Package digest turns one day's audit output into a short operator
// briefing using Gemini.
package digest

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"google.golang.org/genai"

	"github.com/dvloznov/feed-audit/internal/domain"
)

// DefaultModelName is the default Gemini model used for digests.
const DefaultModelName = "gemini-2.5-flash"

// Generator produces daily digests. The zero value is not usable; create
// one with NewGenerator.
type Generator struct {
	model string
}

// NewGenerator creates a digest generator. model may be empty to use
// DefaultModelName.
func NewGenerator(model string) *Generator {
	if model == "" {
		model = DefaultModelName
	}
	return &Generator{model: model}
}

// Generate sends the day's audit rows and run summary to the model and
// returns a plain-text digest. Authentication comes from the environment
// (GEMINI_API_KEY or application default credentials).
func (g *Generator) Generate(ctx context.Context, loadDate civil.Date, summary *domain.RunSummary, rows []domain.DailyAuditRow, offenders []domain.TopNRow) (string, error) {
	prompt := buildDigestPrompt(loadDate, summary, rows, offenders)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return "", fmt.Errorf("Generate: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("Generate: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return "", fmt.Errorf("Generate: empty response from model")
	}

	return cleanModelText(rawText), nil
}

// cleanModelText strips Markdown fences the model sometimes wraps its
// answer in despite instructions.
func cleanModelText(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	return strings.TrimSpace(s)
}

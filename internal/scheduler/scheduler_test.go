package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/dvloznov/feed-audit/internal/jobs"
)

type fakePublisher struct {
	published []*jobs.RunAuditJob
}

func (p *fakePublisher) PublishRunAudit(ctx context.Context, job *jobs.RunAuditJob) error {
	p.published = append(p.published, job)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func TestTrigger_EnqueuesYesterday(t *testing.T) {
	pub := &fakePublisher{}
	s := New(pub, "", zerolog.Nop())
	s.now = func() time.Time {
		return time.Date(2025, 6, 2, 2, 30, 0, 0, time.UTC)
	}

	s.trigger(context.Background())

	if len(pub.published) != 1 {
		t.Fatalf("Expected 1 job, got %d", len(pub.published))
	}
	if got := pub.published[0].LoadDate.String(); got != "2025-06-01" {
		t.Errorf("Expected load date 2025-06-01, got %s", got)
	}
}

func TestDefaultCronSpec_Parses(t *testing.T) {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(DefaultCronSpec); err != nil {
		t.Fatalf("Default cron spec does not parse: %v", err)
	}
}

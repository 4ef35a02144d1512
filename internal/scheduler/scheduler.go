// Package scheduler triggers the daily audit run on a cron schedule.
package scheduler

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/dvloznov/feed-audit/internal/jobs"
)

// DefaultCronSpec runs every day at 02:30 UTC, after the overnight feed
// loads settle. The expression includes a seconds field.
const DefaultCronSpec = "0 30 2 * * *"

// Scheduler enqueues one audit run per day for the previous load date.
type Scheduler struct {
	cron      *cron.Cron
	publisher jobs.Publisher
	spec      string
	log       zerolog.Logger

	// now is swapped out in tests.
	now func() time.Time
}

// New creates a scheduler publishing to the given queue. spec may be empty
// to use DefaultCronSpec.
func New(publisher jobs.Publisher, spec string, log zerolog.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultCronSpec
	}
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		publisher: publisher,
		spec:      spec,
		log:       log,
		now:       time.Now,
	}
}

// Start registers the daily trigger and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.trigger(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("spec", s.spec).Msg("Audit scheduler started")
	return nil
}

// trigger publishes an audit run for yesterday's partition.
func (s *Scheduler) trigger(ctx context.Context) {
	loadDate := civil.DateOf(s.now().UTC().AddDate(0, 0, -1))

	job := &jobs.RunAuditJob{LoadDate: loadDate}
	if err := s.publisher.PublishRunAudit(ctx, job); err != nil {
		s.log.Error().Err(err).Str("load_date", loadDate.String()).Msg("Failed to enqueue scheduled audit run")
		return
	}

	s.log.Info().
		Str("job_id", job.JobID).
		Str("load_date", loadDate.String()).
		Msg("Scheduled audit run enqueued")
}

// Stop halts the cron loop and waits for a running trigger to finish.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	<-done.Done()
	s.log.Info().Msg("Audit scheduler stopped")
}

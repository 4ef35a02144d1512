package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/feed-audit/internal/jobs"
	"github.com/dvloznov/feed-audit/internal/jobs/inmemory"
)

// capturePublisher records published jobs without running them.
type capturePublisher struct {
	store     jobs.JobStore
	published []*jobs.RunAuditJob
}

func (p *capturePublisher) PublishRunAudit(ctx context.Context, job *jobs.RunAuditJob) error {
	if job.JobID == "" {
		job.JobID = "test-job"
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if p.store != nil {
		if err := p.store.SaveJob(ctx, job); err != nil {
			return err
		}
	}
	p.published = append(p.published, job)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func newTestHandler() (*RunsHandler, *capturePublisher, *inmemory.Store) {
	store := inmemory.NewStore()
	pub := &capturePublisher{store: store}
	return NewRunsHandler(store, pub, zerolog.Nop()), pub, store
}

func TestEnqueueRun(t *testing.T) {
	h, pub, _ := newTestHandler()

	body := strings.NewReader(`{"load_date":"2025-06-01","window_size":7,"top_k":3}`)
	req := httptest.NewRequest(http.MethodPost, "/api/runs", body)
	rec := httptest.NewRecorder()

	h.EnqueueRun(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(pub.published) != 1 {
		t.Fatalf("Expected 1 published job, got %d", len(pub.published))
	}
	job := pub.published[0]
	if job.LoadDate.String() != "2025-06-01" || job.WindowSize != 7 || job.TopK != 3 {
		t.Errorf("Unexpected job: %+v", job)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response body: %v", err)
	}
	if resp["job_id"] == "" || resp["load_date"] != "2025-06-01" {
		t.Errorf("Unexpected response: %v", resp)
	}
}

func TestEnqueueRun_DefaultsLoadDate(t *testing.T) {
	h, pub, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	rec := httptest.NewRecorder()

	h.EnqueueRun(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}
	if len(pub.published) != 1 || !pub.published[0].LoadDate.IsValid() {
		t.Errorf("Expected a defaulted load date, got %+v", pub.published)
	}
}

func TestEnqueueRun_BadDate(t *testing.T) {
	h, _, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"load_date":"June 1st"}`))
	rec := httptest.NewRecorder()

	h.EnqueueRun(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestGetRun(t *testing.T) {
	h, _, store := newTestHandler()

	job := &jobs.RunAuditJob{JobID: "run-1", Status: jobs.JobStatusCompleted}
	if err := store.SaveJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	h.GetRun(rec, httptest.NewRequest(http.MethodGet, "/api/runs/run-1", nil), "run-1")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.GetRun(rec, httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil), "missing")

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown run, got %d", rec.Code)
	}
}

func TestListRuns_FilterByStatus(t *testing.T) {
	h, _, store := newTestHandler()
	ctx := context.Background()

	loadDate := civil.Date{Year: 2025, Month: 6, Day: 1}
	_ = store.SaveJob(ctx, &jobs.RunAuditJob{JobID: "a", LoadDate: loadDate, Status: jobs.JobStatusCompleted})
	_ = store.SaveJob(ctx, &jobs.RunAuditJob{JobID: "b", LoadDate: loadDate, Status: jobs.JobStatusFailed})

	rec := httptest.NewRecorder()
	h.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/runs?status=failed", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Runs  []*jobs.RunAuditJob `json:"runs"`
		Count int                 `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response body: %v", err)
	}
	if resp.Count != 1 || resp.Runs[0].JobID != "b" {
		t.Errorf("Unexpected runs: %+v", resp)
	}
}

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"speech-checkpoint-service/internal/app"
	"speech-checkpoint-service/internal/checkpoint"
	"speech-checkpoint-service/internal/config"
	"speech-checkpoint-service/internal/models"
	"speech-checkpoint-service/internal/service/status"
)

func newTestRouter(t *testing.T) (http.Handler, *app.Application, *checkpoint.FileStore) {
	t.Helper()
	cfg := config.Default()
	cfg.Checkpoint.Dir = t.TempDir()
	application := app.New("test", cfg)
	store := application.Store("")
	return NewRouter(application, status.NewReporter(store)), application, store
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRouter_Health(t *testing.T) {
	h, application, _ := newTestRouter(t)

	if rec := get(h, "/v1/liveness"); rec.Code != http.StatusOK {
		t.Errorf("expected liveness 200, got %d", rec.Code)
	}
	if rec := get(h, "/v1/readiness"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected readiness 503 before start, got %d", rec.Code)
	}
	application.Start()
	if rec := get(h, "/v1/readiness"); rec.Code != http.StatusOK {
		t.Errorf("expected readiness 200 after start, got %d", rec.Code)
	}
	if rec := get(h, "/metrics"); rec.Code != http.StatusOK {
		t.Errorf("expected metrics 200, got %d", rec.Code)
	}
}

func TestRouter_Jobs(t *testing.T) {
	h, _, store := newTestRouter(t)
	total := 4
	cp := &models.Checkpoint{
		JobKey:        "abc123",
		Source:        models.Source{Path: "/audio/a.wav", SourceID: "s"},
		SegmentsDone:  []models.Segment{{ID: 0, Start: 0, End: 2, Text: "hi"}, {ID: 1, Start: 2, End: 4, Text: "there"}},
		TotalExpected: &models.Expected{Segments: &total},
		CreatedAt:     time.Now().Add(-time.Minute),
		Status:        models.StatusRunning,
	}
	if err := store.Save(context.Background(), cp); err != nil {
		t.Fatal(err)
	}

	rec := get(h, "/v1/jobs")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list struct {
		ActiveTranscriptions int               `json:"active_transcriptions"`
		Statuses             []status.Progress `json:"statuses"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if list.ActiveTranscriptions != 1 || list.Statuses[0].JobKey != "abc123" {
		t.Errorf("unexpected list %+v", list)
	}

	rec = get(h, "/v1/jobs/abc123")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var p status.Progress
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Percent == nil || *p.Percent != 50 {
		t.Errorf("expected 50%%, got %v", p.Percent)
	}
}

func TestRouter_JobErrors(t *testing.T) {
	h, _, store := newTestRouter(t)

	if rec := get(h, "/v1/jobs/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	path := store.Path("broken")
	os.MkdirAll(filepath.Dir(path), 0o755)
	os.WriteFile(path, []byte("{"), 0o644)
	if rec := get(h, "/v1/jobs/broken"); rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

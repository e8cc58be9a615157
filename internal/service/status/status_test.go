package status

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"speech-checkpoint-service/internal/checkpoint"
	"speech-checkpoint-service/internal/models"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func segments(n int, step float64) []models.Segment {
	out := make([]models.Segment, n)
	for i := range out {
		out[i] = models.Segment{ID: i, Start: float64(i) * step, End: float64(i+1) * step, Text: "x"}
	}
	return out
}

func intPtr(n int) *int           { return &n }
func floatPtr(f float64) *float64 { return &f }

func running(key string, done int, expected *models.Expected) *models.Checkpoint {
	return &models.Checkpoint{
		JobKey:            key,
		Source:            models.Source{Path: "/audio/" + key + ".wav", SourceID: "src-" + key},
		Model:             "base",
		Device:            "cpu",
		SegmentsDone:      segments(done, 2),
		TotalExpected:     expected,
		ProcessingSeconds: 100,
		CreatedAt:         t0,
		UpdatedAt:         t0.Add(90 * time.Second),
		Status:            models.StatusRunning,
	}
}

func TestReport_HalfwayBySegments(t *testing.T) {
	cp := running("job", 150, &models.Expected{Segments: intPtr(300)})

	p := Report(cp, t0.Add(100*time.Second))

	if p.Percent == nil || *p.Percent != 50.0 {
		t.Fatalf("expected percent 50.0, got %v", p.Percent)
	}
	if p.SegmentsDone != 150 {
		t.Errorf("expected 150 segments, got %d", p.SegmentsDone)
	}
	if p.Elapsed != 100 {
		t.Errorf("expected elapsed 100, got %v", p.Elapsed)
	}
	if p.ETA == nil || *p.ETA != 100 {
		t.Errorf("expected ETA 100, got %v", p.ETA)
	}
	if p.ProcessedSeconds != 300 {
		t.Errorf("expected 300 processed seconds, got %v", p.ProcessedSeconds)
	}
	if p.Speed == nil || *p.Speed != 3 {
		t.Errorf("expected speed 3, got %v", p.Speed)
	}
}

func TestReport_ByDuration(t *testing.T) {
	cp := running("job", 10, &models.Expected{Duration: floatPtr(80)})

	p := Report(cp, t0.Add(60*time.Second))

	if p.Percent == nil || *p.Percent != 25 {
		t.Fatalf("expected percent 25, got %v", p.Percent)
	}
	if p.ETA == nil || *p.ETA != 300 {
		t.Errorf("expected ETA 300, got %v", p.ETA)
	}
}

func TestReport_ETAIgnoresIdleTime(t *testing.T) {
	cp := running("job", 0, &models.Expected{Duration: floatPtr(100)})
	cp.SegmentsDone = []models.Segment{{ID: 0, Start: 0, End: 50, Text: "x"}}
	cp.ProcessingSeconds = 60

	// Interrupted a day ago and resumed since.
	p := Report(cp, t0.Add(24*time.Hour))

	if p.Elapsed != 86400 {
		t.Errorf("expected elapsed 86400, got %v", p.Elapsed)
	}
	if p.Percent == nil || *p.Percent != 50 {
		t.Fatalf("expected percent 50, got %v", p.Percent)
	}
	if p.ETA == nil || *p.ETA != 60 {
		t.Errorf("expected ETA 60, got %v", p.ETA)
	}
}

func TestReport_ETAFallsBackToElapsed(t *testing.T) {
	cp := running("job", 75, &models.Expected{Segments: intPtr(300)})
	cp.ProcessingSeconds = 0

	p := Report(cp, t0.Add(40*time.Second))

	if p.ETA == nil || *p.ETA != 120 {
		t.Errorf("expected ETA 120, got %v", p.ETA)
	}
}

func TestReport_SegmentsPreferredOverDuration(t *testing.T) {
	cp := running("job", 10, &models.Expected{Segments: intPtr(40), Duration: floatPtr(20)})

	p := Report(cp, t0)
	if p.Percent == nil || *p.Percent != 25 {
		t.Errorf("expected percent from segments 25, got %v", p.Percent)
	}
}

func TestReport_UnknownTotals(t *testing.T) {
	cp := running("job", 10, nil)
	cp.ProcessingSeconds = 0

	p := Report(cp, t0.Add(time.Minute))

	if p.Percent != nil {
		t.Errorf("expected unknown percent, got %v", *p.Percent)
	}
	if p.ETA != nil {
		t.Errorf("expected unknown ETA, got %v", *p.ETA)
	}
	if p.Speed != nil {
		t.Errorf("expected unknown speed, got %v", *p.Speed)
	}
}

func TestReport_ProcessedFromWindowStart(t *testing.T) {
	cp := running("job", 0, &models.Expected{Duration: floatPtr(100)})
	cp.Window = &models.Window{Start: 100}
	cp.SegmentsDone = []models.Segment{{ID: 0, Start: 100, End: 125, Text: "x"}}

	p := Report(cp, t0)
	if p.ProcessedSeconds != 25 {
		t.Errorf("expected 25 processed seconds, got %v", p.ProcessedSeconds)
	}
	if p.Percent == nil || *p.Percent != 25 {
		t.Errorf("expected 25%%, got %v", p.Percent)
	}
}

func TestReport_CompleteIsFull(t *testing.T) {
	cp := running("job", 3, nil)
	cp.Status = models.StatusComplete

	p := Report(cp, t0)
	if p.Percent == nil || *p.Percent != 100 {
		t.Errorf("expected 100%%, got %v", p.Percent)
	}
	if p.ETA == nil || *p.ETA != 0 {
		t.Errorf("expected ETA 0, got %v", p.ETA)
	}
}

func newReporter(t *testing.T) (*Reporter, *checkpoint.FileStore) {
	t.Helper()
	store := checkpoint.NewFileStore(t.TempDir())
	r := NewReporter(store)
	r.now = func() time.Time { return t0.Add(100 * time.Second) }
	return r, store
}

func TestSnapshot(t *testing.T) {
	r, store := newReporter(t)
	ctx := context.Background()

	store.Save(ctx, running("bbb", 150, &models.Expected{Segments: intPtr(300)}))
	store.Save(ctx, running("aaa", 5, nil))

	corrupt := store.Path("ccc")
	os.MkdirAll(filepath.Dir(corrupt), 0o755)
	os.WriteFile(corrupt, []byte("not json"), 0o644)

	snap, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snap))
	}
	if snap[0].JobKey != "aaa" || snap[1].JobKey != "bbb" || snap[2].JobKey != "ccc" {
		t.Errorf("expected sorted keys, got %s %s %s", snap[0].JobKey, snap[1].JobKey, snap[2].JobKey)
	}
	if snap[1].Percent == nil || *snap[1].Percent != 50.0 {
		t.Errorf("expected 50%%, got %v", snap[1].Percent)
	}
	if snap[2].Error == "" {
		t.Error("expected corrupt checkpoint to carry an error")
	}
}

func TestSnapshot_MissingRoot(t *testing.T) {
	r := NewReporter(checkpoint.NewFileStore(filepath.Join(t.TempDir(), "nope")))

	snap, err := r.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap) != 0 {
		t.Errorf("expected empty snapshot, got %d", len(snap))
	}
}

func TestSnapshot_DoesNotWrite(t *testing.T) {
	r, store := newReporter(t)
	ctx := context.Background()
	store.Save(ctx, running("aaa", 5, nil))

	before, _ := os.ReadFile(store.Path("aaa"))
	info, _ := os.Stat(store.Path("aaa"))
	if _, err := r.Snapshot(ctx); err != nil {
		t.Fatal(err)
	}
	after, _ := os.ReadFile(store.Path("aaa"))
	info2, _ := os.Stat(store.Path("aaa"))

	if !bytes.Equal(before, after) || !info.ModTime().Equal(info2.ModTime()) {
		t.Error("expected checkpoint to be left untouched")
	}
}

func TestWatch_ReportsRemovedJobOnce(t *testing.T) {
	r, store := newReporter(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store.Save(context.Background(), running("aaa", 5, nil))

	var mu sync.Mutex
	var polls [][]Progress
	done := make(chan error, 1)
	go func() {
		done <- r.Watch(ctx, 10*time.Millisecond, func(snap []Progress) {
			mu.Lock()
			defer mu.Unlock()
			polls = append(polls, snap)
			switch len(polls) {
			case 1:
				store.Delete(context.Background(), "aaa")
			case 4:
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(polls[0]) != 1 || polls[0][0].Status != models.StatusRunning {
		t.Fatalf("expected one running job first, got %+v", polls[0])
	}
	if len(polls[1]) != 1 || !polls[1][0].Removed || polls[1][0].Status != models.StatusComplete {
		t.Fatalf("expected removed job reported as complete, got %+v", polls[1])
	}
	for _, later := range polls[2:] {
		if len(later) != 0 {
			t.Errorf("expected removed job to be reported once, got %+v", later)
		}
	}
}

func TestRenderText(t *testing.T) {
	cp := running("bbb", 150, &models.Expected{Segments: intPtr(300)})
	cp.Window = &models.Window{Start: 60}
	p := Report(cp, t0.Add(100*time.Second))

	var buf bytes.Buffer
	if err := RenderText(&buf, []Progress{p, {JobKey: "ccc", Error: "broken"}}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"Active transcriptions: 2",
		"/audio/bbb.wav",
		"(50.0%)",
		strings.Repeat("█", 25) + strings.Repeat("░", 25),
		"Time range: 1m 0s - end",
		"Error: broken",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q:\n%s", want, out)
		}
	}
}

func TestRenderText_Empty(t *testing.T) {
	var buf bytes.Buffer
	RenderText(&buf, nil)
	if !strings.Contains(buf.String(), "No active transcriptions") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestRenderJSON(t *testing.T) {
	p := Report(running("aaa", 5, nil), t0)

	var buf bytes.Buffer
	if err := RenderJSON(&buf, []Progress{p}, t0); err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		ActiveTranscriptions int              `json:"active_transcriptions"`
		Statuses             []map[string]any `json:"statuses"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.ActiveTranscriptions != 1 {
		t.Errorf("expected 1 active, got %d", decoded.ActiveTranscriptions)
	}
	if v, ok := decoded.Statuses[0]["percent"]; !ok || v != nil {
		t.Errorf("expected explicit null percent, got %v", v)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0s"},
		{59.9, "59s"},
		{65, "1m 5s"},
		{3725, "1h 2m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

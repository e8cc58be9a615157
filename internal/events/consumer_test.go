package events

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"

	"speech-checkpoint-service/internal/models"
)

func message(t *testing.T, kind string, v any) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{
		Topic:   "topic",
		Key:     []byte("job-1"),
		Value:   payload,
		Headers: []kafka.Header{{Key: "eventType", Value: []byte(kind)}},
	}
}

func TestDecode_Checkpoint(t *testing.T) {
	ev, err := Decode(message(t, "checkpoint", models.CheckpointEvent{
		EventType:    models.EventCheckpointSaved,
		JobKey:       "job-1",
		RunID:        "0123456789abcdef",
		Status:       models.StatusRunning,
		SegmentsDone: 20,
		LastEnd:      80,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Checkpoint == nil || ev.Transcript != nil {
		t.Fatalf("expected checkpoint payload, got %+v", ev)
	}
	if ev.Key != "job-1" || ev.Checkpoint.SegmentsDone != 20 {
		t.Errorf("unexpected event %+v", ev.Checkpoint)
	}
	if s := ev.String(); !strings.Contains(s, "status=RUNNING") || !strings.Contains(s, "run=01234567 ") {
		t.Errorf("unexpected rendering %q", s)
	}
}

func TestDecode_Transcript(t *testing.T) {
	ev, err := Decode(message(t, "transcript", models.TranscriptEvent{
		EventType:    models.EventTranscriptFinal,
		JobKey:       "job-1",
		OutputPath:   "/out/a.json",
		SegmentCount: 12,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Transcript == nil || ev.Transcript.SegmentCount != 12 {
		t.Fatalf("expected transcript payload, got %+v", ev)
	}
	if !strings.Contains(ev.String(), "output=/out/a.json") {
		t.Errorf("unexpected rendering %q", ev.String())
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := Decode(message(t, "partial", map[string]string{})); err == nil {
		t.Error("expected error for unknown event type")
	}

	msg := message(t, "checkpoint", nil)
	msg.Value = []byte("{")
	if _, err := Decode(msg); err == nil {
		t.Error("expected error for invalid payload")
	}
}

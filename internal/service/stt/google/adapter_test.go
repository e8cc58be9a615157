package google

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/protobuf/types/known/durationpb"

	"speech-checkpoint-service/internal/audio"
	"speech-checkpoint-service/internal/models"
	"speech-checkpoint-service/internal/service/stt"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 8000 {
		t.Errorf("expected default sample rate 8000, got %d", cfg.SampleRateHz)
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
	if cfg.ChunkSeconds != 50 {
		t.Errorf("expected default chunk 50s, got %v", cfg.ChunkSeconds)
	}
}

func TestNew_ClampsChunk(t *testing.T) {
	a := New(Config{ChunkSeconds: 600})
	if a.cfg.ChunkSeconds != 50 {
		t.Errorf("expected chunk clamped to 50s, got %v", a.cfg.ChunkSeconds)
	}
	if a.Name() != "google" {
		t.Errorf("expected name 'google', got %s", a.Name())
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"AMR", speechpb.RecognitionConfig_AMR},
		{"AMR_WB", speechpb.RecognitionConfig_AMR_WB},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"SPEEX_WITH_HEADER_BYTE", speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"UNKNOWN", speechpb.RecognitionConfig_LINEAR16}, // fallback
		{"invalid", speechpb.RecognitionConfig_LINEAR16}, // fallback
		{"", speechpb.RecognitionConfig_LINEAR16},        // fallback
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func seconds(s float64) *durationpb.Duration {
	return durationpb.New(time.Duration(s * float64(time.Second)))
}

func TestSegmentsFromResponse(t *testing.T) {
	resp := &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{
		{
			Alternatives: []*speechpb.SpeechRecognitionAlternative{{
				Transcript: " hello there ",
				Confidence: 0.5,
				Words: []*speechpb.WordInfo{
					{Word: "hello", StartTime: seconds(0.5), EndTime: seconds(1)},
					{Word: "there", StartTime: seconds(1), EndTime: seconds(1.5)},
				},
			}},
			ResultEndTime: seconds(2),
		},
		{Alternatives: nil, ResultEndTime: seconds(3)},
		{
			Alternatives:  []*speechpb.SpeechRecognitionAlternative{{Transcript: "general kenobi"}},
			ResultEndTime: seconds(4),
		},
	}}

	segs := segmentsFromResponse(resp, 100)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].Start != 100.5 || segs[0].End != 102 || segs[0].Text != "hello there" {
		t.Errorf("unexpected first segment %+v", segs[0])
	}
	if segs[0].Confidence == nil || *segs[0].Confidence != 0.5 {
		t.Errorf("expected confidence 0.5, got %v", segs[0].Confidence)
	}
	// without word offsets the segment starts where the previous ended
	if segs[1].Start != 102 || segs[1].End != 104 {
		t.Errorf("expected second segment 102-104, got %v-%v", segs[1].Start, segs[1].End)
	}
	if segs[1].Confidence != nil {
		t.Errorf("expected no confidence, got %v", *segs[1].Confidence)
	}
}

type fakeRecognizer struct {
	mu       sync.Mutex
	requests []*speechpb.RecognizeRequest
	err      error
	closed   bool
}

func (f *fakeRecognizer) Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{{
		Alternatives:  []*speechpb.SpeechRecognitionAlternative{{Transcript: "chunk", Confidence: 0.9}},
		ResultEndTime: seconds(1),
	}}}, nil
}

func (f *fakeRecognizer) Close() error {
	f.closed = true
	return nil
}

func writeWAV(t *testing.T, secs int) models.Source {
	t.Helper()
	var buf bytes.Buffer
	if err := audio.WriteWAV(&buf, 16000, 1, make([]byte, secs*16000*2)); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "a.wav")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := audio.Probe(path)
	if err != nil {
		t.Fatal(err)
	}
	return src
}

func TestTranscribe_ChunksRange(t *testing.T) {
	src := writeWAV(t, 25)
	fake := &fakeRecognizer{}
	a := New(Config{LanguageCode: "th-TH", ChunkSeconds: 10, AudioEncoding: "LINEAR16"})
	a.client = fake

	var segs []models.Segment
	cb := stt.CallbackFunc(func(seg models.Segment) error {
		segs = append(segs, seg)
		return nil
	})

	if err := a.Transcribe(context.Background(), stt.Request{Source: src, From: 5}, cb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 5-15, 15-25
	if len(fake.requests) != 2 {
		t.Fatalf("expected 2 recognize calls, got %d", len(fake.requests))
	}
	req := fake.requests[0]
	if req.Config.SampleRateHertz != 16000 {
		t.Errorf("expected sample rate from WAV header, got %d", req.Config.SampleRateHertz)
	}
	if req.Config.LanguageCode != "th-TH" {
		t.Errorf("expected language th-TH, got %s", req.Config.LanguageCode)
	}
	if got := len(req.Audio.GetContent()); got != 10*16000*2 {
		t.Errorf("expected 10s of audio, got %d bytes", got)
	}
	if len(segs) != 2 || segs[0].Start != 5 || segs[1].Start != 15 {
		t.Errorf("expected segments offset by chunk start, got %+v", segs)
	}
}

func TestTranscribe_Errors(t *testing.T) {
	src := writeWAV(t, 2)

	unloaded := New(DefaultConfig())
	if err := unloaded.Transcribe(context.Background(), stt.Request{Source: src}, stt.CallbackFunc(func(models.Segment) error { return nil })); err == nil {
		t.Error("expected error when engine is not loaded")
	}

	wantErr := errors.New("quota exceeded")
	a := New(DefaultConfig())
	a.client = &fakeRecognizer{err: wantErr}
	err := a.Transcribe(context.Background(), stt.Request{Source: src}, stt.CallbackFunc(func(models.Segment) error { return nil }))
	if !errors.Is(err, wantErr) {
		t.Errorf("expected recognize error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.client = &fakeRecognizer{}
	if err := a.Transcribe(ctx, stt.Request{Source: src}, stt.CallbackFunc(func(models.Segment) error { return nil })); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestClose(t *testing.T) {
	fake := &fakeRecognizer{}
	a := New(DefaultConfig())
	a.client = fake
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if !fake.closed {
		t.Error("expected client to be closed")
	}
}

package models

// Event types published to Kafka.
const (
	EventCheckpointSaved = "transcription.checkpoint.saved"
	EventTranscriptFinal = "transcription.transcript.final"
)

// CheckpointEvent announces that a job's progress was made durable.
type CheckpointEvent struct {
	EventType    string  `json:"eventType"`
	JobKey       string  `json:"jobKey"`
	RunID        string  `json:"runId"`
	SourceID     string  `json:"sourceId"`
	Status       Status  `json:"status"`
	SegmentsDone int     `json:"segmentsDone"`
	LastEnd      float64 `json:"lastEnd"`
	Timestamp    int64   `json:"timestamp"`
}

// TranscriptEvent announces a finalized transcript.
type TranscriptEvent struct {
	EventType         string   `json:"eventType"`
	JobKey            string   `json:"jobKey"`
	RunID             string   `json:"runId"`
	SourceID          string   `json:"sourceId"`
	OutputPath        string   `json:"outputPath"`
	SegmentCount      int      `json:"segmentCount"`
	Duration          float64  `json:"duration"`
	AverageConfidence *float64 `json:"averageConfidence,omitempty"`
	Timestamp         int64    `json:"timestamp"`
}

package models

import (
	"fmt"
	"time"
)

// Status is the persisted state of a checkpoint.
type Status string

const (
	StatusRunning     Status = "RUNNING"
	StatusInterrupted Status = "INTERRUPTED"
	StatusComplete    Status = "COMPLETE"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusInterrupted, StatusComplete:
		return true
	default:
		return false
	}
}

// Source identifies the recording a job works on.
type Source struct {
	Path     string   `json:"path"`
	SourceID string   `json:"source_id"`
	Size     int64    `json:"size"`
	Duration *float64 `json:"duration,omitempty"`
}

// Expected is the optional size estimate used for percent and ETA only.
type Expected struct {
	Segments *int     `json:"segments,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

// Checkpoint is the mutable, in-progress counterpart of a Transcript.
type Checkpoint struct {
	JobKey            string    `json:"job_key"`
	Source            Source    `json:"source"`
	Model             string    `json:"model"`
	Device            string    `json:"device"`
	Window            *Window   `json:"window,omitempty"`
	SegmentsDone      []Segment `json:"segments_done"`
	TotalExpected     *Expected `json:"total_expected,omitempty"`
	ProcessingSeconds float64   `json:"processing_seconds"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	Status            Status    `json:"status"`
	LastError         string    `json:"last_error,omitempty"`
}

// LastEnd returns the largest end time produced so far, or ok=false when
// nothing has been produced.
func (c *Checkpoint) LastEnd() (float64, bool) {
	if len(c.SegmentsDone) == 0 {
		return 0, false
	}
	return MaxEnd(c.SegmentsDone), true
}

// ProcessedSeconds is the amount of source audio covered so far, measured
// from the window start.
func (c *Checkpoint) ProcessedSeconds() float64 {
	end, ok := c.LastEnd()
	if !ok {
		return 0
	}
	covered := end - c.Window.StartOrZero()
	if covered < 0 {
		return 0
	}
	return covered
}

// Validate checks the structural invariants of a checkpoint.
func (c *Checkpoint) Validate() error {
	if c.JobKey == "" {
		return fmt.Errorf("checkpoint: missing job_key")
	}
	if !c.Status.Valid() {
		return fmt.Errorf("checkpoint %s: unknown status %q", c.JobKey, c.Status)
	}
	if err := c.Window.Validate(); err != nil {
		return fmt.Errorf("checkpoint %s: %w", c.JobKey, err)
	}
	for i, s := range c.SegmentsDone {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("checkpoint %s: %w", c.JobKey, err)
		}
		if s.ID != i {
			return fmt.Errorf("checkpoint %s: segment at position %d has id %d", c.JobKey, i, s.ID)
		}
	}
	return nil
}

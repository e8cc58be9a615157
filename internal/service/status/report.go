// Package status reports the progress of transcription jobs from their
// checkpoints alone. It never loads a recognition engine and never writes to
// the checkpoint store.
package status

import (
	"time"

	"speech-checkpoint-service/internal/models"
)

// Progress is the rendered view of one checkpoint.
type Progress struct {
	JobKey           string           `json:"job_key"`
	Source           string           `json:"source,omitempty"`
	Model            string           `json:"model,omitempty"`
	Device           string           `json:"device,omitempty"`
	Window           *models.Window   `json:"window,omitempty"`
	Status           models.Status    `json:"status,omitempty"`
	SegmentsDone     int              `json:"segments_done"`
	TotalExpected    *models.Expected `json:"total_expected,omitempty"`
	Percent          *float64         `json:"percent"`
	ProcessedSeconds float64          `json:"processed_seconds"`
	Elapsed          float64          `json:"elapsed_seconds"`
	Speed            *float64         `json:"speed"`
	ETA              *float64         `json:"eta_seconds"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	LastError        string           `json:"last_error,omitempty"`
	// Removed is set once for a job whose checkpoint disappeared while
	// being watched.
	Removed bool `json:"removed,omitempty"`
	// Error is set when the checkpoint could not be read.
	Error string `json:"error,omitempty"`
}

// Report computes progress for cp as of now. Percent, speed and ETA are nil
// when they cannot be known.
func Report(cp *models.Checkpoint, now time.Time) Progress {
	p := Progress{
		JobKey:           cp.JobKey,
		Source:           cp.Source.Path,
		Model:            cp.Model,
		Device:           cp.Device,
		Window:           cp.Window,
		Status:           cp.Status,
		SegmentsDone:     len(cp.SegmentsDone),
		TotalExpected:    cp.TotalExpected,
		ProcessedSeconds: cp.ProcessedSeconds(),
		CreatedAt:        cp.CreatedAt,
		UpdatedAt:        cp.UpdatedAt,
		LastError:        cp.LastError,
	}
	if !cp.CreatedAt.IsZero() && now.After(cp.CreatedAt) {
		p.Elapsed = now.Sub(cp.CreatedAt).Seconds()
	}

	p.Percent = percent(cp, p.ProcessedSeconds)
	if cp.Status == models.StatusComplete {
		full := 100.0
		p.Percent = &full
	}

	if cp.ProcessingSeconds > 0 {
		speed := p.ProcessedSeconds / cp.ProcessingSeconds
		p.Speed = &speed
	}

	// ETA scales the time spent processing, not the wall time since
	// creation, so idle time between runs does not count as work.
	worked := cp.ProcessingSeconds
	if worked <= 0 {
		worked = p.Elapsed
	}
	if p.Percent != nil && *p.Percent > 0 {
		eta := worked * (100 - *p.Percent) / *p.Percent
		p.ETA = &eta
	}
	return p
}

func percent(cp *models.Checkpoint, processed float64) *float64 {
	exp := cp.TotalExpected
	if exp == nil {
		return nil
	}
	var pct float64
	switch {
	case exp.Segments != nil && *exp.Segments > 0:
		pct = float64(len(cp.SegmentsDone)) / float64(*exp.Segments) * 100
	case exp.Duration != nil && *exp.Duration > 0:
		pct = processed / *exp.Duration * 100
	default:
		return nil
	}
	if pct > 100 {
		pct = 100
	}
	return &pct
}

// Package models defines the segment, transcript and checkpoint records shared
// by the job driver, the status reporter and the merger.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Segment is one timestamped unit of recognized speech.
type Segment struct {
	ID         int      `json:"id"`
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Duration returns the length of the segment in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Validate checks the timing invariants of a single segment.
func (s Segment) Validate() error {
	if s.Start < 0 {
		return fmt.Errorf("segment %d: negative start %.3f", s.ID, s.Start)
	}
	if s.End <= s.Start {
		return fmt.Errorf("segment %d: end %.3f not after start %.3f", s.ID, s.End, s.Start)
	}
	if s.Confidence != nil && (*s.Confidence < 0 || *s.Confidence > 1) {
		return fmt.Errorf("segment %d: confidence %.3f outside [0,1]", s.ID, *s.Confidence)
	}
	return nil
}

// Window restricts a job to the half-open range [Start, End) of a source.
// A nil End means "until the end of the source".
type Window struct {
	Start float64  `json:"start"`
	End   *float64 `json:"end,omitempty"`
}

// ErrInvalidWindow is returned for windows with negative or inverted bounds.
var ErrInvalidWindow = errors.New("invalid time window")

// NewWindow builds a validated window. end <= 0 means open-ended.
func NewWindow(start, end float64) (*Window, error) {
	w := &Window{Start: start}
	if end > 0 {
		w.End = &end
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Validate checks the window bounds.
func (w *Window) Validate() error {
	if w == nil {
		return nil
	}
	if w.Start < 0 {
		return fmt.Errorf("%w: start %.3f is negative", ErrInvalidWindow, w.Start)
	}
	if w.End != nil && *w.End <= w.Start {
		return fmt.Errorf("%w: end %.3f not after start %.3f", ErrInvalidWindow, *w.End, w.Start)
	}
	return nil
}

// StartOrZero returns the window start, or 0 for a nil window.
func (w *Window) StartOrZero() float64 {
	if w == nil {
		return 0
	}
	return w.Start
}

// Before reports whether t falls before the window end.
func (w *Window) Before(t float64) bool {
	if w == nil || w.End == nil {
		return true
	}
	return t < *w.End
}

// String renders the window as "start-end" with "end" for open windows.
func (w *Window) String() string {
	if w == nil {
		return "full"
	}
	if w.End == nil {
		return fmt.Sprintf("%g-end", w.Start)
	}
	return fmt.Sprintf("%g-%g", w.Start, *w.End)
}

// Metadata describes where a transcript came from.
type Metadata struct {
	SourceID          string    `json:"source_id"`
	Duration          float64   `json:"duration"`
	Model             string    `json:"model"`
	Device            string    `json:"device"`
	Window            *Window   `json:"window,omitempty"`
	Language          string    `json:"language,omitempty"`
	SegmentCount      int       `json:"segment_count"`
	WordCount         int       `json:"word_count"`
	AverageConfidence *float64  `json:"average_confidence,omitempty"`
	MergedFrom        int       `json:"merged_from,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Transcript is the finalized, durable output of a job or a merge.
type Transcript struct {
	Metadata Metadata  `json:"metadata"`
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// JoinText concatenates segment texts the way transcripts store them.
func JoinText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// AverageConfidence averages the confidence of the segments that carry one.
// Returns nil when no segment has a score.
func AverageConfidence(segments []Segment) *float64 {
	var sum float64
	var n int
	for _, s := range segments {
		if s.Confidence != nil {
			sum += *s.Confidence
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

// MaxEnd returns the largest end time over all segments.
func MaxEnd(segments []Segment) float64 {
	var max float64
	for _, s := range segments {
		if s.End > max {
			max = s.End
		}
	}
	return max
}

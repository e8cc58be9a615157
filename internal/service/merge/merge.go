// Package merge combines partial transcripts of one source into a single
// timeline, refusing inputs that leave gaps or overlap unless forced.
package merge

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"speech-checkpoint-service/internal/models"
	"speech-checkpoint-service/internal/observability/logging"
	"speech-checkpoint-service/internal/observability/metrics"
	"speech-checkpoint-service/internal/transcript"
)

// DefaultGapThreshold is used when Merger.GapThreshold is zero.
const DefaultGapThreshold = 5 * time.Second

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("merge validation failed")
	// ErrNoInputs is returned when there is nothing to merge.
	ErrNoInputs = errors.New("merge: no transcripts given")
)

// WarningKind classifies a boundary problem.
type WarningKind string

const (
	KindGap     WarningKind = "gap"
	KindOverlap WarningKind = "overlap"
	KindEmpty   WarningKind = "empty"
)

// Warning describes one problem between two inputs. Indexes refer to the
// caller's input order; for an empty input both name the empty one.
type Warning struct {
	Kind      WarningKind `json:"kind"`
	PrevIndex int         `json:"prev_index"`
	NextIndex int         `json:"next_index"`
	PrevEnd   float64     `json:"prev_end"`
	NextStart float64     `json:"next_start"`
	// Delta is NextStart - PrevEnd.
	Delta float64 `json:"delta"`
}

func (w Warning) String() string {
	switch w.Kind {
	case KindEmpty:
		return fmt.Sprintf("transcript %d has no segments", w.PrevIndex+1)
	case KindOverlap:
		return fmt.Sprintf("overlap of %.3fs between transcript %d (ends %.3f) and transcript %d (starts %.3f)",
			-w.Delta, w.PrevIndex+1, w.PrevEnd, w.NextIndex+1, w.NextStart)
	default:
		return fmt.Sprintf("gap of %.3fs between transcript %d (ends %.3f) and transcript %d (starts %.3f)",
			w.Delta, w.PrevIndex+1, w.PrevEnd, w.NextIndex+1, w.NextStart)
	}
}

// ValidationError carries the boundary warnings that blocked a merge.
type ValidationError struct {
	Warnings []Warning
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Warnings))
	for i, w := range e.Warnings {
		parts[i] = w.String()
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Merger validates and merges transcripts.
type Merger struct {
	// GapThreshold is the largest gap or overlap tolerated at a boundary.
	GapThreshold time.Duration
	// Force merges despite warnings.
	Force bool

	log     zerolog.Logger
	metrics *metrics.Metrics
}

// New creates a merger.
func New(gapThreshold time.Duration, force bool) *Merger {
	return &Merger{
		GapThreshold: gapThreshold,
		Force:        force,
		log:          logging.WithComponent("merge"),
		metrics:      metrics.DefaultMetrics,
	}
}

func (m *Merger) threshold() float64 {
	if m.GapThreshold <= 0 {
		return DefaultGapThreshold.Seconds()
	}
	return m.GapThreshold.Seconds()
}

// span is the extent of one non-empty input.
type span struct {
	index int
	first float64
	last  float64
}

// order returns the non-empty inputs sorted by first start (stable, so the
// caller's order breaks ties) plus one warning per empty input.
func order(ts []models.Transcript) ([]span, []Warning) {
	var spans []span
	var warnings []Warning
	for i, t := range ts {
		if len(t.Segments) == 0 {
			warnings = append(warnings, Warning{Kind: KindEmpty, PrevIndex: i, NextIndex: i})
			continue
		}
		first := t.Segments[0].Start
		for _, s := range t.Segments[1:] {
			if s.Start < first {
				first = s.Start
			}
		}
		spans = append(spans, span{index: i, first: first, last: models.MaxEnd(t.Segments)})
	}
	sort.SliceStable(spans, func(a, b int) bool { return spans[a].first < spans[b].first })
	return spans, warnings
}

// Validate returns the warnings for merging ts, in boundary order after the
// empty-input warnings.
func (m *Merger) Validate(ts []models.Transcript) []Warning {
	spans, warnings := order(ts)
	th := m.threshold()
	for i := 1; i < len(spans); i++ {
		prev, next := spans[i-1], spans[i]
		delta := next.first - prev.last
		w := Warning{
			PrevIndex: prev.index,
			NextIndex: next.index,
			PrevEnd:   prev.last,
			NextStart: next.first,
			Delta:     delta,
		}
		switch {
		case delta > th:
			w.Kind = KindGap
		case delta < -th:
			w.Kind = KindOverlap
		default:
			continue
		}
		warnings = append(warnings, w)
	}
	return warnings
}

// Merge validates ts and, when clean or forced, returns one finalized
// transcript with segments reindexed 0..N-1 in start order. Inputs are not
// modified.
func (m *Merger) Merge(ts []models.Transcript) (*models.Transcript, error) {
	if len(ts) == 0 {
		m.metrics.RecordMerge("error", nil)
		return nil, ErrNoInputs
	}

	warnings := m.Validate(ts)
	kinds := make([]string, len(warnings))
	for i, w := range warnings {
		kinds[i] = string(w.Kind)
		m.log.Warn().
			Str("kind", string(w.Kind)).
			Float64("prevEnd", w.PrevEnd).
			Float64("nextStart", w.NextStart).
			Msg(w.String())
	}
	if len(warnings) > 0 && !m.Force {
		m.metrics.RecordMerge("rejected", kinds)
		return nil, &ValidationError{Warnings: warnings}
	}

	spans, _ := order(ts)
	ordered := make([]models.Transcript, len(spans))
	for i, s := range spans {
		ordered[i] = ts[s.index]
	}

	var segments []models.Segment
	for _, t := range ordered {
		segments = append(segments, t.Segments...)
	}
	merged := transcript.Finalize(segments, mergeMetadata(ordered))

	result := "ok"
	if len(warnings) > 0 {
		result = "forced"
	}
	m.metrics.RecordMerge(result, kinds)
	m.log.Info().
		Int("inputs", len(ts)).
		Int("segments", merged.Metadata.SegmentCount).
		Float64("duration", merged.Metadata.Duration).
		Msg("Transcripts merged")
	return merged, nil
}

// mergeMetadata combines the metadata of inputs in timeline order. Derived
// fields are recomputed by Finalize.
func mergeMetadata(ordered []models.Transcript) models.Metadata {
	var meta models.Metadata
	var sources, modelNames, devices, languages []string
	for _, t := range ordered {
		sources = append(sources, t.Metadata.SourceID)
		modelNames = append(modelNames, t.Metadata.Model)
		devices = append(devices, t.Metadata.Device)
		languages = append(languages, t.Metadata.Language)
		parts := t.Metadata.MergedFrom
		if parts < 1 {
			parts = 1
		}
		meta.MergedFrom += parts
		if t.Metadata.CreatedAt.After(meta.CreatedAt) {
			meta.CreatedAt = t.Metadata.CreatedAt
		}
	}
	meta.SourceID = distinct(sources)
	meta.Model = distinct(modelNames)
	meta.Device = distinct(devices)
	meta.Language = distinct(languages)
	meta.Window = windowUnion(ordered)
	return meta
}

// distinct joins the distinct non-empty values in first-seen order.
func distinct(values []string) string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return strings.Join(out, ",")
}

// windowUnion is nil when any input covers a whole source.
func windowUnion(ts []models.Transcript) *models.Window {
	if len(ts) == 0 {
		return nil
	}
	var union *models.Window
	openEnd := false
	for _, t := range ts {
		w := t.Metadata.Window
		if w == nil {
			return nil
		}
		if union == nil {
			union = &models.Window{Start: w.Start}
		} else if w.Start < union.Start {
			union.Start = w.Start
		}
		switch {
		case w.End == nil:
			openEnd = true
		case union.End == nil || *w.End > *union.End:
			end := *w.End
			union.End = &end
		}
	}
	if openEnd {
		union.End = nil
	}
	return union
}

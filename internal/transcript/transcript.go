// Package transcript materializes, reads and writes finalized transcripts.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"speech-checkpoint-service/internal/atomicfile"
	"speech-checkpoint-service/internal/models"
	"speech-checkpoint-service/internal/schema"
)

// Finalize sorts segments by start (stable, so equal starts keep production
// order), reindexes them 0..N-1 and derives the aggregate metadata. The input
// slice is not modified. Finalizing an already final transcript is a no-op.
func Finalize(segments []models.Segment, meta models.Metadata) *models.Transcript {
	out := make([]models.Segment, len(segments))
	copy(out, segments)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	for i := range out {
		out[i].ID = i
	}

	text := models.JoinText(out)
	meta.Duration = models.MaxEnd(out)
	meta.SegmentCount = len(out)
	meta.WordCount = len(strings.Fields(text))
	meta.AverageConfidence = models.AverageConfidence(out)

	return &models.Transcript{
		Metadata: meta,
		Text:     text,
		Segments: out,
	}
}

// Load reads and validates a transcript file. The stored text is replaced by
// the text derived from the segments.
func Load(path string) (*models.Transcript, error) {
	t, err := decode(path)
	if err != nil {
		return nil, err
	}
	if err := schema.New().ValidateTranscript(t); err != nil {
		return nil, fmt.Errorf("transcript: %s: %w", path, err)
	}
	t.Text = models.JoinText(t.Segments)
	return t, nil
}

// LoadPart reads a transcript that will be combined with others. Segment ids
// and order are not trusted; the result is finalized from its segments.
func LoadPart(path string) (*models.Transcript, error) {
	t, err := decode(path)
	if err != nil {
		return nil, err
	}
	if err := schema.New().ValidatePart(t); err != nil {
		return nil, fmt.Errorf("transcript: %s: %w", path, err)
	}
	return Finalize(t.Segments, t.Metadata), nil
}

func decode(path string) (*models.Transcript, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("transcript: read %s: %w", path, err)
	}
	var t models.Transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("transcript: decode %s: %w", path, err)
	}
	return &t, nil
}

// Save validates t and writes it atomically.
func Save(path string, t *models.Transcript) error {
	if err := schema.New().ValidateTranscript(t); err != nil {
		return fmt.Errorf("transcript: refusing to save %s: %w", path, err)
	}
	return atomicfile.WriteJSON(path, t)
}

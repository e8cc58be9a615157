// Package schema checks records read from disk against the transcript and
// checkpoint invariants before they are trusted.
package schema

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"speech-checkpoint-service/internal/models"
)

// ErrInvalid wraps every violation reported by the validator.
var ErrInvalid = errors.New("schema violation")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// ValidateTranscript enforces the finalized-transcript invariants: valid
// segments, ids 0..N-1 and non-decreasing start times.
func (v *Validator) ValidateTranscript(t *models.Transcript) error {
	if t == nil {
		return fmt.Errorf("%w: nil transcript", ErrInvalid)
	}
	if err := t.Metadata.Window.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for i, s := range t.Segments {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if s.ID != i {
			return fmt.Errorf("%w: segment at position %d has id %d", ErrInvalid, i, s.ID)
		}
		if i > 0 && s.Start < t.Segments[i-1].Start {
			return fmt.Errorf("%w: segment %d starts at %.3f before segment %d at %.3f",
				ErrInvalid, i, s.Start, i-1, t.Segments[i-1].Start)
		}
	}

	log.Debug().
		Str("sourceId", t.Metadata.SourceID).
		Int("segments", len(t.Segments)).
		Msg("transcript validated")
	return nil
}

// ValidatePart checks a transcript that is about to be finalized again, such
// as a merge input: the window and every segment must be valid, but ids and
// ordering are not checked.
func (v *Validator) ValidatePart(t *models.Transcript) error {
	if t == nil {
		return fmt.Errorf("%w: nil transcript", ErrInvalid)
	}
	if err := t.Metadata.Window.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for i, s := range t.Segments {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: segment at position %d: %v", ErrInvalid, i, err)
		}
	}
	return nil
}

// ValidateCheckpoint enforces the checkpoint invariants.
func (v *Validator) ValidateCheckpoint(cp *models.Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("%w: nil checkpoint", ErrInvalid)
	}
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Package stt defines the interface for speech recognition engines.
package stt

import (
	"context"

	"speech-checkpoint-service/internal/models"
)

// Callback receives recognized segments from the engine, in temporal order.
type Callback interface {
	// OnSegment is called for every recognized segment with times measured
	// from the beginning of the source. Returning an error stops the engine,
	// which must return that error (or a wrapper of it) from Transcribe.
	OnSegment(seg models.Segment) error
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(seg models.Segment) error

// OnSegment calls f(seg).
func (f CallbackFunc) OnSegment(seg models.Segment) error { return f(seg) }

// Request describes one blocking transcription call.
type Request struct {
	Source models.Source
	// From is the first un-transcribed instant, in source seconds.
	From float64
	// To is the exclusive end, or 0 for the end of the source.
	To float64
	// Language is an optional language hint.
	Language string
}

// Engine defines the interface for recognition providers (whisper, Google, ...).
type Engine interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Load prepares the model. It may be expensive and is called at most
	// once per job run.
	Load(ctx context.Context) error

	// Transcribe recognizes the requested range and delivers segments to cb.
	// It returns nil at end of input.
	Transcribe(ctx context.Context, req Request, cb Callback) error

	// Close releases resources.
	Close() error
}

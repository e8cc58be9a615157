// Package mock provides a deterministic recognition engine for tests and dry
// runs. It produces fixed-length segments over the requested range with
// texts cycling through a sample script.
package mock

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"speech-checkpoint-service/internal/models"
	"speech-checkpoint-service/internal/service/stt"
)

// SimulatedUtterance is one scripted line of speech.
type SimulatedUtterance struct {
	Text       string
	Confidence float64
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{Text: "I want to cancel my subscription", Confidence: 0.94},
	{Text: "Yes please go ahead", Confidence: 0.97},
	{Text: "Can you help me with my account", Confidence: 0.91},
	{Text: "I've been waiting for over an hour", Confidence: 0.89},
	{Text: "Thank you very much", Confidence: 0.98},
}

// ErrSimulatedFailure is returned when FailAt is reached.
var ErrSimulatedFailure = errors.New("mock: simulated engine failure")

// Config controls the simulation.
type Config struct {
	// SegmentLength is the length of each produced segment in seconds.
	SegmentLength float64
	// Duration is used when the source duration is unknown.
	Duration float64
	// Delay is slept before each segment is delivered.
	Delay time.Duration
	// FailAt makes Transcribe fail before delivering the segment starting
	// at or after this instant. Zero disables it.
	FailAt float64
	// LoadErr is returned from Load when set.
	LoadErr error
}

// DefaultConfig returns 4-second segments over a 60-second fallback duration.
func DefaultConfig() Config {
	return Config{
		SegmentLength: 4,
		Duration:      60,
	}
}

// Adapter implements stt.Engine with scripted output.
type Adapter struct {
	cfg Config

	mu          sync.Mutex
	loads       int
	transcribes int
	requests    []stt.Request
	closed      bool

	// onSegment, when set, runs after each delivered segment (test hook).
	onSegment func(seg models.Segment)
}

// New creates a new mock engine.
func New(cfg Config) *Adapter {
	if cfg.SegmentLength <= 0 {
		cfg.SegmentLength = DefaultConfig().SegmentLength
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultConfig().Duration
	}
	return &Adapter{cfg: cfg}
}

// Name returns the provider name.
func (a *Adapter) Name() string { return "mock" }

// Load records the call and returns the configured error.
func (a *Adapter) Load(ctx context.Context) error {
	a.mu.Lock()
	a.loads++
	a.mu.Unlock()
	return a.cfg.LoadErr
}

// Transcribe emits segments on a fixed grid of SegmentLength seconds
// starting at zero, so that resumed and uninterrupted runs agree on segment
// boundaries. Segments ending at or before req.From are not produced.
func (a *Adapter) Transcribe(ctx context.Context, req stt.Request, cb stt.Callback) error {
	a.mu.Lock()
	a.transcribes++
	a.requests = append(a.requests, req)
	hook := a.onSegment
	a.mu.Unlock()

	end := a.cfg.Duration
	if req.Source.Duration != nil {
		end = *req.Source.Duration
	}
	if req.To > 0 && req.To < end {
		end = req.To
	}

	step := a.cfg.SegmentLength
	first := int(math.Floor(req.From / step))
	for i := first; float64(i)*step < end; i++ {
		start := float64(i) * step
		segEnd := math.Min(start+step, end)
		if segEnd <= req.From {
			continue
		}
		if a.cfg.FailAt > 0 && start >= a.cfg.FailAt {
			return ErrSimulatedFailure
		}

		if a.cfg.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.cfg.Delay):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		utt := DefaultUtterances[i%len(DefaultUtterances)]
		conf := utt.Confidence
		seg := models.Segment{
			Start:      start,
			End:        segEnd,
			Text:       utt.Text,
			Confidence: &conf,
		}
		if err := cb.OnSegment(seg); err != nil {
			return err
		}
		if hook != nil {
			hook(seg)
		}
	}
	return nil
}

// Close ends the mock session.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// OnSegmentDelivered installs a hook that runs after every delivered segment.
func (a *Adapter) OnSegmentDelivered(fn func(seg models.Segment)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onSegment = fn
}

// Loads returns how many times Load was called.
func (a *Adapter) Loads() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loads
}

// Transcribes returns how many times Transcribe was called.
func (a *Adapter) Transcribes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transcribes
}

// Requests returns a copy of all requests received.
func (a *Adapter) Requests() []stt.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]stt.Request{}, a.requests...)
}

// Closed reports whether Close was called.
func (a *Adapter) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

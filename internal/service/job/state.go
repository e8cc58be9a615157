// Package job drives one transcription job from a fresh start or a saved
// checkpoint to a finalized transcript.
package job

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a job run.
type State int

const (
	// StateInit - Source probed, checkpoint not yet resolved.
	StateInit State = iota
	// StateLoadingEngine - Recognition model is being loaded.
	StateLoadingEngine
	// StateProcessing - Engine is producing segments.
	StateProcessing
	// StateCheckpointing - Progress is being saved.
	StateCheckpointing
	// StateComplete - Source or window fully covered.
	StateComplete
	// StateInterrupted - Stopped on request, progress saved.
	StateInterrupted
	// StateFailed - Ended by an error. Progress saved when possible.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateLoadingEngine:
		return "LOADING_ENGINE"
	case StateProcessing:
		return "PROCESSING"
	case StateCheckpointing:
		return "CHECKPOINTING"
	case StateComplete:
		return "COMPLETE"
	case StateInterrupted:
		return "INTERRUPTED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true for COMPLETE, INTERRUPTED and FAILED.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateInterrupted || s == StateFailed
}

// ErrInvalidTransition is returned for a transition the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid job state transition")

// transitions lists the allowed successors of every non-terminal state.
var transitions = map[State][]State{
	// INIT may finish directly when a resumed checkpoint is already complete.
	StateInit:          {StateLoadingEngine, StateComplete, StateInterrupted, StateFailed},
	StateLoadingEngine: {StateProcessing, StateInterrupted, StateFailed},
	StateProcessing:    {StateCheckpointing, StateComplete, StateInterrupted, StateFailed},
	StateCheckpointing: {StateProcessing, StateInterrupted, StateFailed},
}

// Lifecycle manages the state machine for a single job run.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	INIT → LOADING_ENGINE → PROCESSING ⇄ CHECKPOINTING
//	                            │
//	                            └──→ COMPLETE | INTERRUPTED | FAILED
//
// Terminal states accept no further transitions.
type Lifecycle struct {
	mu     sync.RWMutex
	jobKey string
	state  State
}

// NewLifecycle creates a new job lifecycle in INIT state.
func NewLifecycle(jobKey string) *Lifecycle {
	return &Lifecycle{
		jobKey: jobKey,
		state:  StateInit,
	}
}

// JobKey returns the job key.
func (l *Lifecycle) JobKey() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.jobKey
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// CanTransition reports whether moving to next is allowed.
func (l *Lifecycle) CanTransition(next State) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return allowed(l.state, next)
}

// Transition moves the lifecycle to next, or returns ErrInvalidTransition.
func (l *Lifecycle) Transition(next State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !allowed(l.state, next) {
		return fmt.Errorf("%w: %s → %s (job %s)", ErrInvalidTransition, l.state, next, l.jobKey)
	}
	l.state = next
	return nil
}

// Fail moves any non-terminal lifecycle to FAILED.
// Returns false if already in a terminal state.
func (l *Lifecycle) Fail() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateFailed
	return true
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

package job

import (
	"errors"

	"speech-checkpoint-service/internal/audio"
	"speech-checkpoint-service/internal/checkpoint"
	"speech-checkpoint-service/internal/models"
)

var (
	// ErrInterrupted means the run stopped on request after saving progress.
	ErrInterrupted = errors.New("job interrupted")
	// ErrEngine wraps failures reported by the recognition engine.
	ErrEngine = errors.New("recognition engine failed")
	// ErrCheckpointExists means a checkpoint exists and neither resume nor
	// restart was requested.
	ErrCheckpointExists = errors.New("checkpoint exists; resume or force a restart")
)

// Process exit codes.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitUsage             = 2
	ExitCorruptState      = 3
	ExitSourceUnavailable = 4
	ExitInterrupted       = 130
)

// ExitCode maps a Run or Status error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInterrupted):
		return ExitInterrupted
	case errors.Is(err, checkpoint.ErrCorruptState):
		return ExitCorruptState
	case errors.Is(err, audio.ErrSourceUnavailable):
		return ExitSourceUnavailable
	case errors.Is(err, ErrCheckpointExists), errors.Is(err, models.ErrInvalidWindow):
		return ExitUsage
	default:
		return ExitFailure
	}
}

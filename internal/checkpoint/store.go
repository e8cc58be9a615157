// Package checkpoint persists per-job progress so that interrupted
// transcription jobs can resume, and so that other processes can inspect
// progress without touching the recognition engine.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"speech-checkpoint-service/internal/atomicfile"
	"speech-checkpoint-service/internal/models"
	"speech-checkpoint-service/internal/observability/logging"
	"speech-checkpoint-service/internal/schema"
)

// FileName is the checkpoint record inside each job directory.
const FileName = "checkpoint.json"

var (
	// ErrNotFound means no checkpoint exists for the job key.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrCorruptState means a checkpoint exists but cannot be trusted.
	ErrCorruptState = errors.New("checkpoint corrupt")
)

// CorruptStateError names the job whose checkpoint could not be read.
type CorruptStateError struct {
	JobKey string
	Path   string
	Err    error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("checkpoint for job %s is corrupt (%s): %v", e.JobKey, e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCorruptState) hold for every CorruptStateError.
func (e *CorruptStateError) Is(target error) bool { return target == ErrCorruptState }

// Store is the durable home of checkpoints.
type Store interface {
	Load(ctx context.Context, jobKey string) (*models.Checkpoint, error)
	Save(ctx context.Context, cp *models.Checkpoint) error
	Delete(ctx context.Context, jobKey string) error
	ListActive(ctx context.Context) ([]string, error)
}

// FileStore keeps one directory per job key under Root.
// Safe for concurrent use: writes publish via atomic rename, so readers see
// either the previous or the new record, never a partial one.
type FileStore struct {
	root      string
	validator *schema.Validator
	log       zerolog.Logger
}

// NewFileStore returns a store rooted at dir. The directory is created lazily
// on first save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		root:      dir,
		validator: schema.New(),
		log:       logging.WithComponent("checkpoint.FileStore"),
	}
}

// Root returns the store directory.
func (s *FileStore) Root() string {
	return s.root
}

// Path returns the checkpoint file path for jobKey.
func (s *FileStore) Path(jobKey string) string {
	return filepath.Join(s.root, jobKey, FileName)
}

// Load reads the checkpoint for jobKey.
func (s *FileStore) Load(ctx context.Context, jobKey string) (*models.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validKey(jobKey); err != nil {
		return nil, err
	}

	path := s.Path(jobKey)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, jobKey)
		}
		return nil, &CorruptStateError{JobKey: jobKey, Path: path, Err: err}
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, &CorruptStateError{JobKey: jobKey, Path: path, Err: err}
	}
	if err := s.validator.ValidateCheckpoint(&cp); err != nil {
		return nil, &CorruptStateError{JobKey: jobKey, Path: path, Err: err}
	}
	if cp.JobKey != jobKey {
		return nil, &CorruptStateError{
			JobKey: jobKey,
			Path:   path,
			Err:    fmt.Errorf("record belongs to job %s", cp.JobKey),
		}
	}

	return &cp, nil
}

// Save atomically replaces the checkpoint for cp.JobKey.
func (s *FileStore) Save(ctx context.Context, cp *models.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cp == nil {
		return errors.New("checkpoint: nil checkpoint")
	}
	if err := validKey(cp.JobKey); err != nil {
		return err
	}
	if err := s.validator.ValidateCheckpoint(cp); err != nil {
		return fmt.Errorf("checkpoint: refusing to save: %w", err)
	}

	path := s.Path(cp.JobKey)
	if err := atomicfile.WriteJSON(path, cp); err != nil {
		return fmt.Errorf("checkpoint: save %s: %w", cp.JobKey, err)
	}

	s.log.Debug().
		Str("jobKey", cp.JobKey).
		Str("status", string(cp.Status)).
		Int("segments", len(cp.SegmentsDone)).
		Msg("checkpoint saved")
	return nil
}

// Delete removes the checkpoint directory for jobKey. Deleting a missing
// checkpoint is not an error.
func (s *FileStore) Delete(ctx context.Context, jobKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validKey(jobKey); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.root, jobKey)); err != nil {
		return fmt.Errorf("checkpoint: delete %s: %w", jobKey, err)
	}
	s.log.Debug().Str("jobKey", jobKey).Msg("checkpoint deleted")
	return nil
}

// ListActive returns the sorted keys of every stored checkpoint. A missing
// root directory yields an empty list.
func (s *FileStore) ListActive(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: list %s: %w", s.root, err)
	}

	var keys []string
	for _, e := range entries {
		if !e.IsDir() || atomicfile.IsTemp(e.Name()) {
			continue
		}
		if _, err := os.Stat(s.Path(e.Name())); err == nil {
			keys = append(keys, e.Name())
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func validKey(jobKey string) error {
	if jobKey == "" || jobKey == "." || jobKey == ".." || filepath.Base(jobKey) != jobKey {
		return fmt.Errorf("checkpoint: invalid job key %q", jobKey)
	}
	return nil
}

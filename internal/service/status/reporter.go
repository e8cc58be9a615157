package status

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"speech-checkpoint-service/internal/checkpoint"
	"speech-checkpoint-service/internal/models"
	"speech-checkpoint-service/internal/observability/logging"
	"speech-checkpoint-service/internal/observability/metrics"
)

// DefaultInterval is the watch polling interval.
const DefaultInterval = 5 * time.Second

// Reporter reads checkpoints through a Store it does not own.
type Reporter struct {
	store   checkpoint.Store
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// NewReporter creates a reporter over store.
func NewReporter(store checkpoint.Store) *Reporter {
	return &Reporter{
		store:   store,
		metrics: metrics.DefaultMetrics,
		log:     logging.WithComponent("status"),
		now:     time.Now,
	}
}

// Now returns the reporter's clock reading.
func (r *Reporter) Now() time.Time {
	return r.now()
}

// Snapshot reads every active checkpoint once. Corrupt checkpoints are
// reported with Error set; checkpoints removed between listing and loading
// are skipped.
func (r *Reporter) Snapshot(ctx context.Context) ([]Progress, error) {
	r.metrics.RecordStatusPoll()

	keys, err := r.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now()
	out := make([]Progress, 0, len(keys))
	for _, key := range keys {
		p, ok, err := r.one(ctx, key, now)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Job reads the progress of a single job.
func (r *Reporter) Job(ctx context.Context, jobKey string) (Progress, error) {
	cp, err := r.store.Load(ctx, jobKey)
	if err != nil {
		return Progress{}, err
	}
	return Report(cp, r.now()), nil
}

func (r *Reporter) one(ctx context.Context, key string, now time.Time) (Progress, bool, error) {
	cp, err := r.store.Load(ctx, key)
	switch {
	case err == nil:
		return Report(cp, now), true, nil
	case errors.Is(err, checkpoint.ErrNotFound):
		return Progress{}, false, nil
	case errors.Is(err, checkpoint.ErrCorruptState):
		r.metrics.RecordCheckpointLoadError("corrupt")
		return Progress{JobKey: key, Error: err.Error()}, true, nil
	case ctx.Err() != nil:
		return Progress{}, false, ctx.Err()
	default:
		r.metrics.RecordCheckpointLoadError("io")
		return Progress{JobKey: key, Error: err.Error()}, true, nil
	}
}

// Watch calls fn with a fresh snapshot immediately and then every interval
// until ctx is cancelled. A job seen earlier whose checkpoint has vanished
// is reported once as COMPLETE with Removed set. Returns nil on
// cancellation.
func (r *Reporter) Watch(ctx context.Context, interval time.Duration, fn func([]Progress)) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seen := make(map[string]Progress)
	for {
		snap, err := r.Snapshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Warn().Err(err).Msg("Status poll failed")
		} else {
			fn(r.track(seen, snap))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// track appends one terminal entry for every job that disappeared since the
// previous poll and remembers the current ones.
func (r *Reporter) track(seen map[string]Progress, snap []Progress) []Progress {
	current := make(map[string]bool, len(snap))
	for _, p := range snap {
		current[p.JobKey] = true
	}

	out := snap
	for key, last := range seen {
		if current[key] {
			continue
		}
		gone := last
		gone.Status = models.StatusComplete
		gone.Removed = true
		full := 100.0
		gone.Percent = &full
		zero := 0.0
		gone.ETA = &zero
		out = append(out, gone)
		delete(seen, key)
		r.log.Debug().Str("jobKey", key).Msg("Checkpoint removed, job finished")
	}

	for _, p := range snap {
		if p.Error == "" {
			seen[p.JobKey] = p
		}
	}
	return out
}

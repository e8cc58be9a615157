package job

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"speech-checkpoint-service/internal/audio"
	"speech-checkpoint-service/internal/checkpoint"
	"speech-checkpoint-service/internal/events"
	"speech-checkpoint-service/internal/models"
	"speech-checkpoint-service/internal/observability/logging"
	"speech-checkpoint-service/internal/observability/metrics"
	"speech-checkpoint-service/internal/service/stt"
	"speech-checkpoint-service/internal/transcript"
)

// DefaultCheckpointInterval is the number of new segments between saves.
const DefaultCheckpointInterval = 10

// Options controls one job run.
type Options struct {
	Resume             bool
	ForceRestart       bool
	CheckpointInterval int
	Window             *models.Window
	KeepCheckpoint     bool
	// OutputPath defaults to the source path with a .json extension.
	OutputPath string
	// SRTPath, when set, also writes a SubRip export.
	SRTPath  string
	Model    string
	Device   string
	Language string
}

// Result describes how a run ended.
type Result struct {
	JobKey     string
	RunID      string
	State      State
	Resumed    bool
	Produced   int
	Checkpoint *models.Checkpoint
	Transcript *models.Transcript
	OutputPath string
}

// Driver runs transcription jobs against a checkpoint store.
// A Driver runs one job at a time; RequestStop may be called from any
// goroutine.
type Driver struct {
	store     checkpoint.Store
	engine    stt.Engine
	publisher *events.Publisher
	metrics   *metrics.Metrics
	opts      Options
	now       func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewDriver creates a driver. publisher may be nil.
func NewDriver(store checkpoint.Store, engine stt.Engine, publisher *events.Publisher, opts Options) *Driver {
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = DefaultCheckpointInterval
	}
	return &Driver{
		store:     store,
		engine:    engine,
		publisher: publisher,
		metrics:   metrics.DefaultMetrics,
		opts:      opts,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// RequestStop asks the running job to save its progress and stop. Idempotent.
func (d *Driver) RequestStop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

func (d *Driver) stopRequested() bool {
	select {
	case <-d.stopCh:
		return true
	default:
		return false
	}
}

// Status loads the checkpoint for sourcePath under the driver's options
// without touching the recognition engine.
func (d *Driver) Status(ctx context.Context, sourcePath string) (*models.Checkpoint, error) {
	src, err := audio.Probe(sourcePath)
	if err != nil {
		return nil, err
	}
	if err := d.opts.Window.Validate(); err != nil {
		return nil, err
	}
	key := checkpoint.JobKey(src.SourceID, d.opts.Model, d.opts.Device, d.opts.Window)
	cp, err := d.store.Load(ctx, key)
	if err != nil {
		if errors.Is(err, checkpoint.ErrCorruptState) {
			d.metrics.RecordCheckpointLoadError("corrupt")
		}
		return nil, err
	}
	return cp, nil
}

// run carries the mutable state of one Run call.
type run struct {
	d       *Driver
	ctx     context.Context
	id      string
	lc      *Lifecycle
	log     zerolog.Logger
	cp      *models.Checkpoint
	started time.Time
	// baseProcessing is the processing time accumulated by earlier runs.
	baseProcessing float64
	produced       int
	// saveErr is set when a periodic save failed inside the engine callback.
	saveErr error
}

// Run transcribes sourcePath, resuming or restarting according to the
// driver options. It returns ErrInterrupted after a stop request, an error
// wrapping ErrEngine after an engine failure, and the checkpoint errors of
// the store unchanged.
func (d *Driver) Run(ctx context.Context, sourcePath string) (*Result, error) {
	r := &run{
		d:       d,
		ctx:     ctx,
		id:      uuid.NewString(),
		started: d.now(),
	}

	src, err := audio.Probe(sourcePath)
	if err != nil {
		return nil, err
	}
	if err := d.opts.Window.Validate(); err != nil {
		return nil, err
	}
	key := checkpoint.JobKey(src.SourceID, d.opts.Model, d.opts.Device, d.opts.Window)
	r.lc = NewLifecycle(key)
	r.log = logging.WithRun(key, src.Path, r.id)

	d.metrics.RecordJobStart()
	res, err := r.execute(src)
	if err != nil {
		r.lc.Fail()
		if !errors.Is(err, ErrInterrupted) {
			r.log.Error().Err(err).Str("state", r.lc.State().String()).Msg("Job run ended with error")
		}
	}
	d.metrics.RecordJobEnd(r.lc.State().String(), time.Since(r.started).Seconds())
	return res, err
}

func (r *run) execute(src models.Source) (*Result, error) {
	d := r.d
	key := r.lc.JobKey()
	res := &Result{JobKey: key, RunID: r.id}

	if d.opts.ForceRestart {
		if err := d.store.Delete(r.ctx, key); err != nil {
			return nil, err
		}
		r.log.Info().Msg("Existing checkpoint discarded on forced restart")
	}

	cp, err := d.store.Load(r.ctx, key)
	switch {
	case err == nil:
		if !d.opts.Resume {
			return nil, fmt.Errorf("%w: job %s", ErrCheckpointExists, key)
		}
		res.Resumed = true
		cp.Source.Path = src.Path
		r.log.Info().
			Int("segmentsDone", len(cp.SegmentsDone)).
			Str("status", string(cp.Status)).
			Msg("Resuming from checkpoint")
	case errors.Is(err, checkpoint.ErrNotFound):
		cp = r.fresh(key, src)
	case errors.Is(err, checkpoint.ErrCorruptState):
		d.metrics.RecordCheckpointLoadError("corrupt")
		return nil, err
	default:
		d.metrics.RecordCheckpointLoadError("io")
		return nil, err
	}
	r.cp = cp
	r.baseProcessing = cp.ProcessingSeconds
	res.Checkpoint = cp

	if cp.Status == models.StatusComplete {
		// Completed earlier but not materialized.
		return r.complete(res)
	}

	cp.LastError = ""
	if err := r.save(models.StatusRunning); err != nil {
		return nil, err
	}
	if d.stopRequested() || r.ctx.Err() != nil {
		return r.interrupt(res)
	}

	if err := r.lc.Transition(StateLoadingEngine); err != nil {
		return nil, err
	}
	loadStart := time.Now()
	if err := d.engine.Load(r.ctx); err != nil {
		if d.stopRequested() || r.ctx.Err() != nil {
			return r.interrupt(res)
		}
		return r.fail(res, err)
	}
	r.log.Debug().Dur("took", time.Since(loadStart)).Str("engine", d.engine.Name()).Msg("Engine loaded")

	if err := r.lc.Transition(StateProcessing); err != nil {
		return nil, err
	}
	err = r.process()
	res.Produced = r.produced

	switch {
	case err == nil:
		return r.complete(res)
	case r.saveErr != nil:
		r.lc.Fail()
		res.State = StateFailed
		return res, fmt.Errorf("checkpoint save: %w", r.saveErr)
	case d.stopRequested() || r.ctx.Err() != nil:
		return r.interrupt(res)
	default:
		return r.fail(res, err)
	}
}

// fresh builds the first checkpoint of a job.
func (r *run) fresh(key string, src models.Source) *models.Checkpoint {
	d := r.d
	now := d.now()
	cp := &models.Checkpoint{
		JobKey:       key,
		Source:       src,
		Model:        d.opts.Model,
		Device:       d.opts.Device,
		Window:       d.opts.Window,
		SegmentsDone: []models.Segment{},
		CreatedAt:    now,
		UpdatedAt:    now,
		Status:       models.StatusRunning,
	}
	if span, ok := expectedDuration(src, d.opts.Window); ok {
		cp.TotalExpected = &models.Expected{Duration: &span}
	}
	r.log.Info().Str("window", d.opts.Window.String()).Msg("Starting new job")
	return cp
}

// expectedDuration is the amount of audio the job covers, when known.
func expectedDuration(src models.Source, w *models.Window) (float64, bool) {
	end := -1.0
	if src.Duration != nil {
		end = *src.Duration
	}
	if w != nil && w.End != nil && (end < 0 || *w.End < end) {
		end = *w.End
	}
	if end < 0 {
		return 0, false
	}
	span := end - w.StartOrZero()
	if span <= 0 {
		return 0, false
	}
	return span, true
}

var errWindowEnd = errors.New("window end reached")

// process runs the engine from the resume point and appends every new
// segment to the checkpoint.
func (r *run) process() error {
	d := r.d
	window := r.cp.Window

	from := window.StartOrZero()
	if last, ok := r.cp.LastEnd(); ok && last > from {
		from = last
	}

	engCtx, cancel := context.WithCancel(r.ctx)
	defer cancel()
	go func() {
		select {
		case <-d.stopCh:
			cancel()
		case <-engCtx.Done():
		}
	}()

	req := stt.Request{Source: r.cp.Source, From: from, Language: d.opts.Language}
	if window != nil && window.End != nil {
		req.To = *window.End
	}

	r.log.Info().Float64("from", from).Float64("to", req.To).Msg("Processing")

	cb := stt.CallbackFunc(func(seg models.Segment) error {
		if seg.End <= from {
			d.metrics.RecordSegmentSkipped()
			return nil
		}
		if !window.Before(seg.Start) {
			return errWindowEnd
		}
		if d.stopRequested() {
			return ErrInterrupted
		}

		seg.ID = len(r.cp.SegmentsDone)
		r.cp.SegmentsDone = append(r.cp.SegmentsDone, seg)
		r.produced++
		d.metrics.RecordSegmentProduced()

		if r.produced%d.opts.CheckpointInterval == 0 {
			if err := r.lc.Transition(StateCheckpointing); err != nil {
				return err
			}
			if err := r.save(models.StatusRunning); err != nil {
				r.saveErr = err
				return err
			}
			return r.lc.Transition(StateProcessing)
		}
		return nil
	})

	start := time.Now()
	err := d.engine.Transcribe(engCtx, req, cb)
	d.metrics.RecordEngineCall(d.engine.Name(), time.Since(start).Seconds())
	if errors.Is(err, errWindowEnd) {
		return nil
	}
	return err
}

// save stamps and persists the checkpoint with the given status. Saves use a
// context detached from cancellation so that progress is kept on shutdown.
func (r *run) save(status models.Status) error {
	d := r.d
	cp := r.cp
	cp.Status = status
	cp.UpdatedAt = d.now()
	cp.ProcessingSeconds = r.baseProcessing + time.Since(r.started).Seconds()

	ctx := context.WithoutCancel(r.ctx)
	start := time.Now()
	err := d.store.Save(ctx, cp)
	d.metrics.RecordCheckpointSave(string(status), err, time.Since(start).Seconds())
	if err != nil {
		r.log.Error().Err(err).Str("status", string(status)).Msg("Checkpoint save failed")
		return err
	}

	last, _ := cp.LastEnd()
	r.log.Debug().
		Str("status", string(status)).
		Int("segmentsDone", len(cp.SegmentsDone)).
		Float64("lastEnd", last).
		Msg("Checkpoint saved")

	_ = d.publisher.PublishCheckpoint(ctx, cp.JobKey, models.CheckpointEvent{
		EventType:    models.EventCheckpointSaved,
		JobKey:       cp.JobKey,
		RunID:        r.id,
		SourceID:     cp.Source.SourceID,
		Status:       status,
		SegmentsDone: len(cp.SegmentsDone),
		LastEnd:      last,
		Timestamp:    cp.UpdatedAt.UnixMilli(),
	})
	return nil
}

func (r *run) interrupt(res *Result) (*Result, error) {
	r.cp.LastError = ""
	if err := r.save(models.StatusInterrupted); err != nil {
		return res, fmt.Errorf("save on interrupt: %w", err)
	}
	if err := r.lc.Transition(StateInterrupted); err != nil {
		return res, err
	}
	res.State = StateInterrupted
	r.log.Info().Int("segmentsDone", len(r.cp.SegmentsDone)).Msg("Job interrupted, progress saved")
	return res, fmt.Errorf("%w: job %s", ErrInterrupted, r.cp.JobKey)
}

func (r *run) fail(res *Result, cause error) (*Result, error) {
	d := r.d
	d.metrics.RecordEngineError(d.engine.Name(), engineErrorType(cause))
	r.cp.LastError = cause.Error()
	if err := r.save(models.StatusInterrupted); err != nil {
		r.log.Error().Err(err).Msg("Could not save progress after engine failure")
	}
	r.lc.Fail()
	res.State = StateFailed
	return res, fmt.Errorf("%w: %w", ErrEngine, cause)
}

func engineErrorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// complete marks the checkpoint complete, writes the transcript and then
// removes or keeps the checkpoint.
func (r *run) complete(res *Result) (*Result, error) {
	d := r.d
	cp := r.cp
	cp.LastError = ""
	if err := r.save(models.StatusComplete); err != nil {
		return res, err
	}

	tr := transcript.Finalize(cp.SegmentsDone, models.Metadata{
		SourceID:  cp.Source.SourceID,
		Model:     cp.Model,
		Device:    cp.Device,
		Window:    cp.Window,
		Language:  d.opts.Language,
		CreatedAt: d.now().UTC(),
	})

	out := d.opts.OutputPath
	if out == "" {
		out = DefaultOutputPath(cp.Source.Path)
	}
	if err := transcript.Save(out, tr); err != nil {
		return res, err
	}
	if d.opts.SRTPath != "" {
		if err := transcript.SaveSRT(d.opts.SRTPath, tr); err != nil {
			return res, err
		}
	}

	_ = d.publisher.PublishTranscript(context.WithoutCancel(r.ctx), cp.JobKey, models.TranscriptEvent{
		EventType:         models.EventTranscriptFinal,
		JobKey:            cp.JobKey,
		RunID:             r.id,
		SourceID:          cp.Source.SourceID,
		OutputPath:        out,
		SegmentCount:      tr.Metadata.SegmentCount,
		Duration:          tr.Metadata.Duration,
		AverageConfidence: tr.Metadata.AverageConfidence,
		Timestamp:         d.now().UnixMilli(),
	})

	if !d.opts.KeepCheckpoint {
		if err := d.store.Delete(context.WithoutCancel(r.ctx), cp.JobKey); err != nil {
			r.log.Warn().Err(err).Msg("Transcript written but checkpoint not removed")
		}
	}

	if err := r.lc.Transition(StateComplete); err != nil {
		return res, err
	}
	res.State = StateComplete
	res.Transcript = tr
	res.OutputPath = out

	r.log.Info().
		Str("output", out).
		Int("segments", tr.Metadata.SegmentCount).
		Int("produced", r.produced).
		Msg("Job complete")
	return res, nil
}

// DefaultOutputPath replaces the source extension with .json, or appends
// .transcript.json when the source already is a .json file.
func DefaultOutputPath(sourcePath string) string {
	ext := filepath.Ext(sourcePath)
	if ext == ".json" {
		return sourcePath[:len(sourcePath)-len(ext)] + ".transcript.json"
	}
	return strings.TrimSuffix(sourcePath, ext) + ".json"
}

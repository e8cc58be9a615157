// Command transcribe runs one resumable transcription job.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"speech-checkpoint-service/internal/app"
	"speech-checkpoint-service/internal/checkpoint"
	"speech-checkpoint-service/internal/config"
	"speech-checkpoint-service/internal/models"
	"speech-checkpoint-service/internal/observability"
	"speech-checkpoint-service/internal/service/job"
	"speech-checkpoint-service/internal/service/status"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg := config.Load()
	fs := flag.NewFlagSet("transcribe", flag.ContinueOnError)

	resume := fs.Bool("resume", false, "Resume from an existing checkpoint")
	forceRestart := fs.Bool("force-restart", false, "Discard any existing checkpoint and start over")
	interval := fs.Int("interval", cfg.Checkpoint.Interval, "Save a checkpoint every N segments")
	start := fs.Float64("start", 0, "Window start in seconds")
	end := fs.Float64("end", 0, "Window end in seconds (0 = end of source)")
	keep := fs.Bool("keep-checkpoint", cfg.Checkpoint.Keep, "Keep the checkpoint after completion")
	output := fs.String("o", "", "Transcript output path (default: <source>.json)")
	srt := fs.String("srt", "", "Also write a SubRip file")
	statusOnly := fs.Bool("status", false, "Report progress of this job without running it")
	asJSON := fs.Bool("json", false, "Print results as JSON")
	checkpointDir := fs.String("checkpoint-dir", cfg.Checkpoint.Dir, "Checkpoint directory")
	model := fs.String("model", cfg.STT.Model, "Recognition model")
	device := fs.String("device", cfg.STT.Device, "Recognition device")
	language := fs.String("language", cfg.STT.LanguageCode, "Language hint")
	provider := fs.String("provider", cfg.STT.Provider, "Recognition provider (mock, google)")
	metricsAddr := fs.String("metrics-addr", "", "Serve /metrics on this address while running")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] <source>\n", os.Args[0])
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return job.ExitUsage
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return job.ExitUsage
	}
	if *resume && *forceRestart {
		fmt.Fprintln(os.Stderr, "-resume and -force-restart are mutually exclusive")
		return job.ExitUsage
	}
	source := fs.Arg(0)

	var window *models.Window
	if *start > 0 || *end > 0 {
		w, err := models.NewWindow(*start, *end)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return job.ExitUsage
		}
		window = w
	}

	cfg.STT.Provider = *provider
	cfg.STT.Model = *model
	application := app.New("transcribe", cfg)
	if err := application.Start(); err != nil {
		return job.ExitFailure
	}
	defer application.Shutdown()

	store := application.Store(*checkpointDir)
	opts := job.Options{
		Resume:             *resume,
		ForceRestart:       *forceRestart,
		CheckpointInterval: *interval,
		Window:             window,
		KeepCheckpoint:     *keep,
		OutputPath:         *output,
		SRTPath:            *srt,
		Model:              *model,
		Device:             *device,
		Language:           *language,
	}

	ctx := context.Background()
	if *statusOnly {
		return printStatus(ctx, job.NewDriver(store, nil, nil, opts), source, *asJSON)
	}

	engine, err := application.Engine()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return job.ExitUsage
	}
	defer engine.Close()

	publisher := application.Publisher()
	defer publisher.Close()

	if *metricsAddr != "" {
		srv := observability.NewServer(*metricsAddr, nil)
		srv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	driver := job.NewDriver(store, engine, publisher, opts)

	stop := application.OnSignal(func(os.Signal) { driver.RequestStop() })
	defer stop()

	res, err := driver.Run(ctx, source)
	code := job.ExitCode(err)
	if *asJSON {
		printJSON(res, err)
		return code
	}

	switch {
	case err == nil:
		fmt.Printf("Transcript written: %s (%d segments, %s)\n",
			res.OutputPath, res.Transcript.Metadata.SegmentCount,
			status.FormatDuration(res.Transcript.Metadata.Duration))
	case errors.Is(err, job.ErrInterrupted):
		fmt.Fprintf(os.Stderr, "Interrupted; progress saved. Resume with: %s -resume %s\n", os.Args[0], source)
	case errors.Is(err, job.ErrCheckpointExists):
		fmt.Fprintf(os.Stderr, "%v\nUse -resume to continue or -force-restart to discard it.\n", err)
	default:
		fmt.Fprintln(os.Stderr, err)
	}
	return code
}

func printStatus(ctx context.Context, driver *job.Driver, source string, asJSON bool) int {
	cp, err := driver.Status(ctx, source)
	if errors.Is(err, checkpoint.ErrNotFound) {
		fmt.Println("No checkpoint for this job")
		return job.ExitOK
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return job.ExitCode(err)
	}

	now := time.Now()
	snap := []status.Progress{status.Report(cp, now)}
	if asJSON {
		err = status.RenderJSON(os.Stdout, snap, now)
	} else {
		err = status.RenderText(os.Stdout, snap)
	}
	if err != nil {
		return job.ExitFailure
	}
	return job.ExitOK
}

type summary struct {
	JobKey     string  `json:"job_key,omitempty"`
	RunID      string  `json:"run_id,omitempty"`
	State      string  `json:"state"`
	Resumed    bool    `json:"resumed"`
	Produced   int     `json:"produced"`
	OutputPath string  `json:"output_path,omitempty"`
	Segments   int     `json:"segments,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	Error      string  `json:"error,omitempty"`
}

func printJSON(res *job.Result, err error) {
	s := summary{State: job.StateFailed.String()}
	if res != nil {
		s.JobKey = res.JobKey
		s.RunID = res.RunID
		s.State = res.State.String()
		s.Resumed = res.Resumed
		s.Produced = res.Produced
		s.OutputPath = res.OutputPath
		if res.Transcript != nil {
			s.Segments = res.Transcript.Metadata.SegmentCount
			s.Duration = res.Transcript.Metadata.Duration
		}
	}
	if err != nil {
		s.Error = err.Error()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(s)
}

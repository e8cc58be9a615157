// Command merge combines partial transcripts of one source into a single
// transcript.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"speech-checkpoint-service/internal/app"
	"speech-checkpoint-service/internal/config"
	"speech-checkpoint-service/internal/models"
	"speech-checkpoint-service/internal/service/merge"
	"speech-checkpoint-service/internal/service/status"
	"speech-checkpoint-service/internal/transcript"
)

// Exit codes.
const (
	exitOK         = 0
	exitFailure    = 1
	exitUsage      = 2
	exitValidation = 5
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	output := flag.String("o", "", "Merged transcript output path (required)")
	srt := flag.String("srt", "", "Also write a SubRip file")
	force := flag.Bool("force", false, "Merge despite gap or overlap warnings")
	gap := flag.Duration("gap-threshold", cfg.Merge.GapThreshold, "Largest tolerated gap or overlap between parts")
	pattern := flag.String("pattern", "", "Glob selecting input transcripts")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s -o merged.json [flags] [inputs...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *output == "" {
		flag.Usage()
		return exitUsage
	}
	inputs, err := collectInputs(flag.Args(), *pattern)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	if len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "no input transcripts")
		return exitUsage
	}

	application := app.New("merge", cfg)
	if err := application.Start(); err != nil {
		return exitFailure
	}
	defer application.Shutdown()
	log := application.Logger

	parts := make([]models.Transcript, 0, len(inputs))
	for _, path := range inputs {
		t, err := transcript.LoadPart(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitFailure
		}
		log.Info().
			Str("path", path).
			Int("segments", len(t.Segments)).
			Float64("duration", t.Metadata.Duration).
			Msg("Loaded transcript")
		parts = append(parts, *t)
	}

	merged, err := merge.New(*gap, *force).Merge(parts)
	if err != nil {
		var verr *merge.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintln(os.Stderr, "Merge refused:")
			for _, w := range verr.Warnings {
				fmt.Fprintf(os.Stderr, "  - %s\n", describe(w, inputs))
			}
			fmt.Fprintln(os.Stderr, "Use -force to merge anyway.")
			return exitValidation
		}
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}

	if err := transcript.Save(*output, merged); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	if *srt != "" {
		if err := transcript.SaveSRT(*srt, merged); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitFailure
		}
	}

	fmt.Printf("Merged %d transcripts into %s: %d segments, %s, %d words\n",
		len(inputs), *output, merged.Metadata.SegmentCount,
		status.FormatDuration(merged.Metadata.Duration), merged.Metadata.WordCount)
	return exitOK
}

// collectInputs returns the explicit inputs followed by the sorted pattern
// matches, without duplicates.
func collectInputs(args []string, pattern string) ([]string, error) {
	inputs := append([]string{}, args...)
	if pattern != "" {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		sort.Strings(matches)
		inputs = append(inputs, matches...)
	}

	seen := make(map[string]bool, len(inputs))
	out := inputs[:0]
	for _, in := range inputs {
		if seen[in] {
			continue
		}
		seen[in] = true
		out = append(out, in)
	}
	return out, nil
}

func describe(w merge.Warning, inputs []string) string {
	name := func(i int) string { return filepath.Base(inputs[i]) }
	switch w.Kind {
	case merge.KindEmpty:
		return fmt.Sprintf("%s has no segments", name(w.PrevIndex))
	case merge.KindOverlap:
		return fmt.Sprintf("overlap of %s: %s ends at %.3fs, %s starts at %.3fs",
			status.FormatDuration(-w.Delta), name(w.PrevIndex), w.PrevEnd, name(w.NextIndex), w.NextStart)
	default:
		return fmt.Sprintf("gap of %s: %s ends at %.3fs, %s starts at %.3fs",
			status.FormatDuration(w.Delta), name(w.PrevIndex), w.PrevEnd, name(w.NextIndex), w.NextStart)
	}
}

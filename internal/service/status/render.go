package status

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

const barWidth = 50

// RenderText writes a human-readable report.
func RenderText(w io.Writer, snapshot []Progress) error {
	if len(snapshot) == 0 {
		_, err := fmt.Fprintln(w, "No active transcriptions found")
		return err
	}

	var b strings.Builder
	rule := strings.Repeat("=", 80)
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "TRANSCRIPTION STATUS")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Active transcriptions: %d\n\n", len(snapshot))

	for i, p := range snapshot {
		if p.Error != "" {
			fmt.Fprintf(&b, "[%d] %s\n    Error: %s\n\n", i+1, p.JobKey, p.Error)
			continue
		}

		fmt.Fprintf(&b, "[%d] %s\n", i+1, p.Source)
		fmt.Fprintf(&b, "    Job: %s\n", p.JobKey)
		fmt.Fprintf(&b, "    Model: %s (%s)\n", p.Model, p.Device)
		if p.Window != nil {
			end := "end"
			if p.Window.End != nil {
				end = FormatDuration(*p.Window.End)
			}
			fmt.Fprintf(&b, "    Time range: %s - %s\n", FormatDuration(p.Window.Start), end)
		}
		status := string(p.Status)
		if p.Removed {
			status += " (checkpoint removed)"
		}
		fmt.Fprintf(&b, "    Status: %s\n\n", status)

		if p.Percent != nil {
			fmt.Fprintf(&b, "    Progress: %d segments (%.1f%%)\n", p.SegmentsDone, *p.Percent)
			fmt.Fprintf(&b, "    [%s]\n", bar(*p.Percent))
		} else {
			fmt.Fprintf(&b, "    Progress: %d segments (total unknown)\n", p.SegmentsDone)
		}
		fmt.Fprintf(&b, "    Processed: %s of audio\n\n", FormatDuration(p.ProcessedSeconds))

		fmt.Fprintf(&b, "    Elapsed: %s\n", FormatDuration(p.Elapsed))
		if p.Speed != nil {
			fmt.Fprintf(&b, "    Speed: %.1fx realtime\n", *p.Speed)
		} else {
			fmt.Fprintln(&b, "    Speed: unknown")
		}
		if p.ETA != nil {
			fmt.Fprintf(&b, "    ETA: %s\n", FormatDuration(*p.ETA))
		} else {
			fmt.Fprintln(&b, "    ETA: unknown")
		}
		if p.LastError != "" {
			fmt.Fprintf(&b, "    Last error: %s\n", p.LastError)
		}
		if !p.UpdatedAt.IsZero() {
			fmt.Fprintf(&b, "    Last updated: %s\n", p.UpdatedAt.Format(time.RFC3339))
		}
		fmt.Fprintln(&b)
	}
	fmt.Fprintln(&b, rule)

	_, err := io.WriteString(w, b.String())
	return err
}

type report struct {
	ActiveTranscriptions int        `json:"active_transcriptions"`
	Timestamp            time.Time  `json:"timestamp"`
	Statuses             []Progress `json:"statuses"`
}

// RenderJSON writes the snapshot as one indented JSON document.
func RenderJSON(w io.Writer, snapshot []Progress, now time.Time) error {
	if snapshot == nil {
		snapshot = []Progress{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report{
		ActiveTranscriptions: len(snapshot),
		Timestamp:            now.UTC(),
		Statuses:             snapshot,
	})
}

// FormatDuration renders seconds as "42s", "3m 5s" or "1h 2m".
func FormatDuration(seconds float64) string {
	s := int(seconds)
	switch {
	case s < 60:
		return fmt.Sprintf("%ds", s)
	case s < 3600:
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	default:
		return fmt.Sprintf("%dh %dm", s/3600, (s%3600)/60)
	}
}

func bar(pct float64) string {
	filled := int(barWidth * pct / 100)
	if filled < 0 {
		filled = 0
	}
	if filled > barWidth {
		filled = barWidth
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}

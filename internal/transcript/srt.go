package transcript

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"

	"speech-checkpoint-service/internal/atomicfile"
	"speech-checkpoint-service/internal/models"
)

// WriteSRT renders segments as SubRip cues numbered from 1.
func WriteSRT(w io.Writer, t *models.Transcript) error {
	for i, seg := range t.Segments {
		if _, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			i+1, srtTime(seg.Start), srtTime(seg.End), strings.TrimSpace(seg.Text)); err != nil {
			return err
		}
	}
	return nil
}

// SaveSRT writes the SubRip rendering of t atomically.
func SaveSRT(path string, t *models.Transcript) error {
	var buf bytes.Buffer
	if err := WriteSRT(&buf, t); err != nil {
		return err
	}
	return atomicfile.WriteFile(path, buf.Bytes(), 0o644)
}

// srtTime formats seconds as HH:MM:SS,mmm.
func srtTime(seconds float64) string {
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

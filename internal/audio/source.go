// Package audio identifies source recordings and reads PCM windows out of
// WAV files for the recognition engines.
package audio

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"speech-checkpoint-service/internal/models"
)

// ErrSourceUnavailable is returned when a source cannot be opened or read.
var ErrSourceUnavailable = errors.New("source unavailable")

// identityPrefix is how much of the content goes into the source id.
const identityPrefix = 1 << 20

// Probe opens the source, derives its stable id and, for WAV files, its
// duration. The id depends on content and size only, never on the name.
func Probe(path string) (models.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Source{}, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return models.Source{}, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	if info.IsDir() {
		return models.Source{}, fmt.Errorf("%w: %s is a directory", ErrSourceUnavailable, path)
	}

	h := sha256.New()
	if _, err := io.CopyN(h, f, identityPrefix); err != nil && !errors.Is(err, io.EOF) {
		return models.Source{}, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(info.Size()))
	h.Write(size[:])

	src := models.Source{
		Path:     path,
		SourceID: hex.EncodeToString(h.Sum(nil))[:16],
		Size:     info.Size(),
	}

	if _, err := f.Seek(0, io.SeekStart); err == nil {
		if hdr, err := ReadHeader(f); err == nil {
			d := hdr.Duration()
			src.Duration = &d
		}
	}

	return src, nil
}

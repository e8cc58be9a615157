package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// ErrNotWAV is returned for sources that are not PCM WAV files.
var ErrNotWAV = errors.New("not a PCM WAV file")

// Header is the subset of a WAV header needed to address PCM data.
type Header struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	BitsPerSample uint16
	DataOffset    int64
	DataSize      int64
}

// BlockAlign is the number of bytes per sample frame.
func (h Header) BlockAlign() int64 {
	return int64(h.NumChannels) * int64(h.BitsPerSample) / 8
}

// ByteRate is the number of data bytes per second of audio.
func (h Header) ByteRate() int64 {
	return int64(h.SampleRate) * h.BlockAlign()
}

// Duration returns the length of the data chunk in seconds.
func (h Header) Duration() float64 {
	if h.ByteRate() == 0 {
		return 0
	}
	return float64(h.DataSize) / float64(h.ByteRate())
}

// offset converts seconds to a frame-aligned byte offset into the data chunk.
func (h Header) offset(seconds float64) int64 {
	if seconds <= 0 {
		return 0
	}
	frames := int64(math.Floor(seconds * float64(h.SampleRate)))
	off := frames * h.BlockAlign()
	if off > h.DataSize {
		return h.DataSize
	}
	return off
}

// ReadHeader walks the RIFF chunks until the data chunk and returns the
// format description plus the data location.
func ReadHeader(r io.ReadSeeker) (Header, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Header{}, ErrNotWAV
	}

	var hdr Header
	var haveFmt bool
	pos := int64(12)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return Header{}, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		pos += 8

		switch id {
		case "fmt ":
			if size < 16 {
				return Header{}, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			buf := make([]byte, size)
			if _, err := io.ReadFull(r, buf); err != nil {
				return Header{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
			}
			hdr.AudioFormat = binary.LittleEndian.Uint16(buf[0:2])
			hdr.NumChannels = binary.LittleEndian.Uint16(buf[2:4])
			hdr.SampleRate = binary.LittleEndian.Uint32(buf[4:8])
			hdr.BitsPerSample = binary.LittleEndian.Uint16(buf[14:16])
			haveFmt = true
		case "data":
			if !haveFmt {
				return Header{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrNotWAV)
			}
			hdr.DataOffset = pos
			hdr.DataSize = size
			if hdr.AudioFormat != 1 || hdr.BlockAlign() == 0 {
				return Header{}, fmt.Errorf("%w: unsupported format %d", ErrNotWAV, hdr.AudioFormat)
			}
			return hdr, nil
		default:
			if _, err := r.Seek(size, io.SeekCurrent); err != nil {
				return Header{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
			}
		}
		pos += size
		// chunks are word aligned
		if size%2 == 1 {
			if _, err := r.Seek(1, io.SeekCurrent); err != nil {
				return Header{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
			}
			pos++
		}
	}
}

// Slice reads the PCM data between from and to seconds. to <= 0 reads to the
// end of the file.
func Slice(path string, from, to float64) ([]byte, Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Header{}, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	defer f.Close()

	hdr, err := ReadHeader(f)
	if err != nil {
		return nil, Header{}, err
	}

	start := hdr.offset(from)
	end := hdr.DataSize
	if to > 0 {
		end = hdr.offset(to)
	}
	if end <= start {
		return nil, hdr, nil
	}

	buf := make([]byte, end-start)
	if _, err := f.ReadAt(buf, hdr.DataOffset+start); err != nil && !errors.Is(err, io.EOF) {
		return nil, Header{}, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	return buf, hdr, nil
}

// WriteWAV writes a minimal 16-bit PCM WAV file. Used to build fixtures.
func WriteWAV(w io.Writer, sampleRate uint32, channels uint16, pcm []byte) error {
	blockAlign := channels * 2
	hdr := make([]byte, 44)
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+len(pcm)))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1)
	binary.LittleEndian.PutUint16(hdr[22:24], channels)
	binary.LittleEndian.PutUint32(hdr[24:28], sampleRate)
	binary.LittleEndian.PutUint32(hdr[28:32], sampleRate*uint32(blockAlign))
	binary.LittleEndian.PutUint16(hdr[32:34], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], 16)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(len(pcm)))

	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}

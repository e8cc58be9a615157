// Package google provides a Google Cloud Speech-to-Text engine.
package google

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"

	"speech-checkpoint-service/internal/audio"
	"speech-checkpoint-service/internal/models"
	"speech-checkpoint-service/internal/observability/logging"
	"speech-checkpoint-service/internal/service/stt"
)

// maxChunkSeconds is the synchronous Recognize limit for inline audio.
const maxChunkSeconds = 60

// Config holds Google Speech-to-Text recognition settings.
type Config struct {
	LanguageCode  string
	SampleRateHz  int32
	AudioEncoding string
	Model         string
	ChunkSeconds  float64
	Punctuation   bool
}

// DefaultConfig returns the default recognition settings.
func DefaultConfig() Config {
	return Config{
		LanguageCode:  "en-US",
		SampleRateHz:  8000,
		AudioEncoding: "LINEAR16",
		ChunkSeconds:  50,
		Punctuation:   true,
	}
}

// recognizer is the part of *speech.Client the engine uses.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// Adapter implements stt.Engine using Google Cloud Speech-to-Text.
// The requested range is sent as consecutive chunks, one blocking Recognize
// call per chunk, so a stop request loses at most one chunk of work.
type Adapter struct {
	cfg    Config
	client recognizer
	log    zerolog.Logger
}

// New creates a new Google engine. The client is created by Load.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(cfg Config) *Adapter {
	if cfg.ChunkSeconds <= 0 || cfg.ChunkSeconds > maxChunkSeconds {
		cfg.ChunkSeconds = DefaultConfig().ChunkSeconds
	}
	return &Adapter{
		cfg: cfg,
		log: logging.WithComponent("stt.google"),
	}
}

// Name returns the provider name.
func (a *Adapter) Name() string { return "google" }

// Load creates the Speech client.
func (a *Adapter) Load(ctx context.Context) error {
	if a.client != nil {
		return nil
	}
	c, err := speech.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("google: create speech client: %w", err)
	}
	a.client = c
	return nil
}

// Transcribe recognizes [req.From, req.To) of a PCM WAV source.
func (a *Adapter) Transcribe(ctx context.Context, req stt.Request, cb stt.Callback) error {
	if a.client == nil {
		return errors.New("google: engine not loaded")
	}

	end := req.To
	if end <= 0 {
		if req.Source.Duration == nil {
			return fmt.Errorf("google: %s: %w", req.Source.Path, audio.ErrNotWAV)
		}
		end = *req.Source.Duration
	}

	for chunkStart := req.From; chunkStart < end; chunkStart += a.cfg.ChunkSeconds {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunkEnd := math.Min(chunkStart+a.cfg.ChunkSeconds, end)

		pcm, hdr, err := audio.Slice(req.Source.Path, chunkStart, chunkEnd)
		if err != nil {
			return fmt.Errorf("google: read %s: %w", req.Source.Path, err)
		}
		if len(pcm) == 0 {
			return nil
		}

		resp, err := a.client.Recognize(ctx, a.request(req, hdr, pcm))
		if err != nil {
			return fmt.Errorf("google: recognize %.1f-%.1f: %w", chunkStart, chunkEnd, err)
		}

		segs := segmentsFromResponse(resp, chunkStart)
		a.log.Debug().
			Float64("chunkStart", chunkStart).
			Float64("chunkEnd", chunkEnd).
			Int("segments", len(segs)).
			Msg("chunk recognized")

		for _, seg := range segs {
			if err := cb.OnSegment(seg); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close releases the Speech client.
func (a *Adapter) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

func (a *Adapter) request(req stt.Request, hdr audio.Header, pcm []byte) *speechpb.RecognizeRequest {
	lang := a.cfg.LanguageCode
	if req.Language != "" {
		lang = req.Language
	}
	rate := a.cfg.SampleRateHz
	if hdr.SampleRate > 0 {
		rate = int32(hdr.SampleRate)
	}
	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(a.cfg.AudioEncoding),
			SampleRateHertz:            rate,
			AudioChannelCount:          int32(hdr.NumChannels),
			LanguageCode:               lang,
			Model:                      a.cfg.Model,
			EnableWordTimeOffsets:      true,
			EnableAutomaticPunctuation: a.cfg.Punctuation,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcm},
		},
	}
}

// segmentsFromResponse maps each result to one segment. Times in the
// response are relative to the chunk and are shifted by offset.
func segmentsFromResponse(resp *speechpb.RecognizeResponse, offset float64) []models.Segment {
	var segs []models.Segment
	var prevEnd float64
	for _, r := range resp.GetResults() {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			continue
		}

		start := prevEnd
		if len(alt.Words) > 0 && alt.Words[0].StartTime != nil {
			start = alt.Words[0].StartTime.AsDuration().Seconds()
		}
		end := start
		if r.ResultEndTime != nil {
			end = r.ResultEndTime.AsDuration().Seconds()
		} else if n := len(alt.Words); n > 0 && alt.Words[n-1].EndTime != nil {
			end = alt.Words[n-1].EndTime.AsDuration().Seconds()
		}
		if end <= start {
			continue
		}
		prevEnd = end

		seg := models.Segment{
			Start: offset + start,
			End:   offset + end,
			Text:  text,
		}
		if alt.Confidence > 0 {
			c := float64(alt.Confidence)
			seg.Confidence = &c
		}
		segs = append(segs, seg)
	}
	return segs
}

// parseAudioEncoding converts string encoding to Google's enum.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

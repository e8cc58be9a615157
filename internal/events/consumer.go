package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"speech-checkpoint-service/internal/models"
)

// Event is one decoded message from either topic. Exactly one of Checkpoint
// and Transcript is set.
type Event struct {
	Topic      string
	Key        string
	Checkpoint *models.CheckpointEvent
	Transcript *models.TranscriptEvent
}

// String renders the event as one log line.
func (e Event) String() string {
	switch {
	case e.Checkpoint != nil:
		c := e.Checkpoint
		return fmt.Sprintf("checkpoint job=%s run=%s status=%s segments=%d last_end=%.3f",
			c.JobKey, truncate(c.RunID, 8), c.Status, c.SegmentsDone, c.LastEnd)
	case e.Transcript != nil:
		t := e.Transcript
		return fmt.Sprintf("transcript job=%s run=%s segments=%d duration=%.3f output=%s",
			t.JobKey, truncate(t.RunID, 8), t.SegmentCount, t.Duration, t.OutputPath)
	default:
		return "empty event on " + e.Topic
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// Decode turns a Kafka message written by Publisher into an Event, using the
// eventType header to pick the payload type.
func Decode(msg kafka.Message) (Event, error) {
	ev := Event{Topic: msg.Topic, Key: string(msg.Key)}
	var kind string
	for _, h := range msg.Headers {
		if h.Key == "eventType" {
			kind = string(h.Value)
		}
	}

	switch kind {
	case "checkpoint":
		var c models.CheckpointEvent
		if err := json.Unmarshal(msg.Value, &c); err != nil {
			return ev, fmt.Errorf("decode checkpoint event: %w", err)
		}
		ev.Checkpoint = &c
	case "transcript":
		var t models.TranscriptEvent
		if err := json.Unmarshal(msg.Value, &t); err != nil {
			return ev, fmt.Errorf("decode transcript event: %w", err)
		}
		ev.Transcript = &t
	default:
		return ev, fmt.Errorf("unknown event type %q on %s", kind, msg.Topic)
	}
	return ev, nil
}

// Tail reads both topics from partition 0, starting at since, and calls fn
// for every decoded event until ctx is cancelled. fn may be called from
// several goroutines at once.
func Tail(ctx context.Context, cfg *Config, since time.Time, fn func(Event)) {
	var wg sync.WaitGroup
	for _, topic := range []string{cfg.TopicCheckpoint, cfg.TopicTranscript} {
		if topic == "" {
			continue
		}
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			consume(ctx, cfg.Brokers, topic, since, fn)
		}(topic)
	}
	wg.Wait()
}

func consume(ctx context.Context, brokers []string, topic string, since time.Time, fn func(Event)) {
	// Partition reader without consumer group
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, since); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Could not seek, reading from the start")
	}
	log.Info().Str("topic", topic).Time("since", since).Msg("Consuming events")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("topic", topic).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		ev, err := Decode(msg)
		if err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Skipping message")
			continue
		}
		fn(ev)
	}
}

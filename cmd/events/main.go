// Command events prints checkpoint and transcript events from Kafka as they
// arrive.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"speech-checkpoint-service/internal/app"
	"speech-checkpoint-service/internal/config"
	"speech-checkpoint-service/internal/events"
)

func main() {
	cfg := config.Load()

	brokers := flag.String("brokers", strings.Join(cfg.Kafka.Brokers, ","), "Kafka brokers (comma-separated)")
	topicCheckpoint := flag.String("topic-checkpoint", cfg.Kafka.TopicCheckpoint, "Checkpoint event topic")
	topicTranscript := flag.String("topic-transcript", cfg.Kafka.TopicTranscript, "Transcript event topic")
	since := flag.Duration("since", time.Hour, "Replay events this far back")
	flag.Parse()

	if *brokers == "" {
		fmt.Fprintln(os.Stderr, "no Kafka brokers configured")
		os.Exit(2)
	}

	application := app.New("events", cfg)
	application.Start()
	defer application.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := application.OnSignal(func(os.Signal) { cancel() })
	defer stop()

	var mu sync.Mutex
	events.Tail(ctx, &events.Config{
		Brokers:         strings.Split(*brokers, ","),
		TopicCheckpoint: *topicCheckpoint,
		TopicTranscript: *topicTranscript,
	}, time.Now().Add(-*since), func(ev events.Event) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Println(ev.String())
	})
}

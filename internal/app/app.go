package app

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"speech-checkpoint-service/internal/checkpoint"
	"speech-checkpoint-service/internal/config"
	"speech-checkpoint-service/internal/events"
	"speech-checkpoint-service/internal/observability/logging"
	"speech-checkpoint-service/internal/service/stt"
	"speech-checkpoint-service/internal/service/stt/google"
	"speech-checkpoint-service/internal/service/stt/mock"
)

// Application holds process-wide state for one command.
type Application struct {
	Name        string
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
}

// New constructs a new Application from the provided configuration.
func New(name string, cfg *config.Configuration) *Application {
	a := &Application{
		Name: name,
		Cfg:  cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Debug().Msg("Application created")
	return a
}

// setupLogger configures zerolog for the process. ZEROLOG_LOG_LEVEL wins over
// the configured level and ENV=dev selects console output.
func (a *Application) setupLogger() {
	lc := logging.DefaultConfig()
	lc.Level = a.Cfg.Observability.LogLevel
	lc.Format = a.Cfg.Observability.LogFormat
	if envLevel := os.Getenv("ZEROLOG_LOG_LEVEL"); envLevel != "" {
		lc.Level = strings.ToLower(envLevel)
	}
	if os.Getenv("ENV") == "dev" {
		lc.Format = "console"
	}
	logging.Init(lc)

	a.Logger = log.With().
		Str("service", a.Name).
		Str("component", "application").
		Logger()
	log.Logger = log.With().Str("service", a.Name).Logger()

	a.Logger.Debug().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Debug().
		Time("startupTime", a.StartupTime).
		Msg("Starting")

	return nil
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Debug().
		Dur("uptime", time.Since(a.StartupTime)).
		Msg("Shutting down")
}

// Store returns the checkpoint store rooted at dir, or at the configured
// directory when dir is empty.
func (a *Application) Store(dir string) *checkpoint.FileStore {
	if dir == "" {
		dir = a.Cfg.Checkpoint.Dir
	}
	return checkpoint.NewFileStore(dir)
}

// Publisher returns the event publisher for the configured Kafka cluster.
func (a *Application) Publisher() *events.Publisher {
	return events.New(&events.Config{
		Enabled:         a.Cfg.Kafka.Enabled,
		Brokers:         a.Cfg.Kafka.Brokers,
		TopicCheckpoint: a.Cfg.Kafka.TopicCheckpoint,
		TopicTranscript: a.Cfg.Kafka.TopicTranscript,
		Principal:       a.Cfg.Kafka.Principal,
		PublishTimeout:  a.Cfg.Kafka.PublishTimeout,
	})
}

// Engine builds the configured recognition engine. The engine is not loaded.
func (a *Application) Engine() (stt.Engine, error) {
	return NewEngine(a.Cfg.STT)
}

// NewEngine builds a recognition engine for the given provider settings.
func NewEngine(cfg config.STTConfig) (stt.Engine, error) {
	switch cfg.Provider {
	case "", "mock":
		return mock.New(mock.DefaultConfig()), nil
	case "google":
		gc := google.DefaultConfig()
		gc.LanguageCode = cfg.LanguageCode
		gc.SampleRateHz = int32(cfg.SampleRateHz)
		gc.AudioEncoding = cfg.AudioEncoding
		gc.ChunkSeconds = cfg.ChunkDuration.Seconds()
		gc.Punctuation = cfg.Punctuation
		if cfg.Model != "default" {
			gc.Model = cfg.Model
		}
		return google.New(gc), nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
	}
}

// OnSignal calls fn once on the first SIGINT or SIGTERM. Signals are released
// back to the default handler before fn runs, so a second one terminates the
// process. The returned function stops listening.
func (a *Application) OnSignal(fn func(os.Signal)) (stop func()) {
	sig := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sig:
			signal.Stop(sig)
			a.Logger.Info().Str("signal", s.String()).Msg("Shutdown signal received")
			fn(s)
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sig)
		close(done)
	}
}

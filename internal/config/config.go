package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Configuration holds the settings shared by all commands.
// Values come from defaults, then the YAML file named by CONFIG_FILE, then
// environment variables.
type Configuration struct {
	Service       ServiceConfig       `yaml:"service"`
	Checkpoint    CheckpointConfig    `yaml:"checkpoint"`
	Merge         MergeConfig         `yaml:"merge"`
	Status        StatusConfig        `yaml:"status"`
	STT           STTConfig           `yaml:"stt"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServiceConfig struct {
	Principal string `yaml:"principal"`
}

type CheckpointConfig struct {
	Dir      string `yaml:"dir"`
	Interval int    `yaml:"interval"`
	Keep     bool   `yaml:"keep"`
}

type MergeConfig struct {
	GapThreshold time.Duration `yaml:"gap_threshold"`
}

type StatusConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	HTTPAddr     string        `yaml:"http_addr"`
	GRPCPort     string        `yaml:"grpc_port"`
}

type STTConfig struct {
	Provider      string        `yaml:"provider"` // mock, google
	Model         string        `yaml:"model"`
	Device        string        `yaml:"device"`
	LanguageCode  string        `yaml:"language_code"`
	SampleRateHz  int           `yaml:"sample_rate_hz"`
	AudioEncoding string        `yaml:"audio_encoding"`
	ChunkDuration time.Duration `yaml:"chunk_duration"`
	Punctuation   bool          `yaml:"punctuation"`
}

type KafkaConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Brokers         []string      `yaml:"brokers"`
	TopicCheckpoint string        `yaml:"topic_checkpoint"`
	TopicTranscript string        `yaml:"topic_transcript"`
	Principal       string        `yaml:"principal"`
	PublishTimeout  time.Duration `yaml:"publish_timeout"`
}

type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the built-in configuration.
func Default() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Principal: "svc-speech-checkpoint",
		},
		Checkpoint: CheckpointConfig{
			Dir:      "checkpoints",
			Interval: 10,
		},
		Merge: MergeConfig{
			GapThreshold: 5 * time.Second,
		},
		Status: StatusConfig{
			PollInterval: 5 * time.Second,
			HTTPAddr:     ":8080",
			GRPCPort:     "50051",
		},
		STT: STTConfig{
			Provider:      "mock",
			Model:         "default",
			Device:        "cpu",
			LanguageCode:  "en-US",
			SampleRateHz:  8000,
			AudioEncoding: "LINEAR16",
			ChunkDuration: 50 * time.Second,
			Punctuation:   true,
		},
		Kafka: KafkaConfig{
			TopicCheckpoint: "transcription.checkpoint",
			TopicTranscript: "transcription.transcript",
			PublishTimeout:  2 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsAddr: ":9090",
		},
	}
}

// Load builds the configuration. An unreadable or invalid CONFIG_FILE is
// logged and skipped.
func Load() *Configuration {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Ignoring config file")
		}
	}

	cfg.applyEnv()
	return cfg
}

// LoadFile builds the configuration from defaults and the given YAML file,
// without environment overrides.
func LoadFile(path string) (*Configuration, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Configuration) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, c)
}

func (c *Configuration) applyEnv() {
	c.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", c.Service.Principal)

	c.Checkpoint.Dir = envOrDefault("CHECKPOINT_DIR", c.Checkpoint.Dir)
	c.Checkpoint.Interval = envOrDefaultInt("CHECKPOINT_INTERVAL", c.Checkpoint.Interval)
	c.Checkpoint.Keep = envOrDefaultBool("CHECKPOINT_KEEP", c.Checkpoint.Keep)

	c.Merge.GapThreshold = envOrDefaultDuration("MERGE_GAP_THRESHOLD", c.Merge.GapThreshold)

	c.Status.PollInterval = envOrDefaultDuration("STATUS_POLL_INTERVAL", c.Status.PollInterval)
	c.Status.HTTPAddr = envOrDefault("STATUS_HTTP_ADDR", c.Status.HTTPAddr)
	c.Status.GRPCPort = envOrDefault("GRPC_PORT", c.Status.GRPCPort)

	c.STT.Provider = envOrDefault("STT_PROVIDER", c.STT.Provider)
	c.STT.Model = envOrDefault("STT_MODEL", c.STT.Model)
	c.STT.Device = envOrDefault("STT_DEVICE", c.STT.Device)
	c.STT.LanguageCode = envOrDefault("STT_LANGUAGE_CODE", c.STT.LanguageCode)
	c.STT.SampleRateHz = envOrDefaultInt("STT_SAMPLE_RATE_HZ", c.STT.SampleRateHz)
	c.STT.AudioEncoding = envOrDefault("STT_AUDIO_ENCODING", c.STT.AudioEncoding)
	c.STT.ChunkDuration = envOrDefaultDuration("STT_CHUNK_DURATION", c.STT.ChunkDuration)
	c.STT.Punctuation = envOrDefaultBool("STT_PUNCTUATION", c.STT.Punctuation)

	c.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", c.Kafka.Enabled)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}
	c.Kafka.TopicCheckpoint = envOrDefault("KAFKA_TOPIC_CHECKPOINT", c.Kafka.TopicCheckpoint)
	c.Kafka.TopicTranscript = envOrDefault("KAFKA_TOPIC_TRANSCRIPT", c.Kafka.TopicTranscript)
	c.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", c.Kafka.Principal)
	c.Kafka.PublishTimeout = envOrDefaultDuration("KAFKA_PUBLISH_TIMEOUT", c.Kafka.PublishTimeout)
	if c.Kafka.Principal == "" {
		c.Kafka.Principal = c.Service.Principal
	}

	c.Observability.LogLevel = envOrDefault("LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = envOrDefault("LOG_FORMAT", c.Observability.LogFormat)
	c.Observability.MetricsAddr = envOrDefault("METRICS_ADDR", c.Observability.MetricsAddr)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

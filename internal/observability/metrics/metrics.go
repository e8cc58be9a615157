// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speech_checkpoint"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Job metrics
	JobsStarted prometheus.Counter
	JobsActive  prometheus.Gauge
	JobsEnded   *prometheus.CounterVec
	JobDuration prometheus.Histogram

	// Segment metrics
	SegmentsProduced prometheus.Counter
	SegmentsSkipped  prometheus.Counter

	// Checkpoint metrics
	CheckpointSaves       *prometheus.CounterVec
	CheckpointSaveErrors  prometheus.Counter
	CheckpointSaveLatency prometheus.Histogram
	CheckpointLoadErrors  *prometheus.CounterVec

	// Engine metrics
	EngineLatency *prometheus.HistogramVec
	EngineErrors  *prometheus.CounterVec

	// Merge metrics
	MergesTotal   *prometheus.CounterVec
	MergeWarnings *prometheus.CounterVec

	// Status metrics
	StatusPolls prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Job metrics
		JobsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Total number of transcription job runs started",
		}),
		JobsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Number of job runs currently processing",
		}),
		JobsEnded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_ended_total",
			Help:      "Total number of job runs by terminal state",
		}, []string{"state"}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of job runs in seconds",
			Buckets:   []float64{1, 10, 30, 60, 300, 900, 1800, 3600, 7200},
		}),

		// Segment metrics
		SegmentsProduced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_produced_total",
			Help:      "Total number of segments appended to checkpoints",
		}),
		SegmentsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_skipped_total",
			Help:      "Segments dropped because they were already covered or past the window",
		}),

		// Checkpoint metrics
		CheckpointSaves: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_saves_total",
			Help:      "Total number of checkpoint saves by saved status",
		}, []string{"status"}),
		CheckpointSaveErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_save_errors_total",
			Help:      "Total number of failed checkpoint saves",
		}),
		CheckpointSaveLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_save_latency_seconds",
			Help:      "Checkpoint save latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		CheckpointLoadErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_load_errors_total",
			Help:      "Total number of checkpoint load failures",
		}, []string{"reason"}),

		// Engine metrics
		EngineLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_latency_seconds",
			Help:      "Recognition engine call latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}, []string{"provider"}),
		EngineErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_errors_total",
			Help:      "Total number of recognition engine errors",
		}, []string{"provider", "error_type"}),

		// Merge metrics
		MergesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "Total number of merge attempts by result",
		}, []string{"result"}),
		MergeWarnings: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_warnings_total",
			Help:      "Total number of boundary warnings raised by merges",
		}, []string{"kind"}),

		// Status metrics
		StatusPolls: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_polls_total",
			Help:      "Total number of checkpoint store polls by the status reporter",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordJobStart records a job run starting.
func (m *Metrics) RecordJobStart() {
	m.JobsStarted.Inc()
	m.JobsActive.Inc()
}

// RecordJobEnd records a job run reaching a terminal state.
func (m *Metrics) RecordJobEnd(state string, durationSeconds float64) {
	m.JobsActive.Dec()
	m.JobDuration.Observe(durationSeconds)
	m.JobsEnded.WithLabelValues(state).Inc()
}

// RecordSegmentProduced records a segment appended to a checkpoint.
func (m *Metrics) RecordSegmentProduced() {
	m.SegmentsProduced.Inc()
}

// RecordSegmentSkipped records a segment the driver ignored.
func (m *Metrics) RecordSegmentSkipped() {
	m.SegmentsSkipped.Inc()
}

// RecordCheckpointSave records a checkpoint save attempt.
func (m *Metrics) RecordCheckpointSave(status string, err error, latencySeconds float64) {
	m.CheckpointSaveLatency.Observe(latencySeconds)
	if err != nil {
		m.CheckpointSaveErrors.Inc()
		return
	}
	m.CheckpointSaves.WithLabelValues(status).Inc()
}

// RecordCheckpointLoadError records a failed checkpoint load.
func (m *Metrics) RecordCheckpointLoadError(reason string) {
	m.CheckpointLoadErrors.WithLabelValues(reason).Inc()
}

// RecordEngineCall records a recognition engine call.
func (m *Metrics) RecordEngineCall(provider string, latencySeconds float64) {
	m.EngineLatency.WithLabelValues(provider).Observe(latencySeconds)
}

// RecordEngineError records a recognition engine error.
func (m *Metrics) RecordEngineError(provider, errorType string) {
	m.EngineErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordMerge records a merge attempt and its warnings.
func (m *Metrics) RecordMerge(result string, warningKinds []string) {
	m.MergesTotal.WithLabelValues(result).Inc()
	for _, kind := range warningKinds {
		m.MergeWarnings.WithLabelValues(kind).Inc()
	}
}

// RecordStatusPoll records one status reporter pass over the store.
func (m *Metrics) RecordStatusPoll() {
	m.StatusPolls.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

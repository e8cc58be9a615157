package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// value reads the current value of a counter or gauge.
func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	return pb.Gauge.GetValue()
}

func TestRecordJobLifecycle(t *testing.T) {
	m := DefaultMetrics
	before := value(t, m.JobsEnded.WithLabelValues("COMPLETE"))

	m.RecordJobStart()
	active := value(t, m.JobsActive)
	m.RecordJobEnd("COMPLETE", 1.5)

	if got := value(t, m.JobsActive); got != active-1 {
		t.Errorf("expected active gauge to drop back to %v, got %v", active-1, got)
	}
	if got := value(t, m.JobsEnded.WithLabelValues("COMPLETE")); got != before+1 {
		t.Errorf("expected COMPLETE counter %v, got %v", before+1, got)
	}
}

func TestRecordCheckpointSave(t *testing.T) {
	m := DefaultMetrics
	saves := value(t, m.CheckpointSaves.WithLabelValues("RUNNING"))
	errs := value(t, m.CheckpointSaveErrors)

	m.RecordCheckpointSave("RUNNING", nil, 0.002)
	m.RecordCheckpointSave("RUNNING", errors.New("disk full"), 0.002)

	if got := value(t, m.CheckpointSaves.WithLabelValues("RUNNING")); got != saves+1 {
		t.Errorf("expected %v saves, got %v", saves+1, got)
	}
	if got := value(t, m.CheckpointSaveErrors); got != errs+1 {
		t.Errorf("expected %v save errors, got %v", errs+1, got)
	}
}

func TestRecordMerge(t *testing.T) {
	m := DefaultMetrics
	gaps := value(t, m.MergeWarnings.WithLabelValues("gap"))

	m.RecordMerge("rejected", []string{"gap", "gap", "overlap"})

	if got := value(t, m.MergeWarnings.WithLabelValues("gap")); got != gaps+2 {
		t.Errorf("expected %v gap warnings, got %v", gaps+2, got)
	}
}

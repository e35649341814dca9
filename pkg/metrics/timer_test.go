package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTimerMeasuresElapsed(t *testing.T) {
	timer := NewTimer()

	time.Sleep(20 * time.Millisecond)
	first := timer.Duration()
	if first < 20*time.Millisecond {
		t.Errorf("Duration() = %v, want >= 20ms", first)
	}

	time.Sleep(10 * time.Millisecond)
	if second := timer.Duration(); second <= first {
		t.Errorf("Duration() should keep growing: first=%v, second=%v", first, second)
	}
}

func TestTimerObservesHistogram(t *testing.T) {
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "playbook_total_seconds",
		Help:    "End-to-end playbook wall time",
		Buckets: prometheus.DefBuckets,
	})

	timer := NewTimer()
	timer.ObserveDuration(hist)

	if n := testutil.CollectAndCount(hist); n != 1 {
		t.Errorf("expected 1 series collected, got %d", n)
	}
}

func TestTimerObservesLabeledHistogram(t *testing.T) {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playbook_run_seconds",
		Help:    "Playbook wall time by task type",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	timer := NewTimer()
	timer.ObserveDurationVec(vec, "update")
	timer.ObserveDurationVec(vec, "restart")

	if n := testutil.CollectAndCount(vec); n != 2 {
		t.Errorf("expected one series per task type, got %d", n)
	}
}

func TestTimersAreIndependent(t *testing.T) {
	older := NewTimer()
	time.Sleep(20 * time.Millisecond)
	newer := NewTimer()
	time.Sleep(10 * time.Millisecond)

	if older.Duration() <= newer.Duration() {
		t.Errorf("older timer should report more elapsed time: older=%v, newer=%v",
			older.Duration(), newer.Duration())
	}
}

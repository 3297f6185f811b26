package observ

import "testing"

func TestCounters(t *testing.T) {
	labels := map[string]string{"agent": "alpha", "rule": "watchlist"}
	before := CounterValue("test_rejections_total", labels)

	IncCounter("test_rejections_total", labels)
	IncCounter("test_rejections_total", labels)
	// label order must not matter
	IncCounter("test_rejections_total", map[string]string{"rule": "watchlist", "agent": "alpha"})

	if got := CounterValue("test_rejections_total", labels); got != before+3 {
		t.Fatalf("counter = %d, want %d", got, before+3)
	}

	snap := Snapshot()
	if snap[`test_rejections_total{agent=alpha,rule=watchlist}`] != before+3 {
		t.Errorf("snapshot missing counter: %v", snap)
	}
}

func TestCounterValueUnknown(t *testing.T) {
	if got := CounterValue("never_incremented", nil); got != 0 {
		t.Fatalf("unknown counter = %d, want 0", got)
	}
}

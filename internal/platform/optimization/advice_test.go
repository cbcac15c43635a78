package optimization

import (
	"strings"
	"testing"
	"time"

	"github.com/MRamiBalles/TankArenaBridge/internal/platform/metrics"
)

func TestHealthyCollector(t *testing.T) {
	m := metrics.NewCollector()
	m.RecordTick(time.Millisecond)
	m.RecordEventWrite(time.Millisecond, nil)

	rec := Analyze(m.Snapshot(), DefaultThresholds(20*time.Millisecond))
	if !rec.Healthy() {
		t.Errorf("Expected no advice, got %v", rec.Notes)
	}
}

func TestAnalyzeFlagsProblems(t *testing.T) {
	m := metrics.NewCollector()
	m.RecordTick(40 * time.Millisecond)
	m.RecordDroppedFrame()
	m.RecordMalformed()
	m.RecordEventWrite(80*time.Millisecond, nil)
	m.RecordWSError()

	rec := Analyze(m.Snapshot(), DefaultThresholds(20*time.Millisecond))
	if !rec.LowerTimeScale || !rec.GrowAsyncQueue || !rec.CheckController || !rec.CheckLedger || !rec.LowerSpectatorRate {
		t.Errorf("Expected every flag set, got %+v", rec)
	}
	if len(rec.Notes) != 5 {
		t.Errorf("Expected 5 notes, got %d: %v", len(rec.Notes), rec.Notes)
	}
	if !strings.Contains(rec.Notes[0], "time_scale") {
		t.Errorf("First note should be about tick latency: %q", rec.Notes[0])
	}
}

func TestUnthrottledSkipsTickBudget(t *testing.T) {
	m := metrics.NewCollector()
	m.RecordTick(time.Second)

	rec := Analyze(m.Snapshot(), DefaultThresholds(0))
	if rec.LowerTimeScale {
		t.Error("No tick budget means no tick latency advice")
	}
}

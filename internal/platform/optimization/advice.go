// Package optimization turns live metrics into tuning advice for the
// stepping and spectator settings.
package optimization

import (
	"fmt"
	"time"
)

// Thresholds bound what counts as healthy.
type Thresholds struct {
	// TickBudget is the wall-clock time available per tick. Zero disables
	// the tick latency check (unthrottled runs have no budget).
	TickBudget time.Duration
	// MaxEventWrite is the slowest acceptable ledger write.
	MaxEventWrite time.Duration
	// MaxReplyWait is the slowest acceptable controller reply.
	MaxReplyWait time.Duration
}

// DefaultThresholds derives thresholds from the tick interval.
func DefaultThresholds(tickInterval time.Duration) Thresholds {
	return Thresholds{
		TickBudget:    tickInterval,
		MaxEventWrite: 50 * time.Millisecond,
		MaxReplyWait:  time.Second,
	}
}

// Recommendations provides suggestions based on observed metrics.
type Recommendations struct {
	LowerTimeScale     bool     `json:"lower_time_scale,omitempty"`
	GrowAsyncQueue     bool     `json:"grow_async_queue,omitempty"`
	LowerSpectatorRate bool     `json:"lower_spectator_rate,omitempty"`
	CheckLedger        bool     `json:"check_ledger,omitempty"`
	CheckController    bool     `json:"check_controller,omitempty"`
	Notes              []string `json:"notes"`
}

// Healthy reports whether nothing needs attention.
func (r *Recommendations) Healthy() bool {
	return len(r.Notes) == 0
}

// Analyze examines a metrics snapshot (metrics.Collector.Snapshot) and
// returns recommendations.
func Analyze(metrics map[string]interface{}, th Thresholds) *Recommendations {
	rec := &Recommendations{
		Notes: make([]string, 0),
	}

	if tick, ok := metrics["tick"].(map[string]interface{}); ok && th.TickBudget > 0 {
		if avg, ok := tick["avg_latency_ms"].(float64); ok && avg > millis(th.TickBudget) {
			rec.LowerTimeScale = true
			rec.Notes = append(rec.Notes, fmt.Sprintf(
				"average tick takes %.2fms, budget is %.2fms - lower time_scale or run unthrottled", avg, millis(th.TickBudget)))
		}
	}

	if ctrl, ok := metrics["controller"].(map[string]interface{}); ok {
		if dropped, ok := ctrl["dropped_frames"].(int64); ok && dropped > 0 {
			rec.GrowAsyncQueue = true
			rec.Notes = append(rec.Notes, fmt.Sprintf(
				"%d observations dropped by the async queue - raise async_queue_size", dropped))
		}
		if maxWait, ok := ctrl["max_reply_wait_ms"].(float64); ok && th.MaxReplyWait > 0 && maxWait > millis(th.MaxReplyWait) {
			rec.CheckController = true
			rec.Notes = append(rec.Notes, fmt.Sprintf(
				"slowest controller reply took %.0fms - the controller is the bottleneck", maxWait))
		}
		if malformed, ok := ctrl["malformed_in"].(int64); ok && malformed > 0 {
			rec.CheckController = true
			rec.Notes = append(rec.Notes, fmt.Sprintf("%d malformed controller messages", malformed))
		}
	}

	if events, ok := metrics["events"].(map[string]interface{}); ok {
		if maxLat, ok := events["max_write_lat_ms"].(float64); ok && maxLat > millis(th.MaxEventWrite) {
			rec.CheckLedger = true
			rec.Notes = append(rec.Notes, fmt.Sprintf(
				"ledger write latency peaked at %.0fms - move storage_path to faster disk", maxLat))
		}
		if errors, ok := events["errors"].(int64); ok && errors > 0 {
			rec.CheckLedger = true
			rec.Notes = append(rec.Notes, fmt.Sprintf("%d ledger write errors", errors))
		}
	}

	if ws, ok := metrics["websocket"].(map[string]interface{}); ok {
		if errors, ok := ws["errors"].(int64); ok && errors > 0 {
			rec.LowerSpectatorRate = true
			rec.Notes = append(rec.Notes, "spectator send errors detected - lower spectator_rate")
		}
	}

	return rec
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

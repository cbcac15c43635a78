// Package metrics provides observability for the arena server.
// Counters are lock-free so the tick loop can record without contention.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers performance metrics.
type Collector struct {
	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Controller exchange metrics
	Exchanges       int64
	ReplyWaitSum    int64 // nanoseconds spent blocked on the controller
	ReplyWaitMax    int64
	MessagesIn      int64
	MessagesOut     int64
	BytesIn         int64
	BytesOut        int64
	MalformedIn     int64
	IgnoredMessages int64
	DroppedFrames   int64 // async mode only

	// Episode metrics
	EpisodesStarted  int64
	EpisodesFinished int64
	EpisodesAborted  int64

	// Event metrics
	EventsWritten    int64
	EventWriteLatSum int64
	EventWriteLatMax int64
	EventWriteErrors int64

	// Spectator WebSocket metrics
	WSConnectionsActive int64
	WSMessagesOut       int64
	WSErrors            int64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{StartTime: time.Now()}
}

func storeMax(addr *int64, v int64) {
	for {
		cur := atomic.LoadInt64(addr)
		if v <= cur || atomic.CompareAndSwapInt64(addr, cur, v) {
			return
		}
	}
}

// RecordTick records a tick cycle completion.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))
	storeMax(&c.TickLatencyMax, int64(latency))

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordExchange records one observation/action round and the time spent waiting for the reply.
func (c *Collector) RecordExchange(wait time.Duration) {
	atomic.AddInt64(&c.Exchanges, 1)
	atomic.AddInt64(&c.ReplyWaitSum, int64(wait))
	storeMax(&c.ReplyWaitMax, int64(wait))
}

// RecordMessage records a controller message crossing the wire.
func (c *Collector) RecordMessage(incoming bool, size int) {
	if incoming {
		atomic.AddInt64(&c.MessagesIn, 1)
		atomic.AddInt64(&c.BytesIn, int64(size))
	} else {
		atomic.AddInt64(&c.MessagesOut, 1)
		atomic.AddInt64(&c.BytesOut, int64(size))
	}
}

// RecordMalformed records an inbound payload that could not be decoded.
func (c *Collector) RecordMalformed() {
	atomic.AddInt64(&c.MalformedIn, 1)
}

// RecordIgnored records a well-formed message that had no meaning in the current phase.
func (c *Collector) RecordIgnored() {
	atomic.AddInt64(&c.IgnoredMessages, 1)
}

// RecordDroppedFrame records an outbound frame dropped because the async queue was full.
func (c *Collector) RecordDroppedFrame() {
	atomic.AddInt64(&c.DroppedFrames, 1)
}

// RecordEpisode records an episode lifecycle transition: "started", "finished" or "aborted".
func (c *Collector) RecordEpisode(kind string) {
	switch kind {
	case "started":
		atomic.AddInt64(&c.EpisodesStarted, 1)
	case "finished":
		atomic.AddInt64(&c.EpisodesFinished, 1)
	case "aborted":
		atomic.AddInt64(&c.EpisodesAborted, 1)
	}
}

// RecordEventWrite records an event write to the database.
func (c *Collector) RecordEventWrite(latency time.Duration, err error) {
	atomic.AddInt64(&c.EventsWritten, 1)
	atomic.AddInt64(&c.EventWriteLatSum, int64(latency))
	storeMax(&c.EventWriteLatMax, int64(latency))

	if err != nil {
		atomic.AddInt64(&c.EventWriteErrors, 1)
	}
}

// RecordWSConnection records spectator connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records a frame pushed to spectators.
func (c *Collector) RecordWSMessage() {
	atomic.AddInt64(&c.WSMessagesOut, 1)
}

// RecordWSError records a spectator WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

func avgMillis(sum, count int64) float64 {
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count) / 1e6
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	lastTick := c.LastTickTime
	c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	exchanges := atomic.LoadInt64(&c.Exchanges)
	eventsWritten := atomic.LoadInt64(&c.EventsWritten)

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": avgMillis(atomic.LoadInt64(&c.TickLatencySum), tickCount),
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      lastTick.Format(time.RFC3339),
		},

		"controller": map[string]interface{}{
			"exchanges":         exchanges,
			"avg_reply_wait_ms": avgMillis(atomic.LoadInt64(&c.ReplyWaitSum), exchanges),
			"max_reply_wait_ms": float64(atomic.LoadInt64(&c.ReplyWaitMax)) / 1e6,
			"messages_in":       atomic.LoadInt64(&c.MessagesIn),
			"messages_out":      atomic.LoadInt64(&c.MessagesOut),
			"bytes_in":          atomic.LoadInt64(&c.BytesIn),
			"bytes_out":         atomic.LoadInt64(&c.BytesOut),
			"malformed_in":      atomic.LoadInt64(&c.MalformedIn),
			"ignored":           atomic.LoadInt64(&c.IgnoredMessages),
			"dropped_frames":    atomic.LoadInt64(&c.DroppedFrames),
		},

		"episodes": map[string]interface{}{
			"started":  atomic.LoadInt64(&c.EpisodesStarted),
			"finished": atomic.LoadInt64(&c.EpisodesFinished),
			"aborted":  atomic.LoadInt64(&c.EpisodesAborted),
		},

		"events": map[string]interface{}{
			"written":          eventsWritten,
			"avg_write_lat_ms": avgMillis(atomic.LoadInt64(&c.EventWriteLatSum), eventsWritten),
			"max_write_lat_ms": float64(atomic.LoadInt64(&c.EventWriteLatMax)) / 1e6,
			"errors":           atomic.LoadInt64(&c.EventWriteErrors),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		json.NewEncoder(w).Encode(c.Snapshot())
	}
}

// PrometheusHandler returns metrics in Prometheus format.
func (c *Collector) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		counter := func(name, help string, v int64) {
			fmt.Fprintf(w, "# HELP arena_%s %s\n", name, help)
			fmt.Fprintf(w, "# TYPE arena_%s counter\n", name)
			fmt.Fprintf(w, "arena_%s %d\n\n", name, v)
		}

		// Tick metrics
		counter("tick_count", "Total simulation ticks", atomic.LoadInt64(&c.TickCount))
		fmt.Fprintf(w, "# HELP arena_tick_latency_max_ms Maximum tick latency\n")
		fmt.Fprintf(w, "# TYPE arena_tick_latency_max_ms gauge\n")
		fmt.Fprintf(w, "arena_tick_latency_max_ms %.2f\n\n", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		// Controller metrics
		counter("exchanges_total", "Observation/action exchanges", atomic.LoadInt64(&c.Exchanges))
		fmt.Fprintf(w, "# HELP arena_reply_wait_max_ms Longest wait for a controller reply\n")
		fmt.Fprintf(w, "# TYPE arena_reply_wait_max_ms gauge\n")
		fmt.Fprintf(w, "arena_reply_wait_max_ms %.2f\n\n", float64(atomic.LoadInt64(&c.ReplyWaitMax))/1e6)

		fmt.Fprintf(w, "# HELP arena_messages_total Controller messages\n")
		fmt.Fprintf(w, "# TYPE arena_messages_total counter\n")
		fmt.Fprintf(w, "arena_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.MessagesIn))
		fmt.Fprintf(w, "arena_messages_total{direction=\"out\"} %d\n\n", atomic.LoadInt64(&c.MessagesOut))

		counter("malformed_total", "Inbound payloads that failed to decode", atomic.LoadInt64(&c.MalformedIn))
		counter("dropped_frames_total", "Frames dropped by the async queue", atomic.LoadInt64(&c.DroppedFrames))

		// Episode metrics
		fmt.Fprintf(w, "# HELP arena_episodes_total Episode transitions\n")
		fmt.Fprintf(w, "# TYPE arena_episodes_total counter\n")
		fmt.Fprintf(w, "arena_episodes_total{kind=\"started\"} %d\n", atomic.LoadInt64(&c.EpisodesStarted))
		fmt.Fprintf(w, "arena_episodes_total{kind=\"finished\"} %d\n", atomic.LoadInt64(&c.EpisodesFinished))
		fmt.Fprintf(w, "arena_episodes_total{kind=\"aborted\"} %d\n\n", atomic.LoadInt64(&c.EpisodesAborted))

		// Event metrics
		counter("events_written", "Total events written", atomic.LoadInt64(&c.EventsWritten))
		counter("event_write_errors", "Total event write errors", atomic.LoadInt64(&c.EventWriteErrors))

		// Spectators
		fmt.Fprintf(w, "# HELP arena_ws_connections Active spectator connections\n")
		fmt.Fprintf(w, "# TYPE arena_ws_connections gauge\n")
		fmt.Fprintf(w, "arena_ws_connections %d\n", atomic.LoadInt64(&c.WSConnectionsActive))
	}
}

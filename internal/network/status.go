package network

import (
	"net/http"
	"time"

	"github.com/MRamiBalles/TankArenaBridge/internal/bridge"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/metrics"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/optimization"
)

// StatusSource reports the live bridge state. *bridge.Synchronizer implements it.
type StatusSource interface {
	Status() bridge.Status
}

// StatusResponse is the response of GET /api/status.
type StatusResponse struct {
	Bridge     *bridge.Status `json:"bridge,omitempty"`
	Connected  bool           `json:"controller_connected"`
	Spectators int            `json:"spectators"`
	Uptime     float64        `json:"uptime_seconds"`

	Advice *optimization.Recommendations `json:"advice"`
}

// Monitor is the HTTP surface of the server. It only observes.
type Monitor struct {
	mux     *http.ServeMux
	hub     *Hub
	metrics *metrics.Collector
	started time.Time

	source     func() StatusSource
	thresholds optimization.Thresholds
}

// NewMonitor builds the monitor routes. source returns nil until the
// controller has connected. replay may be nil when no ledger is configured.
func NewMonitor(hub *Hub, m *metrics.Collector, replay *ReplayHandler, source func() StatusSource) *Monitor {
	mon := &Monitor{
		mux:     http.NewServeMux(),
		hub:     hub,
		metrics: m,
		started: time.Now(),
		source:  source,

		thresholds: optimization.DefaultThresholds(0),
	}
	mon.mux.HandleFunc("GET /metrics", m.Handler())
	mon.mux.HandleFunc("GET /metrics/prometheus", m.PrometheusHandler())
	mon.mux.HandleFunc("GET /api/status", mon.HandleStatus)
	if hub != nil {
		mon.mux.HandleFunc("GET /ws", hub.ServeWS)
	}
	if replay != nil {
		replay.RegisterRoutes(mon.mux)
	}
	return mon
}

// SetThresholds configures the advice reported by /api/status.
func (mon *Monitor) SetThresholds(th optimization.Thresholds) {
	mon.thresholds = th
}

// ServeHTTP implements http.Handler.
func (mon *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mon.mux.ServeHTTP(w, r)
}

// HandleStatus returns the live bridge state.
// GET /api/status
func (mon *Monitor) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Uptime: time.Since(mon.started).Seconds(),
		Advice: optimization.Analyze(mon.metrics.Snapshot(), mon.thresholds),
	}
	if mon.hub != nil {
		resp.Spectators = mon.hub.ClientCount()
	}
	if mon.source != nil {
		if src := mon.source(); src != nil {
			st := src.Status()
			resp.Bridge = &st
			resp.Connected = true
		}
	}
	writeJSON(w, resp)
}

package network

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/MRamiBalles/TankArenaBridge/internal/bridge"
	"github.com/MRamiBalles/TankArenaBridge/internal/events"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/logger"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/metrics"
)

// Spectator message types.
const (
	MsgTypeFrame = "FRAME"
	MsgTypeEvent = "EVENT"
)

// Message is the envelope pushed to spectators.
type Message struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub maintains the set of spectators and broadcasts frames and events to them.
// It is read-only: nothing a spectator sends reaches the arena.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
	limiter    *rate.Limiter
	logger     *logger.Logger
	metrics    *metrics.Collector
}

// NewHub creates a hub that forwards at most framesPerSecond observation frames.
func NewHub(framesPerSecond float64, log *logger.Logger, m *metrics.Collector) *Hub {
	if log == nil {
		log = logger.Discard()
	}
	if m == nil {
		m = metrics.NewCollector()
	}
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		limiter:    rate.NewLimiter(rate.Limit(framesPerSecond), 1),
		logger:     log,
		metrics:    m,
	}
}

// Run handles registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("spectator hub shutting down")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.metrics.RecordWSConnection(1)
			h.logger.Debug("spectator connected", "remote", client.conn.RemoteAddr().String())
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.metrics.RecordWSConnection(-1)
				h.logger.Debug("spectator disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					h.metrics.RecordWSMessage()
				default:
					// Slow spectator.
					close(client.send)
					delete(h.clients, client)
					h.metrics.RecordWSConnection(-1)
					h.metrics.RecordWSError()
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected spectators.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// PublishFrame implements bridge.FrameSink. It never blocks: frames over the
// rate limit, or arriving while the broadcast queue is full, are dropped.
// Terminal frames bypass the limiter.
func (h *Hub) PublishFrame(frame bridge.Frame) {
	if !frame.Done && !h.limiter.Allow() {
		return
	}
	payload, err := json.Marshal(Message{Type: MsgTypeFrame, Timestamp: time.Now().UnixMilli(), Payload: frame})
	if err != nil {
		h.logger.Error("failed to serialize frame", "err", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
	}
}

// BroadcastEvent serializes a GameEvent and queues it for every spectator.
func (h *Hub) BroadcastEvent(event events.GameEvent) {
	payload, err := json.Marshal(Message{Type: MsgTypeEvent, Timestamp: event.Timestamp.UnixMilli(), Payload: event})
	if err != nil {
		h.logger.Error("failed to serialize event", "err", err)
		return
	}
	select {
	case h.broadcast <- payload:
	case <-h.done:
	}
}

// StartEventPoller forwards new EventLog entries to the hub. It runs
// independently of the tick loop and only ever reads the log.
func (h *Hub) StartEventPoller(ctx context.Context, eventLog *events.EventLog, interval time.Duration) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		offset := eventLog.Len()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fresh := eventLog.Since(offset)
				for _, event := range fresh {
					h.BroadcastEvent(event)
				}
				offset += len(fresh)
			}
		}
	}()
}

// ServeWS upgrades a spectator connection. GET /ws
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.metrics.RecordWSError()
		h.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	client := NewClient(h, conn)
	if !client.Register() {
		conn.Close()
		return
	}
	go client.WritePump()
	go client.ReadPump()
}

// Package events provides the append-only episode ledger of the arena.
// Every lifecycle transition of the controller bridge is recorded here.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of an arena event.
type EventType string

const (
	EventTypeControllerConnected EventType = "CONTROLLER_CONNECTED"
	EventTypeEpisodeStarted      EventType = "EPISODE_STARTED"
	EventTypeEpisodeFinished     EventType = "EPISODE_FINISHED"
	EventTypeEpisodeAborted      EventType = "EPISODE_ABORTED"
	EventTypeArenaReset          EventType = "ARENA_RESET"
	EventTypeTankDestroyed       EventType = "TANK_DESTROYED"
	EventTypeServiceEnding       EventType = "SERVICE_ENDING"
)

// Actors used for system-originated events.
const (
	ActorController = "CONTROLLER"
	ActorArena      = "ARENA"
)

// EpisodeResultPayload is attached to finished and aborted episodes.
type EpisodeResultPayload struct {
	EpisodeID      string    `json:"episode_id"`
	Number         int       `json:"number"`
	Ticks          int64     `json:"ticks"`
	Exchanges      int64     `json:"exchanges"`
	Winner         int       `json:"winner"`
	Cause          string    `json:"cause"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	Fingerprint    string    `json:"fingerprint,omitempty"`
	TrajectoryPath string    `json:"trajectory_path,omitempty"`
}

// TankDestroyedPayload is attached to TANK_DESTROYED events.
type TankDestroyedPayload struct {
	TankID    int `json:"tank_id"`
	Team      int `json:"team"`
	ShooterID int `json:"shooter_id"`
}

// GameEvent represents an immutable record of something that happened in the arena.
type GameEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	ActorID   string      `json:"actor_id"`  // Who caused it
	TargetID  string      `json:"target_id"` // Who was affected (optional)
	EpisodeID string      `json:"episode_id"`
	Tick      int64       `json:"tick"`
	Payload   interface{} `json:"payload"` // Event-specific data
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event GameEvent) error
}

// EventLog is the in-memory append-only log of arena events, optionally
// written through to one or more persisters.
type EventLog struct {
	mu         sync.RWMutex
	events     []GameEvent
	persisters []EventPersister
	onError    func(GameEvent, error)
}

// NewEventLog creates a new event log with optional persisters.
func NewEventLog(persisters ...EventPersister) *EventLog {
	return &EventLog{
		events:     make([]GameEvent, 0, 64),
		persisters: persisters,
	}
}

// OnPersistError installs a callback for persister failures.
func (el *EventLog) OnPersistError(fn func(GameEvent, error)) {
	el.mu.Lock()
	el.onError = fn
	el.mu.Unlock()
}

// Append adds a new event to the log, filling ID and Timestamp when unset.
// Persisters are called synchronously and in order; events are rare enough
// (a handful per episode) that the tick loop can afford it.
func (el *EventLog) Append(event GameEvent) GameEvent {
	if event.ID == "" {
		event.ID = GenerateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	el.mu.Lock()
	el.events = append(el.events, event)
	persisters := el.persisters
	onError := el.onError
	el.mu.Unlock()

	for _, p := range persisters {
		if err := p.Append(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
	return event
}

// GetByEpisode returns all events that belong to one episode.
func (el *EventLog) GetByEpisode(episodeID string) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.EpisodeID == episodeID {
			result = append(result, e)
		}
	}
	return result
}

// GetByType returns all events of one type.
func (el *EventLog) GetByType(t EventType) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// Since returns a copy of the events appended after the first offset events.
func (el *EventLog) Since(offset int) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	if offset >= len(el.events) {
		return nil
	}
	if offset < 0 {
		offset = 0
	}
	out := make([]GameEvent, len(el.events)-offset)
	copy(out, el.events[offset:])
	return out
}

// Len returns the number of events recorded.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.events)
}

// Replay returns a copy of the full history.
func (el *EventLog) Replay() []GameEvent {
	return el.Since(0)
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}

// Package storage provides the persistence layer for the arena server.
// This package implements the repository pattern to keep the domain pure.
package storage

import (
	"context"
	"time"
)

// GameEvent mirrors the domain event structure for persistence.
// The domain package should NOT import this; use interfaces instead.
type GameEvent struct {
	ID        string                 `json:"id" db:"id"`
	EpisodeID string                 `json:"episode_id" db:"episode_id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	EventType string                 `json:"event_type" db:"event_type"`
	ActorID   string                 `json:"actor_id" db:"actor_id"`
	TargetID  string                 `json:"target_id" db:"target_id"`
	Tick      int64                  `json:"tick" db:"tick"`
	Payload   map[string]interface{} `json:"payload" db:"payload"`
}

// EventRepository defines the interface for event persistence.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event GameEvent) error

	// GetByEpisode retrieves all events of one episode in order.
	GetByEpisode(ctx context.Context, episodeID string) ([]GameEvent, error)

	// GetByEventType retrieves all events of a specific type.
	GetByEventType(ctx context.Context, eventType string) ([]GameEvent, error)
}

// EpisodeRecord is the durable summary of one finished or aborted episode.
type EpisodeRecord struct {
	ID             string    `json:"id" db:"id"`
	Number         int       `json:"number" db:"number"`
	StartedAt      time.Time `json:"started_at" db:"started_at"`
	EndedAt        time.Time `json:"ended_at" db:"ended_at"`
	Ticks          int64     `json:"ticks" db:"ticks"`
	Exchanges      int64     `json:"exchanges" db:"exchanges"`
	Winner         int       `json:"winner" db:"winner"`
	Cause          string    `json:"cause" db:"cause"`
	Fingerprint    string    `json:"fingerprint,omitempty" db:"fingerprint"`
	TrajectoryPath string    `json:"trajectory_path,omitempty" db:"trajectory_path"`
}

// EpisodeRepository defines the interface for the episode ledger.
type EpisodeRepository interface {
	// Upsert inserts or replaces an episode record.
	Upsert(ctx context.Context, rec EpisodeRecord) error

	// GetByID retrieves one episode, or nil when it does not exist.
	GetByID(ctx context.Context, id string) (*EpisodeRecord, error)

	// List returns episodes newest first.
	List(ctx context.Context, limit, offset int) ([]EpisodeRecord, error)

	// All returns every episode oldest first (for standings).
	All(ctx context.Context) ([]EpisodeRecord, error)

	Count(ctx context.Context) (int, error)
}

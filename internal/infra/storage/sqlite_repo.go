package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event GameEvent) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO events (id, episode_id, timestamp, event_type, actor_id, target_id, tick, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.EpisodeID, event.Timestamp.UnixNano(), event.EventType, event.ActorID,
		event.TargetID, event.Tick, string(payloadBytes),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]GameEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []GameEvent
	for rows.Next() {
		var e GameEvent
		var ts int64
		var payloadStr string
		err := rows.Scan(
			&e.ID, &e.EpisodeID, &ts, &e.EventType, &e.ActorID,
			&e.TargetID, &e.Tick, &payloadStr,
		)
		if err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(0, ts)
		if err := json.Unmarshal([]byte(payloadStr), &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

const eventColumns = `id, episode_id, timestamp, event_type, actor_id, target_id, tick, payload`

func (r *SQLiteEventRepository) GetByEpisode(ctx context.Context, episodeID string) ([]GameEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE episode_id = ? ORDER BY timestamp ASC, rowid ASC`
	return r.getMany(ctx, query, episodeID)
}

func (r *SQLiteEventRepository) GetByEventType(ctx context.Context, eventType string) ([]GameEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE event_type = ? ORDER BY timestamp ASC, rowid ASC`
	return r.getMany(ctx, query, eventType)
}

// ---------------------------------------------------------
// SQLiteEpisodeRepository
// ---------------------------------------------------------

type SQLiteEpisodeRepository struct {
	db *sql.DB
}

func NewSQLiteEpisodeRepository(db *sql.DB) *SQLiteEpisodeRepository {
	return &SQLiteEpisodeRepository{db: db}
}

func (r *SQLiteEpisodeRepository) Upsert(ctx context.Context, rec EpisodeRecord) error {
	query := `
		INSERT INTO episodes (id, number, started_at, ended_at, ticks, exchanges, winner, cause, fingerprint, trajectory_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			number=excluded.number,
			started_at=excluded.started_at,
			ended_at=excluded.ended_at,
			ticks=excluded.ticks,
			exchanges=excluded.exchanges,
			winner=excluded.winner,
			cause=excluded.cause,
			fingerprint=excluded.fingerprint,
			trajectory_path=excluded.trajectory_path
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Number, rec.StartedAt.UnixNano(), rec.EndedAt.UnixNano(), rec.Ticks, rec.Exchanges,
		rec.Winner, rec.Cause, rec.Fingerprint, rec.TrajectoryPath,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert episode %s: %w", rec.ID, err)
	}
	return nil
}

const episodeColumns = `id, number, started_at, ended_at, ticks, exchanges, winner, cause, fingerprint, trajectory_path`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEpisode(s rowScanner) (EpisodeRecord, error) {
	var rec EpisodeRecord
	var started, ended int64
	err := s.Scan(&rec.ID, &rec.Number, &started, &ended, &rec.Ticks, &rec.Exchanges,
		&rec.Winner, &rec.Cause, &rec.Fingerprint, &rec.TrajectoryPath)
	if err != nil {
		return rec, err
	}
	rec.StartedAt = time.Unix(0, started)
	rec.EndedAt = time.Unix(0, ended)
	return rec, nil
}

func (r *SQLiteEpisodeRepository) GetByID(ctx context.Context, id string) (*EpisodeRecord, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE id = ?`
	rec, err := scanEpisode(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *SQLiteEpisodeRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]EpisodeRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []EpisodeRecord
	for rows.Next() {
		rec, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *SQLiteEpisodeRepository) List(ctx context.Context, limit, offset int) ([]EpisodeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + episodeColumns + ` FROM episodes ORDER BY number DESC, ended_at DESC LIMIT ? OFFSET ?`
	return r.getMany(ctx, query, limit, offset)
}

func (r *SQLiteEpisodeRepository) All(ctx context.Context) ([]EpisodeRecord, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes ORDER BY ended_at ASC, number ASC`
	return r.getMany(ctx, query)
}

func (r *SQLiteEpisodeRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM episodes`).Scan(&n)
	return n, err
}

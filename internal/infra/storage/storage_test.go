package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MRamiBalles/TankArenaBridge/internal/domain/rules"
)

func openTestDB(t *testing.T) (*SQLiteEventRepository, *SQLiteEpisodeRepository) {
	t.Helper()
	db, err := InitSQLite(filepath.Join(t.TempDir(), "nested", "arena.db"))
	if err != nil {
		t.Fatalf("InitSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteEventRepository(db), NewSQLiteEpisodeRepository(db)
}

func TestEventRepository_AppendAndQuery(t *testing.T) {
	events, _ := openTestDB(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	for i, typ := range []string{"EPISODE_STARTED", "TANK_DESTROYED", "EPISODE_FINISHED"} {
		err := events.Append(ctx, GameEvent{
			ID:        typ,
			EpisodeID: "ep-1",
			Timestamp: base.Add(time.Duration(i) * time.Second),
			EventType: typ,
			ActorID:   "ARENA",
			Tick:      int64(i * 10),
			Payload:   map[string]interface{}{"winner": 0},
		})
		if err != nil {
			t.Fatalf("Append %s: %v", typ, err)
		}
	}

	got, err := events.GetByEpisode(ctx, "ep-1")
	if err != nil {
		t.Fatalf("GetByEpisode: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(got))
	}
	if got[2].EventType != "EPISODE_FINISHED" || got[2].Tick != 20 {
		t.Errorf("Unexpected ordering: %+v", got[2])
	}
	if !got[0].Timestamp.Equal(base) {
		t.Errorf("Timestamp not preserved: %v", got[0].Timestamp)
	}
	if w, ok := got[0].Payload["winner"].(float64); !ok || w != 0 {
		t.Errorf("Payload not preserved: %v", got[0].Payload)
	}

	destroyed, err := events.GetByEventType(ctx, "TANK_DESTROYED")
	if err != nil || len(destroyed) != 1 {
		t.Fatalf("GetByEventType: %v (%d)", err, len(destroyed))
	}
}

func TestEpisodeRepository_UpsertGetList(t *testing.T) {
	_, episodes := openTestDB(t)
	ctx := context.Background()
	start := time.Unix(1700000000, 0)

	for i := 1; i <= 3; i++ {
		rec := EpisodeRecord{
			ID:        "ep-" + string(rune('0'+i)),
			Number:    i,
			StartedAt: start.Add(time.Duration(i) * time.Minute),
			EndedAt:   start.Add(time.Duration(i)*time.Minute + 30*time.Second),
			Ticks:     100,
			Winner:    rules.NoWinner,
			Cause:     string(rules.CauseTimeLimit),
		}
		if err := episodes.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	// Overwrite one record.
	if err := episodes.Upsert(ctx, EpisodeRecord{ID: "ep-2", Number: 2, StartedAt: start, EndedAt: start.Add(2 * time.Minute), Winner: 1, Cause: "ELIMINATION", Fingerprint: "abc"}); err != nil {
		t.Fatalf("Upsert overwrite: %v", err)
	}

	got, err := episodes.GetByID(ctx, "ep-2")
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v %v", got, err)
	}
	if got.Winner != 1 || got.Fingerprint != "abc" {
		t.Errorf("Overwrite not applied: %+v", got)
	}

	missing, err := episodes.GetByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("Expected nil for missing episode, got %v %v", missing, err)
	}

	list, err := episodes.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Number != 3 {
		t.Errorf("Expected newest first, got %+v", list)
	}

	n, err := episodes.Count(ctx)
	if err != nil || n != 3 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

func TestCompute_Elo(t *testing.T) {
	eps := []EpisodeRecord{
		{ID: "a", Winner: 0, Cause: "ELIMINATION"},
		{ID: "b", Winner: rules.NoWinner, Cause: "RESTART"},
		{ID: "c", Winner: rules.NoWinner, Cause: "TIME_LIMIT"},
	}
	s := Compute(eps, []int{0, 1}, rules.DefaultEloK)

	t0, t1 := s.Teams[0], s.Teams[1]
	if t0.Wins != 1 || t1.Losses != 1 {
		t.Errorf("Win/loss not counted: %+v %+v", t0, t1)
	}
	if t0.Aborted != 1 || t0.Played != 2 || t0.Draws != 1 {
		t.Errorf("Abort/draw not counted: %+v", t0)
	}
	// Equal ratings: winner gains 16. Then a draw between 1216 and 1184.
	// Expected for 1216 is ~0.546, so 32*(0.5-0.546) = -1.47 -> -1.
	if t0.Rating != 1215 || t1.Rating != 1185 {
		t.Errorf("Unexpected ratings: %v %v", t0.Rating, t1.Rating)
	}
	if t0.Rating+t1.Rating != 2*InitialRating {
		t.Errorf("Two-team Elo should be zero-sum")
	}
}

func TestReconstructor_Rebuild(t *testing.T) {
	_, episodes := openTestDB(t)
	ctx := context.Background()
	if err := episodes.Upsert(ctx, EpisodeRecord{ID: "x", Number: 1, Winner: 1, Cause: "ELIMINATION", EndedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	s, err := NewReconstructor(episodes, []int{1, 0}).Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if s.Episodes != 1 || s.Teams[0].Team != 0 || s.Teams[1].Wins != 1 {
		t.Errorf("Unexpected standings: %+v", s)
	}
}

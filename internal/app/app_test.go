package app

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/MRamiBalles/TankArenaBridge/internal/domain/rules"
	"github.com/MRamiBalles/TankArenaBridge/internal/envclient"
	"github.com/MRamiBalles/TankArenaBridge/internal/events"
	"github.com/MRamiBalles/TankArenaBridge/internal/infra/trajectory"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/config"
	"github.com/MRamiBalles/TankArenaBridge/internal/protocol"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.TrainingConfig()
	cfg.ConnectionPort = 0
	cfg.GameMaxTime = 0.1
	cfg.StoragePath = filepath.Join(t.TempDir(), "arena.db")
	cfg.TrajectoryDir = filepath.Join(t.TempDir(), "traj")
	return cfg
}

func TestServerPlaysOneEpisode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv, err := New(ctx, testConfig(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer srv.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run(ctx) }()

	env, err := envclient.Dial(ctx, srv.Addr().String(), envclient.DefaultOptions())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	res, err := env.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	steps := 0
	for !res.Done {
		if res, err = env.Step(ctx, map[int]protocol.Action{1: {}, 2: {}}); err != nil {
			t.Fatalf("Step %d: %v", steps, err)
		}
		steps++
	}
	if res.Winner != rules.NoWinner {
		t.Errorf("Idle tanks should draw at the time limit, got winner %d", res.Winner)
	}
	// 5 ticks at 50 Hz: four exchanges after the first, the last one terminal.
	if steps != 4 {
		t.Errorf("Expected 4 steps, got %d", steps)
	}

	if err := env.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-runErr; err != nil {
		t.Fatalf("Run: %v", err)
	}

	finished := srv.EventLog().GetByType(events.EventTypeEpisodeFinished)
	if len(finished) != 1 {
		t.Fatalf("Expected one finished episode, got %d", len(finished))
	}
	result := finished[0].Payload.(events.EpisodeResultPayload)

	rec, err := srv.episodes.GetByID(ctx, result.EpisodeID)
	if err != nil || rec == nil {
		t.Fatalf("Episode not in the ledger: %v %v", rec, err)
	}
	if rec.Cause != string(rules.CauseTimeLimit) || rec.Fingerprint == "" {
		t.Errorf("Unexpected ledger row: %+v", rec)
	}

	frames, fingerprint, err := trajectory.ReadTrajectory(rec.TrajectoryPath)
	if err != nil {
		t.Fatalf("ReadTrajectory: %v", err)
	}
	if fingerprint != rec.Fingerprint || len(frames) != 5 || !frames[len(frames)-1].Done {
		t.Errorf("Trajectory mismatch: %d frames, fingerprint %s vs %s", len(frames), fingerprint, rec.Fingerprint)
	}
}

func TestServerStopsOnCancelBeforeConnect(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoragePath = ""
	cfg.TrajectoryDir = ""

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer srv.Close()

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Cancelled Run should return nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewFailsOnBusyPort(t *testing.T) {
	first, err := New(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer first.Close()

	cfg := testConfig(t)
	cfg.ConnectionPort = first.Addr().(*net.TCPAddr).Port
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("Expected a bind failure on a busy port")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.ActionRepeat = 0
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("Expected a validation error")
	}
}

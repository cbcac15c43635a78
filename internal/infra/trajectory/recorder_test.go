package trajectory

import (
	"os"
	"testing"
)

func record(t *testing.T, r *Recorder, id string, n int) (string, string) {
	t.Helper()
	if err := r.Begin(id); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for i := 0; i < n; i++ {
		frame := Frame{
			Tick:        int64(i),
			Observation: []float64{float64(i), -10},
			Actions:     map[int][5]float64{1: {0.5, 0, 1, 0, 1}},
			Winner:      -1,
		}
		if i == n-1 {
			frame.Done = true
			frame.Winner = 0
		}
		if err := r.Record(frame); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	path, fp, err := r.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return path, fp
}

func TestRecorder_WriteRead(t *testing.T) {
	r, err := NewRecorder(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	path, fp := record(t, r, "ep-1", 20)

	frames, readFP, err := ReadTrajectory(path)
	if err != nil {
		t.Fatalf("ReadTrajectory: %v", err)
	}
	if len(frames) != 20 {
		t.Fatalf("Expected 20 frames, got %d", len(frames))
	}
	last := frames[19]
	if !last.Done || last.Winner != 0 || last.Actions[1][2] != 1 {
		t.Errorf("Unexpected last frame: %+v", last)
	}
	if readFP != fp {
		t.Errorf("Fingerprint mismatch: wrote %s read %s", fp, readFP)
	}
}

func TestRecorder_DeterministicFingerprint(t *testing.T) {
	r, _ := NewRecorder(t.TempDir())
	_, a := record(t, r, "a", 5)
	_, b := record(t, r, "b", 5)
	_, c := record(t, r, "c", 6)
	if a != b {
		t.Errorf("Identical streams should share a fingerprint")
	}
	if a == c {
		t.Errorf("Different streams should not share a fingerprint")
	}
}

func TestRecorder_Discard(t *testing.T) {
	r, _ := NewRecorder(t.TempDir())
	if err := r.Record(Frame{}); err != ErrNotRecording {
		t.Errorf("Expected ErrNotRecording, got %v", err)
	}
	if err := r.Begin("gone"); err != nil {
		t.Fatal(err)
	}
	r.Record(Frame{Tick: 1})
	if err := r.Discard(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(r.Path("gone")); !os.IsNotExist(err) {
		t.Errorf("Discarded trajectory still exists: %v", err)
	}
	if _, _, err := r.Finish(); err != ErrNotRecording {
		t.Errorf("Finish after Discard should fail, got %v", err)
	}
}

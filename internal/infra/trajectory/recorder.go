// Package trajectory records per-episode observation/action streams to disk.
//
// A trajectory file is a sequence of msgpack-encoded frames inside one lz4
// stream. The fingerprint is the BLAKE3 hash of the uncompressed frame bytes,
// so two runs with identical inputs produce identical fingerprints.
package trajectory

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"
	"lukechampine.com/blake3"
)

// Extension is appended to the episode ID to form the file name.
const Extension = ".traj.lz4"

// ErrNotRecording is returned when a frame arrives outside Begin/Finish.
var ErrNotRecording = errors.New("trajectory: not recording")

// Frame is one controller exchange.
type Frame struct {
	Tick        int64              `msgpack:"t"`
	Observation []float64          `msgpack:"o"`
	Actions     map[int][5]float64 `msgpack:"a,omitempty"`
	Done        bool               `msgpack:"d,omitempty"`
	Winner      int                `msgpack:"w"`
}

// Recorder writes one trajectory at a time. It is not safe for concurrent use;
// the tick loop owns it.
type Recorder struct {
	dir string

	path   string
	file   *os.File
	zw     *lz4.Writer
	hasher hash.Hash
	enc    *msgpack.Encoder
	frames int
}

// NewRecorder creates a recorder that writes into dir.
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create trajectory directory: %w", err)
	}
	return &Recorder{dir: dir}, nil
}

// Path returns the file an episode would be written to.
func (r *Recorder) Path(episodeID string) string {
	return filepath.Join(r.dir, episodeID+Extension)
}

// Begin opens a new trajectory. An unfinished one is discarded first.
func (r *Recorder) Begin(episodeID string) error {
	if r.file != nil {
		r.Discard()
	}
	path := r.Path(episodeID)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trajectory %s: %w", path, err)
	}

	r.path = path
	r.file = f
	r.zw = lz4.NewWriter(f)
	r.hasher = blake3.New(32, nil)
	r.enc = msgpack.NewEncoder(io.MultiWriter(r.zw, r.hasher))
	r.frames = 0
	return nil
}

// Record appends one frame.
func (r *Recorder) Record(frame Frame) error {
	if r.enc == nil {
		return ErrNotRecording
	}
	if err := r.enc.Encode(&frame); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	r.frames++
	return nil
}

// Frames returns the number of frames recorded in the open trajectory.
func (r *Recorder) Frames() int {
	return r.frames
}

// Finish flushes and closes the trajectory and returns its path and fingerprint.
func (r *Recorder) Finish() (string, string, error) {
	if r.file == nil {
		return "", "", ErrNotRecording
	}
	path := r.path
	fingerprint := hex.EncodeToString(r.hasher.Sum(nil))

	zerr := r.zw.Close()
	ferr := r.file.Close()
	r.reset()
	if err := errors.Join(zerr, ferr); err != nil {
		return "", "", fmt.Errorf("failed to close trajectory %s: %w", path, err)
	}
	return path, fingerprint, nil
}

// Discard closes and deletes an unfinished trajectory.
func (r *Recorder) Discard() error {
	if r.file == nil {
		return nil
	}
	path := r.path
	r.zw.Close()
	r.file.Close()
	r.reset()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (r *Recorder) reset() {
	r.path = ""
	r.file = nil
	r.zw = nil
	r.hasher = nil
	r.enc = nil
	r.frames = 0
}

// ReadTrajectory decodes a trajectory file and recomputes its fingerprint.
func ReadTrajectory(path string) ([]Frame, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	hasher := blake3.New(32, nil)
	dec := msgpack.NewDecoder(io.TeeReader(lz4.NewReader(f), hasher))

	var frames []Frame
	for {
		var frame Frame
		if err := dec.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, "", fmt.Errorf("failed to decode frame %d: %w", len(frames), err)
		}
		frames = append(frames, frame)
	}
	return frames, hex.EncodeToString(hasher.Sum(nil)), nil
}

package bridge

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Phase is the episode lifecycle state.
type Phase int

const (
	PhaseAwaiting Phase = iota // No episode; the controller may send start, end or restart
	PhaseRunning               // Exchanging observations for actions
	PhaseStopped               // end received; no further I/O
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaiting:
		return "AWAITING_EPISODE"
	case PhaseRunning:
		return "EPISODE_RUNNING"
	case PhaseStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

var (
	errNotAwaiting = errors.New("bridge: episode already running or service stopped")
	errNotRunning  = errors.New("bridge: no episode running")
)

// Episode is one run from start to done.
type Episode struct {
	ID        string
	Number    int
	StartedAt time.Time
	Ticks     int64
	Exchanges int64
	SimTime   float64
}

// Lifecycle owns the running state and the tick counter since the last exchange.
// At most one episode runs at a time.
type Lifecycle struct {
	phase   Phase
	episode *Episode
	counter int
	started int
}

// NewLifecycle starts in PhaseAwaiting.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{phase: PhaseAwaiting}
}

func (l *Lifecycle) Phase() Phase {
	return l.phase
}

// Episode returns the running episode, or nil.
func (l *Lifecycle) Episode() *Episode {
	return l.episode
}

// Started is the number of episodes begun so far.
func (l *Lifecycle) Started() int {
	return l.started
}

// Start begins a new episode and resets the tick counter.
func (l *Lifecycle) Start(now time.Time) (*Episode, error) {
	if l.phase != PhaseAwaiting {
		return nil, errNotAwaiting
	}
	l.started++
	l.episode = &Episode{ID: uuid.NewString(), Number: l.started, StartedAt: now}
	l.phase = PhaseRunning
	l.counter = 0
	return l.episode, nil
}

// Advance counts one simulation tick of the running episode and returns the
// number of ticks since the last exchange.
func (l *Lifecycle) Advance(dt float64) int {
	if l.episode == nil {
		return 0
	}
	l.episode.Ticks++
	l.episode.SimTime += dt
	l.counter++
	return l.counter
}

// Exchanged records a completed exchange and resets the counter.
func (l *Lifecycle) Exchanged() {
	if l.episode != nil {
		l.episode.Exchanges++
	}
	l.counter = 0
}

// Finish ends the running episode and returns it.
func (l *Lifecycle) Finish() (*Episode, error) {
	if l.phase != PhaseRunning {
		return nil, errNotRunning
	}
	ep := l.episode
	l.episode = nil
	l.counter = 0
	l.phase = PhaseAwaiting
	return ep, nil
}

// Stop is terminal.
func (l *Lifecycle) Stop() {
	l.phase = PhaseStopped
	l.episode = nil
	l.counter = 0
}

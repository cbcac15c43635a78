package bridge

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/MRamiBalles/TankArenaBridge/internal/domain/rules"
	"github.com/MRamiBalles/TankArenaBridge/internal/events"
	"github.com/MRamiBalles/TankArenaBridge/internal/infra/trajectory"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/logger"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/metrics"
	"github.com/MRamiBalles/TankArenaBridge/internal/protocol"
)

// ErrStopped is returned by Tick once the controller has sent end.
var ErrStopped = errors.New("bridge: service stopped")

// Options tune the synchronizer.
type Options struct {
	// ActionRepeat is the number of ticks between exchanges.
	ActionRepeat  int
	FireThreshold float64
	// Async moves socket I/O to background tasks. Tick never blocks and the
	// clock is never paused.
	Async     bool
	QueueSize int
	// MaxPending bounds buffered bytes of an incomplete inbound message.
	MaxPending int
	// ReplyTimeout bounds the wait for a step reply in lockstep mode. Zero
	// waits forever. Handshake polling is never bounded.
	ReplyTimeout time.Duration
}

// DefaultOptions matches the lockstep reference behaviour.
func DefaultOptions() Options {
	return Options{
		ActionRepeat:  1,
		FireThreshold: DefaultFireThreshold,
		QueueSize:     16,
		MaxPending:    protocol.DefaultMaxPending,
	}
}

// Status is a point-in-time view of the bridge, safe to read from any goroutine.
type Status struct {
	Phase         string    `json:"phase"`
	Mode          string    `json:"mode"`
	EpisodeID     string    `json:"episode_id,omitempty"`
	EpisodeNumber int       `json:"episode_number,omitempty"`
	EpisodeTicks  int64     `json:"episode_ticks"`
	Exchanges     int64     `json:"exchanges"`
	SimTime       float64   `json:"sim_time"`
	Started       int       `json:"episodes_started"`
	TotalTicks    int64     `json:"total_ticks"`
	LastWinner    int       `json:"last_winner"`
	LastCause     string    `json:"last_cause,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Synchronizer is the per-tick driver of the controller protocol.
// Tick must be called from a single goroutine.
type Synchronizer struct {
	transport Transport
	world     World
	clock     Clock
	opts      Options
	decoder   ActionDecoder
	lifecycle *Lifecycle
	framer    *protocol.Framer
	async     *asyncLink

	logger   *logger.Logger
	metrics  *metrics.Collector
	eventLog *events.EventLog
	recorder Recorder
	sink     FrameSink

	ticks       int64
	last        rules.Outcome
	lastActions map[int][5]float64
	status      atomic.Pointer[Status]
}

// NewSynchronizer wires the bridge. Nil collaborators get inert defaults.
func NewSynchronizer(t Transport, w World, opts Options, log *logger.Logger, m *metrics.Collector, el *events.EventLog) *Synchronizer {
	if opts.ActionRepeat < 1 {
		opts.ActionRepeat = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if log == nil {
		log = logger.Discard()
	}
	if m == nil {
		m = metrics.NewCollector()
	}
	if el == nil {
		el = events.NewEventLog()
	}
	s := &Synchronizer{
		transport: t,
		world:     w,
		clock:     nopClock{},
		opts:      opts,
		decoder:   ActionDecoder{Threshold: opts.FireThreshold},
		lifecycle: NewLifecycle(),
		framer:    protocol.NewFramer(opts.MaxPending),
		logger:    log,
		metrics:   m,
		eventLog:  el,
		last:      rules.Running,
	}
	if opts.Async {
		s.async = newAsyncLink(t, opts, log, m)
	}
	s.publishStatus()
	return s
}

// SetClock installs the clock paused during blocking waits.
func (s *Synchronizer) SetClock(c Clock) {
	if c == nil {
		c = nopClock{}
	}
	s.clock = c
}

// SetRecorder enables trajectory recording.
func (s *Synchronizer) SetRecorder(r Recorder) {
	s.recorder = r
}

// SetFrameSink publishes every exchanged observation to spectators.
func (s *Synchronizer) SetFrameSink(sink FrameSink) {
	s.sink = sink
}

// Start launches the network tasks in async mode. It is a no-op otherwise.
func (s *Synchronizer) Start(ctx context.Context) {
	if s.async != nil {
		s.async.start(ctx)
	}
}

// Phase returns the current lifecycle phase. Tick goroutine only.
func (s *Synchronizer) Phase() Phase {
	return s.lifecycle.Phase()
}

// Stopped reports whether end has been received.
func (s *Synchronizer) Stopped() bool {
	return s.lifecycle.Phase() == PhaseStopped
}

// Status returns the latest snapshot.
func (s *Synchronizer) Status() Status {
	return *s.status.Load()
}

// Tick runs the protocol for one simulation step of dt seconds. A returned
// error other than ErrStopped is a transport failure and fatal to the service.
func (s *Synchronizer) Tick(dt float64) error {
	if s.lifecycle.Phase() == PhaseStopped {
		return ErrStopped
	}
	s.ticks++

	var err error
	if s.lifecycle.Phase() == PhaseAwaiting {
		err = s.idle()
	} else {
		err = s.running(dt)
	}
	s.publishStatus()
	return err
}

// Close aborts a running episode and releases the connection.
func (s *Synchronizer) Close() error {
	if s.lifecycle.Phase() == PhaseRunning {
		s.world.Halt()
		s.finishEpisode(rules.Aborted(rules.CauseShutdown))
	}
	s.publishStatus()
	if s.async != nil {
		return s.async.close()
	}
	return s.transport.Close()
}

// idle handles at most one handshake message.
func (s *Synchronizer) idle() error {
	var msg []byte
	var err error
	if s.async != nil {
		msg, err = s.async.poll()
	} else {
		msg, err = s.pollOnce()
	}
	if err != nil || msg == nil {
		return err
	}
	return s.handleHandshake(msg)
}

func (s *Synchronizer) running(dt float64) error {
	counter := s.lifecycle.Advance(dt)

	if s.async != nil {
		if err := s.drainReplies(); err != nil {
			return err
		}
		if s.lifecycle.Phase() != PhaseRunning {
			return nil
		}
	}

	outcome := s.world.Outcome()
	if counter < s.opts.ActionRepeat && !outcome.Done {
		return nil
	}
	return s.exchange(outcome)
}

func (s *Synchronizer) exchange(outcome rules.Outcome) error {
	ep := s.lifecycle.Episode()
	obs := BuildObservation(s.world.Tracked())

	if outcome.Done {
		payload, err := protocol.EncodeTerminal(obs, outcome.Winner)
		if err != nil {
			return err
		}
		if err := s.send(payload, true); err != nil {
			return err
		}
		s.lifecycle.Exchanged()
		s.record(ep, obs, nil, outcome)
		s.publishFrame(ep, obs, outcome)
		s.world.Halt()
		s.finishEpisode(outcome)
		return nil
	}

	payload, err := protocol.EncodeState(obs)
	if err != nil {
		return err
	}
	if err := s.send(payload, false); err != nil {
		return err
	}
	s.publishFrame(ep, obs, rules.Running)

	if s.async != nil {
		s.lifecycle.Exchanged()
		s.record(ep, obs, s.lastActions, rules.Running)
		return nil
	}

	s.clock.Pause()
	waitStart := time.Now()
	raw, err := s.awaitReply()
	s.clock.Resume()
	s.metrics.RecordExchange(time.Since(waitStart))
	if err != nil {
		return err
	}
	s.lifecycle.Exchanged()
	return s.handleReply(raw, ep, obs)
}

// handleReply interprets a step reply. raw is nil for malformed input.
func (s *Synchronizer) handleReply(raw []byte, ep *Episode, obs protocol.Observation) error {
	if raw == nil {
		s.record(ep, obs, nil, rules.Running)
		return nil
	}
	reply, err := protocol.DecodeStepReply(raw)
	if err != nil {
		s.metrics.RecordMalformed()
		s.logger.Debug("malformed step reply, keeping previous controls", "err", err)
		s.record(ep, obs, nil, rules.Running)
		return nil
	}
	if reply.Restart {
		return s.abortEpisode()
	}

	applied, ignored := s.decoder.Apply(s.world, reply.Actions)
	if reply.Rejected > 0 {
		s.metrics.RecordMalformed()
	}
	if ignored > 0 {
		s.metrics.RecordIgnored()
	}
	s.logger.Debug("actions applied", "applied", applied, "ignored", ignored, "rejected", reply.Rejected)

	actions := make(map[int][5]float64, len(reply.Actions))
	for id, a := range reply.Actions {
		actions[id] = a
	}
	s.lastActions = actions
	s.record(ep, obs, actions, rules.Running)
	return nil
}

// drainReplies processes queued controller messages while an episode runs.
func (s *Synchronizer) drainReplies() error {
	for s.lifecycle.Phase() == PhaseRunning {
		msg, err := s.async.poll()
		if err != nil {
			return err
		}
		if msg == nil {
			return nil
		}
		reply, err := protocol.DecodeStepReply(msg)
		if err != nil {
			s.metrics.RecordMalformed()
			continue
		}
		if reply.Restart {
			return s.abortEpisode()
		}
		s.decoder.Apply(s.world, reply.Actions)
		actions := make(map[int][5]float64, len(reply.Actions))
		for id, a := range reply.Actions {
			actions[id] = a
		}
		s.lastActions = actions
	}
	return nil
}

func (s *Synchronizer) handleHandshake(raw []byte) error {
	intent := protocol.DecodeHandshake(raw)
	s.logger.Debug("handshake received", "intent", intent.String())

	switch intent {
	case protocol.IntentStart:
		return s.startEpisode()
	case protocol.IntentEnd:
		return s.stop()
	case protocol.IntentRestart:
		if err := s.sendAck(protocol.IntentRestart); err != nil {
			return err
		}
		s.world.Reset()
		s.eventLog.Append(events.GameEvent{
			Type:    events.EventTypeArenaReset,
			ActorID: events.ActorController,
			Tick:    s.ticks,
		})
		s.logger.Info("arena reset while idle")
		return nil
	default:
		s.metrics.RecordIgnored()
		s.logger.Debug("ignored handshake message", "bytes", len(raw))
		return nil
	}
}

func (s *Synchronizer) startEpisode() error {
	s.world.Reset()
	ep, err := s.lifecycle.Start(time.Now())
	if err != nil {
		return err
	}
	s.world.Begin(ep.ID)
	s.lastActions = nil

	if s.recorder != nil {
		if err := s.recorder.Begin(ep.ID); err != nil {
			s.logger.Error("failed to start trajectory", "episode", ep.ID, "err", err)
		}
	}

	s.eventLog.Append(events.GameEvent{
		Type:      events.EventTypeEpisodeStarted,
		ActorID:   events.ActorController,
		EpisodeID: ep.ID,
		Tick:      s.ticks,
		Payload:   map[string]interface{}{"number": ep.Number},
	})
	s.metrics.RecordEpisode("started")
	s.logger.Info("episode started", "episode", ep.ID, "number", ep.Number)
	return s.sendAck(protocol.IntentStart)
}

func (s *Synchronizer) stop() error {
	if err := s.sendAck(protocol.IntentEnd); err != nil {
		return err
	}
	s.lifecycle.Stop()
	s.eventLog.Append(events.GameEvent{
		Type:    events.EventTypeServiceEnding,
		ActorID: events.ActorController,
		Tick:    s.ticks,
	})
	s.logger.Info("end received, stopping")
	return nil
}

func (s *Synchronizer) abortEpisode() error {
	if err := s.sendAck(protocol.IntentRestart); err != nil {
		return err
	}
	s.world.Halt()
	s.finishEpisode(rules.Aborted(rules.CauseRestart))
	s.world.Reset()
	return nil
}

// finishEpisode closes the running episode and records its result.
func (s *Synchronizer) finishEpisode(outcome rules.Outcome) {
	ep, err := s.lifecycle.Finish()
	if err != nil {
		return
	}
	s.last = outcome

	var path, fingerprint string
	if s.recorder != nil {
		path, fingerprint, err = s.recorder.Finish()
		if err != nil {
			s.logger.Error("failed to finish trajectory", "episode", ep.ID, "err", err)
			s.recorder.Discard()
			path, fingerprint = "", ""
		}
	}

	eventType := events.EventTypeEpisodeFinished
	kind := "finished"
	if outcome.Cause == rules.CauseRestart || outcome.Cause == rules.CauseShutdown {
		eventType = events.EventTypeEpisodeAborted
		kind = "aborted"
	}

	s.eventLog.Append(events.GameEvent{
		Type:      eventType,
		ActorID:   events.ActorArena,
		EpisodeID: ep.ID,
		Tick:      ep.Ticks,
		Payload: events.EpisodeResultPayload{
			EpisodeID:      ep.ID,
			Number:         ep.Number,
			Ticks:          ep.Ticks,
			Exchanges:      ep.Exchanges,
			Winner:         outcome.Winner,
			Cause:          string(outcome.Cause),
			StartedAt:      ep.StartedAt,
			EndedAt:        time.Now(),
			Fingerprint:    fingerprint,
			TrajectoryPath: path,
		},
	})
	s.metrics.RecordEpisode(kind)
	s.logger.Info("episode "+kind, "episode", ep.ID, "winner", outcome.Winner, "cause", string(outcome.Cause), "ticks", ep.Ticks)
}

func (s *Synchronizer) sendAck(intent protocol.Intent) error {
	ack, _ := protocol.AckFor(intent)
	payload, err := protocol.EncodeAck(ack)
	if err != nil {
		return err
	}
	return s.send(payload, true)
}

// send writes one message. In async mode it is queued; a full queue drops
// state frames but never acks or terminal messages (control).
func (s *Synchronizer) send(payload []byte, control bool) error {
	if s.async != nil {
		if !s.async.enqueue(payload, control) {
			s.metrics.RecordDroppedFrame()
			return nil
		}
		s.metrics.RecordMessage(false, len(payload))
		return nil
	}
	if err := s.transport.Send(payload); err != nil {
		return err
	}
	s.metrics.RecordMessage(false, len(payload))
	return nil
}

// pollOnce returns a buffered message or performs a single receive.
func (s *Synchronizer) pollOnce() ([]byte, error) {
	if msg, ok := s.nextFramed(); ok {
		return msg, nil
	}
	s.clock.Pause()
	data, err := s.transport.Receive()
	s.clock.Resume()
	if err != nil {
		return nil, err
	}
	s.framer.Push(data)
	msg, _ := s.nextFramed()
	return msg, nil
}

// awaitReply blocks until one complete message arrives. A nil message with a
// nil error means the input was malformed.
func (s *Synchronizer) awaitReply() ([]byte, error) {
	if d, ok := s.transport.(receiveDeadliner); ok && s.opts.ReplyTimeout > 0 {
		d.SetReceiveTimeout(s.opts.ReplyTimeout)
		defer d.SetReceiveTimeout(0)
	}
	for {
		msg, ok := s.nextFramed()
		if ok {
			return msg, nil
		}
		data, err := s.transport.Receive()
		if err != nil {
			return nil, err
		}
		s.framer.Push(data)
	}
}

// nextFramed pops the next buffered message. ok is false when more bytes are
// needed; a malformed message yields (nil, true).
func (s *Synchronizer) nextFramed() ([]byte, bool) {
	msg, err := s.framer.Next()
	if err != nil {
		s.metrics.RecordMalformed()
		s.logger.Debug("dropping malformed input", "err", err)
		return nil, true
	}
	if msg == nil {
		return nil, false
	}
	s.metrics.RecordMessage(true, len(msg))
	return msg, true
}

func (s *Synchronizer) record(ep *Episode, obs protocol.Observation, actions map[int][5]float64, outcome rules.Outcome) {
	if s.recorder == nil || ep == nil {
		return
	}
	frame := trajectory.Frame{
		Tick:        ep.Ticks,
		Observation: obs.Slice(),
		Actions:     actions,
		Done:        outcome.Done,
		Winner:      outcome.Winner,
	}
	if err := s.recorder.Record(frame); err != nil {
		s.logger.Debug("trajectory frame not recorded", "err", err)
	}
}

func (s *Synchronizer) publishFrame(ep *Episode, obs protocol.Observation, outcome rules.Outcome) {
	if s.sink == nil || ep == nil {
		return
	}
	s.sink.PublishFrame(Frame{
		EpisodeID: ep.ID,
		Tick:      ep.Ticks,
		State:     obs.Slice(),
		Done:      outcome.Done,
		Winner:    outcome.Winner,
	})
}

func (s *Synchronizer) publishStatus() {
	st := &Status{
		Phase:      s.lifecycle.Phase().String(),
		Mode:       "lockstep",
		Started:    s.lifecycle.Started(),
		TotalTicks: s.ticks,
		LastWinner: s.last.Winner,
		LastCause:  string(s.last.Cause),
		UpdatedAt:  time.Now(),
	}
	if s.async != nil {
		st.Mode = "async"
	}
	if ep := s.lifecycle.Episode(); ep != nil {
		st.EpisodeID = ep.ID
		st.EpisodeNumber = ep.Number
		st.EpisodeTicks = ep.Ticks
		st.Exchanges = ep.Exchanges
		st.SimTime = ep.SimTime
	}
	s.status.Store(st)
}

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/MRamiBalles/TankArenaBridge/internal/domain/geom"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/rules"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/tank"
	"github.com/MRamiBalles/TankArenaBridge/internal/events"
	"github.com/MRamiBalles/TankArenaBridge/internal/infra/trajectory"
	"github.com/MRamiBalles/TankArenaBridge/internal/protocol"
)

// --- fakes ---

var errReceiveTimeout = errors.New("fake: nothing to receive")

type fakeTransport struct {
	in     chan []byte
	closed chan struct{}
	clock  *fakeClock

	mu            sync.Mutex
	sent          [][]byte
	receives      int
	pausedOnRecv  int
	closeOnce     sync.Once
	receiveErr    error
	receiveWaitMS int
	// sendGate, when set, holds every Send until it is closed.
	sendGate chan struct{}
	// timeout mimics a socket read deadline; timeouts records it per Receive.
	timeout  time.Duration
	timeouts []time.Duration
}

func newFakeTransport(msgs ...string) *fakeTransport {
	t := &fakeTransport{in: make(chan []byte, 64), closed: make(chan struct{}), receiveWaitMS: 200}
	for _, m := range msgs {
		t.in <- []byte(m)
	}
	return t
}

func (f *fakeTransport) push(msg string) { f.in <- []byte(msg) }

func (f *fakeTransport) Send(p []byte) error {
	if f.sendGate != nil {
		<-f.sendGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), p...))
	return nil
}

func (f *fakeTransport) Receive() ([]byte, error) {
	f.mu.Lock()
	f.receives++
	if f.clock != nil && f.clock.paused {
		f.pausedOnRecv++
	}
	err := f.receiveErr
	wait := time.Duration(f.receiveWaitMS) * time.Millisecond
	if f.timeout > 0 {
		wait = f.timeout
	}
	f.timeouts = append(f.timeouts, f.timeout)
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	select {
	case b := <-f.in:
		return b, nil
	case <-f.closed:
		return nil, io.EOF
	case <-time.After(wait):
		return nil, errReceiveTimeout
	}
}

func (f *fakeTransport) SetReceiveTimeout(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeout = d
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) messages() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.sent))
	for _, raw := range f.sent {
		var m map[string]any
		json.Unmarshal(raw, &m)
		out = append(out, m)
	}
	return out
}

type fakeClock struct {
	paused          bool
	pauses, resumes int
}

func (c *fakeClock) Pause()  { c.paused = true; c.pauses++ }
func (c *fakeClock) Resume() { c.paused = false; c.resumes++ }

type fakeWorld struct {
	resets, begins, halts int
	episodeID             string
	outcome               rules.Outcome
	tracked               []EntityView
	remote                []int
	controls              map[int]tank.Control
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		outcome: rules.Running,
		remote:  []int{1, 2},
		tracked: []EntityView{
			{ID: 1, Team: 0, Present: true, Position: geom.V(-6, 0)},
			{ID: 2, Team: 1, Present: true, Position: geom.V(6, 0)},
		},
		controls: map[int]tank.Control{},
	}
}

func (w *fakeWorld) Reset()                 { w.resets++; w.outcome = rules.Running; w.controls = map[int]tank.Control{} }
func (w *fakeWorld) Begin(id string)        { w.begins++; w.episodeID = id }
func (w *fakeWorld) Halt()                  { w.halts++ }
func (w *fakeWorld) Tracked() []EntityView  { return w.tracked }
func (w *fakeWorld) Outcome() rules.Outcome { return w.outcome }
func (w *fakeWorld) RemoteEntities() []int  { return w.remote }
func (w *fakeWorld) ApplyControl(id int, c tank.Control) bool {
	w.controls[id] = c
	return true
}

type fakeRecorder struct {
	begun, finished int
	frames          []trajectory.Frame
}

func (r *fakeRecorder) Begin(string) error { r.begun++; r.frames = nil; return nil }
func (r *fakeRecorder) Record(f trajectory.Frame) error {
	r.frames = append(r.frames, f)
	return nil
}
func (r *fakeRecorder) Finish() (string, string, error) {
	r.finished++
	return "/tmp/x.traj.lz4", "fp", nil
}
func (r *fakeRecorder) Discard() error { return nil }

func newTestSync(t *testing.T, opts Options, msgs ...string) (*Synchronizer, *fakeTransport, *fakeWorld, *events.EventLog) {
	t.Helper()
	tr := newFakeTransport(msgs...)
	w := newFakeWorld()
	el := events.NewEventLog()
	s := NewSynchronizer(tr, w, opts, nil, nil, el)
	return s, tr, w, el
}

const reply = `{"1":[1,0,0,1,1],"2":[0,-1,1,0,0]}`

// --- lifecycle ---

func TestLifecycleTransitions(t *testing.T) {
	l := NewLifecycle()
	if l.Phase() != PhaseAwaiting {
		t.Fatalf("Initial phase = %v", l.Phase())
	}
	if _, err := l.Finish(); err == nil {
		t.Error("Finish without a running episode should fail")
	}
	ep, err := l.Start(time.Now())
	if err != nil || ep.Number != 1 || l.Phase() != PhaseRunning {
		t.Fatalf("Start: %v %+v", err, ep)
	}
	if _, err := l.Start(time.Now()); err == nil {
		t.Error("Only one episode may run at a time")
	}
	l.Advance(0.02)
	if n := l.Advance(0.02); n != 2 {
		t.Errorf("Counter = %d, want 2", n)
	}
	l.Exchanged()
	if n := l.Advance(0.02); n != 1 {
		t.Errorf("Counter after exchange = %d, want 1", n)
	}
	done, _ := l.Finish()
	if done.Ticks != 3 || done.Exchanges != 1 || l.Phase() != PhaseAwaiting {
		t.Errorf("Finish: %+v phase %v", done, l.Phase())
	}
	l.Stop()
	if l.Phase() != PhaseStopped {
		t.Error("Stop is terminal")
	}
}

// --- observation ---

func TestBuildObservationLayout(t *testing.T) {
	views := []EntityView{
		{
			ID: 1, Present: true,
			Position: geom.V(4, -2), Velocity: geom.V(1, 0), Aim: geom.V(0, 1),
			Projectiles: []ProjectileView{{Position: geom.V(8, 4), Velocity: geom.V(0.3, 0)}},
		},
		{ID: 2, Present: false},
	}
	obs := BuildObservation(views)
	if len(obs.Slice()) != 52 {
		t.Fatalf("Observation length = %d", len(obs.Slice()))
	}

	want := []float64{0.5, -0.5, 1, 0, 0, 1, 1, 1, 0.3, 0}
	for i, v := range want {
		if obs[i] != v {
			t.Errorf("obs[%d] = %v, want %v", i, obs[i], v)
		}
	}
	for i := 10; i < 52; i++ {
		if obs[i] != protocol.Sentinel {
			t.Errorf("obs[%d] = %v, want sentinel", i, obs[i])
		}
	}
}

func TestBuildObservationDropsExcessProjectiles(t *testing.T) {
	var ps []ProjectileView
	for i := 0; i < 7; i++ {
		ps = append(ps, ProjectileView{Position: geom.V(float64(i), 0)})
	}
	obs := BuildObservation([]EntityView{
		{ID: 1, Present: true, Projectiles: ps},
		{ID: 2, Present: true, Position: geom.V(-8, 4)},
	})
	if got := obs.Projectile(0, 4)[0]; got != 4.0/8 {
		t.Errorf("Fifth projectile x = %v", got)
	}
	// The second entity is untouched by the overflow.
	if e := obs.Entity(1); e[0] != -1 || e[1] != 1 {
		t.Errorf("Second entity corrupted: %v", e[:2])
	}
}

// --- actions ---

func TestActionDecoder(t *testing.T) {
	w := newFakeWorld()
	w.remote = []int{1}
	d := ActionDecoder{Threshold: 0.5}

	applied, ignored := d.Apply(w, map[int]protocol.Action{
		1: {3, -3, 0.2, 0, 0.6},
		2: {1, 1, 1, 1, 1},
	})
	if applied != 1 || ignored != 1 {
		t.Errorf("applied=%d ignored=%d", applied, ignored)
	}
	c := w.controls[1]
	if c.Move != geom.V(1, -1) || !c.Fire || c.Aim != geom.V(0.2, 0) {
		t.Errorf("Unexpected control %+v", c)
	}
	if _, ok := w.controls[2]; ok {
		t.Error("Scripted entity must not receive remote actions")
	}

	// Missing key keeps the previous control.
	d.Apply(w, map[int]protocol.Action{})
	if w.controls[1] != c {
		t.Error("Missing entity key should leave controls unchanged")
	}

	if d.Control(protocol.Action{0, 0, 0, 0, 0.5}).Fire {
		t.Error("Fire requires strictly above threshold")
	}
}

// --- synchronizer ---

func TestScenarioA_StartThenStates(t *testing.T) {
	s, tr, w, _ := newTestSync(t, DefaultOptions(), `{"start":true}`, reply, reply)

	for i := 0; i < 3; i++ {
		if err := s.Tick(0.02); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
	}
	msgs := tr.messages()
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 outbound messages, got %d", len(msgs))
	}
	if msgs[0]["starting"] != true {
		t.Errorf("First message = %v, want starting ack", msgs[0])
	}
	for _, m := range msgs[1:] {
		state, ok := m["state"].([]any)
		if !ok || len(state) != 52 {
			t.Errorf("Expected 52-entry state, got %v", m)
		}
		if _, done := m["done"]; done {
			t.Errorf("Non-terminal state carries done")
		}
	}
	if w.resets != 1 || w.begins != 1 {
		t.Errorf("resets=%d begins=%d", w.resets, w.begins)
	}
	if c := w.controls[1]; c.Move != geom.V(1, 0) || !c.Fire {
		t.Errorf("Action not applied: %+v", c)
	}
	if s.Status().Exchanges != 2 {
		t.Errorf("Status exchanges = %d", s.Status().Exchanges)
	}
}

func TestNoStateBeforeStart(t *testing.T) {
	s, tr, _, _ := newTestSync(t, DefaultOptions(), `{"hello":1}`, `{"start":false}`)
	s.Tick(0.02)
	s.Tick(0.02)
	if n := len(tr.messages()); n != 0 {
		t.Fatalf("Ignored handshakes must not be answered, got %d messages", n)
	}
	if s.Phase() != PhaseAwaiting {
		t.Errorf("Phase = %v", s.Phase())
	}
}

func TestActionRepeat(t *testing.T) {
	opts := DefaultOptions()
	opts.ActionRepeat = 3
	s, tr, _, _ := newTestSync(t, opts, `{"start":true}`, reply, reply, reply)

	s.Tick(0.02) // start
	var exchangeTicks []int
	for tick := 1; tick <= 9; tick++ {
		before := len(tr.messages())
		if err := s.Tick(0.02); err != nil {
			t.Fatalf("Tick %d: %v", tick, err)
		}
		if len(tr.messages()) > before {
			exchangeTicks = append(exchangeTicks, tick)
		}
	}
	want := []int{3, 6, 9}
	if len(exchangeTicks) != len(want) {
		t.Fatalf("Exchange ticks = %v, want %v", exchangeTicks, want)
	}
	for i := range want {
		if exchangeTicks[i] != want[i] {
			t.Errorf("Exchange ticks = %v, want %v", exchangeTicks, want)
		}
	}
}

func TestDoneForcesImmediateExchange(t *testing.T) {
	opts := DefaultOptions()
	opts.ActionRepeat = 5
	s, tr, w, el := newTestSync(t, opts, `{"start":true}`)
	rec := &fakeRecorder{}
	s.SetRecorder(rec)

	s.Tick(0.02)
	s.Tick(0.02)
	w.outcome = rules.Outcome{Done: true, Winner: 1, Cause: rules.CauseElimination}
	if err := s.Tick(0.02); err != nil {
		t.Fatalf("Terminal tick must not wait for a reply: %v", err)
	}

	msgs := tr.messages()
	last := msgs[len(msgs)-1]
	if last["done"] != true || last["winner"] != float64(1) {
		t.Fatalf("Expected terminal message, got %v", last)
	}
	if s.Phase() != PhaseAwaiting || w.halts != 1 {
		t.Errorf("phase=%v halts=%d", s.Phase(), w.halts)
	}
	if rec.finished != 1 || len(rec.frames) != 1 || !rec.frames[0].Done {
		t.Errorf("Recorder: finished=%d frames=%+v", rec.finished, rec.frames)
	}
	finished := el.GetByType(events.EventTypeEpisodeFinished)
	if len(finished) != 1 {
		t.Fatalf("Expected one EPISODE_FINISHED event, got %d", len(finished))
	}
	p := finished[0].Payload.(events.EpisodeResultPayload)
	if p.Winner != 1 || p.Cause != "ELIMINATION" || p.Fingerprint != "fp" {
		t.Errorf("Unexpected result payload %+v", p)
	}
}

func TestScenarioC_TimeLimitDraw(t *testing.T) {
	s, tr, w, _ := newTestSync(t, DefaultOptions(), `{"start":true}`)
	s.Tick(0.02)
	w.outcome = rules.Decide(2, 1, true)
	if err := s.Tick(0.02); err != nil {
		t.Fatal(err)
	}
	msgs := tr.messages()
	if last := msgs[len(msgs)-1]; last["done"] != true || last["winner"] != float64(-1) {
		t.Errorf("Expected draw terminal, got %v", last)
	}
}

func TestScenarioB_RestartDuringEpisode(t *testing.T) {
	s, tr, w, el := newTestSync(t, DefaultOptions(), `{"start":true}`, `{"restart":true}`)
	s.Tick(0.02)
	if err := s.Tick(0.02); err != nil {
		t.Fatal(err)
	}

	msgs := tr.messages()
	if last := msgs[len(msgs)-1]; last["restarting"] != true {
		t.Fatalf("Expected restarting ack, got %v", last)
	}
	if s.Phase() != PhaseAwaiting {
		t.Errorf("Phase = %v", s.Phase())
	}
	if w.resets != 2 {
		t.Errorf("World should be reset on restart, resets=%d", w.resets)
	}
	aborted := el.GetByType(events.EventTypeEpisodeAborted)
	if len(aborted) != 1 || aborted[0].Payload.(events.EpisodeResultPayload).Cause != "RESTART" {
		t.Errorf("Expected one RESTART abort, got %+v", aborted)
	}
	if got := aborted[0].Payload.(events.EpisodeResultPayload).Winner; got != rules.NoWinner {
		t.Errorf("Aborted winner = %d", got)
	}
}

func TestRestartWhileIdle(t *testing.T) {
	s, tr, w, el := newTestSync(t, DefaultOptions(), `{"restart":true}`)
	s.Tick(0.02)
	if msgs := tr.messages(); len(msgs) != 1 || msgs[0]["restarting"] != true {
		t.Fatalf("Expected restarting ack, got %v", msgs)
	}
	if s.Phase() != PhaseAwaiting || w.resets != 1 {
		t.Errorf("phase=%v resets=%d", s.Phase(), w.resets)
	}
	if len(el.GetByType(events.EventTypeArenaReset)) != 1 {
		t.Error("Expected ARENA_RESET event")
	}
}

func TestEndIsIdempotent(t *testing.T) {
	s, tr, _, _ := newTestSync(t, DefaultOptions(), `{"end":true}`, `{"end":true}`)
	if err := s.Tick(0.02); err != nil {
		t.Fatal(err)
	}
	if !s.Stopped() {
		t.Fatal("Expected stopped")
	}
	if err := s.Tick(0.02); !errors.Is(err, ErrStopped) {
		t.Errorf("Tick after end = %v, want ErrStopped", err)
	}
	msgs := tr.messages()
	if len(msgs) != 1 || msgs[0]["ending"] != true {
		t.Errorf("Expected exactly one ending ack, got %v", msgs)
	}
	tr.mu.Lock()
	receives := tr.receives
	tr.mu.Unlock()
	if receives != 1 {
		t.Errorf("No reads after end, got %d receives", receives)
	}
}

func TestCoalescedMessages(t *testing.T) {
	s, tr, w, _ := newTestSync(t, DefaultOptions(), `{"start":true}`+reply)
	s.Tick(0.02)
	if err := s.Tick(0.02); err != nil {
		t.Fatalf("Buffered reply should be used: %v", err)
	}
	if len(tr.messages()) != 2 || w.controls[2].Move != geom.V(0, -1) {
		t.Errorf("Coalesced reply not applied: %v", w.controls)
	}
}

func TestMalformedReplyKeepsControls(t *testing.T) {
	s, _, w, _ := newTestSync(t, DefaultOptions(), `{"start":true}`, reply, `{not json`, `{"1":"nope"}`)
	s.Tick(0.02)
	s.Tick(0.02)
	before := w.controls[1]
	for i := 0; i < 2; i++ {
		if err := s.Tick(0.02); err != nil {
			t.Fatalf("Malformed payloads must not be fatal: %v", err)
		}
	}
	if w.controls[1] != before {
		t.Error("Controls changed after malformed reply")
	}
	if s.Phase() != PhaseRunning {
		t.Errorf("Phase = %v", s.Phase())
	}
}

func TestClockPausedWhileWaiting(t *testing.T) {
	s, tr, _, _ := newTestSync(t, DefaultOptions(), `{"start":true}`, reply)
	clock := &fakeClock{}
	tr.clock = clock
	s.SetClock(clock)

	s.Tick(0.02)
	s.Tick(0.02)
	if clock.paused {
		t.Error("Clock left paused")
	}
	if clock.pauses != clock.resumes || clock.pauses < 2 {
		t.Errorf("pauses=%d resumes=%d", clock.pauses, clock.resumes)
	}
	if tr.pausedOnRecv != tr.receives {
		t.Errorf("Every receive must happen with the clock paused (%d/%d)", tr.pausedOnRecv, tr.receives)
	}
}

func TestTransportFailureIsFatal(t *testing.T) {
	s, tr, _, _ := newTestSync(t, DefaultOptions())
	tr.receiveErr = io.ErrUnexpectedEOF
	if err := s.Tick(0.02); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Expected transport error, got %v", err)
	}
}

func TestReplyTimeoutSparesIdlePoll(t *testing.T) {
	opts := DefaultOptions()
	opts.ReplyTimeout = 30 * time.Millisecond
	s, tr, _, _ := newTestSync(t, opts)

	go func() {
		time.Sleep(100 * time.Millisecond)
		tr.push(`{"start":true}`)
	}()
	if err := s.Tick(0.02); err != nil {
		t.Fatalf("A slow start must not time out: %v", err)
	}
	if s.Phase() != PhaseRunning {
		t.Fatalf("Phase = %v, want running", s.Phase())
	}

	err := s.Tick(0.02)
	if !errors.Is(err, errReceiveTimeout) {
		t.Fatalf("A missing step reply should time out, got %v", err)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.timeouts) != 2 || tr.timeouts[0] != 0 || tr.timeouts[1] != opts.ReplyTimeout {
		t.Errorf("Receive deadlines = %v, want [0 %v]", tr.timeouts, opts.ReplyTimeout)
	}
	if tr.timeout != 0 {
		t.Errorf("Deadline left armed after the reply wait: %v", tr.timeout)
	}
}

func TestCloseAbortsRunningEpisode(t *testing.T) {
	s, _, _, el := newTestSync(t, DefaultOptions(), `{"start":true}`)
	s.Tick(0.02)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	aborted := el.GetByType(events.EventTypeEpisodeAborted)
	if len(aborted) != 1 || aborted[0].Payload.(events.EpisodeResultPayload).Cause != "SHUTDOWN" {
		t.Errorf("Expected SHUTDOWN abort, got %+v", aborted)
	}
}

func TestAsyncModeNeverBlocks(t *testing.T) {
	opts := DefaultOptions()
	opts.Async = true
	opts.QueueSize = 4
	s, tr, w, _ := newTestSync(t, opts)
	tr.receiveWaitMS = 5000
	clock := &fakeClock{}
	s.SetClock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Close()

	tickUntil := func(cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for !cond() {
			if time.Now().After(deadline) {
				t.Fatal("condition not reached")
			}
			start := time.Now()
			if err := s.Tick(0.02); err != nil {
				t.Fatalf("Tick: %v", err)
			}
			if time.Since(start) > 100*time.Millisecond {
				t.Fatal("Tick blocked in async mode")
			}
			time.Sleep(time.Millisecond)
		}
	}

	// Nothing to read: ticks return immediately.
	tickUntil(func() bool { return s.Status().TotalTicks >= 3 })

	tr.push(`{"start":true}`)
	tickUntil(func() bool { return s.Phase() == PhaseRunning })

	tr.push(reply)
	tickUntil(func() bool { return w.controls[1].Fire })

	tr.push(`{"restart":true}`)
	tickUntil(func() bool { return s.Phase() == PhaseAwaiting })

	if clock.pauses != 0 {
		t.Errorf("Async mode must not pause the clock, got %d pauses", clock.pauses)
	}
	time.Sleep(20 * time.Millisecond)
	var sawAck, sawState bool
	for _, m := range tr.messages() {
		if m["restarting"] == true {
			sawAck = true
		}
		if _, ok := m["state"]; ok {
			sawState = true
		}
	}
	if !sawAck || !sawState {
		t.Errorf("ack=%v state=%v", sawAck, sawState)
	}
}

func TestAsyncFullQueueKeepsControlMessages(t *testing.T) {
	opts := DefaultOptions()
	opts.Async = true
	opts.QueueSize = 1
	s, tr, w, _ := newTestSync(t, opts)
	tr.receiveWaitMS = 5000
	gate := make(chan struct{})
	tr.sendGate = gate

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Close()

	tickUntil := func(cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for !cond() {
			if time.Now().After(deadline) {
				t.Fatal("condition not reached")
			}
			if err := s.Tick(0.02); err != nil && !errors.Is(err, ErrStopped) {
				t.Fatalf("Tick: %v", err)
			}
			time.Sleep(time.Millisecond)
		}
	}

	tr.push(`{"start":true}`)
	tickUntil(func() bool { return s.Phase() == PhaseRunning })

	// The writer is stuck, so state frames back up behind the ack.
	for i := 0; i < 3; i++ {
		if err := s.Tick(0.02); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	w.outcome = rules.Outcome{Done: true, Winner: 1, Cause: rules.CauseElimination}
	if err := s.Tick(0.02); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if s.Phase() != PhaseAwaiting {
		t.Fatalf("Expected the episode to be over, phase %v", s.Phase())
	}

	tr.push(`{"end":true}`)
	tickUntil(s.Stopped)
	close(gate)

	deadline := time.Now().Add(2 * time.Second)
	var msgs []map[string]any
	for {
		msgs = tr.messages()
		if len(msgs) > 0 && msgs[len(msgs)-1]["ending"] == true {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("ending ack never written, got %v", msgs)
		}
		time.Sleep(time.Millisecond)
	}

	if msgs[0]["starting"] != true {
		t.Errorf("First message should be the starting ack, got %v", msgs[0])
	}
	done := msgs[len(msgs)-2]
	if done["done"] != true || done["winner"] != float64(1) {
		t.Errorf("Terminal message must survive a full queue, got %v", done)
	}
	if len(msgs) > 4 {
		t.Errorf("Expected at most one state between ack and done, got %d messages", len(msgs))
	}
}

// Package envclient is a controller-side client for the arena service.
// It speaks the same wire protocol as a training environment: restart and
// start an episode, exchange actions for observations, and end the service.
package envclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/MRamiBalles/TankArenaBridge/internal/protocol"
)

// ErrNoEpisode is returned by Step when no episode is running.
var ErrNoEpisode = errors.New("envclient: no episode running")

// Options configure Dial.
type Options struct {
	// Retries is the number of extra connection attempts while the service starts up.
	Retries    int
	RetryDelay time.Duration
	// Timeout bounds every wait for a service message. Zero waits forever.
	Timeout    time.Duration
	BufferSize int
}

// DefaultOptions retry for about ten seconds.
func DefaultOptions() Options {
	return Options{Retries: 50, RetryDelay: 200 * time.Millisecond, Timeout: 30 * time.Second, BufferSize: 64 * 1024}
}

// StepResult is one observation from the service.
type StepResult struct {
	Observation protocol.Observation
	Done        bool
	Winner      int
}

// Env is a connected controller. It is not safe for concurrent use.
type Env struct {
	conn    net.Conn
	framer  *protocol.Framer
	buf     []byte
	opts    Options
	running bool
}

// Dial connects to the service, retrying while it is not yet listening.
func Dial(ctx context.Context, addr string, opts Options) (*Env, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 64 * 1024
	}
	var d net.Dialer
	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(opts.RetryDelay):
			}
		}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return &Env{
				conn:   conn,
				framer: protocol.NewFramer(0),
				buf:    make([]byte, opts.BufferSize),
				opts:   opts,
			}, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to connect to %s: %w", addr, lastErr)
}

// Running reports whether an episode is in progress.
func (e *Env) Running() bool {
	return e.running
}

// Reset abandons any running episode, starts a new one and returns its
// first observation.
func (e *Env) Reset(ctx context.Context) (StepResult, error) {
	if err := e.handshake(ctx, protocol.IntentRestart); err != nil {
		return StepResult{}, err
	}
	e.running = false
	if err := e.handshake(ctx, protocol.IntentStart); err != nil {
		return StepResult{}, err
	}
	e.running = true
	return e.nextStep(ctx)
}

// Step sends one action per entity and returns the next observation.
func (e *Env) Step(ctx context.Context, actions map[int]protocol.Action) (StepResult, error) {
	if !e.running {
		return StepResult{}, ErrNoEpisode
	}
	payload, err := protocol.EncodeActions(actions)
	if err != nil {
		return StepResult{}, err
	}
	if err := e.send(payload); err != nil {
		return StepResult{}, err
	}
	return e.nextStep(ctx)
}

// Close ends the service and closes the connection.
func (e *Env) Close(ctx context.Context) error {
	defer e.conn.Close()
	if e.running {
		if err := e.handshake(ctx, protocol.IntentRestart); err != nil {
			return err
		}
		e.running = false
	}
	return e.handshake(ctx, protocol.IntentEnd)
}

// handshake sends a request and waits for its acknowledgement. Step
// messages still in flight are skipped.
func (e *Env) handshake(ctx context.Context, intent protocol.Intent) error {
	payload, err := protocol.EncodeHandshake(intent)
	if err != nil {
		return err
	}
	if err := e.send(payload); err != nil {
		return err
	}
	for {
		raw, err := e.read(ctx)
		if err != nil {
			return fmt.Errorf("waiting for %s ack: %w", intent, err)
		}
		ack, err := protocol.DecodeAck(raw)
		if err != nil {
			continue
		}
		switch {
		case intent == protocol.IntentStart && ack.Starting,
			intent == protocol.IntentEnd && ack.Ending,
			intent == protocol.IntentRestart && ack.Restarting:
			return nil
		}
	}
}

func (e *Env) nextStep(ctx context.Context) (StepResult, error) {
	for {
		raw, err := e.read(ctx)
		if err != nil {
			return StepResult{}, err
		}
		msg, err := protocol.DecodeStep(raw)
		if err != nil {
			continue
		}
		res := StepResult{Done: msg.Done, Winner: -1}
		if msg.Winner != nil {
			res.Winner = *msg.Winner
		}
		if len(msg.State) == protocol.ObservationLength {
			res.Observation, _ = protocol.ObservationFrom(msg.State)
		}
		if res.Done {
			e.running = false
		}
		return res, nil
	}
}

func (e *Env) send(payload []byte) error {
	if _, err := e.conn.Write(payload); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	return nil
}

// read returns the next complete message.
func (e *Env) read(ctx context.Context) ([]byte, error) {
	for {
		msg, err := e.framer.Next()
		if err != nil {
			continue
		}
		if msg != nil {
			return msg, nil
		}

		deadline, ok := ctx.Deadline()
		if e.opts.Timeout > 0 {
			if t := time.Now().Add(e.opts.Timeout); !ok || t.Before(deadline) {
				deadline, ok = t, true
			}
		}
		if ok {
			e.conn.SetReadDeadline(deadline)
		} else {
			e.conn.SetReadDeadline(time.Time{})
		}
		n, err := e.conn.Read(e.buf)
		if n > 0 {
			e.framer.Push(e.buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
	}
}

package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/MRamiBalles/TankArenaBridge/internal/platform/logger"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/metrics"
	"github.com/MRamiBalles/TankArenaBridge/internal/protocol"
)

// flushTimeout bounds how long close waits for queued messages to be written.
const flushTimeout = time.Second

// asyncLink moves socket I/O off the tick goroutine. The reader frames
// inbound bytes into inbox and the writer drains the outbound queue. The tick
// loop only touches the queues, never the socket or the framer.
//
// The outbound queue keeps send order. State frames are dropped when it is
// full; control and terminal messages are never dropped and evict the oldest
// queued state frame instead.
type asyncLink struct {
	transport Transport
	framer    *protocol.Framer
	inbox     chan []byte
	errc      chan error

	outMu    sync.Mutex
	outbox   []outbound
	outLimit int
	wake     chan struct{}

	logger  *logger.Logger
	metrics *metrics.Collector

	cancel     context.CancelFunc
	readDone   chan struct{}
	writeDone  chan struct{}
	started    bool
	closed     bool
	closeOnce  sync.Once
	closeError error
}

type outbound struct {
	payload []byte
	control bool
}

func newAsyncLink(t Transport, opts Options, log *logger.Logger, m *metrics.Collector) *asyncLink {
	return &asyncLink{
		transport: t,
		framer:    protocol.NewFramer(opts.MaxPending),
		inbox:     make(chan []byte, opts.QueueSize),
		errc:      make(chan error, 1),
		outLimit:  opts.QueueSize,
		wake:      make(chan struct{}, 1),
		logger:    log,
		metrics:   m,
		readDone:  make(chan struct{}),
		writeDone: make(chan struct{}),
	}
}

func (a *asyncLink) start(ctx context.Context) {
	if a.started {
		return
	}
	a.started = true
	ctx, a.cancel = context.WithCancel(ctx)
	go a.readLoop(ctx)
	go a.writeLoop(ctx)
}

func (a *asyncLink) readLoop(ctx context.Context) {
	defer close(a.readDone)
	for {
		data, err := a.transport.Receive()
		if err != nil {
			if ctx.Err() == nil {
				a.fail(err)
			}
			return
		}
		a.framer.Push(data)
		for {
			msg, err := a.framer.Next()
			if err != nil {
				a.metrics.RecordMalformed()
				a.logger.Debug("dropping malformed input", "err", err)
				continue
			}
			if msg == nil {
				break
			}
			a.metrics.RecordMessage(true, len(msg))
			select {
			case a.inbox <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (a *asyncLink) writeLoop(ctx context.Context) {
	defer close(a.writeDone)
	for {
		payload, ok, done := a.pop()
		if done {
			return
		}
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-a.wake:
			}
			continue
		}
		if err := a.transport.Send(payload); err != nil {
			a.fail(err)
			return
		}
	}
}

// pop takes the oldest queued message. done is true once the link is closed
// and the queue is empty.
func (a *asyncLink) pop() (payload []byte, ok, done bool) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	if len(a.outbox) == 0 {
		return nil, false, a.closed
	}
	next := a.outbox[0]
	a.outbox[0] = outbound{}
	a.outbox = a.outbox[1:]
	return next.payload, true, false
}

func (a *asyncLink) fail(err error) {
	select {
	case a.errc <- err:
	default:
	}
}

// poll returns the next inbound message without blocking. A network task
// failure is reported once queued messages have been consumed.
func (a *asyncLink) poll() ([]byte, error) {
	select {
	case msg := <-a.inbox:
		return msg, nil
	default:
	}
	select {
	case err := <-a.errc:
		return nil, err
	default:
		return nil, nil
	}
}

// enqueue queues an outbound message. A state frame is rejected when the
// queue is full. A control message always goes in, evicting the oldest
// queued state frame when the queue is full. Returns false when payload was
// not queued.
func (a *asyncLink) enqueue(payload []byte, control bool) bool {
	a.outMu.Lock()
	if a.closed {
		a.outMu.Unlock()
		return false
	}
	if len(a.outbox) >= a.outLimit {
		if !control {
			a.outMu.Unlock()
			return false
		}
		for i, o := range a.outbox {
			if !o.control {
				a.outbox = append(a.outbox[:i], a.outbox[i+1:]...)
				a.metrics.RecordDroppedFrame()
				break
			}
		}
	}
	a.outbox = append(a.outbox, outbound{payload: payload, control: control})
	a.outMu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return true
}

// close flushes queued messages, then releases the connection.
func (a *asyncLink) close() error {
	a.closeOnce.Do(func() {
		a.outMu.Lock()
		a.closed = true
		a.outMu.Unlock()
		if a.started {
			select {
			case a.wake <- struct{}{}:
			default:
			}
			select {
			case <-a.writeDone:
			case <-time.After(flushTimeout):
				a.logger.Warn("outbound queue not flushed before close")
			}
		}
		a.closeError = a.transport.Close()
		if a.started {
			a.cancel()
			<-a.readDone
		}
	})
	return a.closeError
}

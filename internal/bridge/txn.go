package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/algodomo/cerebro2mqtt/internal/metrics"
	"github.com/algodomo/cerebro2mqtt/internal/proto"
)

// ErrTransactionTimeout is returned by Engine.Execute when no matching
// frame arrives before the deadline.
var ErrTransactionTimeout = errors.New("bus transaction timed out")

// defaultTransactionTimeout is the spec's fixed 2-second ack/readback
// deadline.
const defaultTransactionTimeout = 2 * time.Second

// waiter is a single-slot rendezvous: at most one frame is ever delivered
// to ch before it is unregistered.
type waiter struct {
	address uint8
	matcher func(proto.Frame) bool
	ch      chan proto.Frame
}

// frameSender is the one serialio.Port method the engine needs; kept as
// an interface so tests can exercise Execute (including S7's timeout
// scenario) against a mock that drops writes.
type frameSender interface {
	Send(frame []byte) error
}

// Engine serializes every send+wait bus transaction behind one mutex, as
// the protocol is half-duplex: only one outstanding request is ever
// meaningful at a time.
type Engine struct {
	port frameSender

	txnMu sync.Mutex

	waitersMu sync.Mutex
	waiters   []*waiter

	latency *latencyRegistry

	// Unmatched receives every inbound frame that no waiter claimed, so
	// spontaneous status frames can still update published state (spec's
	// "Spontaneous inbound frames" dispatch).
	Unmatched func(proto.Frame)
}

// NewEngine wires Engine to port. port.ReadLoop's onFrame callback must
// call Engine.resolve for inbound frames to ever satisfy a waiter.
func NewEngine(port frameSender) *Engine {
	return &Engine{port: port, latency: newLatencyRegistry()}
}

// Stats returns one formatted line per transaction kind sampled so far,
// keyed by kind (e.g. "poll", "set", "setpoint").
func (e *Engine) Stats() map[string]string {
	return e.latency.snapshot()
}

// resolve is the serial read loop's per-frame callback: it offers frame
// to every registered waiter (oldest first) until one predicate matches.
// A panicking predicate is logged and treated as a non-match, mirroring
// the original tool's "predicate exceptions are logged and treated as
// no-match" behavior. A frame no waiter claims is forwarded to Unmatched.
func (e *Engine) resolve(frame proto.Frame) {
	e.waitersMu.Lock()
	for i, w := range e.waiters {
		if w.address != frame.Address {
			continue
		}
		if !safeMatch(w.matcher, frame) {
			continue
		}
		select {
		case w.ch <- frame:
		default:
		}
		e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
		e.waitersMu.Unlock()
		return
	}
	e.waitersMu.Unlock()

	if e.Unmatched != nil {
		e.Unmatched(frame)
	}
}

func safeMatch(matcher func(proto.Frame) bool, frame proto.Frame) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("transaction predicate panicked, treating as no-match", "recover", r)
			matched = false
		}
	}()
	return matcher(frame)
}

func (e *Engine) register(address uint8, matcher func(proto.Frame) bool) *waiter {
	w := &waiter{address: address, matcher: matcher, ch: make(chan proto.Frame, 1)}
	e.waitersMu.Lock()
	e.waiters = append(e.waiters, w)
	e.waitersMu.Unlock()
	return w
}

func (e *Engine) unregister(target *waiter) {
	e.waitersMu.Lock()
	defer e.waitersMu.Unlock()
	for i, w := range e.waiters {
		if w == target {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			return
		}
	}
}

// Execute sends raw to the bus and blocks until a frame from address
// satisfies matcher, ctx is cancelled, or timeout elapses (defaulting to
// the spec's 2 seconds when timeout is zero). kind labels the latency
// sample (e.g. "poll", "set", "setpoint", "season").
func (e *Engine) Execute(ctx context.Context, kind string, address uint8, raw []byte, matcher func(proto.Frame) bool, timeout time.Duration) (proto.Frame, error) {
	if timeout == 0 {
		timeout = defaultTransactionTimeout
	}

	e.txnMu.Lock()
	defer e.txnMu.Unlock()

	started := time.Now()
	w := e.register(address, matcher)
	defer e.unregister(w)

	if err := e.port.Send(raw); err != nil {
		metrics.TransactionsTotal.WithLabelValues(metrics.OutcomeSendFailed).Inc()
		return proto.Frame{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame := <-w.ch:
		e.latency.sample(kind, time.Since(started))
		metrics.TransactionsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
		return frame, nil
	case <-timer.C:
		metrics.TransactionsTotal.WithLabelValues(metrics.OutcomeTimeout).Inc()
		return proto.Frame{}, ErrTransactionTimeout
	case <-ctx.Done():
		metrics.TransactionsTotal.WithLabelValues(metrics.OutcomeTimeout).Inc()
		return proto.Frame{}, ctx.Err()
	}
}

// OnFrame is wired to serialio.Port.ReadLoop as the onFrame callback.
func (e *Engine) OnFrame(frame proto.Frame) {
	e.resolve(frame)
}

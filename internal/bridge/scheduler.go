package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/algodomo/cerebro2mqtt/internal/metrics"
	"github.com/algodomo/cerebro2mqtt/internal/proto"
)

// interAddressSpacing is the minimum gap between polling two different
// addresses on the same half-duplex bus.
const interAddressSpacing = 50 * time.Millisecond

// scheduler drives polling sweeps: one goroutine, manual triggers
// coalesced through a single buffered "poke" channel (the Go equivalent
// of a threading.Event), and an optional interval timer when auto-start
// is enabled.
type scheduler struct {
	engine *Engine

	addresses   func() []uint8
	pollOne     func(ctx context.Context, addr uint8) (proto.PollingStatus, error)
	onSweepDone func(addr uint8, status proto.PollingStatus, err error)

	poke chan struct{}
}

func newScheduler(engine *Engine, addresses func() []uint8, pollOne func(context.Context, uint8) (proto.PollingStatus, error), onSweepDone func(uint8, proto.PollingStatus, error)) *scheduler {
	return &scheduler{
		engine:      engine,
		addresses:   addresses,
		pollOne:     pollOne,
		onSweepDone: onSweepDone,
		poke:        make(chan struct{}, 1),
	}
}

// trigger coalesces a manual poll-all request: if one is already pending,
// this is a no-op.
func (s *scheduler) trigger() {
	select {
	case s.poke <- struct{}{}:
	default:
	}
}

// run blocks until ctx is cancelled. intervalSec <= 0 or autoStart false
// disables the periodic sweep; manual triggers still work.
func (s *scheduler) run(ctx context.Context, intervalSec int, autoStart bool) {
	var tickerC <-chan time.Time
	if autoStart && intervalSec > 0 {
		ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
		defer ticker.Stop()
		tickerC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.poke:
			s.sweep(ctx)
		case <-tickerC:
			s.sweep(ctx)
		}
	}
}

func (s *scheduler) sweep(ctx context.Context) {
	started := time.Now()
	defer func() {
		metrics.PollSweepDuration.Observe(time.Since(started).Seconds())
	}()

	for _, addr := range s.addresses() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		status, err := s.pollOne(ctx, addr)
		if err != nil {
			slog.Debug("poll failed", "address", addr, "err", err)
		}
		if s.onSweepDone != nil {
			s.onSweepDone(addr, status, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interAddressSpacing):
		}
	}
}

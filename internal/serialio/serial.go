// Package serialio owns the half-duplex RS-485 port: opening it with
// back-off, a byte-at-a-time frame reader, and a mutex-serialized writer.
package serialio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.bug.st/serial"

	"github.com/algodomo/cerebro2mqtt/internal/config"
	"github.com/algodomo/cerebro2mqtt/internal/proto"
)

// Error is the port's IO error kind.
type Error struct {
	msg string
	err error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func errorf(err error, format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...), err: err}
}

// Port reconnects to the configured serial device with exponential
// back-off and exposes a frame-at-a-time ReadLoop alongside a serialized
// Send.
type Port struct {
	writeMu sync.Mutex
	portMu  sync.RWMutex
	port    serial.Port

	lastWriteWarn   time.Time
	lastWriteWarnMu sync.Mutex

	reconnects func()
}

// New wires the port; reconnects, when non-nil, is invoked once per
// successful open, the first one included (used to feed the reconnect
// counter in internal/metrics).
func New(reconnects func()) *Port {
	return &Port{reconnects: reconnects}
}

// Open blocks until the serial device at cfg.Port is open, backing off
// 1s/×1.5/8s-capped between attempts (spec.md §4.2), or ctx is cancelled.
func (p *Port) Open(ctx context.Context, cfg config.SerialConfig) error {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.ByteSize,
		Parity:   parseParity(cfg.Parity),
		StopBits: parseStopBits(cfg.StopBits),
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 1.5
	b.MaxInterval = 8 * time.Second
	b.MaxElapsedTime = 0

	operation := func() error {
		port, err := serial.Open(cfg.Port, mode)
		if err != nil {
			slog.Warn("serial open failed, retrying", "port", cfg.Port, "err", err)
			return err
		}
		if err := port.SetReadTimeout(time.Duration(cfg.TimeoutSec * float64(time.Second))); err != nil {
			port.Close()
			return err
		}

		p.portMu.Lock()
		p.port = port
		p.portMu.Unlock()

		slog.Info("serial port open", "port", cfg.Port, "baud", cfg.BaudRate)
		if p.reconnects != nil {
			p.reconnects()
		}
		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// Close releases the underlying handle, if any.
func (p *Port) Close() error {
	p.portMu.Lock()
	defer p.portMu.Unlock()
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	return err
}

// Send writes frame to the port. Failures are rate-limited to one slog
// warning per two seconds, matching the original's write-failure guard.
func (p *Port) Send(frame []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.portMu.RLock()
	port := p.port
	p.portMu.RUnlock()

	if port == nil {
		return errorf(nil, "serial port not open")
	}

	if _, err := port.Write(frame); err != nil {
		p.warnWrite(err)
		p.portMu.Lock()
		if p.port == port {
			port.Close()
			p.port = nil
		}
		p.portMu.Unlock()
		return errorf(err, "serial write failed")
	}
	return nil
}

func (p *Port) warnWrite(err error) {
	p.lastWriteWarnMu.Lock()
	defer p.lastWriteWarnMu.Unlock()

	now := time.Now()
	if now.Sub(p.lastWriteWarn) < 2*time.Second {
		return
	}
	p.lastWriteWarn = now
	slog.Warn("serial write failed", "err", err)
}

// ReadLoop blocks reading single bytes from the port, reassembling
// proto.StartByte..proto.EndByte frames up to FrameMaxLength, and invokes
// onFrame for each one parsed. It returns when ctx is cancelled or the
// port returns a fatal read error (in which case the caller is expected
// to Close and re-Open).
func (p *Port) ReadLoop(ctx context.Context, onFrame func(proto.Frame)) error {
	buf := make([]byte, 0, proto.FrameMaxLength)
	one := make([]byte, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p.portMu.RLock()
		port := p.port
		p.portMu.RUnlock()
		if port == nil {
			return errorf(nil, "serial port not open")
		}

		n, err := port.Read(one)
		if err != nil {
			return errorf(err, "serial read failed")
		}
		if n == 0 {
			continue
		}
		b := one[0]

		switch {
		case b == proto.StartByte && len(buf) == 0:
			buf = append(buf, b)
		case len(buf) == 0:
			// Not in sync yet; drop stray bytes before the start marker.
			continue
		case b == proto.EndByte && len(buf) >= proto.FrameMinLength-1:
			buf = append(buf, b)
			frame, ferr := proto.ParseFrame(buf)
			buf = buf[:0]
			if ferr != nil {
				slog.Debug("dropping unparseable frame", "err", ferr)
				continue
			}
			onFrame(frame)
		case len(buf) >= proto.FrameMaxLength:
			slog.Debug("dropping oversized frame without terminator")
			buf = buf[:0]
		default:
			buf = append(buf, b)
		}
	}
}

func parseParity(p string) serial.Parity {
	switch p {
	case "E":
		return serial.EvenParity
	case "O":
		return serial.OddParity
	default:
		return serial.NoParity
	}
}

func parseStopBits(n int) serial.StopBits {
	switch n {
	case 2:
		return serial.TwoStopBits
	default:
		return serial.OneStopBit
	}
}

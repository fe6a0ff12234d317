// Package bridge is the core engine: device index, transaction engine,
// polling scheduler, per-kind command handlers, and the state projector,
// wired together behind one Service.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/algodomo/cerebro2mqtt/internal/config"
	"github.com/algodomo/cerebro2mqtt/internal/metrics"
	"github.com/algodomo/cerebro2mqtt/internal/mqttio"
	"github.com/algodomo/cerebro2mqtt/internal/proto"
	"github.com/algodomo/cerebro2mqtt/internal/serialio"
)

// Service is the bridge's running instance: it owns the serial port, the
// broker client, the transaction engine, the polling scheduler, and the
// device index built from the active configuration.
type Service struct {
	store *config.Store

	stateMu sync.RWMutex
	index   *deviceIndex
	cfg     config.AppConfig

	port   *serialio.Port
	engine *Engine
	mqtt   *mqttio.Client
	sched  *scheduler

	dimmerCache *brightnessCache

	cancel    context.CancelFunc
	runningMu sync.Mutex
	running   bool

	// testSink, when set, intercepts every publish instead of going to
	// the broker; used by tests that exercise the projector and handlers
	// without a running Service.
	testSink func(topic string, payload any, retain bool)
}

// New builds a Service bound to store. Call Start to bring it up.
func New(store *config.Store) *Service {
	s := &Service{
		store:       store,
		dimmerCache: newBrightnessCache(),
	}
	s.port = serialio.New(func() { metrics.SerialReconnects.Inc() })
	s.engine = NewEngine(s.port)
	s.engine.Unmatched = s.handleSpontaneousFrame
	return s
}

// Start loads the current configuration, opens the serial port, connects
// to the broker, and launches the serial reader and polling scheduler
// goroutines. It returns once the broker connection attempt has been
// issued; connection itself proceeds asynchronously.
func (s *Service) Start(ctx context.Context) error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.running {
		return fmt.Errorf("bridge already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	cfg := s.store.Config()
	s.rebuildIndex(cfg)

	s.mqtt = mqttio.New(cfg.MQTT, s.handleMessage, s.handleConnected)
	if err := s.mqtt.Connect(); err != nil {
		cancel()
		return err
	}

	if err := s.port.Open(runCtx, cfg.Serial); err != nil {
		cancel()
		return err
	}
	go s.readLoop(runCtx, cfg.Serial)
	go s.dispatchLoop(runCtx)
	go s.logStatsLoop(runCtx)

	s.sched = newScheduler(s.engine, s.addresses, s.pollAddress, s.handleSweepResult)
	go s.sched.run(runCtx, cfg.Polling.IntervalSec, cfg.Polling.AutoStart)

	s.running = true
	return nil
}

// Stop cancels every goroutine and disconnects from the broker. It is
// idempotent.
func (s *Service) Stop() {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if !s.running {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if s.port != nil {
		s.port.Close()
	}
	s.running = false
}

// Reload applies the store's current configuration, which the store
// validated before saving it: stop, rebuild indexes, restart. Stop, the
// index rebuild and Start each take their own lock; no single lock is held
// across the whole sequence. The restarted goroutines keep ctx's values
// but not its cancellation, so a request-scoped ctx does not stop the
// bridge when the request ends; Stop does.
func (s *Service) Reload(ctx context.Context) error {
	s.Stop()
	s.rebuildIndex(s.store.Config())
	return s.Start(context.WithoutCancel(ctx))
}

// TriggerPollAll coalesces a manual poll-all request onto the scheduler.
func (s *Service) TriggerPollAll() {
	if s.sched != nil {
		s.sched.trigger()
	}
}

func (s *Service) rebuildIndex(cfg config.AppConfig) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.cfg = cfg
	s.index = buildDeviceIndex(cfg.Boards)
}

func (s *Service) currentIndex() *deviceIndex {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.index
}

func (s *Service) currentConfig() config.AppConfig {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.cfg
}

func (s *Service) addresses() []uint8 {
	return s.currentIndex().addresses()
}

func (s *Service) topicPrefix(device config.Device) string {
	return fmt.Sprintf("%s/%s", s.currentConfig().MQTT.BaseTopic, device.TopicSlug())
}

func (s *Service) publish(topic string, payload any, retain bool) {
	if s.testSink != nil {
		s.testSink(topic, payload, retain)
		return
	}
	if s.mqtt == nil {
		return
	}
	if err := s.mqtt.Publish(topic, payload, retain); err != nil {
		slog.Warn("publish failed", "topic", topic, "err", err)
	}
}

func (s *Service) handleConnected() {
	metrics.MQTTConnected.Set(1)
	s.PublishDiscovery()
}

func (s *Service) pollAddress(ctx context.Context, addr uint8) (proto.PollingStatus, error) {
	raw, err := proto.BuildPollingExtended(int(addr))
	if err != nil {
		return proto.PollingStatus{}, err
	}
	frame, err := s.engine.Execute(ctx, "poll", addr, raw, func(f proto.Frame) bool {
		return f.Command == proto.CmdPollingExtended || f.Command == proto.CmdPollingResponse
	}, 0)
	if err != nil {
		return proto.PollingStatus{}, err
	}
	return proto.ParsePollingStatus(frame)
}

func (s *Service) handleSweepResult(addr uint8, status proto.PollingStatus, err error) {
	devices := s.currentIndex().atAddress(addr)
	for _, device := range devices {
		s.publishPollLast(device, err == nil)
		if err == nil {
			s.projectState(device, status)
		}
	}
}

// readLoop keeps the serial reader running for the life of ctx: when
// ReadLoop returns on an IO error (as opposed to ctx cancellation), the
// port is closed and reopened through the same back-off Open already
// uses before the reader is restarted, per SPEC_FULL.md §7 ("IO errors
// close the port and let back-off reopen it").
func (s *Service) readLoop(ctx context.Context, serialCfg config.SerialConfig) {
	for {
		err := s.port.ReadLoop(ctx, s.engine.OnFrame)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("serial read loop ended, reconnecting", "err", err)
		s.port.Close()
		if openErr := s.port.Open(ctx, serialCfg); openErr != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("serial reopen failed", "err", openErr)
			return
		}
	}
}

// logStatsLoop periodically logs per-kind transaction latency, matching
// the original tool's main loop logging its round-trip stats every few
// seconds.
func (s *Service) logStatsLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stats := s.engine.Stats(); len(stats) > 0 {
				slog.Info("transaction latency", "stats", stats)
			}
		}
	}
}

// dispatchLoop exists so Start has a goroutine to tie to runCtx's
// lifetime even though spontaneous-frame handling itself runs
// synchronously off the serial reader via handleSpontaneousFrame.
func (s *Service) dispatchLoop(ctx context.Context) {
	<-ctx.Done()
}

// handleSpontaneousFrame is Engine.Unmatched: it covers polling
// responses nobody is waiting on (project state for every device at that
// address) and known command echoes with no outstanding waiter (e.g. a
// controller retransmitting the last relay state), per spec.md §4.7
// "Spontaneous inbound frames". Unknown commands are ignored.
func (s *Service) handleSpontaneousFrame(frame proto.Frame) {
	switch frame.Command {
	case proto.CmdPollingExtended, proto.CmdPollingResponse:
		status, err := proto.ParsePollingStatus(frame)
		if err != nil {
			slog.Debug("spontaneous polling frame rejected", "err", err)
			return
		}
		for _, device := range s.currentIndex().atAddress(frame.Address) {
			s.projectState(device, status)
		}
	default:
		s.projectCommandEcho(frame)
	}
}

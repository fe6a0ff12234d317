package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/algodomo/cerebro2mqtt/internal/config"
	"github.com/algodomo/cerebro2mqtt/internal/proto"
)

func TestDeviceIndex_OnlyIndexesEnabledDevices(t *testing.T) {
	devices := []config.Device{
		{ID: "a", Name: "Kitchen", Kind: config.KindLights, Address: 10, ChannelStart: 1, ChannelEnd: 1, Enabled: true},
		{ID: "b", Name: "Disabled", Kind: config.KindLights, Address: 10, ChannelStart: 2, ChannelEnd: 2, Enabled: false},
	}
	idx := buildDeviceIndex(devices)

	if len(idx.atAddress(10)) != 1 {
		t.Fatalf("expected 1 device at address 10, got %d", len(idx.atAddress(10)))
	}
	if _, ok := idx.bySlugLookup("disabled"); ok {
		t.Fatal("disabled device should not be indexed by slug")
	}
	if _, ok := idx.bySlugLookup("kitchen"); !ok {
		t.Fatal("enabled device should be indexed by slug")
	}
}

func TestDeviceIndex_SharedAddressAcrossKinds(t *testing.T) {
	devices := []config.Device{
		{ID: "a", Name: "Lights", Kind: config.KindLights, Address: 5, ChannelStart: 1, ChannelEnd: 4, Enabled: true},
		{ID: "b", Name: "Thermostat", Kind: config.KindThermostat, Address: 5, ChannelStart: 1, ChannelEnd: 1, Enabled: true},
	}
	idx := buildDeviceIndex(devices)
	if len(idx.atAddress(5)) != 2 {
		t.Fatalf("expected 2 devices sharing address 5, got %d", len(idx.atAddress(5)))
	}
}

// fakeSender fails every Send when fail is set. Otherwise it accepts the
// write and nothing ever answers, which models S7's dropped writes: Execute
// genuinely waits out the timeout.
type fakeSender struct {
	fail bool
}

func (f *fakeSender) Send(frame []byte) error {
	if f.fail {
		return errors.New("write dropped")
	}
	return nil
}

func TestEngineExecute_TimesOutWithNoReply_S7(t *testing.T) {
	engine := NewEngine(&fakeSender{})

	start := time.Now()
	frame, err := engine.Execute(context.Background(), "lights", 10, []byte{0x49, 10, 0x51, 0x41, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x46}, func(proto.Frame) bool {
		return true
	}, 100*time.Millisecond)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTransactionTimeout) {
		t.Fatalf("expected ErrTransactionTimeout, got %v", err)
	}
	if frame.Address != 0 {
		t.Fatalf("expected zero-value frame on timeout, got %+v", frame)
	}
	if elapsed > 2*100*time.Millisecond {
		t.Fatalf("timeout took too long: %v", elapsed)
	}
}

func TestEngineExecute_SendFailureIsImmediate(t *testing.T) {
	engine := NewEngine(&fakeSender{fail: true})
	_, err := engine.Execute(context.Background(), "lights", 10, []byte{0x49}, func(proto.Frame) bool { return true }, time.Second)
	if err == nil {
		t.Fatal("expected send failure error")
	}
}

func TestEngineResolve_DeliversToMatchingWaiter(t *testing.T) {
	engine := NewEngine(&fakeSender{})

	done := make(chan proto.Frame, 1)
	go func() {
		frame, err := engine.Execute(context.Background(), "poll", 7, []byte{0x49, 7, 0x40, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x46}, func(f proto.Frame) bool {
			return f.Command == proto.CmdPollingExtended
		}, time.Second)
		if err == nil {
			done <- frame
		}
	}()

	time.Sleep(20 * time.Millisecond)
	reply, _ := proto.ParseFrame([]byte{0x49, 7, 0x40, 0x11, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x46})
	engine.resolve(reply)

	select {
	case frame := <-done:
		if frame.Address != 7 {
			t.Fatalf("address = %d, want 7", frame.Address)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was never satisfied")
	}
}

func TestEngineResolve_PanickingPredicateTreatedAsNoMatch(t *testing.T) {
	engine := NewEngine(&fakeSender{})
	unmatched := make(chan proto.Frame, 1)
	engine.Unmatched = func(f proto.Frame) { unmatched <- f }

	w := engine.register(9, func(proto.Frame) bool { panic("boom") })
	defer engine.unregister(w)

	reply, _ := proto.ParseFrame([]byte{0x49, 9, 0x40, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x46})
	engine.resolve(reply)

	select {
	case <-unmatched:
	case <-time.After(time.Second):
		t.Fatal("expected the frame to fall through to Unmatched")
	}
}

func TestParseOnOff_Vocabulary(t *testing.T) {
	trueCases := []string{"ON", "on", "1", "TRUE", "OPEN", "UP"}
	falseCases := []string{"OFF", "0", "FALSE", "CLOSE", "DOWN"}

	for _, c := range trueCases {
		v, ok := parseOnOff(c)
		if !ok || !v {
			t.Errorf("parseOnOff(%q) = (%v,%v), want (true,true)", c, v, ok)
		}
	}
	for _, c := range falseCases {
		v, ok := parseOnOff(c)
		if !ok || v {
			t.Errorf("parseOnOff(%q) = (%v,%v), want (false,true)", c, v, ok)
		}
	}
	if _, ok := parseOnOff("garbage"); ok {
		t.Error("expected garbage payload to be rejected")
	}
}

func TestParseBrightness_PercentVsByteScale(t *testing.T) {
	if p, ok := parseBrightness("50"); !ok || p != 50 {
		t.Fatalf("parseBrightness(50) = (%d,%v), want (50,true)", p, ok)
	}
	if p, ok := parseBrightness("255"); !ok || p != 100 {
		t.Fatalf("parseBrightness(255) = (%d,%v), want (100,true)", p, ok)
	}
	if p, ok := parseBrightness("128"); !ok || p < 49 || p > 51 {
		t.Fatalf("parseBrightness(128) = (%d,%v), want ~50", p, ok)
	}
}

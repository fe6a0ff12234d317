package bridge

import (
	"strings"
	"testing"

	"github.com/algodomo/cerebro2mqtt/internal/config"
	"github.com/algodomo/cerebro2mqtt/internal/proto"
)

func newTestService(t *testing.T, devices []config.Device) (*Service, *[]string) {
	t.Helper()
	var published []string
	s := &Service{dimmerCache: newBrightnessCache()}
	s.cfg = config.AppConfig{MQTT: config.MQTTConfig{BaseTopic: "cerebro2mqtt"}, Boards: devices}
	s.index = buildDeviceIndex(devices)
	s.testSink = func(topic string, _ any, _ bool) {
		published = append(published, topic)
	}
	return s, &published
}

// Property 3: for any polling snapshot, the projector publishes for
// Lights exactly (end-start+1) /ch/{n}/state messages.
func TestProjectLights_ChannelCountProperty(t *testing.T) {
	for start := 1; start <= 8; start++ {
		for end := start; end <= 8; end++ {
			device := config.Device{ID: "x", Name: "Lights", Kind: config.KindLights, Address: 1, ChannelStart: start, ChannelEnd: end, Enabled: true}
			s, published := newTestService(t, []config.Device{device})

			s.projectState(device, proto.PollingStatus{Outputs: 0xFF})

			count := 0
			for _, topic := range *published {
				if strings.Contains(topic, "/ch/") && strings.HasSuffix(topic, "/state") {
					count++
				}
			}
			want := end - start + 1
			if count != want {
				t.Fatalf("range [%d,%d]: got %d channel-state publishes, want %d", start, end, count, want)
			}
		}
	}
}

func TestProjectLights_SingleChannelAlsoPublishesAggregateState(t *testing.T) {
	device := config.Device{ID: "x", Name: "Lamp", Kind: config.KindLights, Address: 1, ChannelStart: 3, ChannelEnd: 3, Enabled: true}
	s, published := newTestService(t, []config.Device{device})

	s.projectState(device, proto.PollingStatus{Outputs: 1 << 2})

	found := false
	for _, topic := range *published {
		if topic == "cerebro2mqtt/lamp/state" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected aggregate /state topic for single-channel light, got %v", *published)
	}
}

func TestProjectShutters_StateReflectsOutputBit(t *testing.T) {
	device := config.Device{ID: "x", Name: "Porch", Kind: config.KindShutters, Address: 1, ChannelStart: 2, ChannelEnd: 2, Enabled: true}
	s, _ := newTestService(t, []config.Device{device})

	var lastPayload any
	s.testSink = func(topic string, payload any, _ bool) {
		if topic == "cerebro2mqtt/porch/state" {
			lastPayload = payload
		}
	}

	s.projectState(device, proto.PollingStatus{Outputs: 1 << 1})
	if lastPayload != "open" {
		t.Fatalf("payload = %v, want open", lastPayload)
	}

	s.projectState(device, proto.PollingStatus{Outputs: 0})
	if lastPayload != "closed" {
		t.Fatalf("payload = %v, want closed", lastPayload)
	}
}

func TestProjectDimmer_UpdatesBrightnessCacheOnNonZero(t *testing.T) {
	device := config.Device{ID: "dimmer-1", Name: "Hall", Kind: config.KindDimmer, Address: 1, ChannelStart: 1, ChannelEnd: 1, Enabled: true}
	s, _ := newTestService(t, []config.Device{device})

	s.projectState(device, proto.PollingStatus{Dimmer0to10: 5})
	if got := s.dimmerCache.get("dimmer-1"); got == 100 {
		t.Fatal("expected dimmer cache to be updated from a non-zero snapshot")
	}
}

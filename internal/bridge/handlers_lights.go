package bridge

import (
	"log/slog"

	"github.com/algodomo/cerebro2mqtt/internal/config"
	"github.com/algodomo/cerebro2mqtt/internal/proto"
)

// handleLightsChannelSet addresses channel on device, which must be a
// Lights device and must have channel within its declared range.
func (s *Service) handleLightsChannelSet(device config.Device, channel int, payload string) {
	if device.Kind != config.KindLights {
		return
	}
	if channel < device.ChannelStart || channel > device.ChannelEnd {
		slog.Warn("light command channel out of range", "device", device.Name, "channel", channel)
		return
	}
	desired, ok := parseOnOff(payload)
	if !ok {
		slog.Warn("unrecognized light payload", "device", device.Name, "payload", payload)
		return
	}

	frame, err := proto.BuildLightControl(device.Address, channel, desired)
	if err != nil {
		slog.Warn("build light control failed", "device", device.Name, "err", err)
		return
	}

	wantState := byte(proto.LightRelayOff)
	if desired {
		wantState = proto.LightRelayOn
	}
	wantCommand := frame[2]

	s.runCommand(device, "set", frame, func(f proto.Frame) bool {
		return f.Command == wantCommand && f.Data[0] == wantState
	}, func(status proto.PollingStatus) bool {
		bit := uint8(1) << uint(channel-1)
		isOn := status.Outputs&bit != 0
		return isOn == desired
	})
}

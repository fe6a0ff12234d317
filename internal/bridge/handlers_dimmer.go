package bridge

import (
	"log/slog"

	"github.com/algodomo/cerebro2mqtt/internal/config"
	"github.com/algodomo/cerebro2mqtt/internal/proto"
)

// handleDimmerSet parses the shared ON/OFF vocabulary: ON restores the
// cached last-non-zero brightness (default 100), OFF is percent 0.
func (s *Service) handleDimmerSet(device config.Device, payload string) {
	if device.Kind != config.KindDimmer {
		return
	}
	desired, ok := parseOnOff(payload)
	if !ok {
		slog.Warn("unrecognized dimmer payload", "device", device.Name, "payload", payload)
		return
	}
	percent := 0
	if desired {
		percent = s.dimmerCache.get(device.ID)
	}
	s.sendDimmerCommand(device, percent)
}

// handleDimmerBrightnessSet parses an explicit level: <=100 is a
// percent, otherwise a 0-255 scale mapped down to percent.
func (s *Service) handleDimmerBrightnessSet(device config.Device, payload string) {
	if device.Kind != config.KindDimmer {
		return
	}
	percent, ok := parseBrightness(payload)
	if !ok {
		slog.Warn("unrecognized brightness payload", "device", device.Name, "payload", payload)
		return
	}
	s.sendDimmerCommand(device, percent)
}

func (s *Service) sendDimmerCommand(device config.Device, percent int) {
	if percent > 0 {
		s.dimmerCache.set(device.ID, percent)
	}

	frame, err := proto.BuildDimmerControl(device.Address, percent)
	if err != nil {
		slog.Warn("build dimmer control failed", "device", device.Name, "err", err)
		return
	}

	wantBusLevel := proto.PercentToBusDimmer(percent)

	s.runCommand(device, "set", frame, func(f proto.Frame) bool {
		return f.Command == proto.CmdDimmerControl && f.Data[0] == proto.DimmerDataMarker && int(f.Data[1]) == wantBusLevel
	}, func(status proto.PollingStatus) bool {
		return quantizeDimmer(int(status.Dimmer0to10)) == quantizeDimmer(wantBusLevel)
	})
}

// quantizeDimmer applies the same ">8 => 10" normalization the polling
// decoder applies, so expected and observed bus levels compare on equal
// footing (spec.md §4.7 "Dimmer" readback rule).
func quantizeDimmer(level int) int {
	if level > 8 {
		return 10
	}
	return level
}

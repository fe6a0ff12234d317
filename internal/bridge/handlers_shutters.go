package bridge

import (
	"log/slog"
	"strings"

	"github.com/algodomo/cerebro2mqtt/internal/config"
	"github.com/algodomo/cerebro2mqtt/internal/proto"
)

// handleShuttersSet implements spec.md §4.7 "Shutters": STOP is not
// supported by the protocol and is logged and dropped rather than sent.
func (s *Service) handleShuttersSet(device config.Device, payload string) {
	if device.Kind != config.KindShutters {
		return
	}

	trimmed := strings.ToUpper(strings.TrimSpace(payload))
	if trimmed == "STOP" {
		slog.Info("shutter stop requested but unsupported by protocol, dropping", "device", device.Name)
		return
	}

	up, ok := parseOnOff(payload)
	if !ok {
		slog.Warn("unrecognized shutter payload", "device", device.Name, "payload", payload)
		return
	}

	channel := device.PrimaryChannel()
	frame, err := proto.BuildShutterControl(device.Address, channel, up)
	if err != nil {
		slog.Warn("build shutter control failed", "device", device.Name, "err", err)
		return
	}

	transitionState := "closing"
	if up {
		transitionState = "opening"
	}
	s.publish(s.topicPrefix(device)+"/state", transitionState, true)

	wantAction := byte(proto.ShutterDown)
	if up {
		wantAction = proto.ShutterUp
	}

	s.runCommand(device, "set", frame, func(f proto.Frame) bool {
		return f.Command == proto.CmdShutterControl && int(f.Data[0]) == channel && f.Data[1] == wantAction
	}, func(status proto.PollingStatus) bool {
		bit := uint8(1) << uint(channel-1)
		isUp := status.Outputs&bit != 0
		return isUp == up
	})
}

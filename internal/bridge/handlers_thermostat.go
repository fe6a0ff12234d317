package bridge

import (
	"log/slog"
	"math"

	"github.com/algodomo/cerebro2mqtt/internal/config"
	"github.com/algodomo/cerebro2mqtt/internal/proto"
)

// setpointTolerance is the spec's readback agreement window for
// temperature setpoints: the bus encodes one decimal place, so exact
// float equality is never expected.
const setpointTolerance = 0.6

func (s *Service) handleThermostatSetpointSet(device config.Device, payload string) {
	if device.Kind != config.KindThermostat {
		return
	}
	desired, ok := parseFloatLoose(payload)
	if !ok {
		slog.Warn("unrecognized setpoint payload", "device", device.Name, "payload", payload)
		return
	}

	frame, err := proto.BuildSetPointTemperature(device.Address, desired)
	if err != nil {
		slog.Warn("build setpoint control failed", "device", device.Name, "err", err)
		return
	}

	s.runCommand(device, "setpoint", frame, func(f proto.Frame) bool {
		return f.Command == proto.CmdSetPointTemperature && f.Data[0] == frame[3] && f.Data[1] == frame[4]
	}, func(status proto.PollingStatus) bool {
		return math.Abs(status.TemperatureSetpoint-desired) <= setpointTolerance
	})
}

func (s *Service) handleThermostatSeasonSet(device config.Device, payload string) {
	if device.Kind != config.KindThermostat {
		return
	}
	desired, ok := parseSeason(payload)
	if !ok {
		slog.Warn("unrecognized season payload", "device", device.Name, "payload", payload)
		return
	}

	frame, err := proto.BuildSetSeason(device.Address, desired)
	if err != nil {
		slog.Warn("build season control failed", "device", device.Name, "err", err)
		return
	}

	s.runCommand(device, "season", frame, func(f proto.Frame) bool {
		return f.Command == proto.CmdSetSeason && int(f.Data[0]) == desired
	}, func(status proto.PollingStatus) bool {
		return int(status.Season) == desired
	})
}

package bridge

import (
	"strconv"

	"github.com/algodomo/cerebro2mqtt/internal/proto"
)

// projectCommandEcho interprets a command frame that arrived with no
// outstanding waiter (e.g. a controller retransmitting state after a
// local button press) and publishes the implied retained topic, per
// spec.md §4.7 "Spontaneous inbound frames". Unknown commands are
// ignored.
func (s *Service) projectCommandEcho(frame proto.Frame) {
	devices := s.currentIndex().atAddress(frame.Address)
	if len(devices) == 0 {
		return
	}

	switch {
	case isLightCommand(frame.Command):
		channel := lightChannelFor(frame.Command)
		state := "OFF"
		if frame.Data[0] == proto.LightRelayOn {
			state = "ON"
		}
		for _, d := range devices {
			if d.Kind != "lights" || channel < d.ChannelStart || channel > d.ChannelEnd {
				continue
			}
			prefix := s.topicPrefix(d)
			s.publish(prefix+"/ch/"+strconv.Itoa(channel)+"/state", state, true)
			if d.ChannelStart == d.ChannelEnd {
				s.publish(prefix+"/state", state, true)
			}
		}

	case frame.Command == proto.CmdDimmerControl:
		percent := proto.BusDimmerToPercent(int(frame.Data[1]))
		state := "OFF"
		if percent > 0 {
			state = "ON"
		}
		for _, d := range devices {
			if d.Kind != "dimmer" {
				continue
			}
			prefix := s.topicPrefix(d)
			s.publish(prefix+"/state", state, true)
			s.publish(prefix+"/brightness/state", roundRatio(percent, 255, 100), true)
			if percent > 0 {
				s.dimmerCache.set(d.ID, percent)
			}
		}

	case frame.Command == proto.CmdSetPointTemperature:
		setpoint := float64(frame.Data[0]) + float64(frame.Data[1])/10.0
		for _, d := range devices {
			if d.Kind != "thermostat" {
				continue
			}
			s.publish(s.topicPrefix(d)+"/setpoint/state", formatOneDecimal(setpoint), true)
		}

	case frame.Command == proto.CmdSetSeason:
		season := "WINTER"
		if frame.Data[0] == 1 {
			season = "SUMMER"
		}
		for _, d := range devices {
			if d.Kind != "thermostat" {
				continue
			}
			s.publish(s.topicPrefix(d)+"/season/state", season, true)
		}
	}
}

func isLightCommand(command uint8) bool {
	if command >= proto.CmdLightControlFirstFour && command <= proto.CmdLightControlFirstFour+3 {
		return true
	}
	if command >= proto.CmdLightControlFifthOnward && command <= proto.CmdLightControlFifthOnward+3 {
		return true
	}
	return false
}

func lightChannelFor(command uint8) int {
	if command >= proto.CmdLightControlFifthOnward {
		return int(command-proto.CmdLightControlFifthOnward) + 5
	}
	return int(command-proto.CmdLightControlFirstFour) + 1
}

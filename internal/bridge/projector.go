package bridge

import (
	"fmt"
	"time"

	"github.com/algodomo/cerebro2mqtt/internal/config"
	"github.com/algodomo/cerebro2mqtt/internal/proto"
)

// projectState publishes every retained topic implied by snapshot for
// device, per spec.md §4.8, through s.publish, which takes the
// already-prefixed topic, the payload, and the retain flag.
func (s *Service) projectState(device config.Device, snapshot proto.PollingStatus) {
	prefix := s.topicPrefix(device)

	s.publish(prefix+"/polling/raw", map[string]any{
		"address":              device.Address,
		"device_type":          snapshot.DeviceType,
		"outputs":              snapshot.Outputs,
		"inputs":               snapshot.Inputs,
		"dimmer_0_10":          snapshot.Dimmer0to10,
		"temperature":          snapshot.Temperature,
		"temperature_setpoint": snapshot.TemperatureSetpoint,
		"season":               snapshot.Season,
	}, false)

	switch device.Kind {
	case config.KindLights:
		s.projectLights(device, snapshot, prefix)
	case config.KindShutters:
		s.projectShutters(device, snapshot, prefix)
	case config.KindDimmer:
		s.projectDimmer(device, snapshot, prefix)
	case config.KindThermostat:
		s.projectThermostat(device, snapshot, prefix)
	}
}

func (s *Service) projectLights(device config.Device, snapshot proto.PollingStatus, prefix string) {
	channels := device.Channels()
	for _, n := range channels {
		state := "OFF"
		if snapshot.Outputs&(1<<(n-1)) != 0 {
			state = "ON"
		}
		s.publish(fmt.Sprintf("%s/ch/%d/state", prefix, n), state, true)
	}
	if len(channels) == 1 {
		state := "OFF"
		if snapshot.Outputs&(1<<(channels[0]-1)) != 0 {
			state = "ON"
		}
		s.publish(prefix+"/state", state, true)
	}
}

func (s *Service) projectShutters(device config.Device, snapshot proto.PollingStatus, prefix string) {
	bit := device.PrimaryChannel() - 1
	state := "closed"
	if snapshot.Outputs&(1<<bit) != 0 {
		state = "open"
	}
	s.publish(prefix+"/state", state, true)
}

func (s *Service) projectDimmer(device config.Device, snapshot proto.PollingStatus, prefix string) {
	percent := proto.BusDimmerToPercent(int(snapshot.Dimmer0to10))
	state := "OFF"
	if percent > 0 {
		state = "ON"
	}
	s.publish(prefix+"/state", state, true)
	brightness255 := roundRatio(percent, 255, 100)
	s.publish(prefix+"/brightness/state", brightness255, true)
	if percent > 0 {
		s.dimmerCache.set(device.ID, percent)
	}
}

func (s *Service) projectThermostat(device config.Device, snapshot proto.PollingStatus, prefix string) {
	s.publish(prefix+"/temperature/state", formatOneDecimal(snapshot.Temperature), true)
	s.publish(prefix+"/setpoint/state", formatOneDecimal(snapshot.TemperatureSetpoint), true)
	season := "WINTER"
	if snapshot.Season == 1 {
		season = "SUMMER"
	}
	s.publish(prefix+"/season/state", season, true)
}

func (s *Service) publishPollLast(device config.Device, success bool) {
	s.publish(s.topicPrefix(device)+"/poll/last", map[string]any{
		"success": success,
		"ts":      time.Now().Unix(),
	}, true)
}

func formatOneDecimal(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

func roundRatio(value, numerator, denominator int) int {
	return int((float64(value)*float64(numerator))/float64(denominator) + 0.5)
}

package bridge

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/algodomo/cerebro2mqtt/internal/config"
	"github.com/algodomo/cerebro2mqtt/internal/mqttio"
)

// handleMessage routes one inbound broker message by topic, per the
// scheme in spec.md §6. Unknown slugs or publish_enabled=false devices
// silently drop the command, matching the original's behavior.
func (s *Service) handleMessage(msg mqttio.Message) {
	base := s.currentConfig().MQTT.BaseTopic
	rest := strings.TrimPrefix(msg.Topic, base+"/")
	if rest == msg.Topic {
		return
	}
	parts := strings.Split(rest, "/")
	if len(parts) == 0 {
		return
	}

	if parts[0] == "poll_all" && len(parts) == 2 && parts[1] == "set" {
		s.TriggerPollAll()
		return
	}

	slug := parts[0]
	device, ok := s.currentIndex().bySlugLookup(slug)
	if !ok || !device.PublishEnabled {
		return
	}
	payload := string(msg.Payload)

	switch {
	case len(parts) == 3 && parts[1] == "poll" && parts[2] == "set":
		s.pollOneDevice(device)

	case len(parts) == 2 && parts[1] == "set":
		s.dispatchPrimarySet(device, payload)

	case len(parts) == 4 && parts[1] == "ch" && parts[3] == "set":
		channel, err := strconv.Atoi(parts[2])
		if err != nil {
			return
		}
		s.handleLightsChannelSet(device, channel, payload)

	case len(parts) == 3 && parts[1] == "brightness" && parts[2] == "set":
		s.handleDimmerBrightnessSet(device, payload)

	case len(parts) == 3 && parts[1] == "setpoint" && parts[2] == "set":
		s.handleThermostatSetpointSet(device, payload)

	case len(parts) == 3 && parts[1] == "season" && parts[2] == "set":
		s.handleThermostatSeasonSet(device, payload)
	}
}

func (s *Service) dispatchPrimarySet(device config.Device, payload string) {
	switch device.Kind {
	case config.KindLights:
		s.handleLightsChannelSet(device, device.PrimaryChannel(), payload)
	case config.KindShutters:
		s.handleShuttersSet(device, payload)
	case config.KindDimmer:
		s.handleDimmerSet(device, payload)
	}
}

func (s *Service) pollOneDevice(device config.Device) {
	go func() {
		status, err := s.pollAddress(context.Background(), uint8(device.Address))
		s.publishPollLast(device, err == nil)
		if err == nil {
			for _, d := range s.currentIndex().atAddress(uint8(device.Address)) {
				s.projectState(d, status)
			}
		}
	}()
}

func (s *Service) publishActionResult(device config.Device, action string, success bool, detail string) {
	s.publish(s.topicPrefix(device)+"/action/result", map[string]any{
		"action":  action,
		"success": success,
		"detail":  detail,
		"ts":      time.Now().Unix(),
	}, false)
}

package bridge

import (
	"fmt"

	"github.com/algodomo/cerebro2mqtt/internal/config"
)

// PublishDiscovery emits (or clears) Home-Assistant-style MQTT discovery
// documents for every configured device, per SPEC_FULL.md §4.11. Called
// once per successful broker connection so discovery survives broker
// restarts.
func (s *Service) PublishDiscovery() {
	cfg := s.currentConfig()
	for _, device := range cfg.Boards {
		if !device.Enabled || !device.PublishEnabled {
			s.clearDiscovery(cfg, device)
			continue
		}
		s.publishDeviceDiscovery(cfg, device)
	}
	s.publishPollAllButton(cfg)
}

func (s *Service) discoveryTopic(cfg config.AppConfig, component, objectID string) string {
	return fmt.Sprintf("%s/%s/%s/config", cfg.MQTT.DiscoveryPrefix, component, objectID)
}

func (s *Service) discoveryDevice(device config.Device) map[string]any {
	return map[string]any{
		"identifiers": []string{"cerebro2mqtt_" + device.ID},
		"name":        device.Name,
		"via_device":  "cerebro2mqtt_bridge",
	}
}

func (s *Service) clearDiscovery(cfg config.AppConfig, device config.Device) {
	for _, component := range discoveryComponentsFor(device) {
		topic := s.discoveryTopic(cfg, component.kind, component.objectID)
		s.publish(topic, []byte{}, true)
	}
	s.publish(s.discoveryTopic(cfg, "button", "cerebro2mqtt_"+device.ID+"_poll"), []byte{}, true)
}

type discoveryComponent struct {
	kind     string
	objectID string
}

func discoveryComponentsFor(device config.Device) []discoveryComponent {
	var components []discoveryComponent
	switch device.Kind {
	case config.KindLights:
		for _, ch := range device.Channels() {
			components = append(components, discoveryComponent{"switch", fmt.Sprintf("cerebro2mqtt_%s_ch%d", device.ID, ch)})
		}
	case config.KindShutters:
		components = append(components, discoveryComponent{"cover", "cerebro2mqtt_" + device.ID})
	case config.KindDimmer:
		components = append(components, discoveryComponent{"light", "cerebro2mqtt_" + device.ID})
	case config.KindThermostat:
		components = append(components,
			discoveryComponent{"sensor", "cerebro2mqtt_" + device.ID + "_temperature"},
			discoveryComponent{"number", "cerebro2mqtt_" + device.ID + "_setpoint"},
			discoveryComponent{"select", "cerebro2mqtt_" + device.ID + "_season"},
		)
	}
	return components
}

func (s *Service) publishDeviceDiscovery(cfg config.AppConfig, device config.Device) {
	prefix := s.topicPrefix(device)
	base := s.discoveryDevice(device)

	switch device.Kind {
	case config.KindLights:
		for _, ch := range device.Channels() {
			topic := s.discoveryTopic(cfg, "switch", fmt.Sprintf("cerebro2mqtt_%s_ch%d", device.ID, ch))
			s.publish(topic, map[string]any{
				"name":          fmt.Sprintf("%s channel %d", device.Name, ch),
				"unique_id":     fmt.Sprintf("cerebro2mqtt_%s_ch%d", device.ID, ch),
				"command_topic": fmt.Sprintf("%s/ch/%d/set", prefix, ch),
				"state_topic":   fmt.Sprintf("%s/ch/%d/state", prefix, ch),
				"payload_on":    "ON",
				"payload_off":   "OFF",
				"device":        base,
			}, true)
		}

	case config.KindShutters:
		s.publish(s.discoveryTopic(cfg, "cover", "cerebro2mqtt_"+device.ID), map[string]any{
			"name":          device.Name,
			"unique_id":     "cerebro2mqtt_" + device.ID,
			"command_topic": prefix + "/set",
			"state_topic":   prefix + "/state",
			"payload_open":  "OPEN",
			"payload_close": "CLOSE",
			"state_open":    "open",
			"state_closed":  "closed",
			"state_opening": "opening",
			"state_closing": "closing",
			"device":        base,
		}, true)

	case config.KindDimmer:
		s.publish(s.discoveryTopic(cfg, "light", "cerebro2mqtt_"+device.ID), map[string]any{
			"name":                device.Name,
			"unique_id":           "cerebro2mqtt_" + device.ID,
			"command_topic":       prefix + "/set",
			"state_topic":         prefix + "/state",
			"brightness_command_topic": prefix + "/brightness/set",
			"brightness_state_topic":   prefix + "/brightness/state",
			"brightness_scale":    255,
			"payload_on":          "ON",
			"payload_off":         "OFF",
			"device":              base,
		}, true)

	case config.KindThermostat:
		s.publish(s.discoveryTopic(cfg, "sensor", "cerebro2mqtt_"+device.ID+"_temperature"), map[string]any{
			"name":                device.Name + " temperature",
			"unique_id":           "cerebro2mqtt_" + device.ID + "_temperature",
			"state_topic":         prefix + "/temperature/state",
			"unit_of_measurement": "°C",
			"device":              base,
		}, true)
		s.publish(s.discoveryTopic(cfg, "number", "cerebro2mqtt_"+device.ID+"_setpoint"), map[string]any{
			"name":          device.Name + " setpoint",
			"unique_id":     "cerebro2mqtt_" + device.ID + "_setpoint",
			"command_topic": prefix + "/setpoint/set",
			"state_topic":   prefix + "/setpoint/state",
			"min":           5,
			"max":           35,
			"step":          0.5,
			"device":        base,
		}, true)
		s.publish(s.discoveryTopic(cfg, "select", "cerebro2mqtt_"+device.ID+"_season"), map[string]any{
			"name":          device.Name + " season",
			"unique_id":     "cerebro2mqtt_" + device.ID + "_season",
			"command_topic": prefix + "/season/set",
			"state_topic":   prefix + "/season/state",
			"options":       []string{"WINTER", "SUMMER"},
			"device":        base,
		}, true)
	}

	s.publish(s.discoveryTopic(cfg, "button", "cerebro2mqtt_"+device.ID+"_poll"), map[string]any{
		"name":          device.Name + " poll",
		"unique_id":     "cerebro2mqtt_" + device.ID + "_poll",
		"command_topic": prefix + "/poll/set",
		"device":        base,
	}, true)
}

func (s *Service) publishPollAllButton(cfg config.AppConfig) {
	s.publish(s.discoveryTopic(cfg, "button", "cerebro2mqtt_bridge_poll_all"), map[string]any{
		"name":          "Poll all devices",
		"unique_id":     "cerebro2mqtt_bridge_poll_all",
		"command_topic": cfg.MQTT.BaseTopic + "/poll_all/set",
	}, true)
}

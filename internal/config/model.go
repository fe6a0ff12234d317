// Package config holds the bridge's persisted configuration: device
// records, serial/MQTT/polling/web/service settings, JSON (de)serialization
// matching the original tool's wire format, and validation.
package config

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// DeviceKind is the closed set of bus device kinds the bridge understands.
type DeviceKind string

const (
	KindLights     DeviceKind = "lights"
	KindShutters   DeviceKind = "shutters"
	KindDimmer     DeviceKind = "dimmer"
	KindThermostat DeviceKind = "thermostat"
)

func (k DeviceKind) valid() bool {
	switch k {
	case KindLights, KindShutters, KindDimmer, KindThermostat:
		return true
	}
	return false
}

var slugInvalid = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Slugify lowers, collapses runs of non-alphanumerics to "_", and trims
// leading/trailing "_". An empty result becomes "board".
func Slugify(value string) string {
	cleaned := strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "_"), "_")
	if cleaned == "" {
		return "board"
	}
	return cleaned
}

// Device is one addressed bus peripheral. ChannelStart/ChannelEnd and the
// legacy Channel field are both accepted on JSON ingress (see
// UnmarshalJSON); Channel is only ever written back out for backward
// compatibility with tools that still read it.
type Device struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Kind           DeviceKind `json:"type"`
	Address        int        `json:"address"`
	ChannelStart   int        `json:"channel_start"`
	ChannelEnd     int        `json:"channel_end"`
	Topic          string     `json:"topic"`
	Enabled        bool       `json:"enabled"`
	PublishEnabled bool       `json:"publish_enabled"`
}

// TopicSlug derives the device's MQTT topic slug from Topic (if set) or
// Name otherwise.
func (d Device) TopicSlug() string {
	source := d.Topic
	if source == "" {
		source = d.Name
	}
	return Slugify(source)
}

// PrimaryChannel is the channel a bare "/set" command addresses.
func (d Device) PrimaryChannel() int {
	return d.ChannelStart
}

// Channels lists every channel the device occupies. Only Lights devices
// can span more than one channel.
func (d Device) Channels() []int {
	if d.Kind == KindLights {
		channels := make([]int, 0, d.ChannelEnd-d.ChannelStart+1)
		for c := d.ChannelStart; c <= d.ChannelEnd; c++ {
			channels = append(channels, c)
		}
		return channels
	}
	return []int{d.ChannelStart}
}

func normalizeDevice(raw rawDevice) Device {
	kind := DeviceKind(strings.ToLower(strings.TrimSpace(raw.Type)))
	if !kind.valid() {
		kind = KindLights
	}

	legacyChannel := raw.Channel
	if legacyChannel == 0 {
		legacyChannel = 1
	}
	channelStart := raw.ChannelStart
	if channelStart == 0 {
		channelStart = legacyChannel
	}
	channelEnd := raw.ChannelEnd
	if channelEnd == 0 {
		channelEnd = channelStart
	}
	if kind != KindLights {
		channelEnd = channelStart
	}

	id := strings.TrimSpace(raw.ID)
	if id == "" {
		id = uuid.NewString()
	}

	address := raw.Address
	if address == 0 {
		address = 1
	}

	publishEnabled := true
	if raw.PublishEnabled != nil {
		publishEnabled = *raw.PublishEnabled
	}

	enabled := true
	if raw.Enabled != nil {
		enabled = *raw.Enabled
	}

	return Device{
		ID:             id,
		Name:           strings.TrimSpace(raw.Name),
		Kind:           kind,
		Address:        address,
		ChannelStart:   channelStart,
		ChannelEnd:     channelEnd,
		Topic:          strings.TrimSpace(raw.Topic),
		Enabled:        enabled,
		PublishEnabled: publishEnabled,
	}
}

// SerialConfig describes the RS-485 port.
type SerialConfig struct {
	Port        string  `json:"port"`
	BaudRate    int     `json:"baudrate"`
	ByteSize    int     `json:"bytesize"`
	Parity      string  `json:"parity"`
	StopBits    int     `json:"stopbits"`
	TimeoutSec  float64 `json:"timeout_sec"`
}

func defaultSerialConfig() SerialConfig {
	return SerialConfig{
		Port:       "/dev/ttyUSB0",
		BaudRate:   9600,
		ByteSize:   8,
		Parity:     "N",
		StopBits:   1,
		TimeoutSec: 0.25,
	}
}

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	Host             string `json:"host"`
	Port             int    `json:"port"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	ClientID         string `json:"client_id"`
	BaseTopic        string `json:"base_topic"`
	DiscoveryPrefix  string `json:"discovery_prefix"`
	KeepaliveSec     int    `json:"keepalive"`
}

func defaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Host:            "127.0.0.1",
		Port:            1883,
		ClientID:        "cerebro2mqtt",
		BaseTopic:       "cerebro2mqtt",
		DiscoveryPrefix: "homeassistant",
		KeepaliveSec:    60,
	}
}

// PollingConfig controls the polling scheduler.
type PollingConfig struct {
	IntervalSec int  `json:"interval_sec"`
	AutoStart   bool `json:"auto_start"`
}

func defaultPollingConfig() PollingConfig {
	return PollingConfig{IntervalSec: 30, AutoStart: true}
}

// WebConfig controls the admin HTTP listener.
type WebConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func defaultWebConfig() WebConfig {
	return WebConfig{Host: "0.0.0.0", Port: 80}
}

// ServiceConfig holds the optional external restart command.
type ServiceConfig struct {
	RestartCommand string `json:"restart_command"`
}

// AppConfig is the full persisted configuration document.
type AppConfig struct {
	Serial  SerialConfig  `json:"serial"`
	MQTT    MQTTConfig    `json:"mqtt"`
	Polling PollingConfig `json:"polling"`
	Web     WebConfig     `json:"web"`
	Service ServiceConfig `json:"service"`
	Boards  []Device      `json:"boards"`
}

// DefaultAppConfig is written out the first time the service runs against
// a missing configuration file.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Serial:  defaultSerialConfig(),
		MQTT:    defaultMQTTConfig(),
		Polling: defaultPollingConfig(),
		Web:     defaultWebConfig(),
		Boards:  []Device{},
	}
}

// Clone returns a deep copy, used whenever a long-lived operation needs a
// config snapshot it can read without holding the store's lock.
func (c AppConfig) Clone() AppConfig {
	clone := c
	clone.Boards = append([]Device(nil), c.Boards...)
	return clone
}

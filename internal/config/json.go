package config

import "encoding/json"

// UnmarshalJSON starts from DefaultAppConfig() and overlays whatever keys
// are present, mirroring the original tool's AppConfig.from_dict(data.get(...))
// per-field defaulting.
func (c *AppConfig) UnmarshalJSON(data []byte) error {
	*c = DefaultAppConfig()

	type alias AppConfig
	aux := alias(*c)
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Boards == nil {
		aux.Boards = []Device{}
	}
	*c = AppConfig(aux)
	return nil
}

// rawDevice mirrors the superset wire shape: both the legacy single
// "channel" field and the channel_start/channel_end pair are accepted (see
// SPEC_FULL.md §3, "Channel-range superset").
type rawDevice struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	Address        int     `json:"address"`
	Channel        int     `json:"channel"`
	ChannelStart   int     `json:"channel_start"`
	ChannelEnd     int     `json:"channel_end"`
	Topic          string  `json:"topic"`
	Enabled        *bool   `json:"enabled"`
	PublishEnabled *bool   `json:"publish_enabled"`
}

// UnmarshalJSON accepts both the legacy "channel" shape and the
// channel_start/channel_end shape, defaulting and normalizing exactly as
// normalizeDevice describes.
func (d *Device) UnmarshalJSON(data []byte) error {
	var raw rawDevice
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = normalizeDevice(raw)
	return nil
}

// MarshalJSON emits both channel_start/channel_end and the legacy
// "channel" alias (set to PrimaryChannel) so older consumers of the config
// file keep working.
func (d Device) MarshalJSON() ([]byte, error) {
	type out struct {
		ID             string     `json:"id"`
		Name           string     `json:"name"`
		Type           DeviceKind `json:"type"`
		Address        int        `json:"address"`
		Channel        int        `json:"channel"`
		ChannelStart   int        `json:"channel_start"`
		ChannelEnd     int        `json:"channel_end"`
		Topic          string     `json:"topic"`
		Enabled        bool       `json:"enabled"`
		PublishEnabled bool       `json:"publish_enabled"`
	}
	return json.Marshal(out{
		ID:             d.ID,
		Name:           d.Name,
		Type:           d.Kind,
		Address:        d.Address,
		Channel:        d.PrimaryChannel(),
		ChannelStart:   d.ChannelStart,
		ChannelEnd:     d.ChannelEnd,
		Topic:          d.Topic,
		Enabled:        d.Enabled,
		PublishEnabled: d.PublishEnabled,
	})
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ValidationError is returned by Validate and wraps every rule violation
// described in SPEC_FULL.md §4.9 / spec.md §6.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Validate enforces every rule from spec.md §6 "Configuration file".
func Validate(c AppConfig) error {
	if c.Serial.BaudRate <= 0 {
		return validationErrorf("invalid serial baudrate: %d", c.Serial.BaudRate)
	}
	if c.MQTT.Port <= 0 {
		return validationErrorf("invalid mqtt port: %d", c.MQTT.Port)
	}
	if c.Polling.IntervalSec < 1 {
		return validationErrorf("polling interval must be >= 1: %d", c.Polling.IntervalSec)
	}
	if c.Web.Port <= 0 {
		return validationErrorf("invalid web port: %d", c.Web.Port)
	}

	seenSlugs := make(map[string]bool, len(c.Boards))
	for _, device := range c.Boards {
		if device.Name == "" {
			return validationErrorf("every device must have a name")
		}
		if device.Address < 1 || device.Address > 254 {
			return validationErrorf("invalid address for %s: %d", device.Name, device.Address)
		}

		switch device.Kind {
		case KindLights:
			if device.ChannelStart < 1 || device.ChannelEnd > 8 || device.ChannelStart > device.ChannelEnd {
				return validationErrorf("invalid channel range for %s: [%d,%d]", device.Name, device.ChannelStart, device.ChannelEnd)
			}
		case KindShutters:
			if device.ChannelStart < 1 || device.ChannelStart > 8 {
				return validationErrorf("invalid channel for %s: %d", device.Name, device.ChannelStart)
			}
		default:
			if device.ChannelStart < 1 {
				return validationErrorf("invalid channel for %s: %d", device.Name, device.ChannelStart)
			}
		}

		if !device.Enabled {
			continue
		}
		slug := device.TopicSlug()
		if seenSlugs[slug] {
			return validationErrorf("duplicate topic slug: %s", slug)
		}
		seenSlugs[slug] = true
	}

	return nil
}

// Store owns the on-disk configuration file: load-or-create at startup,
// atomic save, and an RWMutex-guarded in-memory copy for the rest of the
// process to read.
type Store struct {
	path string
	mu   sync.RWMutex
	cfg  AppConfig
}

// Open loads path, creating it from DefaultAppConfig() if it does not
// exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultAppConfig()
		if err := s.Save(cfg); err != nil {
			return nil, err
		}
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	s.cfg = cfg
	return s, nil
}

// Config returns a deep copy of the current configuration.
func (s *Store) Config() AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Path is the on-disk location this store persists to.
func (s *Store) Path() string { return s.path }

// Save validates cfg, writes it to a sibling ".tmp" file, and renames it
// onto Path atomically, matching the original tool's ConfigStore.save.
func (s *Store) Save(cfg AppConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}

	s.cfg = cfg
	return nil
}

// UpdateFromJSON validates and persists a JSON document received from the
// admin surface, mirroring ConfigStore.update_from_dict.
func (s *Store) UpdateFromJSON(raw []byte) (AppConfig, error) {
	var cfg AppConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	if err := s.Save(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

package bridge

import "sync"

// brightnessCache maps a device's stable id to its last non-zero
// brightness percent, used to restore brightness on a bare ON command
// with no explicit level (spec.md §4.7 "Dimmer").
type brightnessCache struct {
	mu    sync.Mutex
	byID  map[string]int
}

func newBrightnessCache() *brightnessCache {
	return &brightnessCache{byID: make(map[string]int)}
}

func (c *brightnessCache) set(id string, percent int) {
	if percent <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[id] = percent
}

// get returns the cached percent, defaulting to 100 per the spec's "ON
// uses cached last-non-zero percent, default 100".
func (c *brightnessCache) get(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.byID[id]; ok {
		return p
	}
	return 100
}

package bridge

import "github.com/algodomo/cerebro2mqtt/internal/config"

// deviceIndex is the bridge's lookup structure, rebuilt from AppConfig on
// every load/reload. Only enabled devices are indexed; disabled devices
// are neither addressable by command topic nor polled.
type deviceIndex struct {
	bySlug   map[string]config.Device
	byAddr   map[uint8][]config.Device
}

func buildDeviceIndex(devices []config.Device) *deviceIndex {
	idx := &deviceIndex{
		bySlug: make(map[string]config.Device),
		byAddr: make(map[uint8][]config.Device),
	}
	for _, d := range devices {
		if !d.Enabled {
			continue
		}
		idx.bySlug[d.TopicSlug()] = d
		addr := uint8(d.Address)
		idx.byAddr[addr] = append(idx.byAddr[addr], d)
	}
	return idx
}

func (idx *deviceIndex) bySlugLookup(slug string) (config.Device, bool) {
	d, ok := idx.bySlug[slug]
	return d, ok
}

func (idx *deviceIndex) addresses() []uint8 {
	addrs := make([]uint8, 0, len(idx.byAddr))
	for addr := range idx.byAddr {
		addrs = append(addrs, addr)
	}
	return addrs
}

func (idx *deviceIndex) atAddress(addr uint8) []config.Device {
	return idx.byAddr[addr]
}

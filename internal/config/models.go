package config

import (
	"sort"
	"strings"
	"time"

	"github.com/muurk/plugscan/internal/discovery"
)

// CurrentVersion is the config file format version
const CurrentVersion = 1

// Registry represents the entire user configuration file.
// It stores scan preferences and the last-seen cache of discovered plugs.
type Registry struct {
	Version     int                `yaml:"version"`
	Preferences *Preferences       `yaml:"preferences,omitempty"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by DeviceKey
}

// Preferences are the defaults for scan flags. Flags given on the command
// line always win.
type Preferences struct {
	ScanTimeout time.Duration `yaml:"scan_timeout"`     // Sweep timeout, e.g. "3s"
	Target      string        `yaml:"target,omitempty"` // Probe destination
	Format      string        `yaml:"format,omitempty"` // list, table or json
	Mask        bool          `yaml:"mask"`             // Mask sensitive fields
	Remember    bool          `yaml:"remember"`         // Update the device cache after each scan
}

// Device is the last-seen record of one plug. Only what the discovery reply
// reveals is kept; the config never stores credentials.
type Device struct {
	Model    string    `yaml:"model,omitempty"`
	Type     string    `yaml:"type,omitempty"`
	LastIP   string    `yaml:"last_ip,omitempty"`
	MAC      string    `yaml:"mac,omitempty"`
	LastSeen time.Time `yaml:"last_seen"`
}

// Entry pairs a cached device with its registry key
type Entry struct {
	Key string
	*Device
}

// DefaultPreferences returns the preferences used when the file has none
func DefaultPreferences() *Preferences {
	return &Preferences{
		ScanTimeout: discovery.DefaultScanTimeout,
		Target:      discovery.DefaultTarget,
		Format:      "list",
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     CurrentVersion,
		Devices:     make(map[string]*Device),
		Preferences: DefaultPreferences(),
	}
}

// DeviceKey returns the cache key of a discovered device: its device id,
// else its MAC, else its address.
func DeviceKey(d *discovery.Device) string {
	switch {
	case d.DeviceID != "":
		return d.DeviceID
	case d.MAC != "":
		return strings.ToUpper(d.MAC)
	default:
		return d.Address()
	}
}

// GetDevice retrieves a cached device by key.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(key string) *Device {
	return r.Devices[key]
}

// Remember records a sighting of d at the given time and returns its key.
// Fields the new reply leaves empty keep their cached values.
func (r *Registry) Remember(d *discovery.Device, at time.Time) string {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	key := DeviceKey(d)
	cached, ok := r.Devices[key]
	if !ok {
		cached = &Device{}
		r.Devices[key] = cached
	}

	if d.DeviceModel != "" {
		cached.Model = d.DeviceModel
	}
	if d.DeviceType != "" {
		cached.Type = d.DeviceType
	}
	if addr := d.Address(); addr != "" {
		cached.LastIP = addr
	}
	if d.MAC != "" {
		cached.MAC = d.MAC
	}
	cached.LastSeen = at
	return key
}

// Forget removes a cached device. It reports whether the key existed.
func (r *Registry) Forget(key string) bool {
	if _, ok := r.Devices[key]; !ok {
		return false
	}
	delete(r.Devices, key)
	return true
}

// Prune drops devices not seen since before and returns how many it removed.
func (r *Registry) Prune(before time.Time) int {
	removed := 0
	for key, d := range r.Devices {
		if d.LastSeen.Before(before) {
			delete(r.Devices, key)
			removed++
		}
	}
	return removed
}

// Entries returns the cached devices, most recently seen first
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, 0, len(r.Devices))
	for key, d := range r.Devices {
		entries = append(entries, Entry{Key: key, Device: d})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].LastSeen.Equal(entries[j].LastSeen) {
			return entries[i].LastSeen.After(entries[j].LastSeen)
		}
		return entries[i].Key < entries[j].Key
	})
	return entries
}

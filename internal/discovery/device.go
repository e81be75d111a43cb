package discovery

import (
	"encoding/json"
	"fmt"
	"net"
	"slices"
	"time"
)

// JSON keys of the core device fields
const (
	KeyDeviceType  = "device_type"
	KeyDeviceModel = "device_model"
	KeyDeviceID    = "device_id"
	KeyIP          = "ip"
	KeyMAC         = "mac"
)

// CoreKeys lists the core device fields in display order
var CoreKeys = []string{KeyDeviceType, KeyDeviceModel, KeyDeviceID, KeyIP, KeyMAC}

// Device is the cleartext record a plug returns in its discovery reply
type Device struct {
	// DeviceType is the product family (e.g., "SMART.TAPOPLUG")
	DeviceType string

	// DeviceModel is the hardware model (e.g., "P110")
	DeviceModel string

	// DeviceID is the cloud device identifier
	DeviceID string

	// IP is the address the device reports for itself
	IP string

	// MAC is the device MAC address (e.g., "AA-BB-CC-DD-EE-FF")
	MAC string

	// Extra holds every other key of the record, unmodified
	// Common fields: "hw_ver", "owner", "factory_default", "mgt_encrypt_schm"
	Extra map[string]json.RawMessage

	// Source is the sender of the reply datagram
	Source net.Addr

	// PacketID is the id from the reply packet header
	PacketID [4]byte

	// DiscoveredAt is when the reply was decoded
	DiscoveredAt time.Time
}

// UnmarshalJSON decodes the core fields and keeps all other keys in Extra.
// A core key whose value is not a JSON string is kept in Extra as sent.
func (d *Device) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("device record is null")
	}

	d.DeviceType, d.DeviceModel, d.DeviceID, d.IP, d.MAC = "", "", "", "", ""
	for _, key := range CoreKeys {
		value, ok := raw[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, d.coreField(key)); err != nil {
			continue
		}
		delete(raw, key)
	}

	d.Extra = nil
	if len(raw) > 0 {
		d.Extra = raw
	}

	return nil
}

// MarshalJSON emits the extension keys and every core field that has a value
func (d Device) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(CoreKeys)+len(d.Extra))
	for key, value := range d.Extra {
		out[key] = value
	}
	for _, key := range CoreKeys {
		if value := *d.coreField(key); value != "" {
			out[key] = value
		}
	}
	return json.Marshal(out)
}

// IsCoreKey reports whether key names one of the core device fields
func IsCoreKey(key string) bool {
	return slices.Contains(CoreKeys, key)
}

func (d *Device) coreField(key string) *string {
	switch key {
	case KeyDeviceType:
		return &d.DeviceType
	case KeyDeviceModel:
		return &d.DeviceModel
	case KeyDeviceID:
		return &d.DeviceID
	case KeyIP:
		return &d.IP
	case KeyMAC:
		return &d.MAC
	}
	return nil
}

// Get returns the value of a record field as text. Extension values that are
// JSON strings are unquoted; other JSON values are returned verbatim. Core
// keys always exist; one the plug sent as a non-string reads from Extra.
func (d *Device) Get(key string) (string, bool) {
	core := d.coreField(key)
	if core != nil && *core != "" {
		return *core, true
	}

	value, ok := d.Extra[key]
	if !ok {
		return "", core != nil
	}
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s, true
	}
	return string(value), true
}

// Address returns the best known address of the device: the self-reported
// IP, or the host the reply came from.
func (d *Device) Address() string {
	if d.IP != "" {
		return d.IP
	}
	if udp, ok := d.Source.(*net.UDPAddr); ok {
		return udp.IP.String()
	}
	if d.Source != nil {
		host, _, err := net.SplitHostPort(d.Source.String())
		if err == nil {
			return host
		}
	}
	return ""
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("%s %s (%s) at %s", d.DeviceType, d.DeviceModel, d.MAC, d.Address())
}

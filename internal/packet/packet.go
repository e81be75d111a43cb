package packet

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
)

// Header layout
//
//	[0-3]   02 00 00 01    Magic/version
//	[4-5]   length         Payload length (signed big-endian int16)
//	[6-7]   type           Packet type (11 00 for the discovery request)
//	[8-11]  id             Packet id
//	[12-15] checksum       CRC32 (big-endian) of the whole packet, computed
//	                       while this field holds ChecksumPlaceholder
//	[16+]   payload        UTF-8 JSON
const (
	HeaderSize = 16

	offsetLength   = 4
	offsetType     = 6
	offsetID       = 8
	offsetChecksum = 12

	// MaxPayloadSize is bounded by the signed 16-bit length field
	MaxPayloadSize = math.MaxInt16
)

var (
	// Magic is the constant magic/version prefix of every packet
	Magic = [4]byte{0x02, 0x00, 0x00, 0x01}

	// ChecksumPlaceholder occupies the checksum field while the CRC is computed
	ChecksumPlaceholder = [4]byte{0x5A, 0x6B, 0x7C, 0x8D}

	// TypeDiscoveryRequest marks an outbound discovery probe
	TypeDiscoveryRequest = [2]byte{0x11, 0x00}

	// DefaultID is the packet id used for outbound probes
	DefaultID = [4]byte{0x01, 0x02, 0x03, 0x04}
)

// Packet is a parsed discovery packet
type Packet struct {
	Length   int16
	Type     [2]byte
	ID       [4]byte
	Checksum uint32
	Payload  []byte
}

// Build assembles a packet for payload. The checksum is computed over the
// complete buffer with ChecksumPlaceholder in the checksum field, then the
// placeholder is overwritten by the big-endian CRC32.
func Build(payload []byte, typ [2]byte, id [4]byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	buf := make([]byte, HeaderSize+len(payload))
	copy(buf[0:offsetLength], Magic[:])
	binary.BigEndian.PutUint16(buf[offsetLength:offsetType], uint16(int16(len(payload))))
	copy(buf[offsetType:offsetID], typ[:])
	copy(buf[offsetID:offsetChecksum], id[:])
	copy(buf[offsetChecksum:HeaderSize], ChecksumPlaceholder[:])
	copy(buf[HeaderSize:], payload)

	binary.BigEndian.PutUint32(buf[offsetChecksum:HeaderSize], crc32.ChecksumIEEE(buf))

	return buf, nil
}

// BuildDiscovery builds a discovery request with the default packet id
func BuildDiscovery(payload []byte) ([]byte, error) {
	return Build(payload, TypeDiscoveryRequest, DefaultID)
}

// Parse splits a received packet into its header fields and payload.
// The checksum is read but not verified; see Verify.
func Parse(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, &FramingError{
			Message: fmt.Sprintf("packet too short: %d bytes (header is %d)", len(data), HeaderSize),
			Length:  len(data),
		}
	}

	p := &Packet{
		Length:   int16(binary.BigEndian.Uint16(data[offsetLength:offsetType])),
		Checksum: binary.BigEndian.Uint32(data[offsetChecksum:HeaderSize]),
		Payload:  append([]byte(nil), data[HeaderSize:]...),
	}
	copy(p.Type[:], data[offsetType:offsetID])
	copy(p.ID[:], data[offsetID:offsetChecksum])

	return p, nil
}

// Verify recomputes the checksum of a received packet with the placeholder
// scheme and checks the length field against the payload size.
func Verify(data []byte) error {
	p, err := Parse(data)
	if err != nil {
		return err
	}

	if int(p.Length) != len(p.Payload) {
		return &FramingError{
			Message: fmt.Sprintf("length field %d does not match payload size %d", p.Length, len(p.Payload)),
			Length:  len(data),
		}
	}

	want := Checksum(data)
	if p.Checksum != want {
		return &ChecksumError{Got: p.Checksum, Want: want}
	}

	return nil
}

// Checksum returns the CRC32 of data with the checksum field replaced by
// ChecksumPlaceholder. data must be at least HeaderSize bytes.
func Checksum(data []byte) uint32 {
	buf := append([]byte(nil), data...)
	copy(buf[offsetChecksum:HeaderSize], ChecksumPlaceholder[:])
	return crc32.ChecksumIEEE(buf)
}

// String returns a debug representation of the packet
func (p *Packet) String() string {
	return fmt.Sprintf("Packet{Type=%X, ID=%X, Length=%d, Checksum=0x%08X}",
		p.Type, p.ID, p.Length, p.Checksum)
}

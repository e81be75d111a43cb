// Package packet encodes and decodes the binary discovery packet used by
// Tapo smart plugs on UDP port 20002.
//
// # Packet Structure
//
// Every packet is a fixed 16-byte header followed by a JSON payload:
//
//	Offset  Size  Field
//	0       4     Magic/version (02 00 00 01)
//	4       2     Payload length, signed big-endian
//	6       2     Packet type (11 00 for a discovery request)
//	8       4     Packet id (01 02 03 04 for outbound probes)
//	12      4     CRC32, big-endian
//	16      n     Payload
//
// # Checksum
//
// The checksum is produced in two steps. The field is first filled with the
// placeholder 5A 6B 7C 8D, the CRC32 (IEEE) of the complete packet is
// computed, and the result overwrites the placeholder. Devices reject probes
// that do not follow this sequence exactly.
//
// Parse never checks the checksum because devices are trusted to send
// well-formed replies. Verify is available for callers that want to reject
// corrupted replies anyway.
//
// # Usage Example
//
//	probe, err := packet.BuildDiscovery([]byte(`{"params":{"rsa_key":"..."}}`))
//	if err != nil {
//	    return err
//	}
//
//	reply, err := packet.Parse(datagram)
//	if err != nil {
//	    // errors.Is(err, packet.ErrFraming)
//	}
package packet

package discovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/muurk/plugscan/internal/handshake"
	"github.com/muurk/plugscan/internal/packet"
)

// DropReason classifies why a reply did not yield a device
type DropReason string

const (
	ReasonNone        DropReason = ""
	ReasonFraming     DropReason = "framing"
	ReasonChecksum    DropReason = "checksum"
	ReasonPacketID    DropReason = "packet_id"
	ReasonJSON        DropReason = "json"
	ReasonDeviceError DropReason = "device_error"
	ReasonEnvelope    DropReason = "envelope"
	ReasonCrypto      DropReason = "crypto"
	ReasonRecord      DropReason = "record"
)

// AllDropReasons lists every non-empty DropReason
var AllDropReasons = []DropReason{
	ReasonFraming, ReasonChecksum, ReasonPacketID, ReasonJSON,
	ReasonDeviceError, ReasonEnvelope, ReasonCrypto, ReasonRecord,
}

// Reply is the outcome of decoding one datagram: either Device is set, or
// Reason and Err describe why it was dropped.
type Reply struct {
	From     net.Addr
	PacketID [4]byte
	Device   *Device
	Reason   DropReason
	Err      error
}

// OK reports whether the reply produced a device
func (r Reply) OK() bool {
	return r.Device != nil
}

// replyPayload is the JSON carried by a device's discovery reply
type replyPayload struct {
	ErrorCode int `json:"error_code"`
	Result    struct {
		EncryptInfo *handshake.Envelope `json:"encrypt_info"`
	} `json:"result"`
}

// decodeOptions are the hardening switches applied to every reply
type decodeOptions struct {
	verifyChecksum bool
	matchPacketID  bool
	probeID        [4]byte
}

// decodeReply runs one datagram through framing, JSON, key exchange and
// session decryption. It never panics on hostile input and never returns an
// error; failures are reported through the Reply.
func decodeReply(data []byte, from net.Addr, kx *handshake.KeyExchange, opts decodeOptions) Reply {
	reply := Reply{From: from}

	if opts.verifyChecksum {
		if err := packet.Verify(data); err != nil {
			var ce *packet.ChecksumError
			if errors.As(err, &ce) {
				return reply.drop(ReasonChecksum, err)
			}
			return reply.drop(ReasonFraming, err)
		}
	}

	p, err := packet.Parse(data)
	if err != nil {
		return reply.drop(ReasonFraming, err)
	}
	reply.PacketID = p.ID

	if opts.matchPacketID && p.ID != opts.probeID {
		return reply.drop(ReasonPacketID, fmt.Errorf("packet id %X does not match probe id %X", p.ID, opts.probeID))
	}

	var payload replyPayload
	if err := json.Unmarshal(p.Payload, &payload); err != nil {
		return reply.drop(ReasonJSON, fmt.Errorf("invalid reply payload: %w", err))
	}

	if payload.ErrorCode != 0 {
		return reply.drop(ReasonDeviceError, DeviceErrorCode(payload.ErrorCode))
	}

	env := payload.Result.EncryptInfo
	if env == nil {
		return reply.drop(ReasonEnvelope, errors.New("reply carries no result.encrypt_info"))
	}

	text, err := env.Open(kx)
	if err != nil {
		return reply.drop(ReasonCrypto, err)
	}

	device := &Device{}
	if err := json.Unmarshal([]byte(text), device); err != nil {
		return reply.drop(ReasonRecord, fmt.Errorf("invalid device record: %w", err))
	}
	device.Source = from
	device.PacketID = p.ID
	device.DiscoveredAt = time.Now()

	reply.Device = device
	return reply
}

func (r Reply) drop(reason DropReason, err error) Reply {
	r.Reason = reason
	r.Err = err
	return r
}

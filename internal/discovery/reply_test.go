package discovery

import (
	"crypto/rand"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/plugscan/internal/handshake"
	"github.com/muurk/plugscan/internal/packet"
)

const p110Record = `{"device_type":"SMART.PLUG","device_model":"P110","ip":"10.0.0.5"}`

func TestDecodeReply(t *testing.T) {
	kx := testKeyExchange(t)
	from := &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: DiscoveryPort}

	good, err := sealedReply(kx.PublicKey(), p110Record)
	require.NoError(t, err)

	other, err := handshake.GenerateKeyExchange()
	require.NoError(t, err)
	foreign, err := sealedReply(other.PublicKey(), p110Record)
	require.NoError(t, err)

	notJSONRecord, err := sealedReply(kx.PublicKey(), "definitely not json")
	require.NoError(t, err)

	arrayRecord, err := sealedReply(kx.PublicKey(), `["SMART.PLUG"]`)
	require.NoError(t, err)

	declined, err := replyPacket([]byte(`{"error_code":-40401,"result":{}}`))
	require.NoError(t, err)

	noEnvelope, err := replyPacket([]byte(`{"error_code":0,"result":{"device_id":"x"}}`))
	require.NoError(t, err)

	invalidJSON, err := replyPacket([]byte(`{"error_code":0,`))
	require.NoError(t, err)

	tests := []struct {
		name       string
		data       []byte
		wantReason DropReason
	}{
		{"well-formed reply", good, ReasonNone},
		{"truncated header", good[:10], ReasonFraming},
		{"empty datagram", []byte{}, ReasonFraming},
		{"invalid json", invalidJSON, ReasonJSON},
		{"device error code", declined, ReasonDeviceError},
		{"missing envelope", noEnvelope, ReasonEnvelope},
		{"encrypted for another key", foreign, ReasonCrypto},
		{"record is not json", notJSONRecord, ReasonRecord},
		{"record is not an object", arrayRecord, ReasonRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := decodeReply(tt.data, from, kx, decodeOptions{})

			assert.Equal(t, tt.wantReason, reply.Reason)
			assert.Equal(t, from, reply.From)
			if tt.wantReason == ReasonNone {
				require.True(t, reply.OK(), "unexpected drop: %v", reply.Err)
				assert.NoError(t, reply.Err)
				return
			}
			assert.False(t, reply.OK())
			assert.Error(t, reply.Err)
		})
	}
}

func TestDecodeReply_Record(t *testing.T) {
	kx := testKeyExchange(t)
	from := &net.UDPAddr{IP: net.ParseIP("192.168.1.23"), Port: DiscoveryPort}

	record := `{"device_type":"SMART.TAPOPLUG","device_model":"P100(EU)","device_id":"80221E3C",` +
		`"ip":"192.168.1.23","mac":"AA-BB-CC-DD-EE-FF","hw_ver":"1.0","factory_default":false,` +
		`"mgt_encrypt_schm":{"is_support_https":false,"encrypt_type":"AES","http_port":80}}`
	data, err := sealedReply(kx.PublicKey(), record)
	require.NoError(t, err)

	reply := decodeReply(data, from, kx, decodeOptions{})
	require.True(t, reply.OK(), "unexpected drop: %v", reply.Err)

	d := reply.Device
	assert.Equal(t, "SMART.TAPOPLUG", d.DeviceType)
	assert.Equal(t, "P100(EU)", d.DeviceModel)
	assert.Equal(t, "80221E3C", d.DeviceID)
	assert.Equal(t, "192.168.1.23", d.IP)
	assert.Equal(t, "AA-BB-CC-DD-EE-FF", d.MAC)
	assert.Equal(t, packet.DefaultID, d.PacketID)
	assert.Equal(t, from, d.Source)
	assert.False(t, d.DiscoveredAt.IsZero())

	require.Len(t, d.Extra, 3)
	assert.JSONEq(t, `"1.0"`, string(d.Extra["hw_ver"]))
	assert.JSONEq(t, `false`, string(d.Extra["factory_default"]))
	assert.JSONEq(t, `{"is_support_https":false,"encrypt_type":"AES","http_port":80}`, string(d.Extra["mgt_encrypt_schm"]))
}

func TestDecodeReply_VerifyChecksum(t *testing.T) {
	kx := testKeyExchange(t)

	good, err := sealedReply(kx.PublicKey(), p110Record)
	require.NoError(t, err)

	corrupt := append([]byte(nil), good...)
	corrupt[13] ^= 0x01

	off := decodeReply(corrupt, nil, kx, decodeOptions{})
	assert.True(t, off.OK(), "checksum must be ignored by default: %v", off.Err)

	on := decodeReply(corrupt, nil, kx, decodeOptions{verifyChecksum: true})
	assert.Equal(t, ReasonChecksum, on.Reason)

	valid := decodeReply(good, nil, kx, decodeOptions{verifyChecksum: true})
	assert.True(t, valid.OK(), "valid checksum rejected: %v", valid.Err)

	short := decodeReply(good[:4], nil, kx, decodeOptions{verifyChecksum: true})
	assert.Equal(t, ReasonFraming, short.Reason)
}

func TestDecodeReply_MatchPacketID(t *testing.T) {
	kx := testKeyExchange(t)

	material := make([]byte, handshake.SessionKeySize)
	_, err := rand.Read(material)
	require.NoError(t, err)
	env, err := handshake.Seal(kx.PublicKey(), material, p110Record)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]any{"error_code": 0, "result": map[string]any{"encrypt_info": env}})
	require.NoError(t, err)

	otherID := [4]byte{0x09, 0x09, 0x09, 0x09}
	data, err := packet.Build(payload, typeDiscoveryReply, otherID)
	require.NoError(t, err)

	off := decodeReply(data, nil, kx, decodeOptions{probeID: packet.DefaultID})
	require.True(t, off.OK(), "packet id must be ignored by default: %v", off.Err)
	assert.Equal(t, otherID, off.Device.PacketID)

	on := decodeReply(data, nil, kx, decodeOptions{matchPacketID: true, probeID: packet.DefaultID})
	assert.Equal(t, ReasonPacketID, on.Reason)
	assert.Equal(t, otherID, on.PacketID)
}

func TestDecodeReply_DeviceErrorCode(t *testing.T) {
	kx := testKeyExchange(t)

	data, err := replyPacket([]byte(`{"error_code":-1501}`))
	require.NoError(t, err)

	reply := decodeReply(data, nil, kx, decodeOptions{})
	var code DeviceErrorCode
	require.ErrorAs(t, reply.Err, &code)
	assert.Equal(t, DeviceErrorCode(-1501), code)
	assert.Equal(t, "device returned error_code -1501", reply.Err.Error())
}

func TestDecodeReply_NonStringCoreField(t *testing.T) {
	kx := testKeyExchange(t)

	data, err := sealedReply(kx.PublicKey(), `{"device_type":"SMART.PLUG","device_model":"P110","device_id":12345}`)
	require.NoError(t, err)

	reply := decodeReply(data, nil, kx, decodeOptions{})
	require.True(t, reply.OK(), "unexpected drop: %v", reply.Err)

	d := reply.Device
	assert.Equal(t, "P110", d.DeviceModel)
	assert.Empty(t, d.DeviceID)
	assert.JSONEq(t, `12345`, string(d.Extra[KeyDeviceID]))

	id, ok := d.Get(KeyDeviceID)
	assert.True(t, ok)
	assert.Equal(t, "12345", id)
}

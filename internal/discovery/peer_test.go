package discovery

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/muurk/plugscan/internal/handshake"
	"github.com/muurk/plugscan/internal/packet"
)

// typeDiscoveryReply is the packet type plugs use for replies
var typeDiscoveryReply = [2]byte{0x21, 0x00}

var (
	sharedKX     *handshake.KeyExchange
	sharedKXErr  error
	sharedKXOnce sync.Once
)

// testKeyExchange generates one key pair for the whole package
func testKeyExchange(t *testing.T) *handshake.KeyExchange {
	t.Helper()
	sharedKXOnce.Do(func() {
		sharedKX, sharedKXErr = handshake.GenerateKeyExchange()
	})
	require.NoError(t, sharedKXErr)
	return sharedKX
}

// replyPacket wraps a JSON payload the way a plug frames its reply
func replyPacket(payload []byte) ([]byte, error) {
	return packet.Build(payload, typeDiscoveryReply, packet.DefaultID)
}

// sealedReply builds a well-formed, encrypted discovery reply for record
func sealedReply(pub *rsa.PublicKey, record string) ([]byte, error) {
	material := make([]byte, handshake.SessionKeySize)
	if _, err := rand.Read(material); err != nil {
		return nil, err
	}

	env, err := handshake.Seal(pub, material, record)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"error_code": 0,
		"result": map[string]any{
			"device_id":    "visible-but-ignored",
			"encrypt_info": map[string]any{"sym_schm": "AES", "key": env.Key, "data": env.Data},
		},
	})
	if err != nil {
		return nil, err
	}
	return replyPacket(payload)
}

// fakePlug answers every probe it receives with the datagrams built by respond
type fakePlug struct {
	conn   net.PacketConn
	probes chan []byte
}

func startFakePlug(t *testing.T, respond func(pub *rsa.PublicKey) [][]byte) *fakePlug {
	t.Helper()

	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	plug := &fakePlug{conn: conn, probes: make(chan []byte, 4)}

	go func() {
		buf := make([]byte, 65535)
		for {
			n, from, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			raw := append([]byte(nil), buf[:n]...)
			select {
			case plug.probes <- raw:
			default:
			}

			p, err := packet.Parse(raw)
			if err != nil {
				continue
			}
			var probe probeRequest
			if err := json.Unmarshal(p.Payload, &probe); err != nil {
				continue
			}
			pub, err := handshake.ParsePublicKeyPEM(probe.Params.RSAKey)
			if err != nil {
				continue
			}
			if respond == nil {
				continue
			}
			for _, datagram := range respond(pub) {
				conn.WriteTo(datagram, from)
			}
		}
	}()

	return plug
}

func (p *fakePlug) Addr() string {
	return p.conn.LocalAddr().String()
}

// mustBytes drops the error of a reply builder; a nil datagram simply never
// decodes, which the calling test then notices as a missing device
func mustBytes(b []byte, err error) []byte {
	if err != nil {
		return nil
	}
	return b
}

package handshake

import (
	"bytes"
	"crypto/aes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sharedKX     *KeyExchange
	sharedKXErr  error
	sharedKXOnce sync.Once
)

// testKeyExchange generates one key pair for the whole package
func testKeyExchange(t *testing.T) *KeyExchange {
	t.Helper()
	sharedKXOnce.Do(func() {
		sharedKX, sharedKXErr = GenerateKeyExchange()
	})
	require.NoError(t, sharedKXErr)
	return sharedKX
}

func sequentialMaterial() []byte {
	m := make([]byte, SessionKeySize)
	for i := range m {
		m[i] = byte(i)
	}
	return m
}

func TestSplitSessionKey(t *testing.T) {
	material := sequentialMaterial()

	sk, err := SplitSessionKey(material)
	require.NoError(t, err)
	assert.Equal(t, material[:16], sk.Key[:])
	assert.Equal(t, material[16:], sk.IV[:])

	for _, n := range []int{0, 16, 31, 33, 64} {
		_, err := SplitSessionKey(make([]byte, n))
		assert.ErrorIs(t, err, ErrCrypto, "length %d", n)
	}
}

func TestKeyExchange_PublicKeyPEM(t *testing.T) {
	kx := testKeyExchange(t)

	text := kx.PublicKeyPEM()
	assert.True(t, strings.HasPrefix(text, "-----BEGIN PUBLIC KEY-----\n"))
	assert.True(t, strings.HasSuffix(text, "-----END PUBLIC KEY-----\n"))

	pub, err := ParsePublicKeyPEM(text)
	require.NoError(t, err)
	assert.Equal(t, KeyBits, pub.N.BitLen())
	assert.True(t, pub.Equal(kx.PublicKey()))

	assert.Equal(t, text, kx.PublicKeyPEM(), "PEM must be stable for the session")
}

func TestKeyExchange_DecryptSessionKey(t *testing.T) {
	kx := testKeyExchange(t)
	material := sequentialMaterial()

	blob, err := EncryptSessionKey(kx.PublicKey(), material)
	require.NoError(t, err)

	sk, err := kx.DecryptSessionKey(blob)
	require.NoError(t, err)
	assert.Equal(t, material[:16], sk.Key[:])
	assert.Equal(t, material[16:], sk.IV[:])
}

func TestKeyExchange_DecryptSessionKey_Failures(t *testing.T) {
	kx := testKeyExchange(t)

	short, err := EncryptSessionKey(kx.PublicKey(), make([]byte, 16))
	require.NoError(t, err)

	empty, err := EncryptSessionKey(kx.PublicKey(), []byte{})
	require.NoError(t, err)

	other, err := GenerateKeyExchange()
	require.NoError(t, err)
	foreign, err := EncryptSessionKey(other.PublicKey(), sequentialMaterial())
	require.NoError(t, err)

	tests := []struct {
		name    string
		blob    string
		wantMsg string
	}{
		{"not base64", "%%%not-base64%%%", "invalid base64"},
		{"garbage ciphertext", base64.StdEncoding.EncodeToString([]byte("garbage")), "RSA-OAEP decryption failed"},
		{"wrong key", foreign, "RSA-OAEP decryption failed"},
		{"16 byte material", short, "key material is 16 bytes"},
		{"empty material", empty, "empty key material"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := kx.DecryptSessionKey(tt.blob)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCrypto)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestNewKeyExchange_Nil(t *testing.T) {
	_, err := NewKeyExchange(nil)
	assert.ErrorIs(t, err, ErrCrypto)
}

func TestKeyExchange_ConcurrentDecrypt(t *testing.T) {
	kx := testKeyExchange(t)

	blob, err := EncryptSessionKey(kx.PublicKey(), sequentialMaterial())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := kx.DecryptSessionKey(blob)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestPad(t *testing.T) {
	for l := 0; l <= 3*aes.BlockSize; l++ {
		data := bytes.Repeat([]byte{0xAB}, l)
		padded := Pad(data, aes.BlockSize)

		n := len(padded) - l
		assert.GreaterOrEqual(t, n, 1, "length %d", l)
		assert.LessOrEqual(t, n, aes.BlockSize, "length %d", l)
		assert.Zero(t, len(padded)%aes.BlockSize, "length %d", l)
		for _, b := range padded[l:] {
			assert.Equal(t, byte(n), b)
		}

		out, err := Unpad(padded, aes.BlockSize)
		require.NoError(t, err)
		assert.Equal(t, data, out, "length %d", l)
	}
}

func TestPad_AlignedAddsFullBlock(t *testing.T) {
	padded := Pad(make([]byte, aes.BlockSize), aes.BlockSize)
	assert.Len(t, padded, 2*aes.BlockSize)
	assert.Equal(t, byte(aes.BlockSize), padded[len(padded)-1])
}

func TestUnpad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"zero pad", append(bytes.Repeat([]byte{'a'}, 15), 0x00)},
		{"pad above block size", append(bytes.Repeat([]byte{'a'}, 15), 17)},
		{"pad longer than data", []byte{'a', 0x05}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unpad(tt.data, aes.BlockSize)
			assert.ErrorIs(t, err, ErrCrypto)
		})
	}
}

func TestSessionCipher_RoundTrip(t *testing.T) {
	texts := []string{
		"",
		"a",
		"exactly sixteen!",
		`{"device_type":"SMART.PLUG","device_model":"P110","ip":"10.0.0.5"}`,
		"Grüße aus der Küche ☕ 電源",
		strings.Repeat("x", 1000),
	}

	for i := 0; i < 4; i++ {
		material := make([]byte, SessionKeySize)
		_, err := rand.Read(material)
		require.NoError(t, err)
		sk, err := SplitSessionKey(material)
		require.NoError(t, err)
		c := NewSessionCipher(sk)

		for _, text := range texts {
			ct, err := c.Encrypt(text)
			require.NoError(t, err)

			got, err := c.Decrypt(ct)
			require.NoError(t, err)
			assert.Equal(t, text, got)
		}
	}
}

func TestSessionCipher_DecryptFailures(t *testing.T) {
	sk, err := SplitSessionKey(sequentialMaterial())
	require.NoError(t, err)
	c := NewSessionCipher(sk)

	valid, err := c.Encrypt("hello")
	require.NoError(t, err)

	// "hello" pads with eleven 0x0B bytes; flipping the IV's last byte by
	// 0x0B turns the final plaintext byte into a zero pad length
	tampered := sequentialMaterial()
	tampered[31] ^= 0x0B
	tamperedKey, err := SplitSessionKey(tampered)
	require.NoError(t, err)

	tests := []struct {
		name   string
		cipher *SessionCipher
		input  string
	}{
		{"not base64", c, "***"},
		{"empty ciphertext", c, ""},
		{"not block aligned", c, base64.StdEncoding.EncodeToString([]byte("short"))},
		{"tampered iv", NewSessionCipher(tamperedKey), valid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cipher.Decrypt(tt.input)
			require.Error(t, err)
			var ce *CryptoError
			assert.True(t, errors.As(err, &ce), "want *CryptoError, got %T", err)
		})
	}
}

func TestEnvelope_SealOpen(t *testing.T) {
	kx := testKeyExchange(t)
	text := `{"device_type":"SMART.PLUG","device_model":"P110","ip":"10.0.0.5"}`

	env, err := Seal(kx.PublicKey(), sequentialMaterial(), text)
	require.NoError(t, err)

	got, err := env.Open(kx)
	require.NoError(t, err)
	assert.Equal(t, text, got)
}

func TestEnvelope_OpenMissingFields(t *testing.T) {
	kx := testKeyExchange(t)

	for _, env := range []*Envelope{{}, {Key: "abc"}, {Data: "abc"}} {
		_, err := env.Open(kx)
		assert.ErrorIs(t, err, ErrCrypto)
	}
}

func TestCryptoError_Error(t *testing.T) {
	cause := errors.New("boom")
	err := &CryptoError{Op: "unpad", Message: "bad", Err: cause}

	assert.Equal(t, "unpad: bad (caused by: boom)", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "unpad: bad", (&CryptoError{Op: "unpad", Message: "bad"}).Error())
}

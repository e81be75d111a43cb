package handshake

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"unicode/utf8"
)

// SessionCipher decrypts the device record carried in a handshake envelope
// using AES-128-CBC with the session key recovered by KeyExchange.
type SessionCipher struct {
	key SessionKey
}

// NewSessionCipher creates a cipher bound to key
func NewSessionCipher(key SessionKey) *SessionCipher {
	return &SessionCipher{key: key}
}

// Decrypt base64-decodes ciphertext, decrypts it, strips the padding and
// returns the result as text.
func (c *SessionCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", &CryptoError{Op: "decrypt data", Message: "invalid base64", Err: err}
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", &CryptoError{
			Op:      "decrypt data",
			Message: fmt.Sprintf("ciphertext length %d is not a positive multiple of %d", len(raw), aes.BlockSize),
		}
	}

	block, err := aes.NewCipher(c.key.Key[:])
	if err != nil {
		return "", &CryptoError{Op: "decrypt data", Message: "cannot create AES cipher", Err: err}
	}

	plain := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, c.key.IV[:]).CryptBlocks(plain, raw)

	plain, err = Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", &CryptoError{Op: "decrypt data", Message: "plaintext is not valid UTF-8"}
	}

	return string(plain), nil
}

// Encrypt pads and encrypts text and returns it base64 encoded. Devices use
// this direction when building their discovery reply.
func (c *SessionCipher) Encrypt(text string) (string, error) {
	block, err := aes.NewCipher(c.key.Key[:])
	if err != nil {
		return "", &CryptoError{Op: "encrypt data", Message: "cannot create AES cipher", Err: err}
	}

	plain := Pad([]byte(text), aes.BlockSize)
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, c.key.IV[:]).CryptBlocks(out, plain)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Pad appends blockSize - len(data)%blockSize bytes, each holding the pad
// length. A full block is added when data is already aligned.
func Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data), len(data)+n)
	copy(out, data)
	for i := 0; i < n; i++ {
		out = append(out, byte(n))
	}
	return out
}

// Unpad removes the number of trailing bytes given by the last byte
func Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, &CryptoError{Op: "unpad", Message: "no data"}
	}

	n := int(data[len(data)-1])
	if n < 1 || n > blockSize {
		return nil, &CryptoError{Op: "unpad", Message: fmt.Sprintf("pad length %d outside 1..%d", n, blockSize)}
	}
	if n > len(data) {
		return nil, &CryptoError{Op: "unpad", Message: fmt.Sprintf("pad length %d exceeds data length %d", n, len(data))}
	}

	return data[:len(data)-n], nil
}

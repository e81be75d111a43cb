package handshake

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

const (
	// KeyBits is the RSA modulus size advertised in discovery probes
	KeyBits = 2048

	// SessionKeySize is the size of the decrypted session key material
	SessionKeySize = 32
)

// SessionKey is the AES key/IV pair recovered from a device reply
type SessionKey struct {
	Key [16]byte
	IV  [16]byte
}

// SplitSessionKey splits 32 bytes of key material into key (bytes 0-15)
// and IV (bytes 16-31).
func SplitSessionKey(material []byte) (SessionKey, error) {
	if len(material) != SessionKeySize {
		return SessionKey{}, &CryptoError{
			Op:      "split session key",
			Message: fmt.Sprintf("key material is %d bytes, want %d", len(material), SessionKeySize),
		}
	}

	var sk SessionKey
	copy(sk.Key[:], material[:16])
	copy(sk.IV[:], material[16:])
	return sk, nil
}

// KeyExchange owns the RSA key pair of one scanning session.
// It is read-only after construction and safe for concurrent use.
type KeyExchange struct {
	priv      *rsa.PrivateKey
	publicPEM string
}

// GenerateKeyExchange creates a fresh 2048-bit key pair
func GenerateKeyExchange() (*KeyExchange, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, &CryptoError{Op: "generate key pair", Message: "RSA key generation failed", Err: err}
	}
	return NewKeyExchange(priv)
}

// NewKeyExchange wraps an existing private key
func NewKeyExchange(priv *rsa.PrivateKey) (*KeyExchange, error) {
	if priv == nil {
		return nil, &CryptoError{Op: "load key pair", Message: "private key is nil"}
	}

	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, &CryptoError{Op: "load key pair", Message: "cannot encode public key", Err: err}
	}

	return &KeyExchange{
		priv: priv,
		publicPEM: string(pem.EncodeToMemory(&pem.Block{
			Type:  "PUBLIC KEY",
			Bytes: der,
		})),
	}, nil
}

// PublicKeyPEM returns the public key as PKIX PEM text for the probe payload
func (kx *KeyExchange) PublicKeyPEM() string {
	return kx.publicPEM
}

// PublicKey returns the public half of the key pair
func (kx *KeyExchange) PublicKey() *rsa.PublicKey {
	return &kx.priv.PublicKey
}

// DecryptSessionKey base64-decodes and RSA-OAEP decrypts the session key
// blob from a device reply. The plaintext must be exactly 32 bytes.
func (kx *KeyExchange) DecryptSessionKey(ciphertext string) (SessionKey, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return SessionKey{}, &CryptoError{Op: "decrypt session key", Message: "invalid base64", Err: err}
	}

	material, err := rsa.DecryptOAEP(sha1.New(), nil, kx.priv, raw, nil)
	if err != nil {
		return SessionKey{}, &CryptoError{Op: "decrypt session key", Message: "RSA-OAEP decryption failed", Err: err}
	}
	if len(material) == 0 {
		return SessionKey{}, &CryptoError{Op: "decrypt session key", Message: "empty key material"}
	}

	return SplitSessionKey(material)
}

// EncryptSessionKey is the device side of the exchange: it RSA-OAEP encrypts
// key material for pub and returns it base64 encoded.
func EncryptSessionKey(pub *rsa.PublicKey, material []byte) (string, error) {
	ct, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, material, nil)
	if err != nil {
		return "", &CryptoError{Op: "encrypt session key", Message: "RSA-OAEP encryption failed", Err: err}
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// ParsePublicKeyPEM decodes a PKIX PEM public key such as the one carried in
// a discovery probe.
func ParsePublicKeyPEM(text string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(text))
	if block == nil {
		return nil, &CryptoError{Op: "parse public key", Message: "no PEM block found"}
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, &CryptoError{Op: "parse public key", Message: "invalid PKIX public key", Err: err}
	}

	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, &CryptoError{Op: "parse public key", Message: fmt.Sprintf("unsupported key type %T", key)}
	}
	return pub, nil
}

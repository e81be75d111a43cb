package handshake

import "crypto/rsa"

// Envelope is the encrypted-key-plus-encrypted-data pair a device returns
// under result.encrypt_info in its discovery reply.
type Envelope struct {
	Key  string `json:"key"`  // base64 RSA-OAEP ciphertext of 32 bytes
	Data string `json:"data"` // base64 AES-CBC ciphertext
}

// Open recovers the cleartext carried by the envelope
func (e *Envelope) Open(kx *KeyExchange) (string, error) {
	if e.Key == "" || e.Data == "" {
		return "", &CryptoError{Op: "open envelope", Message: "missing key or data"}
	}

	sk, err := kx.DecryptSessionKey(e.Key)
	if err != nil {
		return "", err
	}

	return NewSessionCipher(sk).Decrypt(e.Data)
}

// Seal builds an envelope for text addressed to pub using the given 32 bytes
// of key material. It is the device side of Open.
func Seal(pub *rsa.PublicKey, material []byte, text string) (*Envelope, error) {
	sk, err := SplitSessionKey(material)
	if err != nil {
		return nil, err
	}

	key, err := EncryptSessionKey(pub, material)
	if err != nil {
		return nil, err
	}

	data, err := NewSessionCipher(sk).Encrypt(text)
	if err != nil {
		return nil, err
	}

	return &Envelope{Key: key, Data: data}, nil
}

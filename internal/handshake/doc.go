// Package handshake implements the one-shot key exchange used by Tapo
// devices when answering a discovery probe.
//
// The scanner advertises an RSA-2048 public key in the probe. A device picks
// 32 random bytes, encrypts them for that key with RSA-OAEP (SHA-1) and uses
// them as an AES-128-CBC key (bytes 0-15) and IV (bytes 16-31) to encrypt its
// device record. Both halves travel back base64 encoded in an Envelope.
//
// Padding follows PKCS#7: between 1 and 16 bytes are always appended, each
// holding the pad length.
//
// A KeyExchange is generated once per scanning session and shared by every
// decode; regenerating it per packet would invalidate replies already in
// flight.
package handshake

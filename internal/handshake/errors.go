package handshake

import (
	"errors"
	"fmt"
)

// ErrCrypto is matched by every CryptoError via errors.Is
var ErrCrypto = errors.New("handshake crypto failure")

// CryptoError reports an asymmetric or symmetric decryption failure
type CryptoError struct {
	Op      string // Operation that failed (e.g. "decrypt session key")
	Message string // Human-readable detail
	Err     error  // Underlying error (if any)
}

// Error implements the error interface
func (e *CryptoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *CryptoError) Unwrap() error {
	return e.Err
}

// Is reports CryptoError as ErrCrypto
func (e *CryptoError) Is(target error) bool {
	return target == ErrCrypto
}

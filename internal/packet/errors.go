package packet

import (
	"errors"
	"fmt"
)

// ErrFraming is matched by every framing failure via errors.Is
var ErrFraming = errors.New("malformed packet")

// FramingError reports a truncated or inconsistent packet
type FramingError struct {
	Message string
	Length  int // Size of the offending buffer
}

// Error implements the error interface
func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error: %s", e.Message)
}

// Is reports FramingError as ErrFraming
func (e *FramingError) Is(target error) bool {
	return target == ErrFraming
}

// ChecksumError reports a CRC mismatch on a received packet
type ChecksumError struct {
	Got  uint32
	Want uint32
}

// Error implements the error interface
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: got 0x%08X, want 0x%08X", e.Got, e.Want)
}

// Is reports ChecksumError as ErrFraming
func (e *ChecksumError) Is(target error) bool {
	return target == ErrFraming
}

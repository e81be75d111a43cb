package discovery

import (
	"errors"
	"fmt"
)

// ErrNetwork is matched by every NetworkError via errors.Is
var ErrNetwork = errors.New("discovery network failure")

// NetworkError reports a socket setup or send failure. These abort a scan;
// per-reply failures never surface as errors.
type NetworkError struct {
	Op   string // "listen", "configure", "resolve" or "send"
	Addr string // Address involved (if any)
	Err  error  // Underlying error
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("discovery %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("discovery %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is reports NetworkError as ErrNetwork
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// DeviceErrorCode is returned when a device answers with a non-zero error_code
type DeviceErrorCode int

// Error implements the error interface
func (c DeviceErrorCode) Error() string {
	return fmt.Sprintf("device returned error_code %d", int(c))
}

//go:build !unix

package discovery

import "syscall"

// controlSocket is a no-op here: the Go runtime already sets SO_BROADCAST on
// every datagram socket, and address reuse is not needed for an ephemeral port.
func controlSocket(network, address string, c syscall.RawConn) error {
	return nil
}

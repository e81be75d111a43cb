// Package discovery finds Tapo smart plugs on the local network.
//
// A sweep sends one UDP probe to the discovery port (20002), usually as a
// broadcast. The probe carries a freshly generated RSA public key. Every plug
// that hears it answers with a packet whose JSON payload holds a session key
// encrypted to that public key, and the device record encrypted with the
// session key.
//
// # Discovery Process
//
//  1. Generate (or reuse) an RSA-2048 key pair
//  2. Send the probe, framed by the packet package
//  3. Poll the socket for replies until the timeout elapses
//  4. Decode each reply: frame, JSON, session key, record
//  5. Yield decoded devices as they arrive
//
// Replies that fail any step are dropped and reported to the reply handler
// with a DropReason; they never end the sweep.
//
// # Usage Example
//
//	scanner, err := discovery.NewScanner(discovery.WithTimeout(5 * time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sweep, err := scanner.Start(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for device := range sweep.Devices() {
//	    fmt.Println(device)
//	}
//
// # Network Requirements
//
//   - Devices must be on the same broadcast domain
//   - Firewall must allow inbound UDP from port 20002
//
// # Thread Safety
//
// A Scanner may start any number of concurrent sweeps. A single Sweep must be
// consumed by one goroutine.
package discovery

// Package watch is the live discovery view behind "plugscan watch".
//
// The Bubble Tea model starts a sweep, adds each device to a list as its
// reply is decoded, and shows a progress bar for the remaining scan time.
// Quitting cancels the sweep context, which closes the socket at once.
//
// Usage:
//
//	devices, err := watch.Run(ctx, scanner, watch.Options{Timeout: scanner.Timeout()})
package watch

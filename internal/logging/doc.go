// Package logging provides structured logging for plugscan.
//
// This package wraps zap with a silent default: command output such as scan
// results stays readable unless the operator asks for diagnostics with
// PLUGSCAN_LOG_LEVEL or --verbose. Logs go to stderr so they never mix with
// JSON output on stdout.
//
// # Log Levels
//
//   - Debug: raw datagram dumps, decoded intermediates, dropped replies
//   - Info: scan start/finish, devices found
//   - Warn: non-fatal issues (a broadcast sweep nobody answered)
//   - Error: command failures (socket errors, unreadable registry)
//
// # Usage
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
//	logging.Debug("Reply dropped",
//	    logging.DatagramFields(logging.GetLogger(), from, data)...,
//	)
//
// # Thread Safety
//
// All logging functions are safe for concurrent use once Initialize has
// returned.
package logging

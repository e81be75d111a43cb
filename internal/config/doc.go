// Package config provides user configuration management for plugscan.
//
// This package manages a YAML-based configuration file holding scan
// preferences and a cache of the plugs seen by earlier scans. The
// configuration follows OS-specific conventions for storage location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/plugscan/config.yaml or $HOME/.config/plugscan/config.yaml
//   - macOS: $HOME/.config/plugscan/config.yaml
//   - Windows: %LOCALAPPDATA%\plugscan\config.yaml
//
// PLUGSCAN_CONFIG_DIR overrides the directory on every platform.
//
// # Example File
//
//	version: 1
//	preferences:
//	    scan_timeout: 5s
//	    target: 192.168.1.255:20002
//	    format: table
//	    mask: true
//	    remember: true
//	devices:
//	    80221E3C:
//	        model: P110(EU)
//	        type: SMART.TAPOPLUG
//	        last_ip: 192.168.1.23
//	        mac: AA-BB-CC-DD-EE-FF
//	        last_seen: 2026-10-15T09:00:00Z
//
// # Security
//
// Plug account credentials are never stored. The discovery reply does not
// carry any, and nothing else writes to this file.
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config

// Package render prints discovered devices for the plugscan CLI.
//
// Three formats are supported:
//
//   - list: one "key: value" line per field, devices separated by a blank line
//   - table: an Item/Value table per device, drawn with lipgloss
//   - json: the decoded records as an indented JSON array
//
// Sensitive fields (identifiers, addresses, location and names) can be masked
// in every format; see Mask.
package render

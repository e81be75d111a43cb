package render

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/muurk/plugscan/internal/discovery"
)

// Masked replaces the value of a sensitive field
const Masked = "XXXX"

// ListItem is the pseudo-item that names every available field
const ListItem = "list"

var sensitiveKey = regexp.MustCompile(`(?i)(?:i[dp]|mac|tude)$|region|nickname`)

// Mask reports whether the field named key holds identifying data: ids, IP
// and MAC addresses, coordinates, region and nickname. Case is ignored.
func Mask(key string) bool {
	return sensitiveKey.MatchString(key)
}

// Format selects how devices are printed
type Format string

const (
	FormatList  Format = "list"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// Formats lists the accepted format names
var Formats = []Format{FormatList, FormatTable, FormatJSON}

// ParseFormat validates a format name
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (expected list, table or json)", name)
}

// Field is one key/value pair of a device record
type Field struct {
	Key   string
	Value string
}

// Fields flattens a device into its core fields followed by the extension
// fields sorted by key. Empty core fields are omitted.
func Fields(d *discovery.Device) []Field {
	fields := make([]Field, 0, len(discovery.CoreKeys)+len(d.Extra))
	for _, key := range discovery.CoreKeys {
		if value, _ := d.Get(key); value != "" {
			fields = append(fields, Field{Key: key, Value: value})
		}
	}

	extra := make([]string, 0, len(d.Extra))
	for key := range d.Extra {
		if discovery.IsCoreKey(key) {
			continue
		}
		extra = append(extra, key)
	}
	sort.Strings(extra)
	for _, key := range extra {
		value, _ := d.Get(key)
		fields = append(fields, Field{Key: key, Value: value})
	}
	return fields
}

// MaskFields replaces the value of every sensitive field with Masked
func MaskFields(fields []Field) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		if Mask(f.Key) {
			f.Value = Masked
		}
		out[i] = f
	}
	return out
}

// Options controls Write
type Options struct {
	Format Format
	Mask   bool
	Width  int // table width; zero sizes to content
}

// Write prints devices to w in the selected format
func Write(w io.Writer, devices []*discovery.Device, opts Options) error {
	switch opts.Format {
	case FormatList, "":
		return writeList(w, devices, opts.Mask)
	case FormatTable:
		return writeTables(w, devices, opts)
	case FormatJSON:
		return writeJSON(w, devices, opts.Mask)
	default:
		return fmt.Errorf("unknown format %q", opts.Format)
	}
}

func deviceFields(d *discovery.Device, mask bool) []Field {
	fields := Fields(d)
	if mask {
		fields = MaskFields(fields)
	}
	return fields
}

func writeList(w io.Writer, devices []*discovery.Device, mask bool) error {
	for i, d := range devices {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		for _, f := range deviceFields(d, mask) {
			line := KeyStyle.Render(f.Key+":") + " " + ValueStyle.Render(f.Value)
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

// Table builds the Item/Value table for one device
func Table(d *discovery.Device, mask bool, width int) *table.Table {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(MutedColor)).
		BorderRow(true).
		Headers("Item", "Value").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		})
	for _, f := range deviceFields(d, mask) {
		t.Row(f.Key, f.Value)
	}
	if width > 0 {
		t.Width(width)
	}
	return t
}

func writeTables(w io.Writer, devices []*discovery.Device, opts Options) error {
	for i, d := range devices {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w, Table(d, opts.Mask, opts.Width).Render()); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, devices []*discovery.Device, mask bool) error {
	records := make([]any, 0, len(devices))
	for _, d := range devices {
		if !mask {
			records = append(records, d)
			continue
		}
		masked := make(map[string]any)
		raw, err := json.Marshal(d)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &masked); err != nil {
			return err
		}
		for key := range masked {
			if Mask(key) {
				masked[key] = Masked
			}
		}
		records = append(records, masked)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// ItemNotFoundError is returned by Item for a key the record lacks
type ItemNotFoundError struct {
	Key       string
	Available []string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item %q does not exist; available items: %s", e.Key, strings.Join(e.Available, ", "))
}

// Item returns the "key: value" line for one field of d. The pseudo-item
// "list" returns the names of all fields, one per line. Keys are matched
// case-insensitively.
func Item(d *discovery.Device, key string, mask bool) (string, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	fields := deviceFields(d, mask)

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Key
	}

	if key == ListItem {
		return strings.Join(names, "\n"), nil
	}

	for _, f := range fields {
		if f.Key == key {
			return f.Key + ": " + f.Value, nil
		}
	}
	return "", &ItemNotFoundError{Key: key, Available: names}
}

// Summary is the closing line of an interactive scan
func Summary(count int) string {
	switch count {
	case 0:
		return EmptyStyle.Render("No devices found")
	case 1:
		return SummaryStyle.Render("1 device found")
	default:
		return SummaryStyle.Render(fmt.Sprintf("%d devices found", count))
	}
}

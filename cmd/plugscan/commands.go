package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/muurk/plugscan/internal/config"
	"github.com/muurk/plugscan/internal/discovery"
	"github.com/muurk/plugscan/internal/logging"
	"github.com/muurk/plugscan/internal/render"
	"github.com/muurk/plugscan/internal/watch"
)

// Scan command flags
var (
	scanTimeout    time.Duration
	scanTarget     string
	listenAddr     string
	outputFormat   string
	maskOutput     bool
	itemKey        string
	findDevice     string
	verifyChecksum bool
	matchPacketID  bool
	rememberFound  bool
	metricsFile    string
	noHeader       bool
)

// Devices command flags
var (
	forgetKey string
	pruneAge  time.Duration
)

func addScanFlags(fs *pflag.FlagSet) {
	fs.DurationVarP(&scanTimeout, "timeout", "t", discovery.DefaultScanTimeout, "How long to wait for replies")
	fs.StringVar(&scanTarget, "target", discovery.DefaultTarget, "Probe destination (host or host:port)")
	fs.StringVar(&listenAddr, "listen", ":0", "Local address to bind the scan socket to")
	fs.StringVarP(&outputFormat, "format", "f", string(render.FormatList), "Output format (list, table, json)")
	fs.BoolVarP(&maskOutput, "mask", "m", false, "Mask identifiers, addresses, location and nicknames")
	fs.StringVarP(&itemKey, "item", "i", "", `Print a single field of each device ("list" names all fields)`)
	fs.StringVar(&findDevice, "find", "", "Stop at the first device whose id, IP or MAC matches")
	fs.BoolVar(&verifyChecksum, "verify-checksum", false, "Drop replies whose CRC32 does not match")
	fs.BoolVar(&matchPacketID, "match-id", false, "Drop replies whose packet id differs from the probe's")
	fs.BoolVar(&rememberFound, "remember", false, "Record found devices in the config file")
	fs.StringVar(&metricsFile, "metrics-file", "", "Write scan metrics to this file in Prometheus text format")
	fs.BoolVar(&noHeader, "no-header", false, "Do not print the banner and summary on a terminal")
}

func init() {
	addScanFlags(rootCmd.Flags())
	addScanFlags(scanCmd.Flags())

	watchCmd.Flags().DurationVarP(&scanTimeout, "timeout", "t", discovery.DefaultScanTimeout, "How long each sweep waits for replies")
	watchCmd.Flags().StringVar(&scanTarget, "target", discovery.DefaultTarget, "Probe destination (host or host:port)")
	watchCmd.Flags().BoolVarP(&maskOutput, "mask", "m", false, "Mask sensitive fields in the detail view")
	watchCmd.Flags().BoolVar(&rememberFound, "remember", false, "Record found devices in the config file")

	devicesCmd.Flags().BoolVarP(&maskOutput, "mask", "m", false, "Mask identifiers and addresses")
	devicesCmd.Flags().StringVar(&forgetKey, "forget", "", "Remove a device from the cache")
	devicesCmd.Flags().DurationVar(&pruneAge, "prune", 0, "Remove devices not seen within this duration")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(devicesCmd)
}

// scanCmd sends one probe and prints every plug that answers
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for plugs on the network",
	Long: `Broadcast a discovery probe and print every plug that answers.

Replies are decrypted with a key pair generated for this run. Malformed or
undecryptable replies are skipped; use --verbose to see why.`,
	Example: `  # Scan for 3 seconds (default)
  plugscan scan

  # Table output with identifiers masked
  plugscan scan --format table --mask

  # Only the model of each plug
  plugscan scan --item device_model

  # Probe a single subnet and keep the results
  plugscan scan --target 192.168.1.255 --remember`,
	RunE: runScan,
}

// watchCmd shows replies live as they arrive
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Scan with a live view of arriving replies",
	Long: `Open a full-screen view that lists plugs as their replies are decoded.

Press r to scan again, enter for the full record of the selected plug, q to quit.`,
	RunE: runWatch,
}

// devicesCmd shows the last-seen cache
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List plugs remembered by earlier scans",
	Long: `Show the device cache kept in the config file by "scan --remember".

The cache holds model, type, last address, MAC and when each plug last
answered. It never holds credentials.`,
	Example: `  plugscan devices
  plugscan devices --prune 720h
  plugscan devices --forget 80221E3C`,
	RunE: runDevices,
}

// scanSettings is the effective configuration of one scan
type scanSettings struct {
	timeout  time.Duration
	target   string
	format   render.Format
	mask     bool
	remember bool
}

// resolveSettings merges config preferences under the command line: a flag
// the user set always wins, an unset flag takes the preference value.
func resolveSettings(flags *pflag.FlagSet, prefs *config.Preferences) (scanSettings, error) {
	s := scanSettings{
		timeout:  scanTimeout,
		target:   scanTarget,
		mask:     maskOutput,
		remember: rememberFound,
	}
	format := outputFormat

	if prefs != nil {
		if !flags.Changed("timeout") && prefs.ScanTimeout > 0 {
			s.timeout = prefs.ScanTimeout
		}
		if !flags.Changed("target") && prefs.Target != "" {
			s.target = prefs.Target
		}
		if !flags.Changed("format") && prefs.Format != "" {
			format = prefs.Format
		}
		if !flags.Changed("mask") && prefs.Mask {
			s.mask = true
		}
		if !flags.Changed("remember") && prefs.Remember {
			s.remember = true
		}
	}

	if s.timeout < 0 {
		return s, fmt.Errorf("timeout must not be negative: %v", s.timeout)
	}

	var err error
	if s.format, err = render.ParseFormat(format); err != nil {
		return s, err
	}
	return s, nil
}

func loadSettings(cmd *cobra.Command) (*config.Registry, scanSettings, error) {
	reg, err := config.LoadRegistry()
	if err != nil {
		return nil, scanSettings{}, fmt.Errorf("failed to load config: %w", err)
	}
	s, err := resolveSettings(cmd.Flags(), reg.Preferences)
	return reg, s, err
}

func newScanner(s scanSettings, opts ...discovery.Option) (*discovery.Scanner, error) {
	base := []discovery.Option{
		discovery.WithTimeout(s.timeout),
		discovery.WithTarget(s.target),
		discovery.WithLogger(logging.GetLogger()),
	}
	return discovery.NewScanner(append(base, opts...)...)
}

func runScan(cmd *cobra.Command, args []string) error {
	reg, s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	var (
		promRegistry *prometheus.Registry
		opts         = []discovery.Option{
			discovery.WithListenAddr(listenAddr),
			discovery.WithVerifyChecksum(verifyChecksum),
			discovery.WithMatchPacketID(matchPacketID),
		}
	)
	if metricsFile != "" {
		promRegistry = prometheus.NewRegistry()
		opts = append(opts, discovery.WithMetrics(discovery.NewMetrics(promRegistry)))
	}

	scanner, err := newScanner(s, opts...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	interactive := !noHeader && s.format != render.FormatJSON && render.IsTerminal()
	if interactive {
		header := render.NewHeader("Discovery", cmd.CommandPath(),
			render.Param{Key: "Target", Value: s.target},
			render.Param{Key: "Timeout", Value: s.timeout.String()},
		)
		fmt.Fprintln(cmd.ErrOrStderr(), header.Render())
	}

	var devices []*discovery.Device
	if findDevice != "" {
		device, err := scanner.WaitForDevice(cmd.Context(), findDevice)
		if err != nil {
			return err
		}
		devices = []*discovery.Device{device}
	} else {
		devices, err = scanner.Scan(cmd.Context())
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
	}

	if itemKey != "" {
		err = writeItems(out, devices, s.mask)
	} else {
		width := 0
		if interactive {
			width = render.GetTerminalWidth()
		}
		err = render.Write(out, devices, render.Options{Format: s.format, Mask: s.mask, Width: width})
	}
	if err != nil {
		return err
	}

	logging.Info("Scan complete", zap.Int("devices", len(devices)), zap.String("target", s.target))
	if len(devices) == 0 && s.target == discovery.DefaultTarget {
		logging.Warn("No replies to the limited broadcast; a subnet-directed --target may reach plugs behind this host's default route")
	}
	if interactive {
		fmt.Fprintln(cmd.ErrOrStderr(), render.Summary(len(devices)))
	}

	if s.remember {
		if err := rememberDevices(reg, devices); err != nil {
			return err
		}
	}

	if promRegistry != nil {
		if err := prometheus.WriteToTextfile(metricsFile, promRegistry); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	return nil
}

// writeItems prints --item for every device. A missing item lists what the
// device does report, then fails the command.
func writeItems(w io.Writer, devices []*discovery.Device, mask bool) error {
	for i, d := range devices {
		if i > 0 {
			fmt.Fprintln(w)
		}
		line, err := render.Item(d, itemKey, mask)
		var notFound *render.ItemNotFoundError
		if errors.As(err, &notFound) {
			fmt.Fprintf(w, "Item %q does not exist\n\nList of items:\n", notFound.Key)
			for _, key := range notFound.Available {
				fmt.Fprintln(w, key)
			}
			return err
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func rememberDevices(reg *config.Registry, devices []*discovery.Device) error {
	now := time.Now()
	for _, d := range devices {
		key := reg.Remember(d, now)
		logging.Debug("Device remembered", zap.String("key", key), zap.String("address", d.Address()))
	}
	if err := reg.Save(); err != nil {
		return fmt.Errorf("failed to save device cache: %w", err)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	reg, s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	// The live view owns the terminal, so the scanner must not log to it
	if verbose || os.Getenv(logging.LogLevelEnvVar) != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), "Note: logging is disabled while the live view is open")
	}

	scanner, err := newScanner(s, discovery.WithLogger(zap.NewNop()))
	if err != nil {
		return err
	}

	devices, err := watch.Run(cmd.Context(), scanner, watch.Options{Timeout: s.timeout, Mask: s.mask})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), render.Summary(len(devices)))
	if s.remember && len(devices) > 0 {
		return rememberDevices(reg, devices)
	}
	return nil
}

func runDevices(cmd *cobra.Command, args []string) error {
	reg, err := config.LoadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	changed := false
	if forgetKey != "" {
		if !reg.Forget(forgetKey) {
			return fmt.Errorf("no cached device %q", forgetKey)
		}
		changed = true
	}
	if pruneAge > 0 {
		if reg.Prune(time.Now().Add(-pruneAge)) > 0 {
			changed = true
		}
	}
	if changed {
		if err := reg.Save(); err != nil {
			return fmt.Errorf("failed to save device cache: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	entries := reg.Entries()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No devices remembered. Run 'plugscan scan --remember' to fill the cache.")
		return nil
	}

	fmt.Fprintln(out, devicesTable(entries, maskOutput).Render())
	return nil
}

// devicesTable renders the cache; masking follows the field names the plug
// itself uses for the same data
func devicesTable(entries []config.Entry, mask bool) *table.Table {
	hide := func(field, value string) string {
		if mask && render.Mask(field) {
			return render.Masked
		}
		return value
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(render.MutedColor)).
		Headers("Key", "Model", "Type", "Last IP", "MAC", "Last Seen").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return render.TableHeaderStyle
			}
			return render.TableCellStyle
		})

	for _, e := range entries {
		t.Row(
			hide(discovery.KeyDeviceID, e.Key),
			e.Model,
			e.Type,
			hide(discovery.KeyIP, e.LastIP),
			hide(discovery.KeyMAC, e.MAC),
			e.LastSeen.Local().Format(time.DateTime),
		)
	}
	return t
}

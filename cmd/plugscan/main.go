// Plugscan finds Tapo smart plugs on the local network.
//
// It broadcasts the plugs' UDP discovery probe, decrypts every reply and
// prints the device records. Nothing is sent to the plugs beyond the probe
// and no account credentials are needed.
//
// Usage:
//
//	plugscan [command] [flags]
//
// Running without a command performs a single scan.
// See 'plugscan --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/plugscan/internal/logging"
	"github.com/muurk/plugscan/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		logging.Error("Command failed", zap.Error(err))
		logging.Sync()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logging.Sync()
}

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "plugscan",
	Short: "Tapo smart plug discovery",
	Long: `Discover Tapo smart plugs on the local network.

plugscan broadcasts the plugs' discovery probe on UDP port 20002, decrypts
the replies with a one-off RSA key pair and prints what each plug reports
about itself.

If no command is specified, a single scan is run.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			return logging.Initialize("debug")
		}
		return logging.InitializeFromEnv()
	},
	RunE: runScan,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false,
		"Log protocol diagnostics to stderr (same as "+logging.LogLevelEnvVar+"=debug)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "plugscan %s\n%s\n", version.Full(), version.Platform())
	},
}

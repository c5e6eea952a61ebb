// Apkdrop installs Android packages published as GitHub release assets.
//
// It lists the releases of one repository, downloads the chosen asset and
// pushes it to a device attached to the local adb server, then runs
// "pm install" on it.
//
// Usage:
//
//	apkdrop [command] [flags]
//
// Running without arguments launches the interactive browser. The repository
// and token come from GH_OWNER, GH_REPO and GH_ACCESS_TOKEN.
// See 'apkdrop --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/apkdrop/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath  string
	logLevel    string
	logFile     string
	adbAddress  string
	monitorAddr string
)

var rootCmd = &cobra.Command{
	Use:   "apkdrop",
	Short: "Install GitHub release assets on Android devices",
	Long: `Browse the releases of a GitHub repository and install an asset on an
Android device through the local adb server.

Requires GH_ACCESS_TOKEN, GH_OWNER and GH_REPO in the environment.

If no command is specified, the interactive browser will launch automatically.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
	RunE: runBrowser,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Settings file (default is the user config directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default silent)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log destination (\"stderr\" or a file path)")
	rootCmd.PersistentFlags().StringVar(&adbAddress, "adb", "", "adb server address (overrides settings and env)")
	rootCmd.Flags().StringVar(&monitorAddr, "monitor-addr", "", "Serve state snapshots on this address (e.g. 127.0.0.1:7070)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Full())
	},
}

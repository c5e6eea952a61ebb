package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/apkdrop/internal/adb"
	"github.com/muurk/apkdrop/internal/app"
	"github.com/muurk/apkdrop/internal/catalog"
	"github.com/muurk/apkdrop/internal/config"
	"github.com/muurk/apkdrop/internal/device"
	"github.com/muurk/apkdrop/internal/discovery"
	"github.com/muurk/apkdrop/internal/logging"
	"github.com/muurk/apkdrop/internal/monitor"
	"github.com/muurk/apkdrop/internal/transfer"
	"github.com/muurk/apkdrop/internal/tui"
	"github.com/muurk/apkdrop/internal/ui"
	"github.com/muurk/apkdrop/internal/urls"
)

// Command flags
var (
	useMDNS   bool
	forceInit bool
)

func init() {
	rootCmd.AddCommand(releasesCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(configCmd)

	devicesCmd.Flags().BoolVar(&useMDNS, "mdns", false, "Browse for wireless debugging devices and connect them first")

	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing settings file")
	configCmd.AddCommand(configInitCmd)
}

func initLogging() error {
	if err := logging.Initialize(logLevel, logFile); err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	return nil
}

// loadConfig resolves the environment and settings file, then applies flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if adbAddress != "" {
		cfg.Settings.ADBAddress = adbAddress
	}
	if monitorAddr != "" {
		cfg.Settings.MonitorAddr = monitorAddr
	}
	return cfg, nil
}

// loadSettings is loadConfig for commands that do not talk to GitHub.
func loadSettings() (*config.Settings, error) {
	settings, err := config.LoadSettings(configPath)
	if err != nil {
		return nil, err
	}
	if addr := strings.TrimSpace(os.Getenv(config.EnvADBAddress)); addr != "" {
		settings.ADBAddress = addr
	}
	if adbAddress != "" {
		settings.ADBAddress = adbAddress
	}
	return settings, nil
}

func newCatalog(cfg *config.Config) (*catalog.Client, error) {
	return catalog.NewClient(cfg.Token, cfg.Repository.Owner, cfg.Repository.Name,
		catalog.WithPerPage(cfg.Settings.PerPage),
		catalog.WithTimeout(cfg.Settings.CatalogTimeout),
	)
}

func newSession(settings *config.Settings, mdns bool) *device.Session {
	opts := device.Options{
		StagingDir:     settings.StagingDir,
		InstallFlags:   settings.InstallFlags,
		CommandTimeout: settings.CommandTimeout,
	}
	if mdns {
		opts.Scanner = discovery.NewScanner()
	}
	return device.NewSession(adb.New(settings.ADBAddress), opts)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runBrowser(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	settings := cfg.Settings

	source, err := newCatalog(cfg)
	if err != nil {
		return err
	}
	engine, err := transfer.NewEngine(cfg.Token, "", transfer.WithStallTimeout(settings.DownloadStallTimeout))
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Cleanup(); err != nil {
			logging.Warn("Failed to remove download directory", zap.String("dir", engine.Dir()), zap.Error(err))
		}
	}()
	defer logging.Sync()

	session := newSession(settings, settings.MDNSDiscovery)
	machine := app.NewMachine(cfg.Repository.String(), settings.AssetSuffixes)
	dispatcher := app.NewDispatcher(machine, source, engine, session)

	logging.Info("Starting browser",
		zap.String("repository", cfg.Repository.String()),
		zap.String("adb", settings.ADBAddress),
		zap.String("downloads", engine.Dir()))

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	states := dispatcher.Subscribe()
	runErr := make(chan error, 1)
	go func() {
		runErr <- dispatcher.Run(ctx)
	}()

	if settings.MonitorAddr != "" {
		srv := monitor.New(dispatcher)
		go func() {
			if err := srv.ListenAndServe(ctx, settings.MonitorAddr); err != nil {
				logging.Error("Monitor stopped", zap.Error(err))
			}
		}()
	}

	p := tea.NewProgram(tui.New(dispatcher, states), tea.WithAltScreen(), tea.WithContext(ctx))
	_, uiErr := p.Run()

	// The UI may exit first on a signal; make sure background work stops.
	if uiErr != nil {
		dispatcher.Post(app.InputEvent{Input: app.InputQuit})
	}
	stop()
	err = <-runErr

	switch {
	case uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled):
		return fmt.Errorf("interface error: %w", uiErr)
	case err != nil && !errors.Is(err, context.Canceled):
		return err
	}
	return nil
}

var releasesCmd = &cobra.Command{
	Use:   "releases",
	Short: "List the releases of the configured repository",
	Long: `Fetch every release of GH_OWNER/GH_REPO and print its tag, name,
publication date and installable assets.`,
	Example: `  GH_OWNER=acme GH_REPO=android-app apkdrop releases`,
	Args:    cobra.NoArgs,
	RunE:    runReleases,
}

func runReleases(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newCatalog(cfg)
	if err != nil {
		return err
	}

	out := ui.NewPrinter(cmd.OutOrStdout())
	out.PrintHeader("Releases", "apkdrop releases",
		ui.Detail{Key: "Repository", Value: cfg.Repository.String()},
		ui.Detail{Key: "Assets", Value: strings.Join(cfg.Settings.AssetSuffixes, ", ")},
	)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	releases, err := client.FetchReleases(ctx)
	if err != nil {
		out.PrintError("Could not fetch releases", err, catalogHint(err))
		return errors.New("catalog fetch failed")
	}
	out.PrintReleases(cfg.Repository.String(), releases, cfg.Settings.AssetSuffixes)
	return nil
}

func catalogHint(err error) string {
	var ce *catalog.Error
	if !errors.As(err, &ce) {
		return ""
	}
	switch ce.Kind {
	case catalog.ErrUnauthorized:
		return "Check that " + config.EnvToken + " is valid and can read the repository.\nSee " + urls.PersonalAccessTokens
	case catalog.ErrNotFound:
		return "Check " + config.EnvOwner + " and " + config.EnvRepo + ". Private repositories need a token with access."
	case catalog.ErrRateLimited:
		return "GitHub rate limit reached. Wait a few minutes and try again.\nSee " + urls.RateLimits
	default:
		return "Check your network connection and try again."
	}
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices attached to the adb server",
	Long: `List the devices the adb server reports and whether each can receive
an install.

With --mdns, wireless debugging devices advertised on the local network are
connected to the adb server before listing.`,
	Example: `  # USB devices
  apkdrop devices

  # Include paired wireless debugging devices
  apkdrop devices --mdns`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

func runDevices(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	mdns := useMDNS || settings.MDNSDiscovery

	out := ui.NewPrinter(cmd.OutOrStdout())
	out.PrintHeader("Devices", "apkdrop devices",
		ui.Detail{Key: "adb server", Value: settings.ADBAddress},
		ui.Detail{Key: "mDNS", Value: fmt.Sprintf("%t", mdns)},
	)

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, settings.CommandTimeout)
	defer cancel()

	targets, err := newSession(settings, mdns).Discover(ctx)
	if err != nil {
		out.PrintError("Could not list devices", err,
			"Check that the adb server is running ('adb start-server') at "+settings.ADBAddress+".\nSee "+urls.ADB)
		return errors.New("device discovery failed")
	}
	out.PrintDevices(targets)
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the settings file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a settings file with the default values",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		p, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	settings := config.NewSettings()
	if err := settings.Save(path); err != nil {
		return err
	}

	ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Settings written",
		ui.Detail{Key: "Path", Value: path},
		ui.Detail{Key: "adb server", Value: settings.ADBAddress},
		ui.Detail{Key: "Staging dir", Value: settings.StagingDir},
	)
	return nil
}

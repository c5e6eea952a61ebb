package config

import "time"

// Default values applied when the settings file omits a key.
const (
	DefaultADBAddress           = "127.0.0.1:5037"
	DefaultStagingDir           = "/data/local/tmp"
	DefaultCatalogTimeout       = 30 * time.Second
	DefaultCommandTimeout       = 2 * time.Minute
	DefaultDownloadStallTimeout = 30 * time.Second
	DefaultPerPage              = 100
)

// Settings is the on-disk settings file.
type Settings struct {
	Version              int           `yaml:"version"`
	ADBAddress           string        `yaml:"adb_address,omitempty"`
	StagingDir           string        `yaml:"staging_dir,omitempty"`
	AssetSuffixes        []string      `yaml:"asset_suffixes,omitempty"`
	InstallFlags         []string      `yaml:"install_flags,omitempty"`
	CatalogTimeout       time.Duration `yaml:"catalog_timeout,omitempty"`
	CommandTimeout       time.Duration `yaml:"command_timeout,omitempty"`
	DownloadStallTimeout time.Duration `yaml:"download_stall_timeout,omitempty"`
	PerPage              int           `yaml:"per_page,omitempty"`
	MDNSDiscovery        bool          `yaml:"mdns_discovery,omitempty"`
	MonitorAddr          string        `yaml:"monitor_addr,omitempty"`
}

// NewSettings returns settings populated with defaults.
func NewSettings() *Settings {
	return &Settings{
		Version:              1,
		ADBAddress:           DefaultADBAddress,
		StagingDir:           DefaultStagingDir,
		AssetSuffixes:        []string{".apk"},
		InstallFlags:         []string{"-r"},
		CatalogTimeout:       DefaultCatalogTimeout,
		CommandTimeout:       DefaultCommandTimeout,
		DownloadStallTimeout: DefaultDownloadStallTimeout,
		PerPage:              DefaultPerPage,
	}
}

// applyDefaults fills zero values left by a partial settings file.
func (s *Settings) applyDefaults() {
	d := NewSettings()
	if s.Version == 0 {
		s.Version = d.Version
	}
	if s.ADBAddress == "" {
		s.ADBAddress = d.ADBAddress
	}
	if s.StagingDir == "" {
		s.StagingDir = d.StagingDir
	}
	if len(s.AssetSuffixes) == 0 {
		s.AssetSuffixes = d.AssetSuffixes
	}
	if s.InstallFlags == nil {
		s.InstallFlags = d.InstallFlags
	}
	if s.CatalogTimeout <= 0 {
		s.CatalogTimeout = d.CatalogTimeout
	}
	if s.CommandTimeout <= 0 {
		s.CommandTimeout = d.CommandTimeout
	}
	if s.DownloadStallTimeout <= 0 {
		s.DownloadStallTimeout = d.DownloadStallTimeout
	}
	if s.PerPage <= 0 || s.PerPage > 100 {
		s.PerPage = d.PerPage
	}
}

// Repository identifies the GitHub repository whose releases are listed.
type Repository struct {
	Owner string
	Name  string
}

// String returns "owner/name".
func (r Repository) String() string {
	return r.Owner + "/" + r.Name
}

// Config is the fully resolved process configuration.
type Config struct {
	Token      string
	Repository Repository
	Settings   *Settings
}

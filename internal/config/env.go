package config

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables read at startup.
const (
	EnvToken       = "GH_ACCESS_TOKEN"
	EnvOwner       = "GH_OWNER"
	EnvRepo        = "GH_REPO"
	EnvADBAddress  = "APKDROP_ADB_ADDRESS"
	EnvMonitorAddr = "APKDROP_MONITOR_ADDR"
)

// ConfigurationError reports required values missing at startup.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Missing, ", "))
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load resolves configuration from the process environment and the settings
// file at settingsPath (empty for the default location).
func Load(settingsPath string) (*Config, error) {
	settings, err := LoadSettings(settingsPath)
	if err != nil {
		return nil, err
	}
	return FromEnv(os.LookupEnv, settings)
}

// FromEnv resolves the required values through lookup and applies the
// environment overrides to settings. Every missing value is collected into
// a single ConfigurationError.
func FromEnv(lookup LookupFunc, settings *Settings) (*Config, error) {
	if settings == nil {
		settings = NewSettings()
	}

	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	cfg := &Config{
		Token: get(EnvToken),
		Repository: Repository{
			Owner: get(EnvOwner),
			Name:  get(EnvRepo),
		},
		Settings: settings,
	}

	var missing []string
	if cfg.Token == "" {
		missing = append(missing, EnvToken)
	}
	if cfg.Repository.Owner == "" {
		missing = append(missing, EnvOwner)
	}
	if cfg.Repository.Name == "" {
		missing = append(missing, EnvRepo)
	}
	if len(missing) > 0 {
		return nil, &ConfigurationError{Missing: missing}
	}

	if addr := get(EnvADBAddress); addr != "" {
		settings.ADBAddress = addr
	}
	if addr := get(EnvMonitorAddr); addr != "" {
		settings.MonitorAddr = addr
	}

	return cfg, nil
}

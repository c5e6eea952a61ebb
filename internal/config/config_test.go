package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"
)

func envLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		wantMissing []string
	}{
		{
			name: "all present",
			env: map[string]string{
				EnvToken: "ghp_test",
				EnvOwner: "acme",
				EnvRepo:  "app",
			},
		},
		{
			name:        "nothing set",
			env:         map[string]string{},
			wantMissing: []string{EnvToken, EnvOwner, EnvRepo},
		},
		{
			name: "token missing",
			env: map[string]string{
				EnvOwner: "acme",
				EnvRepo:  "app",
			},
			wantMissing: []string{EnvToken},
		},
		{
			name: "whitespace only counts as missing",
			env: map[string]string{
				EnvToken: "ghp_test",
				EnvOwner: "  ",
				EnvRepo:  "app",
			},
			wantMissing: []string{EnvOwner},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := FromEnv(envLookup(tt.env), nil)

			if tt.wantMissing == nil {
				if err != nil {
					t.Fatalf("FromEnv() unexpected error: %v", err)
				}
				if cfg.Repository.String() != "acme/app" {
					t.Errorf("Repository = %s, want acme/app", cfg.Repository)
				}
				if cfg.Settings == nil {
					t.Error("Settings should default when nil")
				}
				return
			}

			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("FromEnv() error = %v, want *ConfigurationError", err)
			}
			if !reflect.DeepEqual(cfgErr.Missing, tt.wantMissing) {
				t.Errorf("Missing = %v, want %v", cfgErr.Missing, tt.wantMissing)
			}
			for _, name := range tt.wantMissing {
				if !strings.Contains(err.Error(), name) {
					t.Errorf("Error() = %q, should mention %s", err.Error(), name)
				}
			}
		})
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	env := map[string]string{
		EnvToken:       "ghp_test",
		EnvOwner:       "acme",
		EnvRepo:        "app",
		EnvADBAddress:  "10.0.0.2:5037",
		EnvMonitorAddr: "127.0.0.1:9000",
	}
	cfg, err := FromEnv(envLookup(env), NewSettings())
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.Settings.ADBAddress != "10.0.0.2:5037" {
		t.Errorf("ADBAddress = %s, want 10.0.0.2:5037", cfg.Settings.ADBAddress)
	}
	if cfg.Settings.MonitorAddr != "127.0.0.1:9000" {
		t.Errorf("MonitorAddr = %s, want 127.0.0.1:9000", cfg.Settings.MonitorAddr)
	}
}

func TestParseSettings(t *testing.T) {
	data := []byte(`
version: 1
adb_address: 192.168.1.5:5037
asset_suffixes: [".apk", ".aab"]
catalog_timeout: 5s
per_page: 500
`)
	s, err := ParseSettings(data)
	if err != nil {
		t.Fatalf("ParseSettings() error = %v", err)
	}

	if s.ADBAddress != "192.168.1.5:5037" {
		t.Errorf("ADBAddress = %s", s.ADBAddress)
	}
	if !reflect.DeepEqual(s.AssetSuffixes, []string{".apk", ".aab"}) {
		t.Errorf("AssetSuffixes = %v", s.AssetSuffixes)
	}
	if s.CatalogTimeout != 5*time.Second {
		t.Errorf("CatalogTimeout = %v, want 5s", s.CatalogTimeout)
	}
	if s.PerPage != DefaultPerPage {
		t.Errorf("PerPage = %d, want clamp to %d", s.PerPage, DefaultPerPage)
	}
	if s.StagingDir != DefaultStagingDir {
		t.Errorf("StagingDir = %s, want default %s", s.StagingDir, DefaultStagingDir)
	}
	if s.CommandTimeout != DefaultCommandTimeout {
		t.Errorf("CommandTimeout = %v, want default", s.CommandTimeout)
	}
}

func TestParseSettings_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad version", "version: 2\n"},
		{"bad yaml", "version: [\n"},
		{"bad duration", "catalog_timeout: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSettings([]byte(tt.data)); err == nil {
				t.Error("ParseSettings() expected error, got nil")
			}
		})
	}
}

func TestLoadSettings_MissingFile(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if !reflect.DeepEqual(s, NewSettings()) {
		t.Errorf("LoadSettings() = %+v, want defaults", s)
	}
}

func TestSettings_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	s := NewSettings()
	s.StagingDir = "/sdcard/Download"
	s.MDNSDiscovery = true
	if err := s.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("settings file not written: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("settings mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if loaded.StagingDir != "/sdcard/Download" || !loaded.MDNSDiscovery {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout only applies on linux")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	dir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if dir != filepath.Join("/tmp/xdg", "apkdrop") {
		t.Errorf("GetConfigDir() = %s", dir)
	}
}

package main

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/muurk/apkdrop/internal/catalog"
	"github.com/muurk/apkdrop/internal/config"
)

func TestCatalogHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unauthorized", &catalog.Error{Kind: catalog.ErrUnauthorized}, config.EnvToken},
		{"not found", &catalog.Error{Kind: catalog.ErrNotFound}, config.EnvRepo},
		{"rate limited", &catalog.Error{Kind: catalog.ErrRateLimited}, "rate limit"},
		{"transport", &catalog.Error{Kind: catalog.ErrTransport}, "network"},
		{"wrapped", fmt.Errorf("fetch: %w", &catalog.Error{Kind: catalog.ErrNotFound}), config.EnvOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := catalogHint(tt.err); !strings.Contains(got, tt.want) {
				t.Errorf("catalogHint() = %q, want it to mention %q", got, tt.want)
			}
		})
	}

	if got := catalogHint(errors.New("boom")); got != "" {
		t.Errorf("catalogHint(plain error) = %q, want empty", got)
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	configPath = path
	forceInit = false
	t.Cleanup(func() { configPath = "" })

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	if err := runConfigInit(cmd, nil); err != nil {
		t.Fatalf("runConfigInit() error = %v", err)
	}
	if !strings.Contains(out.String(), "Settings written") {
		t.Errorf("output missing success title:\n%s", out.String())
	}

	s, err := config.LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if s.ADBAddress != config.DefaultADBAddress {
		t.Errorf("ADBAddress = %q, want %q", s.ADBAddress, config.DefaultADBAddress)
	}

	if err := runConfigInit(cmd, nil); err == nil {
		t.Error("second init without --force succeeded, want error")
	}

	forceInit = true
	t.Cleanup(func() { forceInit = false })
	if err := runConfigInit(cmd, nil); err != nil {
		t.Errorf("init with --force error = %v", err)
	}
}

func TestLoadSettingsFlagOverridesEnv(t *testing.T) {
	configPath = filepath.Join(t.TempDir(), "missing.yaml")
	adbAddress = "10.0.0.2:5037"
	t.Cleanup(func() {
		configPath = ""
		adbAddress = ""
	})
	t.Setenv(config.EnvADBAddress, "10.0.0.1:5037")

	s, err := loadSettings()
	if err != nil {
		t.Fatalf("loadSettings() error = %v", err)
	}
	if s.ADBAddress != "10.0.0.2:5037" {
		t.Errorf("ADBAddress = %q, want flag value", s.ADBAddress)
	}

	adbAddress = ""
	s, err = loadSettings()
	if err != nil {
		t.Fatalf("loadSettings() error = %v", err)
	}
	if s.ADBAddress != "10.0.0.1:5037" {
		t.Errorf("ADBAddress = %q, want env value", s.ADBAddress)
	}
}

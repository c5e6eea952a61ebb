// Package config loads apkdrop's process configuration.
//
// Two sources are combined:
//
//   - Required environment: GH_ACCESS_TOKEN, GH_OWNER and GH_REPO. Any missing
//     value is a ConfigurationError, reported once at startup with every
//     missing name, before the interactive UI starts.
//   - An optional YAML settings file holding non-secret tuning (adb server
//     address, device staging directory, timeouts, asset suffixes).
//
// # Settings File Location
//
//   - Linux: $XDG_CONFIG_HOME/apkdrop/config.yaml or $HOME/.config/apkdrop/config.yaml
//   - macOS: $HOME/.config/apkdrop/config.yaml
//   - Windows: %LOCALAPPDATA%\apkdrop\config.yaml
//
// A missing settings file is not an error; defaults apply.
//
// # Security
//
// The access token is only ever read from the environment. It is never
// written to, or read from, the settings file.
package config

package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/apkdrop/internal/app"
)

// keyMap holds every binding. Each binding posts exactly one app.Input.
type keyMap struct {
	Up             key.Binding
	Down           key.Binding
	Top            key.Binding
	Bottom         key.Binding
	Confirm        key.Binding
	Cancel         key.Binding
	NextDevice     key.Binding
	RefreshDevices key.Binding
	Refresh        key.Binding
	Quit           key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "bottom"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter", "l"),
			key.WithHelp("enter", "select"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc", "h"),
			key.WithHelp("esc", "back"),
		),
		NextDevice: key.NewBinding(
			key.WithKeys("tab", "d"),
			key.WithHelp("tab", "next device"),
		),
		RefreshDevices: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rescan devices"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("R", "f5"),
			key.WithHelp("R", "reload releases"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// inputFor translates a key press. ok is false for unbound keys.
func (k keyMap) inputFor(msg tea.KeyMsg) (app.Input, bool) {
	switch {
	case key.Matches(msg, k.Quit):
		return app.InputQuit, true
	case key.Matches(msg, k.Up):
		return app.InputUp, true
	case key.Matches(msg, k.Down):
		return app.InputDown, true
	case key.Matches(msg, k.Top):
		return app.InputTop, true
	case key.Matches(msg, k.Bottom):
		return app.InputBottom, true
	case key.Matches(msg, k.Confirm):
		return app.InputConfirm, true
	case key.Matches(msg, k.Cancel):
		return app.InputCancel, true
	case key.Matches(msg, k.NextDevice):
		return app.InputNextDevice, true
	case key.Matches(msg, k.RefreshDevices):
		return app.InputRefreshDevices, true
	case key.Matches(msg, k.Refresh):
		return app.InputRefresh, true
	}
	return 0, false
}

// screenKeys is the help shown for one screen.
type screenKeys []key.Binding

// ShortHelp returns keybindings to be shown in the mini help view
func (s screenKeys) ShortHelp() []key.Binding { return s }

// FullHelp returns keybindings for the expanded help view
func (s screenKeys) FullHelp() [][]key.Binding { return [][]key.Binding{s} }

func (k keyMap) forScreen(s app.Screen) screenKeys {
	switch s {
	case app.ScreenReleaseList:
		return screenKeys{k.Up, k.Down, k.Confirm, k.Refresh, k.RefreshDevices, k.Quit}
	case app.ScreenAssetList:
		return screenKeys{k.Up, k.Down, k.Confirm, k.NextDevice, k.RefreshDevices, k.Cancel, k.Quit}
	case app.ScreenDownloading, app.ScreenInstalling:
		return screenKeys{k.Cancel, k.Quit}
	case app.ScreenDone:
		return screenKeys{k.Confirm, k.Quit}
	case app.ScreenError:
		retry := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "continue"))
		return screenKeys{retry, k.Quit}
	default:
		return screenKeys{k.Quit}
	}
}

package app

import (
	"github.com/muurk/apkdrop/internal/catalog"
	"github.com/muurk/apkdrop/internal/device"
)

// Input is an operator action.
type Input int

const (
	InputUp Input = iota
	InputDown
	InputConfirm
	InputCancel
	InputQuit
	InputNextDevice
	InputRefreshDevices
	InputRefresh
	InputTop
	InputBottom
)

func (i Input) String() string {
	return [...]string{"Up", "Down", "Confirm", "Cancel", "Quit", "NextDevice", "RefreshDevices", "Refresh", "Top", "Bottom"}[i]
}

// Event is anything the machine reacts to. Engine events carry the ID of the
// job that produced them.
type Event interface {
	eventName() string
}

type (
	InputEvent struct{ Input Input }

	CatalogLoaded struct{ Releases []catalog.Release }
	CatalogFailed struct{ Err error }

	DevicesDiscovered     struct{ Targets []device.Target }
	DeviceDiscoveryFailed struct{ Err error }

	DownloadProgress struct {
		JobID       uint64
		Transferred int64
		Total       int64
	}
	DownloadCompleted struct {
		JobID uint64
		Path  string
	}
	DownloadFailed struct {
		JobID uint64
		Err   error
	}
	DownloadCancelled struct{ JobID uint64 }

	InstallStageChanged struct {
		JobID uint64
		Stage device.Stage
	}
	InstallProgress struct {
		JobID uint64
		Sent  int64
		Total int64
	}
	InstallSucceeded struct {
		JobID  uint64
		Output string
	}
	InstallFailed struct {
		JobID uint64
		Err   *device.InstallError
	}
	InstallCancelled struct{ JobID uint64 }
)

func (InputEvent) eventName() string            { return "Input" }
func (CatalogLoaded) eventName() string         { return "CatalogLoaded" }
func (CatalogFailed) eventName() string         { return "CatalogFailed" }
func (DevicesDiscovered) eventName() string     { return "DevicesDiscovered" }
func (DeviceDiscoveryFailed) eventName() string { return "DeviceDiscoveryFailed" }
func (DownloadProgress) eventName() string      { return "DownloadProgress" }
func (DownloadCompleted) eventName() string     { return "DownloadCompleted" }
func (DownloadFailed) eventName() string        { return "DownloadFailed" }
func (DownloadCancelled) eventName() string     { return "DownloadCancelled" }
func (InstallStageChanged) eventName() string   { return "InstallStageChanged" }
func (InstallProgress) eventName() string       { return "InstallProgress" }
func (InstallSucceeded) eventName() string      { return "InstallSucceeded" }
func (InstallFailed) eventName() string         { return "InstallFailed" }
func (InstallCancelled) eventName() string      { return "InstallCancelled" }

// Command is work the machine asks the dispatcher to perform.
type Command interface {
	commandName() string
}

type (
	FetchCatalog    struct{}
	DiscoverDevices struct{}
	StartDownload   struct {
		JobID uint64
		Asset catalog.Asset
	}
	CancelDownload struct{ JobID uint64 }
	StartInstall   struct {
		JobID  uint64
		Path   string
		Serial string
	}
	CancelInstall struct{ JobID uint64 }
	Quit          struct{}
)

func (FetchCatalog) commandName() string    { return "FetchCatalog" }
func (DiscoverDevices) commandName() string { return "DiscoverDevices" }
func (StartDownload) commandName() string   { return "StartDownload" }
func (CancelDownload) commandName() string  { return "CancelDownload" }
func (StartInstall) commandName() string    { return "StartInstall" }
func (CancelInstall) commandName() string   { return "CancelInstall" }
func (Quit) commandName() string            { return "Quit" }

package app

import (
	"errors"
	"fmt"

	"github.com/muurk/apkdrop/internal/catalog"
	"github.com/muurk/apkdrop/internal/device"
)

// Screen is the view currently shown to the operator.
type Screen int

const (
	ScreenLoading Screen = iota
	ScreenReleaseList
	ScreenAssetList
	ScreenDownloading
	ScreenInstalling
	ScreenDone
	ScreenError
)

func (s Screen) String() string {
	switch s {
	case ScreenLoading:
		return "Loading"
	case ScreenReleaseList:
		return "ReleaseList"
	case ScreenAssetList:
		return "AssetList"
	case ScreenDownloading:
		return "Downloading"
	case ScreenInstalling:
		return "Installing"
	case ScreenDone:
		return "Done"
	case ScreenError:
		return "Error"
	default:
		return fmt.Sprintf("Screen(%d)", s)
	}
}

// JobStatus is the lifecycle of a DownloadJob.
type JobStatus int

const (
	JobPending JobStatus = iota
	JobInProgress
	JobComplete
	JobFailed
	JobCancelled
)

func (s JobStatus) String() string {
	return [...]string{"Pending", "InProgress", "Complete", "Failed", "Cancelled"}[s]
}

// InstallStatus is the lifecycle of an InstallJob.
type InstallStatus int

const (
	InstallPushing InstallStatus = iota
	InstallInstalling
	InstallStatusSucceeded
	InstallStatusFailed
	InstallStatusCancelled
)

func (s InstallStatus) String() string {
	return [...]string{"Pushing", "Installing", "Succeeded", "Failed", "Cancelled"}[s]
}

// DownloadJob tracks one asset download.
type DownloadJob struct {
	ID          uint64
	Asset       catalog.Asset
	Path        string
	Transferred int64
	Total       int64
	Status      JobStatus
}

// Live reports whether the job can still emit events.
func (j *DownloadJob) Live() bool {
	return j != nil && (j.Status == JobPending || j.Status == JobInProgress)
}

// InstallJob tracks one push+install sequence.
type InstallJob struct {
	ID      uint64
	Source  string
	Release string
	Serial  string
	Sent   int64
	Total  int64
	Status InstallStatus
	Output string
	Err    *device.InstallError
}

// Live reports whether the job can still emit events.
func (j *InstallJob) Live() bool {
	return j != nil && (j.Status == InstallPushing || j.Status == InstallInstalling)
}

// ErrorInfo is what the Error screen shows.
type ErrorInfo struct {
	// Kind is the taxonomy name, e.g. "CatalogError.Unauthorized".
	Kind    string
	Message string
	// Reason is the classified install rejection, if any.
	Reason string
	// DeviceText is the device-reported output, verbatim.
	DeviceText string
	Hint       string
	Retryable  bool
}

// State is the single source of truth for what is displayed and which
// background work is in flight. Only Machine mutates it; everything else
// sees copies.
type State struct {
	Screen     Screen
	Repository string

	Releases      []catalog.Release
	CatalogLoaded bool
	ReleaseCursor int
	AssetCursor   int
	AssetSuffixes []string

	Devices        []device.Target
	SelectedDevice string
	DevicesLoading bool

	Download *DownloadJob
	Install  *InstallJob
	Error    *ErrorInfo

	// Installed holds the tags of releases installed during this session.
	// It is replaced, never mutated, when a tag is added.
	Installed map[string]bool

	// Quitting is set once the operator asked to quit.
	Quitting bool

	// Notice is a transient one-line message (disabled confirm, discovery
	// failure, ignored cancel).
	Notice string
}

// Clone returns a copy that shares no mutable job state with s. Release and
// device slices and the Installed set are replaced wholesale on update and
// never mutated, so they are shared.
func (s State) Clone() State {
	c := s
	if s.Download != nil {
		d := *s.Download
		c.Download = &d
	}
	if s.Install != nil {
		in := *s.Install
		c.Install = &in
	}
	if s.Error != nil {
		e := *s.Error
		c.Error = &e
	}
	return c
}

// IsInstalled reports whether a release was installed during this session.
func (s State) IsInstalled(tag string) bool {
	return s.Installed[tag]
}

// SelectedRelease returns the release under the cursor.
func (s State) SelectedRelease() (catalog.Release, bool) {
	if s.ReleaseCursor < 0 || s.ReleaseCursor >= len(s.Releases) {
		return catalog.Release{}, false
	}
	return s.Releases[s.ReleaseCursor], true
}

// VisibleAssets returns the installable assets of the selected release.
func (s State) VisibleAssets() []catalog.Asset {
	r, ok := s.SelectedRelease()
	if !ok {
		return nil
	}
	var out []catalog.Asset
	for _, a := range r.Assets {
		if a.HasSuffix(s.AssetSuffixes) {
			out = append(out, a)
		}
	}
	return out
}

// SelectedAsset returns the visible asset under the cursor.
func (s State) SelectedAsset() (catalog.Asset, bool) {
	assets := s.VisibleAssets()
	if s.AssetCursor < 0 || s.AssetCursor >= len(assets) {
		return catalog.Asset{}, false
	}
	return assets[s.AssetCursor], true
}

// Target returns the selected device.
func (s State) Target() (device.Target, bool) {
	for _, t := range s.Devices {
		if t.Serial == s.SelectedDevice {
			return t, true
		}
	}
	return device.Target{}, false
}

// CanConfirmAsset reports whether Confirm on the asset list would start a
// download: an asset is selected and the selected device is eligible.
func (s State) CanConfirmAsset() bool {
	if _, ok := s.SelectedAsset(); !ok {
		return false
	}
	t, ok := s.Target()
	return ok && t.Eligible()
}

// Validate checks the invariants that tie screens to jobs.
func (s State) Validate() error {
	if s.Quitting {
		return nil
	}
	switch s.Screen {
	case ScreenDownloading:
		if !s.Download.Live() {
			return errors.New("Downloading without a live download job")
		}
	case ScreenInstalling:
		if s.Download == nil || s.Download.Status != JobComplete {
			return errors.New("Installing without a completed download")
		}
		if !s.Install.Live() {
			return errors.New("Installing without a live install job")
		}
	case ScreenError:
		if s.Error == nil || s.Error.Message == "" {
			return errors.New("Error screen without an error message")
		}
		if s.Download.Live() || s.Install.Live() {
			return errors.New("Error screen with a live job")
		}
	}
	if s.Download.Live() && s.Install.Live() {
		return errors.New("download and install live at the same time")
	}
	return nil
}

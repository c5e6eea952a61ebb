package app

import (
	"errors"

	"go.uber.org/zap"

	"github.com/muurk/apkdrop/internal/catalog"
	"github.com/muurk/apkdrop/internal/device"
	"github.com/muurk/apkdrop/internal/logging"
	"github.com/muurk/apkdrop/internal/transfer"
)

// Machine owns State and is its only mutator. Handle is synchronous and does
// no I/O; the commands it returns are carried out by a Dispatcher.
type Machine struct {
	state  State
	nextID uint64

	// IDs of the jobs whose events are currently accepted. Zero means none.
	activeDownload uint64
	activeInstall  uint64
}

// NewMachine creates a machine in the Loading screen.
func NewMachine(repository string, assetSuffixes []string) *Machine {
	return &Machine{
		state: State{
			Screen:         ScreenLoading,
			Repository:     repository,
			AssetSuffixes:  assetSuffixes,
			DevicesLoading: true,
		},
	}
}

// Start returns the commands that populate the initial screen.
func (m *Machine) Start() []Command {
	return []Command{FetchCatalog{}, DiscoverDevices{}}
}

// State returns a snapshot of the current state.
func (m *Machine) State() State {
	return m.state.Clone()
}

func (m *Machine) newJobID() uint64 {
	m.nextID++
	return m.nextID
}

// Handle applies ev and returns the commands it triggers.
func (m *Machine) Handle(ev Event) []Command {
	from := m.state.Screen
	var cmds []Command

	switch e := ev.(type) {
	case InputEvent:
		cmds = m.handleInput(e.Input)
	case CatalogLoaded:
		m.catalogLoaded(e.Releases)
	case CatalogFailed:
		m.catalogFailed(e.Err)
	case DevicesDiscovered:
		m.devicesDiscovered(e.Targets)
	case DeviceDiscoveryFailed:
		m.state.DevicesLoading = false
		m.state.Notice = "Device discovery failed: " + e.Err.Error()
	case DownloadProgress, DownloadCompleted, DownloadFailed, DownloadCancelled:
		cmds = m.handleDownload(ev)
	case InstallStageChanged, InstallProgress, InstallSucceeded, InstallFailed, InstallCancelled:
		m.handleInstall(ev)
	}

	if to := m.state.Screen; to != from {
		logging.LogTransition(from.String(), to.String(), ev.eventName())
	}
	return cmds
}

func (m *Machine) handleInput(in Input) []Command {
	if in == InputQuit {
		m.state.Quitting = true
		return append(m.cancelLiveJobs(), Quit{})
	}
	if in == InputRefreshDevices {
		m.state.DevicesLoading = true
		return []Command{DiscoverDevices{}}
	}

	s := &m.state
	switch s.Screen {
	case ScreenReleaseList:
		switch in {
		case InputUp, InputDown, InputTop, InputBottom:
			s.ReleaseCursor = moveCursor(s.ReleaseCursor, len(s.Releases), in)
		case InputConfirm:
			if len(s.Releases) > 0 {
				s.Screen = ScreenAssetList
				s.AssetCursor = 0
				s.Notice = ""
			}
		case InputRefresh:
			s.Screen = ScreenLoading
			s.Notice = ""
			return []Command{FetchCatalog{}}
		}

	case ScreenAssetList:
		switch in {
		case InputUp, InputDown, InputTop, InputBottom:
			s.AssetCursor = moveCursor(s.AssetCursor, len(s.VisibleAssets()), in)
		case InputCancel:
			s.Screen = ScreenReleaseList
			s.AssetCursor = 0
			s.Notice = ""
		case InputNextDevice:
			m.cycleDevice()
		case InputConfirm:
			return m.confirmAsset()
		}

	case ScreenDownloading:
		if in == InputCancel && s.Download.Live() {
			id := s.Download.ID
			s.Download.Status = JobCancelled
			s.Download.Path = ""
			m.activeDownload = 0
			s.Screen = ScreenAssetList
			s.Notice = "Download cancelled"
			logging.LogJob("download", id, "cancelled")
			return []Command{CancelDownload{JobID: id}}
		}

	case ScreenInstalling:
		if in != InputCancel || !s.Install.Live() {
			break
		}
		if s.Install.Status != InstallPushing {
			s.Notice = "The package manager is running; install cannot be cancelled now"
			break
		}
		id := s.Install.ID
		s.Install.Status = InstallStatusCancelled
		m.activeInstall = 0
		s.Screen = ScreenAssetList
		s.Notice = "Install cancelled"
		logging.LogJob("install", id, "cancelled")
		return []Command{CancelInstall{JobID: id}}

	case ScreenDone:
		if in == InputConfirm || in == InputCancel {
			s.Screen = ScreenReleaseList
			s.Notice = ""
		}

	case ScreenError:
		if in == InputConfirm {
			s.Error = nil
			s.Notice = ""
			if s.CatalogLoaded {
				s.Screen = ScreenReleaseList
				return nil
			}
			s.Screen = ScreenLoading
			return []Command{FetchCatalog{}}
		}
	}
	return nil
}

// moveCursor moves within [0, n). Up and Down wrap around the ends.
func moveCursor(cur, n int, in Input) int {
	if n == 0 {
		return 0
	}
	switch in {
	case InputUp:
		cur--
		if cur < 0 {
			cur = n - 1
		}
	case InputDown:
		cur++
		if cur >= n {
			cur = 0
		}
	case InputTop:
		cur = 0
	case InputBottom:
		cur = n - 1
	}
	return min(max(cur, 0), n-1)
}

// confirmAsset starts a download of the selected asset, superseding any
// previous job.
func (m *Machine) confirmAsset() []Command {
	s := &m.state
	asset, ok := s.SelectedAsset()
	if !ok {
		s.Notice = "No installable asset selected"
		return nil
	}
	if t, ok := s.Target(); !ok || !t.Eligible() {
		s.Notice = "No eligible device: connect one and press r to rescan"
		return nil
	}

	cmds := m.cancelLiveJobs()
	id := m.newJobID()
	s.Download = &DownloadJob{
		ID:     id,
		Asset:  asset,
		Total:  asset.Size,
		Status: JobInProgress,
	}
	s.Install = nil
	s.Notice = ""
	m.activeDownload = id
	s.Screen = ScreenDownloading
	logging.LogJob("download", id, "started", zap.String("asset", asset.Name))
	return append(cmds, StartDownload{JobID: id, Asset: asset})
}

// cancelLiveJobs marks every live job cancelled and returns the commands
// that stop them.
func (m *Machine) cancelLiveJobs() []Command {
	var cmds []Command
	s := &m.state
	if s.Download.Live() {
		s.Download.Status = JobCancelled
		s.Download.Path = ""
		cmds = append(cmds, CancelDownload{JobID: s.Download.ID})
		logging.LogJob("download", s.Download.ID, "superseded")
	}
	if s.Install.Live() {
		s.Install.Status = InstallStatusCancelled
		cmds = append(cmds, CancelInstall{JobID: s.Install.ID})
		logging.LogJob("install", s.Install.ID, "superseded")
	}
	m.activeDownload = 0
	m.activeInstall = 0
	return cmds
}

func (m *Machine) cycleDevice() {
	s := &m.state
	if len(s.Devices) == 0 {
		s.Notice = "No devices attached"
		return
	}
	next := 0
	for i, t := range s.Devices {
		if t.Serial == s.SelectedDevice {
			next = (i + 1) % len(s.Devices)
			break
		}
	}
	s.SelectedDevice = s.Devices[next].Serial
	s.Notice = ""
}

func (m *Machine) catalogLoaded(releases []catalog.Release) {
	s := &m.state
	if s.Screen != ScreenLoading {
		logging.Debug("Ignoring catalog result outside Loading", zap.String("screen", s.Screen.String()))
		return
	}
	s.Releases = releases
	s.CatalogLoaded = true
	s.ReleaseCursor = 0
	s.AssetCursor = 0
	s.Screen = ScreenReleaseList
}

func (m *Machine) catalogFailed(err error) {
	s := &m.state
	if s.Screen != ScreenLoading {
		return
	}
	kind := catalog.KindOf(err)
	info := &ErrorInfo{
		Kind:      "CatalogError." + kind.String(),
		Message:   err.Error(),
		Retryable: true,
	}
	var ce *catalog.Error
	if errors.As(err, &ce) {
		if ce.Message != "" {
			info.Message = ce.Message
		}
		info.Retryable = ce.Retryable()
	}
	switch kind {
	case catalog.ErrUnauthorized:
		info.Hint = "Check GH_ACCESS_TOKEN."
	case catalog.ErrNotFound:
		info.Hint = "Check GH_OWNER and GH_REPO, and that the token can see the repository."
	case catalog.ErrRateLimited:
		info.Hint = "Wait for the rate limit to reset, then retry."
	default:
		info.Hint = "Check the network connection, then retry."
	}
	s.Error = info
	s.Screen = ScreenError
}

func (m *Machine) devicesDiscovered(targets []device.Target) {
	s := &m.state
	s.Devices = targets
	s.DevicesLoading = false
	if _, ok := s.Target(); ok {
		return
	}
	s.SelectedDevice = ""
	for _, t := range targets {
		if t.Eligible() {
			s.SelectedDevice = t.Serial
			return
		}
	}
	if len(targets) > 0 {
		s.SelectedDevice = targets[0].Serial
	}
}

func (m *Machine) handleDownload(ev Event) []Command {
	s := &m.state
	var id uint64
	switch e := ev.(type) {
	case DownloadProgress:
		id = e.JobID
	case DownloadCompleted:
		id = e.JobID
	case DownloadFailed:
		id = e.JobID
	case DownloadCancelled:
		id = e.JobID
	}
	if id == 0 || id != m.activeDownload || s.Download == nil || s.Download.ID != id {
		logging.LogStaleEvent(ev.eventName(), id, m.activeDownload)
		return nil
	}

	switch e := ev.(type) {
	case DownloadProgress:
		s.Download.Transferred = e.Transferred
		if e.Total > 0 {
			s.Download.Total = e.Total
		}

	case DownloadCompleted:
		s.Download.Status = JobComplete
		s.Download.Path = e.Path
		if s.Download.Total > 0 {
			s.Download.Transferred = s.Download.Total
		}
		m.activeDownload = 0
		logging.LogJob("download", id, "complete", zap.String("path", e.Path))

		if t, ok := s.Target(); !ok || !t.Eligible() {
			s.Error = &ErrorInfo{
				Kind:      "InstallError.PushTransport",
				Message:   "the selected device is no longer available",
				Hint:      "Reconnect the device, rescan with r and retry.",
				Retryable: true,
			}
			s.Screen = ScreenError
			return nil
		}

		installID := m.newJobID()
		s.Install = &InstallJob{
			ID:      installID,
			Source:  e.Path,
			Release: s.Download.Asset.ReleaseTag,
			Serial:  s.SelectedDevice,
			Status:  InstallPushing,
		}
		m.activeInstall = installID
		s.Screen = ScreenInstalling
		logging.LogJob("install", installID, "started", zap.String("serial", s.SelectedDevice))
		return []Command{StartInstall{JobID: installID, Path: e.Path, Serial: s.SelectedDevice}}

	case DownloadFailed:
		s.Download.Status = JobFailed
		m.activeDownload = 0
		info := &ErrorInfo{
			Kind:      "DownloadError.Transport",
			Message:   e.Err.Error(),
			Hint:      "Check the network connection, then retry.",
			Retryable: true,
		}
		var te *transfer.Error
		if errors.As(e.Err, &te) {
			info.Kind = "DownloadError." + te.Kind.String()
			if te.Message != "" {
				info.Message = te.Message
			}
		}
		s.Error = info
		s.Screen = ScreenError
		logging.LogJob("download", id, "failed", zap.Error(e.Err))

	case DownloadCancelled:
		s.Download.Status = JobCancelled
		s.Download.Path = ""
		m.activeDownload = 0
		s.Screen = ScreenAssetList
		s.Notice = "Download cancelled"
	}
	return nil
}

func (m *Machine) handleInstall(ev Event) {
	s := &m.state
	var id uint64
	switch e := ev.(type) {
	case InstallStageChanged:
		id = e.JobID
	case InstallProgress:
		id = e.JobID
	case InstallSucceeded:
		id = e.JobID
	case InstallFailed:
		id = e.JobID
	case InstallCancelled:
		id = e.JobID
	}
	if id == 0 || id != m.activeInstall || s.Install == nil || s.Install.ID != id {
		logging.LogStaleEvent(ev.eventName(), id, m.activeInstall)
		return
	}

	switch e := ev.(type) {
	case InstallStageChanged:
		if e.Stage == device.StageInstalling {
			s.Install.Status = InstallInstalling
			s.Install.Sent = s.Install.Total
		}

	case InstallProgress:
		s.Install.Sent = e.Sent
		s.Install.Total = e.Total

	case InstallSucceeded:
		s.Install.Status = InstallStatusSucceeded
		s.Install.Output = e.Output
		m.activeInstall = 0
		m.markInstalled(s.Install.Release)
		s.Screen = ScreenDone
		logging.LogJob("install", id, "succeeded", zap.String("release", s.Install.Release))

	case InstallFailed:
		s.Install.Status = InstallStatusFailed
		s.Install.Err = e.Err
		m.activeInstall = 0
		s.Error = installErrorInfo(e.Err)
		s.Screen = ScreenError
		logging.LogJob("install", id, "failed", zap.Error(e.Err))

	case InstallCancelled:
		s.Install.Status = InstallStatusCancelled
		m.activeInstall = 0
		s.Screen = ScreenAssetList
		s.Notice = "Install cancelled"
	}
}

func (m *Machine) markInstalled(tag string) {
	if tag == "" || m.state.Installed[tag] {
		return
	}
	next := make(map[string]bool, len(m.state.Installed)+1)
	for k := range m.state.Installed {
		next[k] = true
	}
	next[tag] = true
	m.state.Installed = next
}

func installErrorInfo(err *device.InstallError) *ErrorInfo {
	if err == nil {
		return &ErrorInfo{Kind: "InstallError.PushTransport", Message: "install failed", Retryable: true}
	}
	info := &ErrorInfo{
		Kind:       "InstallError." + err.Kind.String(),
		Message:    err.Message,
		DeviceText: err.Output,
		Hint:       device.GetTroubleshootingHint(err),
		Retryable:  err.Retryable(),
	}
	if info.Message == "" {
		info.Message = err.Error()
	}
	if err.Kind == device.ErrRejected {
		info.Reason = err.Reason.String()
	}
	return info
}

package monitor

import (
	"time"

	"github.com/muurk/apkdrop/internal/app"
)

// Snapshot is the JSON form of app.State sent to monitor clients.
type Snapshot struct {
	Screen         string           `json:"screen"`
	Repository     string           `json:"repository"`
	Releases       []ReleaseSummary `json:"releases"`
	ReleaseCursor  int              `json:"release_cursor"`
	AssetCursor    int              `json:"asset_cursor"`
	Devices        []DeviceSummary  `json:"devices"`
	SelectedDevice string           `json:"selected_device,omitempty"`
	DevicesLoading bool             `json:"devices_loading"`
	Download       *DownloadSummary `json:"download,omitempty"`
	Install        *InstallSummary  `json:"install,omitempty"`
	Error          *ErrorSummary    `json:"error,omitempty"`
	Notice         string           `json:"notice,omitempty"`
	Quitting       bool             `json:"quitting,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

type ReleaseSummary struct {
	Tag         string    `json:"tag"`
	Name        string    `json:"name"`
	PublishedAt time.Time `json:"published_at"`
	Prerelease  bool      `json:"prerelease"`
	Installed   bool      `json:"installed,omitempty"`
	Assets      int       `json:"assets"`
}

type DeviceSummary struct {
	Serial     string `json:"serial"`
	Model      string `json:"model,omitempty"`
	State      string `json:"state"`
	Connection string `json:"connection"`
	Eligible   bool   `json:"eligible"`
}

type DownloadSummary struct {
	JobID       uint64 `json:"job_id"`
	Asset       string `json:"asset"`
	Transferred int64  `json:"transferred"`
	Total       int64  `json:"total"`
	Status      string `json:"status"`
}

type ErrorSummary struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Reason     string `json:"reason,omitempty"`
	DeviceText string `json:"device_text,omitempty"`
	Hint       string `json:"hint,omitempty"`
	Retryable  bool   `json:"retryable"`
}

type InstallSummary struct {
	JobID  uint64 `json:"job_id"`
	Serial string `json:"serial"`
	Sent   int64  `json:"sent"`
	Total  int64  `json:"total"`
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
}

// NewSnapshot projects s. Release bodies and asset lists are left out.
func NewSnapshot(s app.State) Snapshot {
	snap := Snapshot{
		Screen:         s.Screen.String(),
		Repository:     s.Repository,
		Releases:       make([]ReleaseSummary, 0, len(s.Releases)),
		ReleaseCursor:  s.ReleaseCursor,
		AssetCursor:    s.AssetCursor,
		Devices:        make([]DeviceSummary, 0, len(s.Devices)),
		SelectedDevice: s.SelectedDevice,
		DevicesLoading: s.DevicesLoading,
		Notice:         s.Notice,
		Quitting:       s.Quitting,
		Timestamp:      time.Now().UTC(),
	}
	for _, r := range s.Releases {
		snap.Releases = append(snap.Releases, ReleaseSummary{
			Tag:         r.Tag,
			Name:        r.DisplayName(),
			PublishedAt: r.PublishedAt,
			Prerelease:  r.IsPrerelease(),
			Installed:   s.IsInstalled(r.Tag),
			Assets:      len(r.Assets),
		})
	}
	for _, t := range s.Devices {
		snap.Devices = append(snap.Devices, DeviceSummary{
			Serial:     t.Serial,
			Model:      t.Model,
			State:      t.State,
			Connection: t.Connection.String(),
			Eligible:   t.Eligible(),
		})
	}
	if d := s.Download; d != nil {
		snap.Download = &DownloadSummary{
			JobID:       d.ID,
			Asset:       d.Asset.Name,
			Transferred: d.Transferred,
			Total:       d.Total,
			Status:      d.Status.String(),
		}
	}
	if in := s.Install; in != nil {
		snap.Install = &InstallSummary{
			JobID:  in.ID,
			Serial: in.Serial,
			Sent:   in.Sent,
			Total:  in.Total,
			Status: in.Status.String(),
			Output: in.Output,
		}
	}
	if e := s.Error; e != nil {
		snap.Error = &ErrorSummary{
			Kind:       e.Kind,
			Message:    e.Message,
			Reason:     e.Reason,
			DeviceText: e.DeviceText,
			Hint:       e.Hint,
			Retryable:  e.Retryable,
		}
	}
	return snap
}

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/muurk/apkdrop/internal/app"
	"github.com/muurk/apkdrop/internal/catalog"
	"github.com/muurk/apkdrop/internal/device"
)

func (m Model) renderScreen() string {
	var content string
	switch m.state.Screen {
	case app.ScreenLoading:
		content = m.renderLoading()
	case app.ScreenReleaseList:
		content = m.renderReleases()
	case app.ScreenAssetList:
		content = m.renderAssets()
	case app.ScreenDownloading:
		content = m.renderDownload()
	case app.ScreenInstalling:
		content = m.renderInstall()
	case app.ScreenDone:
		content = m.renderDone()
	case app.ScreenError:
		content = m.renderError()
	default:
		content = "Unknown screen"
	}
	if m.state.Quitting {
		content += "\n\n" + SubtitleStyle.Render("Stopping background work…")
	} else if m.state.Notice != "" {
		content += "\n\n" + NoticeStyle.Render(m.state.Notice)
	}
	return content
}

func (m Model) renderLoading() string {
	return fmt.Sprintf("%s Fetching releases of %s…", m.spinner.View(), m.state.Repository)
}

// listWindow returns the half-open range of rows to draw so the cursor stays
// visible.
func listWindow(cursor, n, rows int) (int, int) {
	if rows <= 0 || n <= rows {
		return 0, n
	}
	start := cursor - rows/2
	if start < 0 {
		start = 0
	}
	if start+rows > n {
		start = n - rows
	}
	return start, start + rows
}

func (m Model) listRows() int {
	rows := m.Height - 16
	if rows < 5 {
		rows = 5
	}
	return rows
}

func releaseLine(r catalog.Release, installed bool) string {
	line := r.Tag
	if name := r.DisplayName(); name != r.Tag {
		line += "  " + name
	}
	if !r.PublishedAt.IsZero() {
		line += "  " + r.PublishedAt.Format("2006-01-02")
	}
	if r.IsPrerelease() {
		line += "  (pre-release)"
	}
	if installed {
		line += "  " + InstalledMarker
	}
	return line
}

func (m Model) renderReleases() string {
	s := m.state
	var b strings.Builder
	b.WriteString(RenderTitle("Releases"))
	b.WriteString("\n")

	if len(s.Releases) == 0 {
		b.WriteString(DimItemStyle.Render("No releases published."))
		return b.String()
	}

	start, end := listWindow(s.ReleaseCursor, len(s.Releases), m.listRows())
	for i := start; i < end; i++ {
		b.WriteString(RenderListItem(releaseLine(s.Releases[i], s.IsInstalled(s.Releases[i].Tag)), i == s.ReleaseCursor))
		b.WriteString("\n")
	}
	if end < len(s.Releases) {
		b.WriteString(DimItemStyle.Render(fmt.Sprintf("… %d more", len(s.Releases)-end)))
		b.WriteString("\n")
	}

	if r, ok := s.SelectedRelease(); ok {
		b.WriteString("\n")
		b.WriteString(m.renderReleaseBody(r))
	}
	return b.String()
}

func (m Model) renderReleaseBody(r catalog.Release) string {
	body := strings.TrimSpace(strings.ReplaceAll(r.Body, "\r\n", "\n"))
	if body == "" {
		body = SubtitleStyle.Render("No release notes.")
	}
	lines := strings.Split(body, "\n")
	if len(lines) > bodyPanelLines {
		lines = append(lines[:bodyPanelLines], SubtitleStyle.Render("…"))
	}
	assets := fmt.Sprintf("%d assets, %d installable", len(r.Assets), len(m.state.VisibleAssets()))
	content := lipgloss.JoinVertical(lipgloss.Left,
		SelectedListItemStyle.Render(r.DisplayName()),
		SubtitleStyle.Render(assets),
		"",
		strings.Join(lines, "\n"),
	)
	return PanelStyle.Width(m.Width - 12).Render(content)
}

func (m Model) renderAssets() string {
	s := m.state
	var b strings.Builder
	r, _ := s.SelectedRelease()
	b.WriteString(RenderTitle("Assets of " + r.DisplayName()))
	b.WriteString("\n")

	assets := s.VisibleAssets()
	if len(assets) == 0 {
		want := strings.Join(s.AssetSuffixes, ", ")
		if want == "" {
			want = "any file"
		}
		b.WriteString(DimItemStyle.Render("No installable assets in this release (looking for " + want + ")."))
	}
	start, end := listWindow(s.AssetCursor, len(assets), m.listRows())
	for i := start; i < end; i++ {
		a := assets[i]
		line := fmt.Sprintf("%s  %s", a.Name, humanize.Bytes(uint64(a.Size)))
		b.WriteString(RenderListItem(line, i == s.AssetCursor))
		b.WriteString("\n")
	}

	b.WriteString(m.renderDeviceBar())
	return b.String()
}

func connectionLabel(t device.Target) string {
	switch {
	case t.Eligible():
		return "ready"
	case t.Connection == device.Busy:
		return "busy"
	case t.State != "":
		return t.State
	default:
		return t.Connection.String()
	}
}

func (m Model) renderDeviceBar() string {
	s := m.state
	var parts []string
	for _, t := range s.Devices {
		label := fmt.Sprintf("%s [%s]", t.Label(), connectionLabel(t))
		if t.Serial == s.SelectedDevice {
			parts = append(parts, SelectedListItemStyle.Render("● "+label))
		} else {
			parts = append(parts, SubtitleStyle.Render("○ "+label))
		}
	}

	line := "Device: "
	switch {
	case s.DevicesLoading:
		line += m.spinner.View() + " scanning…"
	case len(parts) == 0:
		line += NoticeStyle.Render("none attached")
	default:
		line += strings.Join(parts, "  ")
	}
	return DeviceBarStyle.Width(m.Width - 8).Render(line)
}

func (m Model) progressLine(done, total int64) string {
	pct := 0.0
	if total > 0 {
		pct = float64(done) / float64(total)
	}
	if pct > 1 {
		pct = 1
	}
	counts := humanize.Bytes(uint64(done))
	if total > 0 {
		counts += " / " + humanize.Bytes(uint64(total))
	}
	return m.progress.ViewAs(pct) + "\n\n" + SubtitleStyle.Render(counts)
}

func (m Model) renderDownload() string {
	d := m.state.Download
	if d == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(RenderTitle("Downloading " + d.Asset.Name))
	b.WriteString("\n")
	b.WriteString(m.progressLine(d.Transferred, d.Total))
	return b.String()
}

func (m Model) targetLabel(serial string) string {
	for _, t := range m.state.Devices {
		if t.Serial == serial {
			return t.Label()
		}
	}
	return serial
}

func (m Model) renderInstall() string {
	in := m.state.Install
	if in == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(RenderTitle("Installing on " + m.targetLabel(in.Serial)))
	b.WriteString("\n")
	switch in.Status {
	case app.InstallPushing:
		b.WriteString("Step 1/2: copying package to the device\n\n")
		b.WriteString(m.progressLine(in.Sent, in.Total))
	default:
		b.WriteString("Step 2/2: ")
		b.WriteString(m.spinner.View())
		b.WriteString(" package manager is installing…")
	}
	return b.String()
}

func (m Model) renderDone() string {
	var b strings.Builder
	name := ""
	if d := m.state.Download; d != nil {
		name = d.Asset.Name
	}
	serial := ""
	output := ""
	if in := m.state.Install; in != nil {
		serial = in.Serial
		output = strings.TrimSpace(in.Output)
	}
	b.WriteString(SuccessBoxStyle.Render(fmt.Sprintf("✓ Installed %s on %s", name, m.targetLabel(serial))))
	if output != "" {
		b.WriteString("\n\n")
		b.WriteString(DeviceTextStyle.Render(output))
	}
	return b.String()
}

func (m Model) renderError() string {
	e := m.state.Error
	if e == nil {
		return ""
	}
	var b strings.Builder
	title := "✗ " + e.Kind
	if e.Reason != "" {
		title += " (" + e.Reason + ")"
	}
	b.WriteString(ErrorBoxStyle.Render(title + "\n\n" + e.Message))

	if e.DeviceText != "" {
		b.WriteString("\n\nDevice output:\n")
		b.WriteString(DeviceTextStyle.Render(e.DeviceText))
	}
	if e.Hint != "" {
		b.WriteString("\n\n")
		b.WriteString(e.Hint)
	}
	b.WriteString("\n\n")
	if e.Retryable {
		b.WriteString(SubtitleStyle.Render("This may succeed if you try again."))
	} else {
		b.WriteString(SubtitleStyle.Render("Retrying will not help until the cause is fixed."))
	}
	return b.String()
}

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/muurk/apkdrop/internal/catalog"
	"github.com/muurk/apkdrop/internal/device"
	"github.com/muurk/apkdrop/internal/urls"
)

func newTable(width int, style func(row, col int) lipgloss.Style, headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(MutedColor)).
		Width(width).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return style(row, col)
		})
}

func assetSummary(r catalog.Release, suffixes []string) string {
	var parts []string
	others := 0
	for _, a := range r.Assets {
		if !a.HasSuffix(suffixes) {
			others++
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", a.Name, humanize.Bytes(uint64(a.Size))))
	}
	if others > 0 {
		parts = append(parts, fmt.Sprintf("+%d other", others))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

// RenderReleaseTable renders one row per release, newest first as given.
func RenderReleaseTable(releases []catalog.Release, suffixes []string, width int) string {
	rows := make([][]string, 0, len(releases))
	for _, r := range releases {
		published := "-"
		if !r.PublishedAt.IsZero() {
			published = r.PublishedAt.Format("2006-01-02")
		}
		tag := r.Tag
		if r.IsPrerelease() {
			tag += " (pre)"
		}
		rows = append(rows, []string{tag, r.DisplayName(), published, assetSummary(r, suffixes)})
	}
	t := newTable(width, func(row, col int) lipgloss.Style {
		if col == 2 {
			return DimCellStyle
		}
		return TableCellStyle
	}, "TAG", "NAME", "PUBLISHED", "ASSETS")
	return t.Rows(rows...).String()
}

func deviceStatus(t device.Target) string {
	switch {
	case t.Eligible():
		return "ready"
	case t.Connection == device.Busy:
		return "busy"
	case t.State == "unauthorized":
		return "accept the debugging prompt"
	default:
		return "not installable"
	}
}

// RenderDeviceTable renders the devices adb reports with their eligibility.
func RenderDeviceTable(targets []device.Target, width int) string {
	rows := make([][]string, 0, len(targets))
	for _, t := range targets {
		model := t.Model
		if model == "" {
			model = "-"
		}
		rows = append(rows, []string{t.Serial, model, t.State, deviceStatus(t)})
	}
	tbl := newTable(width, func(row, col int) lipgloss.Style {
		if col == 3 && row >= 0 && row < len(targets) && targets[row].Eligible() {
			return ReadyCellStyle
		}
		return TableCellStyle
	}, "SERIAL", "MODEL", "STATE", "STATUS")
	return tbl.Rows(rows...).String()
}

// PrintReleases prints the catalog of repository.
func (p *Printer) PrintReleases(repository string, releases []catalog.Release, suffixes []string) {
	if len(releases) == 0 {
		p.Println(HintStyle.Render("No releases published in " + repository + "."))
		return
	}
	p.Println(RenderReleaseTable(releases, suffixes, p.width))
}

// PrintDevices prints discovered devices, or troubleshooting tips when there
// are none.
func (p *Printer) PrintDevices(targets []device.Target) {
	if len(targets) == 0 {
		p.Println(HintStyle.Render(strings.Join([]string{
			"No devices found.",
			"",
			"Troubleshooting:",
			"  • Connect the device over USB and enable USB debugging",
			"  • For wireless debugging, pair once with 'adb pair' and use --mdns",
			"  • Check that the adb server is running ('adb start-server')",
			"",
			"Setup guides:",
			"  " + urls.ADB,
			"  " + urls.WirelessDebugging,
		}, "\n")))
		return
	}
	p.Println(RenderDeviceTable(targets, p.width))
}

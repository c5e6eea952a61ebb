// Package ui renders the output of apkdrop's non-interactive commands.
//
// It uses lipgloss to print command headers, success and error boxes and the
// release and device tables shown by `apkdrop releases` and
// `apkdrop devices`. Width follows the terminal (via golang.org/x/term) and
// is clamped to a readable range.
//
// Example:
//
//	p := ui.NewPrinter(os.Stdout)
//	p.PrintHeader("Releases", "apkdrop releases", ui.Detail{Key: "Repository", Value: "acme/app"})
//	p.PrintReleases("acme/app", releases, []string{".apk"})
package ui

// Package tui is the interactive front end of apkdrop.
//
// The Bubble Tea model here is a pure consumer: it renders the latest
// app.State snapshot published by the dispatcher and translates every key
// press into exactly one app.Input posted back to it. All screens share the
// frame drawn by RenderApplicationContainer.
//
// Key bindings:
//
//	↑/k ↓/j g G     move the cursor
//	enter           select / acknowledge
//	esc             back, or cancel a running download or push
//	tab             cycle the target device
//	r               rescan devices
//	R               reload the release catalog
//	q               quit, cancelling background work
package tui

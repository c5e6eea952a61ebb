// Package monitor exposes application state to external watchers.
//
// When apkdrop runs with --monitor-addr, a small HTTP server publishes every
// state snapshot as JSON to websocket clients connected on /ws, and serves
// the most recent snapshot on GET /state. The feed is read-only: messages
// from clients are discarded. Each write has a deadline, and a client that
// falls more than a few snapshots behind is disconnected.
//
// Example:
//
//	mon := monitor.New(dispatcher)
//	go mon.ListenAndServe(ctx, "127.0.0.1:7070")
//
//	$ websocat ws://127.0.0.1:7070/ws
package monitor

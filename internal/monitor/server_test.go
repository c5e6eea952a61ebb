package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/muurk/apkdrop/internal/app"
	"github.com/muurk/apkdrop/internal/catalog"
	"github.com/muurk/apkdrop/internal/device"
)

type feed struct {
	ch chan app.State
}

func (f feed) Subscribe() <-chan app.State { return f.ch }

func startMonitor(t *testing.T) (*Server, chan app.State, *httptest.Server) {
	t.Helper()
	f := feed{ch: make(chan app.State)}
	s := New(f)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	web := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		cancel()
		<-done
		web.Close()
	})
	return s, f.ch, web
}

func dial(t *testing.T, web *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(web.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) Snapshot {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var snap Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return snap
}

func waitClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", s.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_BroadcastsSnapshots(t *testing.T) {
	s, states, web := startMonitor(t)
	a := dial(t, web)
	b := dial(t, web)
	waitClients(t, s, 2)

	states <- app.State{
		Screen:     app.ScreenDownloading,
		Repository: "acme/app",
		Releases:   []catalog.Release{{Tag: "v1.0", Assets: []catalog.Asset{{Name: "app.apk"}}}},
		Devices:    []device.Target{{Serial: "emu", State: "device", Connection: device.Connected, Installable: true}},
		Download:   &app.DownloadJob{ID: 3, Asset: catalog.Asset{Name: "app.apk"}, Transferred: 10, Total: 100, Status: app.JobInProgress},
	}

	for _, conn := range []*websocket.Conn{a, b} {
		snap := readSnapshot(t, conn)
		if snap.Screen != "Downloading" || snap.Repository != "acme/app" {
			t.Errorf("snapshot = %+v", snap)
		}
		if snap.Download == nil || snap.Download.JobID != 3 || snap.Download.Transferred != 10 {
			t.Errorf("download = %+v", snap.Download)
		}
		if len(snap.Devices) != 1 || !snap.Devices[0].Eligible || snap.Devices[0].Connection != "Connected" {
			t.Errorf("devices = %+v", snap.Devices)
		}
		if len(snap.Releases) != 1 || snap.Releases[0].Assets != 1 {
			t.Errorf("releases = %+v", snap.Releases)
		}
	}
}

func TestServer_LateClientGetsLatest(t *testing.T) {
	s, states, web := startMonitor(t)
	states <- app.State{Screen: app.ScreenError, Error: &app.ErrorInfo{Kind: "CatalogError.Unauthorized", Message: "token rejected"}}

	// Wait for the snapshot to be recorded.
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(web.URL + "/state")
		if err != nil {
			t.Fatal(err)
		}
		var snap Snapshot
		decodeErr := json.NewDecoder(resp.Body).Decode(&snap)
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			if decodeErr != nil {
				t.Fatalf("decode /state: %v", decodeErr)
			}
			if snap.Error == nil || snap.Error.Kind != "CatalogError.Unauthorized" {
				t.Fatalf("/state error = %+v", snap.Error)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("/state status = %d", resp.StatusCode)
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn := dial(t, web)
	if snap := readSnapshot(t, conn); snap.Screen != "Error" {
		t.Fatalf("late client got %+v", snap)
	}
	waitClients(t, s, 1)
}

func TestServer_StateBeforeFirstSnapshot(t *testing.T) {
	_, _, web := startMonitor(t)
	resp, err := http.Get(web.URL + "/state")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestServer_DropsSlowClient(t *testing.T) {
	s := New(feed{})
	slow := &client{send: make(chan []byte, 1), remote: "slow"}
	fast := &client{send: make(chan []byte, 4), remote: "fast"}
	s.clients[slow] = struct{}{}
	s.clients[fast] = struct{}{}

	s.broadcast([]byte(`{"n":1}`))
	s.broadcast([]byte(`{"n":2}`))

	if _, ok := s.clients[slow]; ok {
		t.Fatal("slow client not dropped")
	}
	if _, ok := s.clients[fast]; !ok {
		t.Fatal("fast client dropped")
	}
	// The dropped client's queue is closed so its writer exits.
	<-slow.send
	if _, ok := <-slow.send; ok {
		t.Fatal("slow client queue still open")
	}
}

func TestServer_SourceCloseDisconnects(t *testing.T) {
	f := feed{ch: make(chan app.State)}
	s := New(f)
	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	web := httptest.NewServer(s.Handler())
	defer web.Close()

	conn := dial(t, web)
	waitClients(t, s, 1)
	close(f.ch)
	<-done

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("ReadMessage() error = %v, want normal close", err)
	}
}

package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muurk/apkdrop/internal/catalog"
)

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithRetryDelay(time.Millisecond), WithProgressInterval(time.Millisecond)}, opts...)
	e, err := NewEngine("ghp_test", t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

// collect drains d until the channel closes and returns every event.
func collect(t *testing.T, d *Download) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-d.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("download did not finish")
		}
	}
}

func terminal(t *testing.T, events []Event) Event {
	t.Helper()
	var found []Event
	for _, ev := range events {
		if ev.Kind.Terminal() {
			found = append(found, ev)
		}
	}
	if len(found) != 1 {
		t.Fatalf("got %d terminal events, want exactly 1: %+v", len(found), found)
	}
	if last := events[len(events)-1]; !last.Kind.Terminal() {
		t.Fatalf("last event = %s, want terminal", last.Kind)
	}
	return found[0]
}

func assertNoPartFiles(t *testing.T, dir string) {
	t.Helper()
	matches, _ := filepath.Glob(filepath.Join(dir, "*"+partSuffix))
	if len(matches) != 0 {
		t.Errorf("partial files left behind: %v", matches)
	}
}

func TestDownload_Completes(t *testing.T) {
	data := payload(200 * 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/octet-stream" {
			t.Errorf("Accept = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer ghp_test" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
	}))
	defer server.Close()

	e := newTestEngine(t)
	asset := catalog.Asset{ID: 7, Name: "app.apk", Size: int64(len(data)), ContentURL: server.URL + "/assets/7"}
	events := collect(t, e.Start(context.Background(), asset))

	done := terminal(t, events)
	if done.Kind != EventCompleted {
		t.Fatalf("terminal = %s (%v), want Completed", done.Kind, done.Err)
	}
	got, err := os.ReadFile(done.Path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("downloaded content differs")
	}
	if filepath.Dir(done.Path) != e.Dir() {
		t.Errorf("Path = %s, want inside %s", done.Path, e.Dir())
	}

	var last int64
	for _, ev := range events {
		if ev.Kind != EventProgress {
			continue
		}
		if ev.Transferred < last {
			t.Errorf("progress went backwards: %d after %d", ev.Transferred, last)
		}
		if ev.Total != int64(len(data)) {
			t.Errorf("progress Total = %d", ev.Total)
		}
		last = ev.Transferred
	}
	assertNoPartFiles(t, e.Dir())
}

func TestDownload_CancelRemovesPartialFile(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		_, _ = w.Write(payload(4096))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	e := newTestEngine(t)
	d := e.Start(context.Background(), catalog.Asset{ID: 1, Name: "big.apk", Size: 1048576, ContentURL: server.URL})

	var events []Event
	for ev := range d.Events() {
		events = append(events, ev)
		if ev.Kind == EventProgress {
			d.Cancel()
			d.Cancel()
		}
	}

	end := terminal(t, events)
	if end.Kind != EventCancelled {
		t.Fatalf("terminal = %s, want Cancelled", end.Kind)
	}
	if end.Err == nil || end.Err.Kind != ErrCancelled {
		t.Errorf("Err = %v, want Cancelled", end.Err)
	}
	<-d.Done()
	assertNoPartFiles(t, e.Dir())
	entries, _ := os.ReadDir(e.Dir())
	if len(entries) != 0 {
		t.Errorf("download dir not empty after cancel: %d entries", len(entries))
	}

	// Cancelling after the download ended is a no-op.
	d.Cancel()
}

func TestDownload_ResumesAfterTransientFailure(t *testing.T) {
	data := payload(64 * 1024)
	half := len(data) / 2
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch requests.Add(1) {
		case 1:
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			_, _ = w.Write(data[:half])
			w.(http.Flusher).Flush()
			panic(http.ErrAbortHandler)
		default:
			want := fmt.Sprintf("bytes=%d-", half)
			if got := r.Header.Get("Range"); got != want {
				t.Errorf("Range = %q, want %q", got, want)
			}
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", half, len(data)-1, len(data)))
			w.Header().Set("Content-Length", strconv.Itoa(len(data)-half))
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write(data[half:])
		}
	}))
	defer server.Close()

	e := newTestEngine(t)
	events := collect(t, e.Start(context.Background(), catalog.Asset{ID: 2, Name: "app.apk", Size: int64(len(data)), ContentURL: server.URL}))

	end := terminal(t, events)
	if end.Kind != EventCompleted {
		t.Fatalf("terminal = %s (%v), want Completed", end.Kind, end.Err)
	}
	got, _ := os.ReadFile(end.Path)
	if !bytes.Equal(got, data) {
		t.Error("resumed content differs")
	}
	if requests.Load() != 2 {
		t.Errorf("requests = %d, want 2", requests.Load())
	}
}

func TestDownload_RestartsWhenRangeIgnored(t *testing.T) {
	data := payload(48 * 1024)
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		if requests.Add(1) == 1 {
			_, _ = w.Write(data[:1000])
			w.(http.Flusher).Flush()
			panic(http.ErrAbortHandler)
		}
		_, _ = w.Write(data)
	}))
	defer server.Close()

	e := newTestEngine(t)
	events := collect(t, e.Start(context.Background(), catalog.Asset{ID: 3, Name: "app.apk", ContentURL: server.URL}))

	end := terminal(t, events)
	if end.Kind != EventCompleted {
		t.Fatalf("terminal = %s (%v), want Completed", end.Kind, end.Err)
	}
	got, _ := os.ReadFile(end.Path)
	if !bytes.Equal(got, data) {
		t.Errorf("got %d bytes, want %d", len(got), len(data))
	}
}

func TestDownload_Failures(t *testing.T) {
	tests := []struct {
		name         string
		handler      http.HandlerFunc
		size         int64
		opts         []Option
		wantStatus   int
		wantRequests int32
		wantMessage  string
	}{
		{
			name:         "not found is not retried",
			handler:      func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) },
			wantStatus:   http.StatusNotFound,
			wantRequests: 1,
		},
		{
			name: "server errors exhaust retries",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantStatus:   http.StatusBadGateway,
			wantRequests: MaxChunkRetries + 1,
		},
		{
			name: "size mismatch",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(payload(100))
			},
			size:         500,
			wantRequests: 1,
			wantMessage:  "size mismatch",
		},
		{
			name: "stall",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Length", "1000")
				_, _ = w.Write(payload(10))
				w.(http.Flusher).Flush()
				select {
				case <-r.Context().Done():
				case <-time.After(3 * time.Second):
				}
			},
			opts:         []Option{WithStallTimeout(50 * time.Millisecond)},
			wantRequests: 1,
			wantMessage:  "stall",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests.Add(1)
				tt.handler(w, r)
			}))
			defer server.Close()

			e := newTestEngine(t, tt.opts...)
			events := collect(t, e.Start(context.Background(), catalog.Asset{ID: 4, Name: "app.apk", Size: tt.size, ContentURL: server.URL}))

			end := terminal(t, events)
			if end.Kind != EventFailed {
				t.Fatalf("terminal = %s, want Failed", end.Kind)
			}
			if end.Err == nil || end.Err.Kind != ErrTransport {
				t.Fatalf("Err = %v, want Transport", end.Err)
			}
			if tt.wantStatus != 0 && end.Err.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", end.Err.StatusCode, tt.wantStatus)
			}
			if tt.wantMessage != "" && !strings.Contains(end.Err.Message, tt.wantMessage) {
				t.Errorf("Message = %q, want it to contain %q", end.Err.Message, tt.wantMessage)
			}
			if got := requests.Load(); got != tt.wantRequests {
				t.Errorf("requests = %d, want %d", got, tt.wantRequests)
			}
			assertNoPartFiles(t, e.Dir())
		})
	}
}

func TestDownload_ParentContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	e := newTestEngine(t)
	d := e.Start(ctx, catalog.Asset{ID: 5, Name: "app.apk", ContentURL: server.URL})
	time.AfterFunc(20*time.Millisecond, cancel)

	end := terminal(t, collect(t, d))
	if end.Kind != EventCancelled {
		t.Errorf("terminal = %s, want Cancelled", end.Kind)
	}
}

func TestEngine_CleanupOwnedDir(t *testing.T) {
	e, err := NewEngine("", "")
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if _, err := os.Stat(e.Dir()); err != nil {
		t.Fatalf("temp dir missing: %v", err)
	}
	if err := e.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if _, err := os.Stat(e.Dir()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp dir still present: %v", err)
	}

	dir := t.TempDir()
	e, _ = NewEngine("", dir)
	_ = e.Cleanup()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("caller-provided dir removed: %v", err)
	}
}

func TestLocalName(t *testing.T) {
	tests := []struct {
		asset catalog.Asset
		want  string
	}{
		{catalog.Asset{ID: 1, Name: "app.apk"}, "1-app.apk"},
		{catalog.Asset{ID: 2, Name: "../../etc/passwd"}, "2-passwd"},
		{catalog.Asset{ID: 3, Name: `dir\evil.apk`}, "3-evil.apk"},
		{catalog.Asset{ID: 4, Name: ""}, "4-asset"},
	}
	for _, tt := range tests {
		if got := localName(tt.asset); got != tt.want {
			t.Errorf("localName(%q) = %q, want %q", tt.asset.Name, got, tt.want)
		}
	}
}

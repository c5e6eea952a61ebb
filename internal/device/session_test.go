package device

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/muurk/apkdrop/internal/adb"
	"github.com/muurk/apkdrop/internal/adb/adbtest"
	"github.com/muurk/apkdrop/internal/discovery"
)

func writeArtifact(t *testing.T, size int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "app.apk")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	if err := os.WriteFile(p, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func newFakeDevice(t *testing.T) (*Session, *adbtest.Server) {
	t.Helper()
	srv := adbtest.NewServer(adbtest.Device{Serial: "emu", State: "device", Model: "Pixel_7"})
	t.Cleanup(srv.Close)
	client := adb.New(srv.Addr)
	client.IOTimeout = 2 * time.Second
	return NewSession(client, Options{InstallFlags: []string{"-r"}, CommandTimeout: 2 * time.Second}), srv
}

func pmReplies(output string) func(serial, cmd string) string {
	return func(serial, cmd string) string {
		if strings.HasPrefix(cmd, "pm install") {
			return output
		}
		return ""
	}
}

func drain(t *testing.T, in *Install) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-in.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("install did not finish")
		}
	}
}

func terminalEvent(t *testing.T, events []Event) Event {
	t.Helper()
	var terms []Event
	for _, ev := range events {
		if ev.Kind.Terminal() {
			terms = append(terms, ev)
		}
	}
	if len(terms) != 1 {
		t.Fatalf("got %d terminal events, want 1: %+v", len(terms), events)
	}
	if !events[len(events)-1].Kind.Terminal() {
		t.Fatal("terminal event is not last")
	}
	return terms[0]
}

func stages(events []Event) []Stage {
	var out []Stage
	for _, ev := range events {
		if ev.Kind == EventStage {
			out = append(out, ev.Stage)
		}
	}
	return out
}

func hasCommand(cmds []string, prefix string) bool {
	for _, c := range cmds {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func TestSession_Discover(t *testing.T) {
	srv := adbtest.NewServer(
		adbtest.Device{Serial: "emu", State: "device", Model: "Pixel_7"},
		adbtest.Device{Serial: "R58M", State: "unauthorized"},
		adbtest.Device{Serial: "10.0.0.5:5555", State: "offline"},
	)
	defer srv.Close()
	s := NewSession(adb.New(srv.Addr), Options{})

	targets, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(targets) != 3 {
		t.Fatalf("got %d targets, want 3", len(targets))
	}

	tests := []struct {
		serial     string
		eligible   bool
		connection ConnectionState
	}{
		{"emu", true, Connected},
		{"R58M", false, Disconnected},
		{"10.0.0.5:5555", false, Disconnected},
	}
	for i, tt := range tests {
		got := targets[i]
		if got.Serial != tt.serial || got.Eligible() != tt.eligible || got.Connection != tt.connection {
			t.Errorf("target[%d] = %+v, want serial %s eligible %v %s", i, got, tt.serial, tt.eligible, tt.connection)
		}
	}
	if targets[0].Label() != "Pixel 7 (emu)" {
		t.Errorf("Label() = %q", targets[0].Label())
	}
}

type fakeScanner struct {
	endpoints []*discovery.Endpoint
	err       error
}

func (f fakeScanner) Scan(context.Context) ([]*discovery.Endpoint, error) {
	return f.endpoints, f.err
}

func TestSession_DiscoverAttachesNetworkDevices(t *testing.T) {
	srv := adbtest.NewServer()
	defer srv.Close()
	scanner := fakeScanner{endpoints: []*discovery.Endpoint{{IP: "192.168.1.20", Port: 37099}}}
	s := NewSession(adb.New(srv.Addr), Options{Scanner: scanner})

	if _, err := s.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if got := srv.Connected(); len(got) != 1 || got[0] != "192.168.1.20:37099" {
		t.Errorf("connected = %v", got)
	}

	// A failing scan does not fail discovery.
	s = NewSession(adb.New(srv.Addr), Options{Scanner: fakeScanner{err: errors.New("no multicast")}})
	if _, err := s.Discover(context.Background()); err != nil {
		t.Errorf("Discover() with failing scanner error = %v", err)
	}
}

func TestSession_InstallSucceeds(t *testing.T) {
	s, srv := newFakeDevice(t)
	srv.SetShell(pmReplies("Performing Streamed Install\nSuccess\n"))
	artifact := writeArtifact(t, 300_000)

	events := drain(t, s.Install(context.Background(), "emu", artifact))
	end := terminalEvent(t, events)
	if end.Kind != EventSucceeded {
		t.Fatalf("terminal = %s (%v), want Succeeded", end.Kind, end.Err)
	}
	if got := stages(events); len(got) != 2 || got[0] != StagePushing || got[1] != StageInstalling {
		t.Errorf("stages = %v, want [Pushing Installing]", got)
	}

	cmds := srv.Commands()
	want := []string{"pm install -r /data/local/tmp/app.apk", "rm -f /data/local/tmp/app.apk"}
	if len(cmds) != len(want) {
		t.Fatalf("commands = %q, want %q", cmds, want)
	}
	for i := range want {
		if cmds[i] != want[i] {
			t.Errorf("command[%d] = %q, want %q", i, cmds[i], want[i])
		}
	}
}

func slowInstall(delay time.Duration) func(serial, cmd string) string {
	return func(serial, cmd string) string {
		if strings.HasPrefix(cmd, "pm install") {
			time.Sleep(delay)
			return "Success\n"
		}
		return ""
	}
}

func TestSession_SlowInstallWithinCommandTimeout(t *testing.T) {
	srv := adbtest.NewServer(adbtest.Device{Serial: "emu", State: "device"})
	t.Cleanup(srv.Close)
	client := adb.New(srv.Addr)
	client.IOTimeout = 200 * time.Millisecond
	s := NewSession(client, Options{CommandTimeout: 3 * time.Second})
	srv.SetShell(slowInstall(600 * time.Millisecond))

	events := drain(t, s.Install(context.Background(), "emu", writeArtifact(t, 4096)))
	end := terminalEvent(t, events)
	if end.Kind != EventSucceeded {
		t.Fatalf("terminal = %s (%v), want Succeeded", end.Kind, end.Err)
	}
	cmds := srv.Commands()
	if len(cmds) == 0 || !strings.HasPrefix(cmds[len(cmds)-1], "rm -f") {
		t.Errorf("commands = %q, want cleanup after the install", cmds)
	}
}

func TestSession_CommandTimeoutExpires(t *testing.T) {
	srv := adbtest.NewServer(adbtest.Device{Serial: "emu", State: "device"})
	t.Cleanup(srv.Close)
	client := adb.New(srv.Addr)
	client.IOTimeout = 2 * time.Second
	s := NewSession(client, Options{CommandTimeout: 300 * time.Millisecond})
	srv.SetShell(slowInstall(1500 * time.Millisecond))

	events := drain(t, s.Install(context.Background(), "emu", writeArtifact(t, 4096)))
	end := terminalEvent(t, events)
	var ie *InstallError
	if end.Kind != EventFailed || !errors.As(end.Err, &ie) || ie.Kind != ErrPushTransport {
		t.Fatalf("terminal = %s (%v), want Failed PushTransport", end.Kind, end.Err)
	}
}

func TestSession_InstallRejected(t *testing.T) {
	output := "Failure [INSTALL_FAILED_UPDATE_INCOMPATIBLE: Package com.acme.app signatures do not match previously installed version; ignoring!]"
	s, srv := newFakeDevice(t)
	srv.SetShell(pmReplies(output + "\n"))

	events := drain(t, s.Install(context.Background(), "emu", writeArtifact(t, 1024)))
	end := terminalEvent(t, events)
	if end.Kind != EventFailed || end.Err == nil {
		t.Fatalf("terminal = %+v, want Failed", end)
	}
	if end.Err.Kind != ErrRejected || end.Err.Reason != ReasonSignatureMismatch {
		t.Errorf("Err = %v, want Rejected(SignatureMismatch)", end.Err)
	}
	if end.Err.Output != output {
		t.Errorf("Output = %q, want device text verbatim", end.Err.Output)
	}
	if end.Err.Retryable() {
		t.Error("signature mismatch should not be retryable")
	}
	if !hasCommand(srv.Commands(), "rm -f /data/local/tmp/app.apk") {
		t.Error("staged package not cleaned up after rejection")
	}
}

func TestSession_PushDisconnect(t *testing.T) {
	s, srv := newFakeDevice(t)
	const size = 1_000_000
	srv.FailPushAfter(size * 4 / 10)

	events := drain(t, s.Install(context.Background(), "emu", writeArtifact(t, size)))
	end := terminalEvent(t, events)
	if end.Kind != EventFailed || end.Err == nil || end.Err.Kind != ErrPushTransport {
		t.Fatalf("terminal = %+v, want Failed(PushTransport)", end)
	}
	for _, st := range stages(events) {
		if st == StageInstalling {
			t.Error("install stage reached after failed push")
		}
	}
	if hasCommand(srv.Commands(), "pm install") {
		t.Error("pm install must not run after a failed push")
	}
	if _, ok := srv.File("/data/local/tmp/app.apk"); ok {
		t.Error("truncated push committed on device")
	}
}

func TestSession_CancelDuringPush(t *testing.T) {
	s, srv := newFakeDevice(t)
	srv.SetChunkDelay(30 * time.Millisecond)

	in := s.Install(context.Background(), "emu", writeArtifact(t, 40*adb.MaxSyncChunk))
	var events []Event
	for ev := range in.Events() {
		events = append(events, ev)
		if ev.Kind == EventPushProgress {
			in.Cancel()
			in.Cancel()
		}
	}
	<-in.Done()

	end := terminalEvent(t, events)
	if end.Kind != EventCancelled {
		t.Fatalf("terminal = %s, want Cancelled", end.Kind)
	}
	if end.Err == nil || end.Err.Kind != ErrCancelled {
		t.Errorf("Err = %v, want Cancelled", end.Err)
	}
	if hasCommand(srv.Commands(), "pm install") {
		t.Error("pm install ran after cancel")
	}
	if !hasCommand(srv.Commands(), "rm -f") {
		t.Error("staging path not cleaned after cancel")
	}
}

func TestSession_ExclusivePerDevice(t *testing.T) {
	s, srv := newFakeDevice(t)
	srv.SetShell(pmReplies("Success\n"))
	srv.SetChunkDelay(20 * time.Millisecond)
	artifact := writeArtifact(t, 4*adb.MaxSyncChunk)

	first := s.Install(context.Background(), "emu", artifact)

	second := drain(t, s.Install(context.Background(), "emu", artifact))
	end := terminalEvent(t, second)
	if end.Kind != EventFailed || end.Err.Kind != ErrBusy {
		t.Fatalf("second install = %+v, want Failed(Busy)", end)
	}

	targets, err := s.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if targets[0].Connection != Busy {
		t.Errorf("Connection = %s while installing, want Busy", targets[0].Connection)
	}

	if end := terminalEvent(t, drain(t, first)); end.Kind != EventSucceeded {
		t.Fatalf("first install = %+v", end)
	}
	<-first.Done()

	srv.SetChunkDelay(0)
	if end := terminalEvent(t, drain(t, s.Install(context.Background(), "emu", artifact))); end.Kind != EventSucceeded {
		t.Errorf("install after release = %+v, want Succeeded", end)
	}
}

// stubTransport scripts individual transport calls.
type stubTransport struct {
	statSize int64
	rmErr    error
	output   string
}

func (s *stubTransport) Devices(context.Context) ([]adb.DeviceInfo, error) { return nil, nil }
func (s *stubTransport) Connect(context.Context, string) error            { return nil }

func (s *stubTransport) Push(_ context.Context, _ string, r io.Reader, _ string, _ os.FileMode, progress func(int64)) (int64, error) {
	n, err := io.Copy(io.Discard, r)
	if progress != nil {
		progress(n)
	}
	return n, err
}

func (s *stubTransport) Stat(context.Context, string, string) (adb.FileInfo, error) {
	return adb.FileInfo{Mode: 0o100644, Size: s.statSize}, nil
}

func (s *stubTransport) Shell(_ context.Context, _ string, args ...string) (string, error) {
	if args[0] == "rm" {
		return "", s.rmErr
	}
	return s.output, nil
}

func TestSession_TruncatedStagedFile(t *testing.T) {
	s := NewSession(&stubTransport{statSize: 10, output: "Success"}, Options{})

	end := terminalEvent(t, drain(t, s.Install(context.Background(), "emu", writeArtifact(t, 2048))))
	if end.Kind != EventFailed || end.Err.Kind != ErrPushTransport {
		t.Fatalf("terminal = %+v, want Failed(PushTransport)", end)
	}
	if !strings.Contains(end.Err.Message, "truncated") {
		t.Errorf("Message = %q", end.Err.Message)
	}
}

func TestSession_CleanupFailureNotSurfaced(t *testing.T) {
	s := NewSession(&stubTransport{statSize: 2048, output: "Success", rmErr: errors.New("rm: Permission denied")}, Options{})

	end := terminalEvent(t, drain(t, s.Install(context.Background(), "emu", writeArtifact(t, 2048))))
	if end.Kind != EventSucceeded {
		t.Fatalf("terminal = %+v, want Succeeded despite cleanup failure", end)
	}
}

func TestSession_MissingArtifact(t *testing.T) {
	s := NewSession(&stubTransport{}, Options{})
	end := terminalEvent(t, drain(t, s.Install(context.Background(), "emu", filepath.Join(t.TempDir(), "nope.apk"))))
	if end.Kind != EventFailed || end.Err.Kind != ErrPushTransport {
		t.Errorf("terminal = %+v, want Failed(PushTransport)", end)
	}
}

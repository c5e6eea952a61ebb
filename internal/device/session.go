package device

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/apkdrop/internal/adb"
	"github.com/muurk/apkdrop/internal/discovery"
	"github.com/muurk/apkdrop/internal/logging"
)

const (
	// DefaultStagingDir is where packages are pushed before install.
	DefaultStagingDir = "/data/local/tmp"

	// DefaultCommandTimeout bounds the install command and cleanup.
	DefaultCommandTimeout = 2 * time.Minute

	progressInterval = 100 * time.Millisecond
	cleanupTimeout   = 10 * time.Second
)

// Transport is the device-side capability the session needs. *adb.Client
// implements it.
type Transport interface {
	Devices(ctx context.Context) ([]adb.DeviceInfo, error)
	Connect(ctx context.Context, hostport string) error
	Push(ctx context.Context, serial string, r io.Reader, remote string, mode os.FileMode, progress func(sent int64)) (int64, error)
	Stat(ctx context.Context, serial, remote string) (adb.FileInfo, error)
	Shell(ctx context.Context, serial string, args ...string) (string, error)
}

// EndpointScanner finds network devices to attach before listing.
// *discovery.Scanner implements it.
type EndpointScanner interface {
	Scan(ctx context.Context) ([]*discovery.Endpoint, error)
}

// Options configures a Session.
type Options struct {
	StagingDir     string
	InstallFlags   []string
	CommandTimeout time.Duration
	// Scanner, when set, is consulted on every Discover.
	Scanner EndpointScanner
}

// Session discovers devices and runs push+install sequences. At most one
// sequence runs per device.
type Session struct {
	transport Transport
	opts      Options

	mu   sync.Mutex
	busy map[string]bool
}

// NewSession creates a session over transport.
func NewSession(transport Transport, opts Options) *Session {
	if opts.StagingDir == "" {
		opts.StagingDir = DefaultStagingDir
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	return &Session{
		transport: transport,
		opts:      opts,
		busy:      make(map[string]bool),
	}
}

// Discover lists the devices known to the transport. Devices are eligible
// only in the adb "device" state.
func (s *Session) Discover(ctx context.Context) ([]Target, error) {
	if s.opts.Scanner != nil {
		s.attachNetworkDevices(ctx)
	}

	infos, err := s.transport.Devices(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	targets := make([]Target, 0, len(infos))
	for _, info := range infos {
		t := Target{
			Serial:      info.Serial,
			Model:       strings.ReplaceAll(info.Model, "_", " "),
			Product:     info.Product,
			State:       info.State,
			Installable: info.State == "device",
		}
		switch {
		case s.busy[info.Serial]:
			t.Connection = Busy
		case t.Installable:
			t.Connection = Connected
		default:
			t.Connection = Disconnected
		}
		targets = append(targets, t)
	}
	logging.Debug("Devices discovered", zap.Int("count", len(targets)))
	return targets, nil
}

func (s *Session) attachNetworkDevices(ctx context.Context) {
	endpoints, err := s.opts.Scanner.Scan(ctx)
	if err != nil {
		logging.Warn("mDNS scan failed", zap.Error(err))
		return
	}
	for _, ep := range endpoints {
		if err := s.transport.Connect(ctx, ep.Address()); err != nil {
			logging.Warn("Failed to attach network device",
				zap.String("endpoint", ep.Address()),
				zap.Error(err),
			)
		}
	}
}

func (s *Session) acquire(serial string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[serial] {
		return false
	}
	s.busy[serial] = true
	return true
}

func (s *Session) release(serial string) {
	s.mu.Lock()
	delete(s.busy, serial)
	s.mu.Unlock()
}

// Install pushes localPath to the device and installs it. Exactly one
// terminal event is delivered on Events. A second Install against a device
// that is still busy fails immediately with ErrBusy.
func (s *Session) Install(ctx context.Context, serial, localPath string) *Install {
	ctx, cancel := context.WithCancel(ctx)
	in := &Install{
		events: make(chan Event, 16),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	if !s.acquire(serial) {
		logging.Warn("Install rejected, device busy", zap.String("serial", serial))
		in.events <- Event{Kind: EventFailed, Err: &InstallError{
			Kind:    ErrBusy,
			Message: "another install is in progress on " + serial,
			Serial:  serial,
		}}
		close(in.events)
		cancel()
		close(in.done)
		return in
	}

	go func() {
		defer close(in.done)
		defer close(in.events)
		defer cancel()
		ev := s.run(ctx, in, serial, localPath)
		s.release(serial)
		in.events <- ev
	}()
	return in
}

// run performs the sequence and returns the terminal event.
func (s *Session) run(ctx context.Context, in *Install, serial, localPath string) Event {
	f, err := os.Open(localPath)
	if err != nil {
		return failed(newPushError(serial, "cannot open package", err))
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return failed(newPushError(serial, "cannot read package", err))
	}
	total := st.Size()

	remote := path.Join(s.opts.StagingDir, filepath.Base(localPath))
	log := logging.GetLogger().With(zap.String("serial", serial), zap.String("remote", remote))

	in.events <- Event{Kind: EventStage, Stage: StagePushing, Total: total}
	log.Info("Pushing package", zap.Int64("bytes", total))

	var last time.Time
	sent, err := s.transport.Push(ctx, serial, f, remote, adb.DefaultFileMode, func(n int64) {
		if now := time.Now(); n == total || now.Sub(last) >= progressInterval {
			last = now
			in.emit(Event{Kind: EventPushProgress, Stage: StagePushing, Sent: n, Total: total})
		}
	})
	// The staged file may exist in part from here on.
	defer s.cleanup(ctx, serial, remote)

	if err != nil {
		if ctx.Err() != nil {
			log.Info("Push cancelled", zap.Int64("sent", sent))
			return cancelled(serial)
		}
		return failed(newPushError(serial, "push failed", err))
	}
	if sent != total {
		return failed(&InstallError{Kind: ErrPushTransport, Message: "push ended early", Serial: serial, Err: adb.ErrShortWrite})
	}

	info, err := s.transport.Stat(ctx, serial, remote)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(serial)
		}
		return failed(newPushError(serial, "cannot verify staged package", err))
	}
	if !info.Exists() || !info.HasSize(total) {
		return failed(&InstallError{
			Kind:    ErrPushTransport,
			Message: "staged package is truncated",
			Serial:  serial,
		})
	}
	if ctx.Err() != nil {
		return cancelled(serial)
	}

	// Once the package manager is running the install is not interrupted;
	// only the command timeout applies.
	in.events <- Event{Kind: EventStage, Stage: StageInstalling, Sent: total, Total: total}
	cmdCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CommandTimeout)
	defer cancel()

	args := append([]string{"pm", "install"}, s.opts.InstallFlags...)
	args = append(args, remote)
	out, err := s.transport.Shell(cmdCtx, serial, args...)
	if err != nil {
		return failed(newPushError(serial, "install command failed", err))
	}

	ok, reason := ClassifyInstallOutput(out)
	output := strings.TrimSpace(out)
	if !ok {
		log.Warn("Install rejected", zap.String("reason", reason.String()), zap.String("output", output))
		return failed(&InstallError{
			Kind:    ErrRejected,
			Reason:  reason,
			Output:  output,
			Message: "package manager rejected the install",
			Serial:  serial,
		})
	}
	log.Info("Install succeeded")
	return Event{Kind: EventSucceeded, Stage: StageInstalling, Sent: total, Total: total, Output: output}
}

// cleanup removes the staged package. Failures are logged only.
func (s *Session) cleanup(ctx context.Context, serial, remote string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if _, err := s.transport.Shell(ctx, serial, "rm", "-f", remote); err != nil {
		logging.Warn("Failed to remove staged package",
			zap.String("serial", serial),
			zap.String("remote", remote),
			zap.Error(err),
		)
	}
}

func failed(err *InstallError) Event {
	return Event{Kind: EventFailed, Err: err}
}

func cancelled(serial string) Event {
	return Event{Kind: EventCancelled, Err: &InstallError{
		Kind:    ErrCancelled,
		Message: "install cancelled during push",
		Serial:  serial,
	}}
}

// Install is one push+install sequence.
type Install struct {
	events chan Event
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

// Events delivers stage and progress events followed by exactly one
// terminal event, then closes.
func (in *Install) Events() <-chan Event {
	return in.events
}

// Done is closed after the terminal event and cleanup.
func (in *Install) Done() <-chan struct{} {
	return in.done
}

// Cancel aborts the push. It has no effect once the install command has
// started or the sequence has ended.
func (in *Install) Cancel() {
	in.once.Do(in.cancel)
}

// emit delivers a progress event, dropping it if the consumer is behind.
func (in *Install) emit(ev Event) {
	select {
	case in.events <- ev:
	default:
	}
}

package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/apkdrop/internal/catalog"
	"github.com/muurk/apkdrop/internal/device"
	"github.com/muurk/apkdrop/internal/logging"
	"github.com/muurk/apkdrop/internal/transfer"
)

// CatalogSource lists releases. *catalog.Client implements it.
type CatalogSource interface {
	FetchReleases(ctx context.Context) ([]catalog.Release, error)
}

// Downloader starts asset downloads. *transfer.Engine implements it.
type Downloader interface {
	Start(ctx context.Context, asset catalog.Asset) *transfer.Download
}

// DeviceSession discovers devices and installs packages. *device.Session
// implements it.
type DeviceSession interface {
	Discover(ctx context.Context) ([]device.Target, error)
	Install(ctx context.Context, serial, localPath string) *device.Install
}

const (
	eventQueueSize = 256
	// shutdownGrace bounds how long Run waits for cancelled jobs on quit.
	shutdownGrace = 5 * time.Second
)

// Dispatcher serializes every event through one queue into a Machine and
// carries out the commands it returns. Background work reports back only by
// posting events.
type Dispatcher struct {
	machine    *Machine
	catalog    CatalogSource
	downloader Downloader
	devices    DeviceSession

	events chan Event
	stop   chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	snapshot State
	subs     []chan State

	// Touched only by the Run goroutine. jobs holds unfinished jobs only.
	jobs         map[uint64]*job
	lastDownload *job
	lastInstall  *job
	workers      sync.WaitGroup
}

// job is the dispatcher's handle on one engine job. finished is closed once
// the engine has acknowledged its end (or the job never started).
type job struct {
	id       uint64
	mu       sync.Mutex
	canceled bool
	cancel   func()
	finished chan struct{}
}

func newJob(id uint64) *job {
	return &job{id: id, finished: make(chan struct{})}
}

func (j *job) Cancel() {
	j.mu.Lock()
	j.canceled = true
	c := j.cancel
	j.mu.Unlock()
	if c != nil {
		c()
	}
}

// attach records the engine's cancel function. It reports false if the job
// was cancelled before it started, in which case the engine is cancelled
// right away.
func (j *job) attach(cancel func()) bool {
	j.mu.Lock()
	j.cancel = cancel
	c := j.canceled
	j.mu.Unlock()
	if c {
		cancel()
	}
	return !c
}

func (j *job) isCanceled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.canceled
}

// NewDispatcher wires a machine to its engines.
func NewDispatcher(m *Machine, c CatalogSource, d Downloader, s DeviceSession) *Dispatcher {
	return &Dispatcher{
		machine:    m,
		catalog:    c,
		downloader: d,
		devices:    s,
		events:     make(chan Event, eventQueueSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		snapshot:   m.State(),
		jobs:       make(map[uint64]*job),
	}
}

// Post queues an event. It never blocks after the dispatcher has stopped.
func (d *Dispatcher) Post(ev Event) {
	select {
	case d.events <- ev:
	case <-d.stop:
	}
}

// Subscribe returns a channel that always holds the most recent snapshot.
// Intermediate snapshots may be skipped. The channel is closed when Run
// returns.
func (d *Dispatcher) Subscribe() <-chan State {
	ch := make(chan State, 1)
	d.mu.Lock()
	ch <- d.snapshot.Clone()
	d.subs = append(d.subs, ch)
	d.mu.Unlock()
	return ch
}

// Snapshot returns the latest published state.
func (d *Dispatcher) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot.Clone()
}

// Done is closed when Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Run processes events until a Quit command or ctx ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		d.shutdown()
	}()

	d.execute(ctx, d.machine.Start())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.events:
			if d.handle(ctx, ev) {
				return nil
			}
		}
	}
}

// jobReleased is posted by a job worker after its finished channel closed.
// Run consumes it; the machine never sees it.
type jobReleased struct{ JobID uint64 }

func (jobReleased) eventName() string { return "jobReleased" }

// handle applies one queued event and reports whether Quit was executed.
func (d *Dispatcher) handle(ctx context.Context, ev Event) bool {
	if r, ok := ev.(jobReleased); ok {
		delete(d.jobs, r.JobID)
		return false
	}
	cmds := d.machine.Handle(ev)
	d.publish(d.machine.State())
	return d.execute(ctx, cmds)
}

func (d *Dispatcher) shutdown() {
	close(d.stop)

	waited := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(shutdownGrace):
		logging.Warn("Background jobs did not stop in time")
	}

	d.mu.Lock()
	for _, ch := range d.subs {
		close(ch)
	}
	d.subs = nil
	d.mu.Unlock()
	close(d.done)
}

func (d *Dispatcher) publish(s State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshot = s
	for _, ch := range d.subs {
		// Replace any unread snapshot with the newest one.
		select {
		case <-ch:
		default:
		}
		ch <- s.Clone()
	}
}

// execute runs cmds in order and reports whether Quit was among them.
func (d *Dispatcher) execute(ctx context.Context, cmds []Command) bool {
	quit := false
	for _, cmd := range cmds {
		logging.Debug("Executing command", zap.String("command", cmd.commandName()))
		switch c := cmd.(type) {
		case FetchCatalog:
			d.spawn(func() {
				releases, err := d.catalog.FetchReleases(ctx)
				if err != nil {
					d.Post(CatalogFailed{Err: err})
					return
				}
				d.Post(CatalogLoaded{Releases: releases})
			})

		case DiscoverDevices:
			d.spawn(func() {
				targets, err := d.devices.Discover(ctx)
				if err != nil {
					d.Post(DeviceDiscoveryFailed{Err: err})
					return
				}
				d.Post(DevicesDiscovered{Targets: targets})
			})

		case StartDownload:
			d.startDownload(ctx, c)

		case CancelDownload:
			if j, ok := d.jobs[c.JobID]; ok {
				j.Cancel()
			}

		case StartInstall:
			d.startInstall(ctx, c)

		case CancelInstall:
			if j, ok := d.jobs[c.JobID]; ok {
				j.Cancel()
			}

		case Quit:
			for _, j := range d.jobs {
				j.Cancel()
			}
			quit = true
		}
	}
	return quit
}

func (d *Dispatcher) spawn(fn func()) {
	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		fn()
	}()
}

// startDownload waits for the previous download to acknowledge its end,
// then starts the engine and forwards its events tagged with the job ID.
func (d *Dispatcher) startDownload(ctx context.Context, c StartDownload) {
	j := newJob(c.JobID)
	prev := d.lastDownload
	d.jobs[c.JobID] = j
	d.lastDownload = j

	d.spawn(func() {
		defer d.Post(jobReleased{JobID: c.JobID})
		defer close(j.finished)
		if prev != nil {
			<-prev.finished
		}
		if j.isCanceled() {
			return
		}
		dl := d.downloader.Start(ctx, c.Asset)
		j.attach(dl.Cancel)
		for ev := range dl.Events() {
			d.Post(downloadEvent(c.JobID, ev))
		}
		<-dl.Done()
	})
}

func downloadEvent(id uint64, ev transfer.Event) Event {
	switch ev.Kind {
	case transfer.EventCompleted:
		return DownloadCompleted{JobID: id, Path: ev.Path}
	case transfer.EventFailed:
		if ev.Err == nil {
			return DownloadFailed{JobID: id, Err: &transfer.Error{Kind: transfer.ErrTransport, Message: "download failed"}}
		}
		return DownloadFailed{JobID: id, Err: ev.Err}
	case transfer.EventCancelled:
		return DownloadCancelled{JobID: id}
	default:
		return DownloadProgress{JobID: id, Transferred: ev.Transferred, Total: ev.Total}
	}
}

func (d *Dispatcher) startInstall(ctx context.Context, c StartInstall) {
	j := newJob(c.JobID)
	prev := d.lastInstall
	d.jobs[c.JobID] = j
	d.lastInstall = j

	d.spawn(func() {
		defer d.Post(jobReleased{JobID: c.JobID})
		defer close(j.finished)
		if prev != nil {
			<-prev.finished
		}
		if j.isCanceled() {
			return
		}
		in := d.devices.Install(ctx, c.Serial, c.Path)
		j.attach(in.Cancel)
		for ev := range in.Events() {
			d.Post(installEvent(c.JobID, ev))
		}
		<-in.Done()
	})
}

func installEvent(id uint64, ev device.Event) Event {
	switch ev.Kind {
	case device.EventStage:
		return InstallStageChanged{JobID: id, Stage: ev.Stage}
	case device.EventSucceeded:
		return InstallSucceeded{JobID: id, Output: ev.Output}
	case device.EventFailed:
		return InstallFailed{JobID: id, Err: ev.Err}
	case device.EventCancelled:
		return InstallCancelled{JobID: id}
	default:
		return InstallProgress{JobID: id, Sent: ev.Sent, Total: ev.Total}
	}
}

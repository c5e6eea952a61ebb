package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/apkdrop/internal/catalog"
	"github.com/muurk/apkdrop/internal/logging"
	"github.com/muurk/apkdrop/internal/version"
)

const (
	// DefaultProgressInterval is the minimum spacing of Progress events.
	DefaultProgressInterval = 100 * time.Millisecond

	// DefaultStallTimeout fails a download that receives no bytes for this long.
	DefaultStallTimeout = 30 * time.Second

	// MaxChunkRetries bounds resume attempts after a transient read failure.
	MaxChunkRetries = 3

	chunkSize = 32 * 1024

	partSuffix = ".part"
)

// Engine streams release assets to local files.
type Engine struct {
	token            string
	dir              string
	ownsDir          bool
	client           *http.Client
	progressInterval time.Duration
	stallTimeout     time.Duration
	maxRetries       int
	retryDelay       time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient replaces the default download client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithProgressInterval overrides DefaultProgressInterval.
func WithProgressInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.progressInterval = d
		}
	}
}

// WithStallTimeout overrides DefaultStallTimeout.
func WithStallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.stallTimeout = d
		}
	}
}

// WithMaxRetries overrides MaxChunkRetries. Zero disables resume.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithRetryDelay sets the pause before each resume attempt.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Engine) { e.retryDelay = d }
}

// NewEngine creates an engine that writes into dir. An empty dir creates a
// private temporary directory that Cleanup removes.
func NewEngine(token, dir string, opts ...Option) (*Engine, error) {
	e := &Engine{
		token:            token,
		dir:              dir,
		progressInterval: DefaultProgressInterval,
		stallTimeout:     DefaultStallTimeout,
		maxRetries:       MaxChunkRetries,
		retryDelay:       500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = newHTTPClient()
	}

	if e.dir == "" {
		d, err := os.MkdirTemp("", "apkdrop-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create download directory: %w", err)
		}
		e.dir = d
		e.ownsDir = true
	} else if err := os.MkdirAll(e.dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	return e, nil
}

// Dir returns the directory downloads are written to.
func (e *Engine) Dir() string {
	return e.dir
}

// Cleanup removes the download directory if the engine created it.
func (e *Engine) Cleanup() error {
	if !e.ownsDir {
		return nil
	}
	return os.RemoveAll(e.dir)
}

// Start begins streaming asset in the background. The returned Download
// reports progress and exactly one terminal event on Events.
func (e *Engine) Start(ctx context.Context, asset catalog.Asset) *Download {
	ctx, cancel := context.WithCancelCause(ctx)
	d := &Download{
		asset:  asset,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go d.run(ctx, e)
	return d
}

// Download is one in-flight asset transfer.
type Download struct {
	asset  catalog.Asset
	events chan Event
	done   chan struct{}
	cancel context.CancelCauseFunc
	once   sync.Once

	lastProgress time.Time
}

// Events delivers Progress events followed by one terminal event. The
// channel is closed after the terminal event.
func (d *Download) Events() <-chan Event {
	return d.events
}

// Done is closed once the download has stopped and its files are settled.
func (d *Download) Done() <-chan struct{} {
	return d.done
}

// Cancel stops the download. It is safe to call more than once and after
// completion.
func (d *Download) Cancel() {
	d.once.Do(func() { d.cancel(errCancelledByUser) })
}

func (d *Download) run(ctx context.Context, e *Engine) {
	defer close(d.done)
	defer close(d.events)
	defer d.cancel(nil)

	logging.Debug("Download started",
		zap.String("asset", d.asset.Name),
		zap.String("release", d.asset.ReleaseTag),
		zap.Int64("size", d.asset.Size),
	)

	path, written, err := e.fetch(ctx, d)
	if err == nil {
		logging.Info("Download completed", zap.String("asset", d.asset.Name), zap.String("path", path))
		d.events <- Event{Kind: EventCompleted, Path: path, Transferred: written, Total: written}
		return
	}

	cause := context.Cause(ctx)
	switch {
	case ctx.Err() != nil && !errors.Is(cause, errStalled):
		logging.Info("Download cancelled", zap.String("asset", d.asset.Name))
		d.events <- Event{Kind: EventCancelled, Transferred: written, Err: &Error{Kind: ErrCancelled, Message: "download cancelled", Err: cause}}
	default:
		derr := toError(err, cause)
		logging.Warn("Download failed", zap.String("asset", d.asset.Name), zap.Error(derr))
		d.events <- Event{Kind: EventFailed, Transferred: written, Err: derr}
	}
}

func toError(err, cause error) *Error {
	var derr *Error
	if errors.As(err, &derr) {
		return derr
	}
	if errors.Is(cause, errStalled) {
		return &Error{Kind: ErrTransport, Message: errStalled.Error(), Err: err}
	}
	var se httpStatusError
	if errors.As(err, &se) {
		return &Error{Kind: ErrTransport, Message: se.Error(), StatusCode: se.code}
	}
	return &Error{Kind: ErrTransport, Message: "download interrupted", Err: err}
}

// progress emits a Progress event if the interval has elapsed or the
// transfer just finished. Progress is dropped rather than blocking when the
// consumer falls behind.
func (d *Download) progress(interval time.Duration, written, total int64) {
	now := time.Now()
	if written != total && now.Sub(d.lastProgress) < interval {
		return
	}
	d.lastProgress = now
	select {
	case d.events <- Event{Kind: EventProgress, Transferred: written, Total: total}:
	default:
	}
}

// fetch writes the asset into a .part file and renames it into place on
// success. The .part file never survives a failure.
func (e *Engine) fetch(ctx context.Context, d *Download) (string, int64, error) {
	final := filepath.Join(e.dir, localName(d.asset))
	part := final + partSuffix

	f, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", 0, &Error{Kind: ErrTransport, Message: "cannot create download file", Err: err}
	}
	success := false
	defer func() {
		if !success {
			_ = f.Close()
			_ = os.Remove(part)
		}
	}()

	// The watchdog cancels the whole download if a single read blocks past
	// the stall timeout.
	watchdog := time.AfterFunc(e.stallTimeout, func() { d.cancel(errStalled) })
	defer watchdog.Stop()

	var written int64
	total := d.asset.Size
	for attempt := 0; ; attempt++ {
		var n int64
		n, total, err = e.stream(ctx, d, f, written, total, watchdog)
		written = n
		if err == nil {
			break
		}
		if ctx.Err() != nil || !isRetryable(err) || attempt >= e.maxRetries {
			return "", written, err
		}
		logging.Warn("Download interrupted, resuming",
			zap.String("asset", d.asset.Name),
			zap.Int64("offset", written),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return "", written, ctx.Err()
		case <-time.After(e.retryDelay):
		}
		watchdog.Reset(e.stallTimeout)
	}

	if total > 0 && written != total {
		return "", written, &Error{
			Kind:    ErrTransport,
			Message: fmt.Sprintf("size mismatch: received %d bytes, expected %d", written, total),
		}
	}
	if err := f.Sync(); err != nil {
		return "", written, &Error{Kind: ErrTransport, Message: "cannot flush download file", Err: err}
	}
	if err := f.Close(); err != nil {
		return "", written, &Error{Kind: ErrTransport, Message: "cannot close download file", Err: err}
	}
	if err := os.Rename(part, final); err != nil {
		return "", written, &Error{Kind: ErrTransport, Message: "cannot finalize download file", Err: err}
	}
	success = true
	return final, written, nil
}

// stream issues one GET starting at offset and copies the body into f. It
// returns the new write position and the best known total size.
func (e *Engine) stream(ctx context.Context, d *Download, f *os.File, offset, total int64, watchdog *time.Timer) (int64, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.asset.ContentURL, nil)
	if err != nil {
		return offset, total, &Error{Kind: ErrTransport, Message: "invalid asset URL", Err: err}
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", version.UserAgent())
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return offset, total, ctx.Err()
		}
		return offset, total, retryableError{err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		if total <= 0 && resp.ContentLength > 0 {
			total = offset + resp.ContentLength
		}
	case resp.StatusCode == http.StatusOK:
		if offset > 0 {
			// Range was ignored; start over.
			if err := f.Truncate(0); err != nil {
				return offset, total, err
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return offset, total, err
			}
			offset = 0
		}
		if total <= 0 && resp.ContentLength > 0 {
			total = resp.ContentLength
		}
	default:
		se := httpStatusError{code: resp.StatusCode, status: resp.Status}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return offset, total, retryableError{se}
		}
		return offset, total, se
	}

	written := offset
	buf := make([]byte, chunkSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			watchdog.Reset(e.stallTimeout)
			if _, werr := f.Write(buf[:n]); werr != nil {
				return written, total, &Error{Kind: ErrTransport, Message: "cannot write download file", Err: werr}
			}
			written += int64(n)
			d.progress(e.progressInterval, written, total)
		}
		if rerr == io.EOF {
			return written, total, nil
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return written, total, ctx.Err()
			}
			return written, total, retryableError{rerr}
		}
	}
}

// localName derives a collision-free file name for asset inside the
// download directory.
func localName(a catalog.Asset) string {
	name := filepath.Base(strings.ReplaceAll(a.Name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "asset"
	}
	return strconv.FormatInt(a.ID, 10) + "-" + name
}

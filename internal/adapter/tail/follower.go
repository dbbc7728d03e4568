// Package tail follows a growing log file and delivers complete lines as
// they are appended. It survives copy-truncate and rename-and-recreate
// rotation, and reports a terminal error once the file is gone for good.
package tail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/V4T54L/chia-harvester-metrics/internal/domain"
)

// ErrFileGone is returned by Start when the followed path stays absent
// longer than the configured grace period.
var ErrFileGone = errors.New("log file is gone")

const (
	defaultPollInterval = 250 * time.Millisecond
	defaultMissingGrace = 5 * time.Second
	defaultMaxLineBytes = 1 << 20
	readBufferSize      = 32 * 1024
	lineBufferSize      = 512
	fingerprintSize     = 64
)

// Follower reads newly appended lines from a single file.
// A Follower must be started at most once.
type Follower struct {
	path         string
	logger       *slog.Logger
	pollInterval time.Duration
	missingGrace time.Duration
	maxLineBytes int
	startAtEnd   bool

	out chan domain.Line

	file   *os.File
	info   fs.FileInfo
	offset int64 // bytes consumed from file

	// head holds the first bytes of the current file generation. A mismatch
	// means the file was truncated and rewritten past our offset.
	head []byte

	pending    []byte
	lineStart  int64
	discarding bool

	missingSince time.Time
	readBuf      []byte
}

// Option configures a Follower.
type Option func(*Follower)

// WithPollInterval sets how often the file is checked when no change
// notification arrives.
func WithPollInterval(d time.Duration) Option {
	return func(f *Follower) {
		if d > 0 {
			f.pollInterval = d
		}
	}
}

// WithMissingGrace sets how long the path may be absent during rotation
// before Start gives up with ErrFileGone.
func WithMissingGrace(d time.Duration) Option {
	return func(f *Follower) {
		if d > 0 {
			f.missingGrace = d
		}
	}
}

// WithMaxLineBytes sets the longest line that is delivered. Longer lines
// are dropped whole.
func WithMaxLineBytes(n int) Option {
	return func(f *Follower) {
		if n > 0 {
			f.maxLineBytes = n
		}
	}
}

// WithStartAtEnd skips the content present when the file is opened.
func WithStartAtEnd(v bool) Option {
	return func(f *Follower) {
		f.startAtEnd = v
	}
}

// Open opens path for following. It fails if the file cannot be opened now.
func Open(path string, logger *slog.Logger, opts ...Option) (*Follower, error) {
	f := &Follower{
		path:         filepath.Clean(path),
		logger:       logger.With("component", "tail_follower"),
		pollInterval: defaultPollInterval,
		missingGrace: defaultMissingGrace,
		maxLineBytes: defaultMaxLineBytes,
		out:          make(chan domain.Line, lineBufferSize),
		readBuf:      make([]byte, readBufferSize),
	}
	for _, opt := range opts {
		opt(f)
	}

	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", f.path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat log file %s: %w", f.path, err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("log file %s is a directory", f.path)
	}
	f.file = file
	f.info = info

	if f.startAtEnd && info.Size() > 0 {
		if err := f.seekEnd(info.Size()); err != nil {
			file.Close()
			return nil, err
		}
	}

	return f, nil
}

// seekEnd positions the follower at size. If the file does not end in a
// newline, the partial last line is skipped as well.
func (f *Follower) seekEnd(size int64) error {
	if _, err := f.file.Seek(size, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek log file %s: %w", f.path, err)
	}
	f.offset = size
	f.lineStart = size

	head := make([]byte, min(size, fingerprintSize))
	if _, err := f.file.ReadAt(head, 0); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read log file %s: %w", f.path, err)
	}
	f.head = head

	last := make([]byte, 1)
	if _, err := f.file.ReadAt(last, size-1); err == nil && last[0] != '\n' {
		f.discarding = true
	}
	return nil
}

// Lines returns the channel on which lines are delivered. It is closed when
// Start returns.
func (f *Follower) Lines() <-chan domain.Line {
	return f.out
}

// Path returns the followed path.
func (f *Follower) Path() string {
	return f.path
}

// Start follows the file until ctx is cancelled, returning nil, or until the
// file becomes permanently inaccessible, returning the cause.
func (f *Follower) Start(ctx context.Context) error {
	defer close(f.out)
	defer func() { f.file.Close() }()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.logger.Warn("file notifications unavailable, polling only", "error", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(f.path)); err != nil {
			f.logger.Warn("cannot watch log directory, polling only", "dir", filepath.Dir(f.path), "error", err)
		} else {
			events, errs = watcher.Events, watcher.Errors
		}
	}

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	f.logger.Info("following log file", "path", f.path, "offset", f.offset)

	for {
		if err := f.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

	wait:
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if filepath.Clean(ev.Name) == f.path {
					break wait
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				f.logger.Warn("file watcher error", "error", err)
			case <-ticker.C:
				break wait
			}
		}
	}
}

// poll reads everything new and then checks whether the path still refers
// to the file being read.
func (f *Follower) poll(ctx context.Context) error {
	truncated, err := f.truncated()
	if err != nil {
		return err
	}
	if truncated {
		f.logger.Info("log file truncated, reading from the start", "path", f.path, "previous_offset", f.offset)
		if _, err := f.file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek log file %s: %w", f.path, err)
		}
		f.reset()
	}

	if err := f.drain(ctx); err != nil {
		return err
	}

	st, err := os.Stat(f.path)
	switch {
	case err == nil:
		f.missingSince = time.Time{}
	case errors.Is(err, fs.ErrNotExist):
		if f.missingSince.IsZero() {
			f.missingSince = time.Now()
			f.logger.Warn("log file disappeared, waiting for it to reappear", "path", f.path, "grace", f.missingGrace)
			return nil
		}
		if time.Since(f.missingSince) > f.missingGrace {
			return fmt.Errorf("%w: %s absent for more than %s", ErrFileGone, f.path, f.missingGrace)
		}
		return nil
	default:
		return fmt.Errorf("failed to stat log file %s: %w", f.path, err)
	}

	if os.SameFile(st, f.info) {
		return nil
	}
	return f.reopen(ctx)
}

// truncated reports whether the open file shrank below, or was rewritten
// underneath, the current offset. A rewrite is recognised by the first
// bytes of the file changing; a truncate followed by content that repeats
// the same leading bytes and already extends past the offset is not
// detected and is read from the old offset.
func (f *Follower) truncated() (bool, error) {
	st, err := f.file.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to stat log file %s: %w", f.path, err)
	}
	if st.Size() < f.offset {
		return true, nil
	}
	if len(f.head) == 0 {
		return false, nil
	}

	cur := make([]byte, len(f.head))
	n, err := f.file.ReadAt(cur, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read log file %s: %w", f.path, err)
	}
	return !bytes.Equal(cur[:n], f.head), nil
}

// reopen switches to the file now found at the path. The old handle is
// drained once more first, since the writer may have appended to it after
// the last read.
func (f *Follower) reopen(ctx context.Context) error {
	file, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to reopen log file %s: %w", f.path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file %s: %w", f.path, err)
	}

	if err := f.drain(ctx); err != nil {
		file.Close()
		return err
	}
	if len(f.pending) > 0 {
		f.logger.Debug("dropping unterminated line from rotated file", "bytes", len(f.pending))
	}
	f.file.Close()
	f.file = file
	f.info = info
	f.reset()

	f.logger.Info("log file replaced, following new file", "path", f.path)
	return f.drain(ctx)
}

func (f *Follower) reset() {
	f.offset = 0
	f.lineStart = 0
	f.head = f.head[:0]
	f.pending = f.pending[:0]
	f.discarding = false
}

// drain reads the open file to EOF, emitting every complete line.
func (f *Follower) drain(ctx context.Context) error {
	for {
		n, err := f.file.Read(f.readBuf)
		if n > 0 {
			if err := f.consume(ctx, f.readBuf[:n]); err != nil {
				return err
			}
		}
		if errors.Is(err, io.EOF) || (n == 0 && err == nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read log file %s: %w", f.path, err)
		}
	}
}

func (f *Follower) consume(ctx context.Context, chunk []byte) error {
	if missing := fingerprintSize - len(f.head); missing > 0 && f.offset == int64(len(f.head)) {
		f.head = append(f.head, chunk[:min(missing, len(chunk))]...)
	}

	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			f.buffer(chunk)
			f.offset += int64(len(chunk))
			return nil
		}

		f.buffer(chunk[:i])
		f.offset += int64(i + 1)

		if f.discarding {
			f.discarding = false
		} else {
			line := domain.Line{
				Text:   string(bytes.TrimSuffix(f.pending, []byte{'\r'})),
				Offset: f.lineStart,
			}
			select {
			case f.out <- line:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		f.pending = f.pending[:0]
		f.lineStart = f.offset
		chunk = chunk[i+1:]
	}
	return nil
}

func (f *Follower) buffer(b []byte) {
	if f.discarding || len(b) == 0 {
		return
	}
	if len(f.pending)+len(b) > f.maxLineBytes {
		f.logger.Warn("discarding over-long line", "offset", f.lineStart, "limit_bytes", f.maxLineBytes)
		f.pending = f.pending[:0]
		f.discarding = true
		return
	}
	f.pending = append(f.pending, b...)
}

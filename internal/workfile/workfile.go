package workfile

import (
	"bytes"
	"context"
	"crypto"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	goupdate "github.com/doitdistributed/go-update"
	"github.com/mitchellh/go-ps"
	"go.uber.org/multierr"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
	"github.com/oshokin/bootstrap-builder/internal/fetch"
	"github.com/oshokin/bootstrap-builder/internal/logger"
	"github.com/oshokin/bootstrap-builder/internal/peimage"
	"github.com/oshokin/bootstrap-builder/internal/progress"
)

const (
	// Pattern names the private temporary copy.
	Pattern = "0bootstrap-*.exe"

	// DefaultFileMode is the mode of published executables.
	DefaultFileMode os.FileMode = 0o755
)

var (
	// ErrClosed is returned by operations on a closed WorkFile.
	ErrClosed = errors.New("work file is closed")
	// ErrDestinationExists is returned when publishing over an existing file without force.
	ErrDestinationExists = errors.New("destination already exists")
	// ErrDestinationRunning is returned when the destination is a running executable.
	ErrDestinationRunning = errors.New("destination is running")
)

// PublishOptions controls Publish.
type PublishOptions struct {
	// Force allows replacing an existing destination.
	Force bool
	// CheckRunning refuses to replace an executable that is currently running.
	CheckRunning bool
	// Mode is the mode of a newly created destination; zero means DefaultFileMode.
	Mode os.FileMode
}

// WorkFile is a private copy of an executable under edit.
type WorkFile struct {
	path string

	mu        sync.Mutex
	closed    bool
	published bool
}

var _ peimage.Image = (*WorkFile)(nil)

// Acquire creates a private temporary copy of source in the system temp directory.
func Acquire(ctx context.Context, fetcher fetch.Fetcher, source string, reporter progress.Reporter) (*WorkFile, error) {
	return AcquireInDir(ctx, "", fetcher, source, reporter)
}

// AcquireInDir is Acquire with an explicit directory for the temporary copy.
// Nothing remains in dir when acquisition fails.
func AcquireInDir(
	ctx context.Context,
	dir string,
	fetcher fetch.Fetcher,
	source string,
	reporter progress.Reporter,
) (*WorkFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Acquisition("acquire "+source, err)
	}

	file, err := os.CreateTemp(dir, Pattern)
	if err != nil {
		return nil, apperr.Acquisition("create work file", err)
	}

	fetchErr := fetcher.Fetch(ctx, source, file, reporter)

	if err = multierr.Append(fetchErr, file.Close()); err != nil {
		err = multierr.Append(err, removeIfExists(file.Name()))

		return nil, apperr.Acquisition("acquire "+source, err)
	}

	logger.DebugKV(ctx, "Acquired template", "source", source, "path", file.Name())

	return &WorkFile{path: file.Name()}, nil
}

// Path returns the location of the private copy.
func (w *WorkFile) Path() string {
	return w.path
}

// View implements peimage.Image.
func (w *WorkFile) View(fn func(src peimage.Source) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return apperr.Structural("view work file", ErrClosed)
	}

	file, err := os.Open(w.path)
	if err != nil {
		return apperr.Structural("open work file", err)
	}

	defer file.Close() //nolint:errcheck // Read-only handle.

	return fn(file)
}

// Rewrite runs one read-modify-write transaction. fn writes the new content
// into a sibling temporary file, which replaces the work file only when fn
// succeeds.
func (w *WorkFile) Rewrite(fn func(src peimage.Source, dst io.Writer) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return apperr.Structural("rewrite work file", ErrClosed)
	}

	src, err := os.Open(w.path)
	if err != nil {
		return apperr.Structural("open work file", err)
	}

	dst, err := os.CreateTemp(filepath.Dir(w.path), filepath.Base(w.path)+".*.tmp")
	if err != nil {
		_ = src.Close()

		return apperr.Structural("create rewrite file", err)
	}

	err = multierr.Combine(fn(src, dst), dst.Close(), src.Close())
	if err != nil {
		return multierr.Append(err, removeIfExists(dst.Name()))
	}

	if err := os.Rename(dst.Name(), w.path); err != nil {
		return apperr.Structural("replace work file", multierr.Append(err, removeIfExists(dst.Name())))
	}

	return nil
}

// Publish copies the work file to dest with an atomic swap. An existing
// destination is refused unless opts.Force. The destination holds either its
// previous or its new content at any time.
func (w *WorkFile) Publish(ctx context.Context, dest string, opts PublishOptions) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return apperr.Publish("publish", ErrClosed)
	}

	if err := ctx.Err(); err != nil {
		return apperr.Publish("publish", err)
	}

	dest, err := filepath.Abs(dest)
	if err != nil {
		return apperr.Publish("publish", err)
	}

	exists, err := fileExists(dest)
	if err != nil {
		return apperr.Publish("publish", err)
	}

	if exists && !opts.Force {
		return apperr.Publish("publish", fmt.Errorf("%s: %w", dest, ErrDestinationExists))
	}

	if exists && opts.CheckRunning {
		if err := ensureNotRunning(dest); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		return apperr.Publish("read work file", err)
	}

	mode := opts.Mode
	if mode == 0 {
		mode = DefaultFileMode
	}

	if err := w.swap(dest, data, mode, exists); err != nil {
		return apperr.Publish("publish "+dest, err)
	}

	w.published = true

	logger.DebugKV(ctx, "Published", "path", dest, "bytes", len(data))

	cleanup(ctx, w.path, oldPath(dest))

	return nil
}

// cleanup removes leftovers of a completed publish. The destination is already
// replaced, so failures are only logged.
func cleanup(ctx context.Context, paths ...string) {
	for _, path := range paths {
		if err := removeIfExists(path); err != nil {
			logger.WarnKV(ctx, "Leftover file not removed", "path", path, "error", err)
		}
	}
}

// swap replaces dest with data through go-update, which renames the previous
// file aside and rolls back on failure.
func (*WorkFile) swap(dest string, data []byte, mode os.FileMode, exists bool) error {
	if !exists {
		// go-update moves the previous target aside, so it must exist.
		placeholder, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
		if err != nil {
			return err
		}

		if err := placeholder.Close(); err != nil {
			return multierr.Append(err, removeIfExists(dest))
		}
	}

	checksum := sha512.Sum512(data)

	err := goupdate.Apply(bytes.NewReader(data), goupdate.Options{
		TargetPath: dest,
		TargetMode: mode,
		Checksum:   checksum[:],
		Hash:       crypto.SHA512,
	})
	if err == nil {
		return nil
	}

	if rollbackErr := goupdate.RollbackError(err); rollbackErr != nil {
		err = multierr.Append(err, rollbackErr)
	}

	if !exists {
		err = multierr.Append(err, removeIfExists(dest))
	}

	return err
}

// Close removes the work file unless it was published. It is safe to call
// more than once.
func (w *WorkFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true

	if w.published {
		return nil
	}

	return removeIfExists(w.path)
}

// ensureNotRunning refuses destinations whose executable name is running.
func ensureNotRunning(dest string) error {
	processes, err := ps.Processes()
	if err != nil {
		return apperr.Publish("list processes", err)
	}

	name := filepath.Base(dest)

	for _, process := range processes {
		if strings.EqualFold(process.Executable(), name) {
			return apperr.New(apperr.KindAccessDenied, "publish",
				fmt.Errorf("%s (pid %d): %w", name, process.Pid(), ErrDestinationRunning))
		}
	}

	return nil
}

// oldPath is where go-update moves the previous destination.
func oldPath(dest string) string {
	return filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+".old")
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return false, err
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
	"github.com/oshokin/bootstrap-builder/internal/progress"
)

// Fetcher copies the content at source into dst.
type Fetcher interface {
	Fetch(ctx context.Context, source string, dst io.Writer, reporter progress.Reporter) error
}

// ErrEmptySource is returned for an empty source location.
var ErrEmptySource = errors.New("source location is empty")

// IsRemote reports whether source is an HTTP(S) URL.
func IsRemote(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}

	return strings.EqualFold(u.Scheme, "http") || strings.EqualFold(u.Scheme, "https")
}

// BaseName returns the last path element of a path or URL.
func BaseName(source string) string {
	if IsRemote(source) {
		if u, err := url.Parse(source); err == nil {
			return path.Base(u.Path)
		}
	}

	return filepath.Base(LocalPath(source))
}

// LocalPath strips a file:// scheme from source.
func LocalPath(source string) string {
	u, err := url.Parse(source)
	if err == nil && strings.EqualFold(u.Scheme, "file") {
		return filepath.FromSlash(u.Path)
	}

	return source
}

// File copies local files through an afero filesystem.
type File struct {
	Fs afero.Fs
}

// NewFile returns a fetcher for the OS filesystem.
func NewFile() *File {
	return &File{Fs: afero.NewOsFs()}
}

// Fetch implements Fetcher.
func (f *File) Fetch(ctx context.Context, source string, dst io.Writer, reporter progress.Reporter) error {
	if source == "" {
		return apperr.InvalidArguments("fetch", ErrEmptySource)
	}

	if reporter == nil {
		reporter = progress.Noop{}
	}

	name := LocalPath(source)

	src, err := f.Fs.Open(name)
	if err != nil {
		// The path error already names the operation and the file.
		return apperr.Acquisition("", err)
	}

	defer src.Close() //nolint:errcheck // Read-only handle.

	total := int64(-1)
	if info, err := src.Stat(); err == nil {
		total = info.Size()
	}

	reporter.Start(BaseName(source), total)

	_, err = io.Copy(io.MultiWriter(dst, progress.Counter{Reporter: reporter}), contextReader{ctx: ctx, r: src})

	reporter.Finish(err)

	if err != nil {
		return apperr.Acquisition("copy "+name, err)
	}

	return nil
}

// Auto dispatches on the source scheme.
type Auto struct {
	Local  Fetcher
	Remote Fetcher
}

// Fetch implements Fetcher.
func (a *Auto) Fetch(ctx context.Context, source string, dst io.Writer, reporter progress.Reporter) error {
	if IsRemote(source) {
		if a.Remote == nil {
			return apperr.New(apperr.KindNotSupported, "fetch", fmt.Errorf("remote source %s", source))
		}

		return a.Remote.Fetch(ctx, source, dst, reporter)
	}

	return a.Local.Fetch(ctx, source, dst, reporter)
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context //nolint:containedctx // Scoped to one copy.
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}

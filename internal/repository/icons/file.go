package icons

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
	"github.com/oshokin/bootstrap-builder/internal/fetch"
	"github.com/oshokin/bootstrap-builder/internal/logger"
)

// Store resolves image URLs to local files.
type Store interface {
	// GetFresh downloads href and returns the path of the cached copy.
	GetFresh(ctx context.Context, href string) (string, error)
}

// FileRepository keeps downloaded images in a directory.
type FileRepository struct {
	// dir is the cache directory; it is created on first use.
	dir     string
	fetcher fetch.Fetcher
	// mu serializes writes to the cache directory.
	mu sync.Mutex
}

// dirPermissions is the mode of a newly created cache directory.
const dirPermissions = 0o700

// ErrEmptyHref is returned for an empty image location.
var ErrEmptyHref = errors.New("image location is empty")

// NewFileRepository creates a repository caching into dir.
func NewFileRepository(dir string, fetcher fetch.Fetcher) *FileRepository {
	return &FileRepository{
		dir:     filepath.Clean(dir),
		fetcher: fetcher,
	}
}

// Path returns the cache location of href.
func (r *FileRepository) Path(href string) string {
	sum := sha256.Sum256([]byte(href))

	ext := strings.ToLower(path.Ext(strings.SplitN(href, "?", 2)[0])) //nolint:mnd // Strip the query.
	if len(ext) > 5 || strings.ContainsAny(ext, `/\`) {               //nolint:mnd // Keep short, plain extensions only.
		ext = ""
	}

	return filepath.Join(r.dir, hex.EncodeToString(sum[:12])+ext)
}

// GetFresh downloads href into the cache. When the download fails and an
// older copy exists, the older copy is returned.
func (r *FileRepository) GetFresh(ctx context.Context, href string) (string, error) {
	if href == "" {
		return "", apperr.InvalidArguments("get icon", ErrEmptyHref)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	target := r.Path(href)

	err := r.download(ctx, href, target)
	if err == nil {
		return target, nil
	}

	if apperr.KindOf(err) == apperr.KindCanceled {
		return "", err
	}

	if _, statErr := os.Stat(target); statErr == nil {
		logger.WarnKV(ctx, "Using cached image", "href", href, "error", err)

		return target, nil
	}

	return "", err
}

// Get returns the cached copy of href, downloading it when missing.
func (r *FileRepository) Get(ctx context.Context, href string) (string, error) {
	if _, err := os.Stat(r.Path(href)); err == nil {
		return r.Path(href), nil
	}

	return r.GetFresh(ctx, href)
}

func (r *FileRepository) download(ctx context.Context, href, target string) error {
	if err := os.MkdirAll(r.dir, dirPermissions); err != nil {
		return apperr.Input("create icon cache", err)
	}

	tmp, err := os.CreateTemp(r.dir, ".download-*")
	if err != nil {
		return apperr.Input("create icon cache entry", err)
	}

	err = multierr.Append(r.fetcher.Fetch(ctx, href, tmp, nil), tmp.Close())
	if err == nil {
		err = os.Rename(tmp.Name(), target)
	}

	if err != nil {
		if removeErr := os.Remove(tmp.Name()); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			err = multierr.Append(err, removeErr)
		}

		return apperr.Acquisition("download image "+href, err)
	}

	logger.DebugKV(ctx, "Cached image", "href", href, "path", target)

	return nil
}

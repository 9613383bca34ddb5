package peimage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
)

// Source is the current content of an image during a transaction.
type Source interface {
	io.ReadSeeker
	io.ReaderAt
}

// Image is an executable whose resources can be read and rewritten.
type Image interface {
	// View runs fn against the current content of the image.
	View(fn func(src Source) error) error
	// Rewrite runs fn with the current content and a writer for the new one.
	// The new content replaces the image only when fn succeeds.
	Rewrite(fn func(src Source, dst io.Writer) error) error
}

// ErrReadOnly is returned by Rewrite on images opened with Open.
var ErrReadOnly = errors.New("image is opened read-only")

// Open returns a read-only image backed by the file at path.
//
//nolint:ireturn // Callers only need the Image behavior.
func Open(path string) Image {
	return readOnlyFile(filepath.Clean(path))
}

type readOnlyFile string

func (f readOnlyFile) View(fn func(src Source) error) error {
	file, err := os.Open(string(f))
	if err != nil {
		return apperr.Input("open image", err)
	}

	defer file.Close() //nolint:errcheck // Read-only handle.

	return fn(file)
}

func (f readOnlyFile) Rewrite(func(Source, io.Writer) error) error {
	return apperr.New(apperr.KindNotSupported, "rewrite image", fmt.Errorf("%s: %w", string(f), ErrReadOnly))
}

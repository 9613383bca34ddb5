package resources

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
)

// TreeFile is one file of a content tree.
type TreeFile struct {
	// RelPath is the path relative to the tree root, with forward slashes.
	RelPath string
	Data    []byte
}

// ContentTree lists files in lexical path order.
type ContentTree []TreeFile

// ErrNotDirectory is returned when the tree root is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// ReadTree reads every regular file below root.
func ReadTree(afs afero.Fs, root string) (ContentTree, error) {
	info, err := afs.Stat(root)
	if err != nil {
		return nil, apperr.Input("read content", err)
	}

	if !info.IsDir() {
		return nil, apperr.Input("read content", fmt.Errorf("%s: %w", root, ErrNotDirectory))
	}

	var tree ContentTree

	err = afero.Walk(afs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		data, err := afero.ReadFile(afs, path)
		if err != nil {
			return err
		}

		tree = append(tree, TreeFile{RelPath: filepath.ToSlash(rel), Data: data})

		return nil
	})
	if err != nil {
		return nil, apperr.Input("read content", err)
	}

	return tree, nil
}

// PathToResourceName maps a relative file path to a blob name below prefix.
// Path segments are form-decoded: '+' becomes a space, each valid %XX escape
// is decoded on its own and invalid escapes stay literal.
func PathToResourceName(prefix, relPath string) string {
	relPath = strings.ReplaceAll(relPath, `\`, "/")

	segments := strings.Split(relPath, "/")
	decoded := make([]string, 0, len(segments))

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		decoded = append(decoded, decodeSegment(segment))
	}

	return strings.TrimSuffix(prefix, ".") + "." + strings.Join(decoded, ".")
}

func decodeSegment(segment string) string {
	if !strings.ContainsAny(segment, "%+") {
		return segment
	}

	buf := make([]byte, 0, len(segment))

	for i := 0; i < len(segment); i++ {
		switch c := segment[i]; {
		case c == '+':
			buf = append(buf, ' ')
		case c == '%' && i+2 < len(segment) && isHex(segment[i+1]) && isHex(segment[i+2]):
			buf = append(buf, unhex(segment[i+1])<<4|unhex(segment[i+2]))
			i += 2
		default:
			buf = append(buf, c)
		}
	}

	return strings.ToValidUTF8(string(buf), "\uFFFD")
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case c >= 'a':
		return c - 'a' + 10
	case c >= 'A':
		return c - 'A' + 10
	default:
		return c - '0'
	}
}

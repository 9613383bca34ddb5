package peimage

import (
	"debug/pe"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tc-hib/winres"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
)

// LangNeutral is the language of resources that apply to every locale.
const LangNeutral uint16 = 0

// Key addresses one resource entry.
type Key struct {
	Type winres.Identifier
	ID   winres.Identifier
	Lang uint16
}

// String renders the key for logs and errors.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%04x", FormatIdentifier(k.Type), FormatIdentifier(k.ID), k.Lang)
}

// ErrNotPE is returned when the input is not a PE image.
var ErrNotPE = errors.New("not a PE image")

// Table is the in-memory resource section of an image.
type Table struct {
	rs *winres.ResourceSet
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{rs: new(winres.ResourceSet)}
}

// Load parses the resource section of src.
// An image without a resource directory yields an empty table.
func Load(src Source) (*Table, error) {
	file, err := pe.NewFile(src)
	if err != nil {
		return nil, apperr.Malformed("parse image", fmt.Errorf("%w: %w", ErrNotPE, err))
	}

	hasResources := resourceDirectorySize(file) > 0

	if err := file.Close(); err != nil {
		return nil, apperr.Structural("parse image", err)
	}

	if !hasResources {
		return NewTable(), nil
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, apperr.Structural("load resources", err)
	}

	rs, err := winres.LoadFromEXE(src)
	if err != nil {
		return nil, apperr.Malformed("load resources", err)
	}

	return &Table{rs: rs}, nil
}

func resourceDirectorySize(file *pe.File) uint32 {
	var (
		count uint32
		dirs  [16]pe.DataDirectory
	)

	switch hdr := file.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		count, dirs = hdr.NumberOfRvaAndSizes, hdr.DataDirectory
	case *pe.OptionalHeader64:
		count, dirs = hdr.NumberOfRvaAndSizes, hdr.DataDirectory
	default:
		return 0
	}

	if count <= pe.IMAGE_DIRECTORY_ENTRY_RESOURCE {
		return 0
	}

	return dirs[pe.IMAGE_DIRECTORY_ENTRY_RESOURCE].Size
}

// Walk calls fn for every entry until fn returns false.
func (t *Table) Walk(fn func(key Key, data []byte) bool) {
	t.rs.Walk(func(typeID, resID winres.Identifier, langID uint16, data []byte) bool {
		return fn(Key{Type: typeID, ID: resID, Lang: langID}, data)
	})
}

// Get returns the data of the entry addressed by key.
func (t *Table) Get(key Key) ([]byte, bool) {
	var (
		found []byte
		ok    bool
	)

	t.Walk(func(k Key, data []byte) bool {
		if k.Lang == key.Lang && SameIdentifier(k.Type, key.Type) && SameIdentifier(k.ID, key.ID) {
			found, ok = data, true

			return false
		}

		return true
	})

	return found, ok
}

// Keys returns the keys of every entry matching match, in walk order.
func (t *Table) Keys(match func(Key) bool) []Key {
	var keys []Key

	t.Walk(func(k Key, _ []byte) bool {
		if match == nil || match(k) {
			keys = append(keys, k)
		}

		return true
	})

	return keys
}

// Set inserts or overwrites one entry.
func (t *Table) Set(key Key, data []byte) error {
	if err := t.rs.Set(key.Type, key.ID, key.Lang, data); err != nil {
		return apperr.Structural("set resource "+key.String(), err)
	}

	return nil
}

// Remove deletes every entry matching match and reports how many were removed.
func (t *Table) Remove(match func(Key) bool) (int, error) {
	var (
		next    = new(winres.ResourceSet)
		removed int
		setErr  error
	)

	t.Walk(func(k Key, data []byte) bool {
		if match(k) {
			removed++

			return true
		}

		if err := next.Set(k.Type, k.ID, k.Lang, data); err != nil {
			setErr = fmt.Errorf("%s: %w", k, err)

			return false
		}

		return true
	})

	if setErr != nil {
		return 0, apperr.Structural("remove resources", setErr)
	}

	t.rs = next

	return removed, nil
}

// Write serializes the image read from src with the table as its resource
// section. Authenticode signatures are dropped because they no longer match.
func (t *Table) Write(dst io.Writer, src io.ReadSeeker) error {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return apperr.Structural("write resources", err)
	}

	err := t.rs.WriteToEXE(dst, src,
		winres.WithAuthenticode(winres.RemoveSignature),
		winres.ForceCheckSum(),
	)
	if err != nil {
		return apperr.Structural("write resources", err)
	}

	return nil
}

// Update loads the table of img, applies fn and writes the result back in a
// single transaction. Nothing is written when fn fails.
func Update(img Image, fn func(t *Table) error) error {
	return img.Rewrite(func(src Source, dst io.Writer) error {
		t, err := Load(src)
		if err != nil {
			return err
		}

		if err := fn(t); err != nil {
			return err
		}

		return t.Write(dst, src)
	})
}

// View loads the table of img and passes it to fn.
func View(img Image, fn func(t *Table) error) error {
	return img.View(func(src Source) error {
		t, err := Load(src)
		if err != nil {
			return err
		}

		return fn(t)
	})
}

// SameIdentifier compares identifiers; names compare case-insensitively.
func SameIdentifier(a, b winres.Identifier) bool {
	switch av := a.(type) {
	case winres.ID:
		bv, ok := b.(winres.ID)

		return ok && av == bv
	case winres.Name:
		bv, ok := b.(winres.Name)

		return ok && strings.EqualFold(string(av), string(bv))
	default:
		return false
	}
}

// FormatIdentifier renders an identifier as #n or its name.
func FormatIdentifier(id winres.Identifier) string {
	switch v := id.(type) {
	case winres.ID:
		return fmt.Sprintf("#%d", uint16(v))
	case winres.Name:
		return string(v)
	default:
		return fmt.Sprint(id)
	}
}

package icon

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tc-hib/winres"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
	"github.com/oshokin/bootstrap-builder/internal/peimage"
)

// DefaultGroupID names the icon group of images that have none.
const DefaultGroupID winres.ID = 1

// ErrTooManyIcons is returned when no RT_ICON identifiers are left.
var ErrTooManyIcons = errors.New("no free icon identifiers")

// Patch replaces the main icon of img with the .ico file at path.
func Patch(img peimage.Image, path string) error {
	file, err := Load(path)
	if err != nil {
		return err
	}

	return peimage.Update(img, func(t *peimage.Table) error {
		return Apply(t, file)
	})
}

// Load reads and decodes the .ico file at path.
func Load(path string) (*File, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, apperr.Input("open icon", err)
	}

	defer f.Close() //nolint:errcheck // Read-only handle.

	file, err := Decode(f)
	if err != nil {
		return nil, apperr.Input("decode icon "+path, err)
	}

	return file, nil
}

// Apply installs file as the main icon group of t. The previous group, in
// every language, is removed together with the images no other group uses.
func Apply(t *peimage.Table, file *File) error {
	groupID := MainGroup(t)

	stale, kept := references(t, groupID)

	if _, err := t.Remove(func(k peimage.Key) bool {
		if peimage.SameIdentifier(k.Type, winres.RT_GROUP_ICON) {
			return peimage.SameIdentifier(k.ID, groupID)
		}

		if !peimage.SameIdentifier(k.Type, winres.RT_ICON) {
			return false
		}

		id, ok := k.ID.(winres.ID)
		_, shared := kept[uint16(id)]
		_, own := stale[uint16(id)]

		return ok && own && !shared
	}); err != nil {
		return err
	}

	next := nextIconID(t)
	if next+len(file.Images)-1 > math.MaxUint16 {
		return apperr.Structural("patch icon", ErrTooManyIcons)
	}

	ids := make([]uint16, len(file.Images))

	for i, img := range file.Images {
		ids[i] = uint16(next + i) //nolint:gosec // Checked against MaxUint16 above.

		key := peimage.Key{Type: winres.RT_ICON, ID: winres.ID(ids[i]), Lang: peimage.LangNeutral}
		if err := t.Set(key, img.Data); err != nil {
			return err
		}
	}

	return t.Set(peimage.Key{Type: winres.RT_GROUP_ICON, ID: groupID, Lang: peimage.LangNeutral}, file.GroupBytes(ids))
}

// MainGroup returns the identifier of the first icon group in directory
// order, named groups first, or DefaultGroupID when there is none.
//
//nolint:ireturn // Group identifiers are IDs or names.
func MainGroup(t *peimage.Table) winres.Identifier {
	var (
		names []string
		ids   []uint16
	)

	for _, k := range t.Keys(isGroup) {
		switch id := k.ID.(type) {
		case winres.Name:
			names = append(names, string(id))
		case winres.ID:
			ids = append(ids, uint16(id))
		}
	}

	if len(names) > 0 {
		return winres.Name(slices.MinFunc(names, func(a, b string) int {
			return strings.Compare(strings.ToUpper(a), strings.ToUpper(b))
		}))
	}

	if len(ids) > 0 {
		return winres.ID(slices.Min(ids))
	}

	return DefaultGroupID
}

// Group returns the images referenced by the main icon group of t.
func Group(t *peimage.Table) (*File, error) {
	groupID := MainGroup(t)

	var data []byte

	t.Walk(func(k peimage.Key, d []byte) bool {
		if isGroup(k) && peimage.SameIdentifier(k.ID, groupID) {
			data = d

			return false
		}

		return true
	})

	if data == nil {
		return &File{}, nil
	}

	entries, err := readEntries[groupEntry](data, groupEntrySize)
	if err != nil {
		return nil, apperr.Malformed("read icon group", err)
	}

	file := &File{Images: make([]Image, 0, len(entries))}

	for _, e := range entries {
		imgData, ok := findIcon(t, e.ID)
		if !ok {
			return nil, apperr.Malformed("read icon group", fmt.Errorf("%w: missing image #%d", ErrMalformed, e.ID))
		}

		file.Images = append(file.Images, Image{
			Width:    e.Width,
			Height:   e.Height,
			Colors:   e.Colors,
			Planes:   e.Planes,
			BitCount: e.BitCount,
			Data:     imgData,
		})
	}

	return file, nil
}

// references splits RT_ICON identifiers into those used by the target group
// and those used by any other group.
func references(t *peimage.Table, groupID winres.Identifier) (map[uint16]struct{}, map[uint16]struct{}) {
	stale := make(map[uint16]struct{})
	kept := make(map[uint16]struct{})

	t.Walk(func(k peimage.Key, data []byte) bool {
		if !isGroup(k) {
			return true
		}

		ids, err := GroupIDs(data)
		if err != nil {
			return true
		}

		target := stale
		if !peimage.SameIdentifier(k.ID, groupID) {
			target = kept
		}

		for _, id := range ids {
			target[id] = struct{}{}
		}

		return true
	})

	return stale, kept
}

func nextIconID(t *peimage.Table) int {
	highest := 0

	for _, k := range t.Keys(isIcon) {
		if id, ok := k.ID.(winres.ID); ok {
			highest = max(highest, int(id))
		}
	}

	return highest + 1
}

func findIcon(t *peimage.Table, id uint16) ([]byte, bool) {
	var (
		found []byte
		ok    bool
	)

	t.Walk(func(k peimage.Key, data []byte) bool {
		if isIcon(k) && peimage.SameIdentifier(k.ID, winres.ID(id)) {
			found, ok = data, true

			return false
		}

		return true
	})

	return found, ok
}

func isGroup(k peimage.Key) bool {
	return peimage.SameIdentifier(k.Type, winres.RT_GROUP_ICON)
}

func isIcon(k peimage.Key) bool {
	return peimage.SameIdentifier(k.Type, winres.RT_ICON)
}

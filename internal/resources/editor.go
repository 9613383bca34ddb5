package resources

import (
	"sort"
	"strings"

	"github.com/tc-hib/winres"

	"github.com/oshokin/bootstrap-builder/internal/peimage"
)

// Well-known blob names read by the bootstrapper at run time.
const (
	ConfigName       = "ZeroInstall.BootstrapConfig.ini"
	SplashScreenName = "ZeroInstall.SplashScreen.png"
	ContentPrefix    = "ZeroInstall.content"
)

// Editor mutates the embedded blobs of one loaded resource table.
type Editor struct {
	table *peimage.Table
}

// Edit loads the resource table of img, runs fn and writes the whole table
// back once. Nothing is written when fn or the write fails.
func Edit(img peimage.Image, fn func(e *Editor) error) error {
	return peimage.Update(img, func(t *peimage.Table) error {
		return fn(&Editor{table: t})
	})
}

// Read loads the resource table of img and runs fn against it read-only.
func Read(img peimage.Image, fn func(e *Editor) error) error {
	return peimage.View(img, func(t *peimage.Table) error {
		return fn(&Editor{table: t})
	})
}

// Replace removes every blob called name, in every language, and inserts data.
func (e *Editor) Replace(name string, data []byte) error {
	if _, err := e.table.Remove(blobNamed(name)); err != nil {
		return err
	}

	return e.set(name, data)
}

// AddTree inserts one blob per file of tree below prefix. Existing blobs are
// not removed first.
func (e *Editor) AddTree(prefix string, tree ContentTree) error {
	for _, file := range tree {
		if err := e.set(PathToResourceName(prefix, file.RelPath), file.Data); err != nil {
			return err
		}
	}

	return nil
}

// Get returns the neutral-language blob called name, or any language when
// no neutral one exists.
func (e *Editor) Get(name string) ([]byte, bool) {
	var (
		found []byte
		ok    bool
	)

	match := blobNamed(name)

	e.table.Walk(func(k peimage.Key, data []byte) bool {
		if !match(k) {
			return true
		}

		found, ok = data, true

		return k.Lang != peimage.LangNeutral
	})

	return found, ok
}

// Names returns the sorted, de-duplicated names of all blobs.
func (e *Editor) Names() []string {
	seen := make(map[string]struct{})

	for _, k := range e.table.Keys(isBlob) {
		if name, ok := k.ID.(winres.Name); ok {
			seen[string(name)] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Count returns the number of entries called name across languages.
func (e *Editor) Count(name string) int {
	return len(e.table.Keys(blobNamed(name)))
}

func (e *Editor) set(name string, data []byte) error {
	return e.table.Set(peimage.Key{
		Type: winres.RT_RCDATA,
		ID:   winres.Name(name),
		Lang: peimage.LangNeutral,
	}, data)
}

func isBlob(k peimage.Key) bool {
	return peimage.SameIdentifier(k.Type, winres.RT_RCDATA)
}

func blobNamed(name string) func(peimage.Key) bool {
	return func(k peimage.Key) bool {
		if !isBlob(k) {
			return false
		}

		n, ok := k.ID.(winres.Name)

		return ok && strings.EqualFold(string(n), name)
	}
}

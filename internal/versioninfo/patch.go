package versioninfo

import (
	"errors"
	"fmt"

	goversion "github.com/hashicorp/go-version"
	"github.com/tc-hib/winres"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
	"github.com/oshokin/bootstrap-builder/internal/peimage"
)

// Standard string table keys written by Patch.
const (
	KeyProductName      = "ProductName"
	KeyProductVersion   = "ProductVersion"
	KeyFileDescription  = "FileDescription"
	KeyOriginalFilename = "OriginalFilename"
	KeyCopyright        = "LegalCopyright"
	KeyCompany          = "CompanyName"
)

// ErrNoVersionInfo is returned when the image has no RT_VERSION resource.
var ErrNoVersionInfo = errors.New("image has no version resource")

// Record is the identity metadata written into an executable.
type Record struct {
	ProductName      string
	ProductVersion   string
	FileDescription  string
	OriginalFilename string
	Copyright        string
	Company          string
	// Language tags the string table and the resource; zero is neutral.
	Language uint16
}

func (r Record) entries() []Entry {
	return []Entry{
		{Key: KeyProductName, Value: r.ProductName},
		{Key: KeyProductVersion, Value: r.ProductVersion},
		{Key: KeyFileDescription, Value: r.FileDescription},
		{Key: KeyOriginalFilename, Value: r.OriginalFilename},
		{Key: KeyCopyright, Value: r.Copyright},
		{Key: KeyCompany, Value: r.Company},
	}
}

// Apply writes rec into info. All string tables collapse into one tagged with
// rec.Language; the code page of the first table is kept. Keys that rec does
// not cover survive, first table first.
func (info *Info) Apply(rec Record) {
	merged := StringTable{Lang: rec.Language, CodePage: CodePageUnicode}

	if len(info.StringTables) > 0 {
		merged.CodePage = info.StringTables[0].CodePage
	}

	for _, table := range info.StringTables {
		for _, e := range table.Entries {
			if _, ok := merged.Get(e.Key); !ok {
				merged.Entries = append(merged.Entries, e)
			}
		}
	}

	for _, e := range rec.entries() {
		merged.Set(e.Key, e.Value)
	}

	info.StringTables = []StringTable{merged}
	info.Translations = []Translation{{Lang: rec.Language, CodePage: merged.CodePage}}

	if info.Fixed == nil {
		info.Fixed = NewFixed()
	}

	if ms, ls, ok := packVersion(rec.ProductVersion); ok {
		info.Fixed.ProductVersionMS, info.Fixed.ProductVersionLS = ms, ls
	}
}

// Record returns the metadata of the first string table.
func (info *Info) Record() Record {
	if len(info.StringTables) == 0 {
		return Record{}
	}

	table := info.StringTables[0]
	get := func(key string) string {
		v, _ := table.Get(key)

		return v
	}

	return Record{
		ProductName:      get(KeyProductName),
		ProductVersion:   get(KeyProductVersion),
		FileDescription:  get(KeyFileDescription),
		OriginalFilename: get(KeyOriginalFilename),
		Copyright:        get(KeyCopyright),
		Company:          get(KeyCompany),
		Language:         table.Lang,
	}
}

// packVersion converts a dotted version into the two DWORDs of
// VS_FIXEDFILEINFO. Missing components are zero.
func packVersion(s string) (uint32, uint32, bool) {
	v, err := goversion.NewVersion(s)
	if err != nil {
		return 0, 0, false
	}

	var parts [4]uint32

	for i, seg := range v.Segments() {
		if i >= len(parts) {
			break
		}

		parts[i] = uint32(min(max(seg, 0), 0xFFFF)) //nolint:gosec,mnd // Clamped to a WORD.
	}

	return parts[0]<<16 | parts[1], parts[2]<<16 | parts[3], true
}

// Patch replaces the version resource of img with one carrying rec.
func Patch(img peimage.Image, rec Record) error {
	return peimage.Update(img, func(t *peimage.Table) error {
		key, data, ok := find(t)
		if !ok {
			return apperr.Structural("patch version info", ErrNoVersionInfo)
		}

		info, err := Parse(data)
		if err != nil {
			return apperr.Malformed("patch version info", fmt.Errorf("%s: %w", key, err))
		}

		info.Apply(rec)

		if _, err := t.Remove(func(k peimage.Key) bool {
			return peimage.SameIdentifier(k.Type, winres.RT_VERSION) && peimage.SameIdentifier(k.ID, key.ID)
		}); err != nil {
			return err
		}

		return t.Set(peimage.Key{Type: winres.RT_VERSION, ID: key.ID, Lang: rec.Language}, info.Bytes())
	})
}

// Read returns the version metadata of img.
func Read(img peimage.Image) (Record, error) {
	var rec Record

	err := peimage.View(img, func(t *peimage.Table) error {
		key, data, ok := find(t)
		if !ok {
			return apperr.Structural("read version info", ErrNoVersionInfo)
		}

		info, err := Parse(data)
		if err != nil {
			return apperr.Malformed("read version info", fmt.Errorf("%s: %w", key, err))
		}

		rec = info.Record()

		return nil
	})

	return rec, err
}

// find returns the first RT_VERSION entry in directory order.
func find(t *peimage.Table) (peimage.Key, []byte, bool) {
	var (
		key   peimage.Key
		found []byte
		ok    bool
	)

	t.Walk(func(k peimage.Key, data []byte) bool {
		if !peimage.SameIdentifier(k.Type, winres.RT_VERSION) {
			return true
		}

		key, found, ok = k, data, true

		return false
	})

	return key, found, ok
}

package versioninfo

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tc-hib/winres"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
	"github.com/oshokin/bootstrap-builder/internal/peimage"
	"github.com/oshokin/bootstrap-builder/internal/peimage/petest"
)

type memImage struct {
	data []byte
}

func (m *memImage) View(fn func(src peimage.Source) error) error {
	return fn(bytes.NewReader(m.data))
}

func (m *memImage) Rewrite(fn func(src peimage.Source, dst io.Writer) error) error {
	var out bytes.Buffer

	if err := fn(bytes.NewReader(m.data), &out); err != nil {
		return err
	}

	m.data = out.Bytes()

	return nil
}

// templateInfo resembles the version resource of a released bootstrapper.
func templateInfo() *Info {
	fixed := NewFixed()
	fixed.FileVersionMS = 2<<16 | 25
	fixed.ProductVersionMS = 2<<16 | 25

	return &Info{
		Fixed: fixed,
		StringTables: []StringTable{{
			Lang:     0x0409,
			CodePage: CodePageUnicode,
			Entries: []Entry{
				{Key: KeyProductName, Value: "Zero Install"},
				{Key: "InternalName", Value: "0install"},
				{Key: KeyCompany, Value: "0install.de"},
				{Key: "FileVersion", Value: "2.25.0"},
			},
		}},
		Translations: []Translation{{Lang: 0x0409, CodePage: CodePageUnicode}},
	}
}

// TestCodec_RoundTrip decodes what it encodes.
func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	info := templateInfo()
	data := info.Bytes()

	require.Equal(t, len(data), int(binary.LittleEndian.Uint16(data)))
	require.Equal(t, fixedSize, int(binary.LittleEndian.Uint16(data[2:])))

	decoded, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, info, decoded)
	require.Equal(t, data, decoded.Bytes())
}

// TestCodec_EmptyValue writes an empty string as a lone NUL.
func TestCodec_EmptyValue(t *testing.T) {
	t.Parallel()

	data := textBlock("LegalCopyright", "").encode()
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(data[2:]))
	require.Equal(t, typeText, binary.LittleEndian.Uint16(data[4:]))
	require.Equal(t, len(data), int(binary.LittleEndian.Uint16(data)))

	b, n, err := parseBlock(data, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	text, err := b.text()
	require.NoError(t, err)
	require.Empty(t, text)
}

// TestCodec_UnknownBlocks carries blocks it does not model.
func TestCodec_UnknownBlocks(t *testing.T) {
	t.Parallel()

	info := templateInfo()
	info.unknown = []*block{{key: "Custom", typ: typeBinary, value: []byte{1, 2, 3, 4}}}

	decoded, err := Parse(info.Bytes())
	require.NoError(t, err)
	require.Len(t, decoded.unknown, 1)
	require.Equal(t, "Custom", decoded.unknown[0].key)
	require.Equal(t, []byte{1, 2, 3, 4}, decoded.unknown[0].value)
}

// TestParse_Malformed rejects truncated and foreign data.
func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	data := templateInfo().Bytes()

	_, err := Parse(data[:len(data)/2])
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Parse([]byte{1, 2})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Parse(textBlock("NotVersionInfo", "x").encode())
	require.ErrorIs(t, err, ErrMalformed)
}

// TestApply_Record overwrites record keys, keeps others and sets the product version.
func TestApply_Record(t *testing.T) {
	t.Parallel()

	info := templateInfo()
	info.StringTables = append(info.StringTables, StringTable{
		Lang: 0x0407, CodePage: CodePageUnicode,
		Entries: []Entry{{Key: "Comments", Value: "Deutsch"}},
	})

	info.Apply(Record{ProductName: "Example", ProductVersion: "1.0.0.0"})

	require.Len(t, info.StringTables, 1)

	table := info.StringTables[0]
	require.Equal(t, uint16(0), table.Lang)
	require.Equal(t, CodePageUnicode, table.CodePage)

	value, ok := table.Get("InternalName")
	require.True(t, ok)
	require.Equal(t, "0install", value)

	value, ok = table.Get("Comments")
	require.True(t, ok)
	require.Equal(t, "Deutsch", value)

	value, ok = table.Get(KeyCompany)
	require.True(t, ok)
	require.Empty(t, value)

	require.Equal(t, []Translation{{Lang: 0, CodePage: CodePageUnicode}}, info.Translations)
	require.Equal(t, uint32(1<<16), info.Fixed.ProductVersionMS)
	require.Equal(t, uint32(0), info.Fixed.ProductVersionLS)
	require.Equal(t, uint32(2<<16|25), info.Fixed.FileVersionMS)
}

// TestPatch_ReadBack returns exactly the written record, empty fields included.
func TestPatch_ReadBack(t *testing.T) {
	t.Parallel()

	img := &memImage{data: petest.New().
		Resource(winres.RT_VERSION, winres.ID(1), 0x0409, templateInfo().Bytes()).
		RCData("Other.Resource", []byte("keep")).
		Bytes(t)}

	rec := Record{
		ProductName:      "Example App",
		ProductVersion:   "1.0.0.0",
		FileDescription:  "Bootstrapper for Example App",
		OriginalFilename: "Example App.exe",
	}

	require.NoError(t, Patch(img, rec))

	got, err := Read(img)
	require.NoError(t, err)
	require.Equal(t, rec, got)

	require.NoError(t, peimage.View(img, func(table *peimage.Table) error {
		keys := table.Keys(func(k peimage.Key) bool {
			return peimage.SameIdentifier(k.Type, winres.RT_VERSION)
		})
		require.Len(t, keys, 1)
		require.Equal(t, peimage.LangNeutral, keys[0].Lang)
		require.True(t, peimage.SameIdentifier(winres.ID(1), keys[0].ID))

		data, ok := table.Get(peimage.Key{Type: winres.RT_RCDATA, ID: winres.Name("Other.Resource")})
		require.True(t, ok)
		require.Equal(t, "keep", string(data))

		return nil
	}))
}

// TestPatch_Twice is stable on repeated application.
func TestPatch_Twice(t *testing.T) {
	t.Parallel()

	img := &memImage{data: petest.New().
		Resource(winres.RT_VERSION, winres.ID(1), 0x0409, templateInfo().Bytes()).
		Bytes(t)}

	rec := Record{ProductName: "A", ProductVersion: "1.0.0.0", Company: "ACME"}

	versionBlob := func() []byte {
		var blob []byte

		require.NoError(t, peimage.View(img, func(table *peimage.Table) error {
			_, blob, _ = find(table)

			return nil
		}))

		return blob
	}

	require.NoError(t, Patch(img, rec))

	first := versionBlob()

	require.NoError(t, Patch(img, rec))
	require.Equal(t, first, versionBlob())
}

// TestPatch_NoVersion fails with a structural error and writes nothing.
func TestPatch_NoVersion(t *testing.T) {
	t.Parallel()

	img := &memImage{data: petest.New().RCData("Other.Resource", []byte("keep")).Bytes(t)}
	before := bytes.Clone(img.data)

	err := Patch(img, Record{ProductName: "Example"})
	require.ErrorIs(t, err, ErrNoVersionInfo)
	require.Equal(t, apperr.KindIO, apperr.KindOf(err))
	require.Equal(t, before, img.data)
}

// TestPatch_Malformed reports invalid data.
func TestPatch_Malformed(t *testing.T) {
	t.Parallel()

	img := &memImage{data: petest.New().
		Resource(winres.RT_VERSION, winres.ID(1), 0, []byte{0xff, 0xff, 0, 0}).
		Bytes(t)}

	err := Patch(img, Record{ProductName: "Example"})
	require.ErrorIs(t, err, ErrMalformed)
	require.Equal(t, apperr.KindInvalidData, apperr.KindOf(err))
}

// TestPackVersion maps dotted versions to DWORD pairs.
func TestPackVersion(t *testing.T) {
	t.Parallel()

	ms, ls, ok := packVersion("1.2.3.4")
	require.True(t, ok)
	require.Equal(t, uint32(1<<16|2), ms)
	require.Equal(t, uint32(3<<16|4), ls)

	ms, ls, ok = packVersion("2.5")
	require.True(t, ok)
	require.Equal(t, uint32(2<<16|5), ms)
	require.Equal(t, uint32(0), ls)

	_, _, ok = packVersion("not a version")
	require.False(t, ok)
}

// Package petest builds small PE32+ images for tests.
package petest

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tc-hib/winres"
)

const (
	fileAlignment    = 0x200
	sectionAlignment = 0x1000
	headersSize      = 0x200
	textRVA          = 0x1000
	rsrcRVA          = 0x2000
	emptyDirSize     = 16
	peOffset         = 0x40
)

// Bare returns a valid PE32+ image with a .text section and a trailing .rsrc
// section that no data directory points to yet.
func Bare() []byte {
	var buf bytes.Buffer

	dos := make([]byte, peOffset)
	copy(dos, "MZ")
	binary.LittleEndian.PutUint32(dos[0x3c:], peOffset)
	buf.Write(dos)
	buf.WriteString("PE\x00\x00")

	fileHeader := pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_AMD64,
		NumberOfSections:     2,
		SizeOfOptionalHeader: 0xf0,
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_LARGE_ADDRESS_AWARE,
	}

	//nolint:exhaustruct // Remaining fields are zero in a minimal image.
	optional := pe.OptionalHeader64{
		Magic:                       0x20b,
		SizeOfCode:                  fileAlignment,
		SizeOfInitializedData:       fileAlignment,
		AddressOfEntryPoint:         textRVA,
		BaseOfCode:                  textRVA,
		ImageBase:                   0x140000000,
		SectionAlignment:            sectionAlignment,
		FileAlignment:               fileAlignment,
		MajorOperatingSystemVersion: 6,
		MajorSubsystemVersion:       6,
		SizeOfImage:                 rsrcRVA + sectionAlignment,
		SizeOfHeaders:               headersSize,
		Subsystem:                   pe.IMAGE_SUBSYSTEM_WINDOWS_CUI,
		SizeOfStackReserve:          0x100000,
		SizeOfStackCommit:           0x1000,
		SizeOfHeapReserve:           0x100000,
		SizeOfHeapCommit:            0x1000,
		NumberOfRvaAndSizes:         16,
	}

	sections := []pe.SectionHeader32{
		{
			Name:             [8]uint8{'.', 't', 'e', 'x', 't'},
			VirtualSize:      1,
			VirtualAddress:   textRVA,
			SizeOfRawData:    fileAlignment,
			PointerToRawData: headersSize,
			Characteristics:  pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_EXECUTE | pe.IMAGE_SCN_MEM_READ,
		},
		{
			Name:             [8]uint8{'.', 'r', 's', 'r', 'c'},
			VirtualSize:      emptyDirSize,
			VirtualAddress:   rsrcRVA,
			SizeOfRawData:    fileAlignment,
			PointerToRawData: headersSize + fileAlignment,
			Characteristics:  pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ,
		},
	}

	for _, v := range []any{fileHeader, optional, sections} {
		//nolint:errcheck // Writes to a bytes.Buffer do not fail.
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}

	image := make([]byte, headersSize+2*fileAlignment)
	copy(image, buf.Bytes())
	// ret
	image[headersSize] = 0xc3

	return image
}

// Builder collects resources for a synthetic image.
type Builder struct {
	rs winres.ResourceSet
}

// New returns an empty builder.
func New() *Builder {
	return new(Builder)
}

// RCData adds a named RT_RCDATA entry in the neutral language.
func (b *Builder) RCData(name string, data []byte) *Builder {
	return b.Resource(winres.RT_RCDATA, winres.Name(name), 0, data)
}

// Resource adds an arbitrary entry.
func (b *Builder) Resource(typeID, resID winres.Identifier, lang uint16, data []byte) *Builder {
	if err := b.rs.Set(typeID, resID, lang, data); err != nil {
		panic(err)
	}

	return b
}

// Bytes returns the image with every collected resource.
func (b *Builder) Bytes(tb testing.TB) []byte {
	tb.Helper()

	var out bytes.Buffer

	require.NoError(tb, b.rs.WriteToEXE(&out, bytes.NewReader(Bare())))

	return out.Bytes()
}

// WriteFile writes the image to path.
func (b *Builder) WriteFile(tb testing.TB, path string) {
	tb.Helper()

	require.NoError(tb, os.WriteFile(path, b.Bytes(tb), 0o600))
}

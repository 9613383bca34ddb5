package icon

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	dirSize        = 6
	fileEntrySize  = 16
	groupEntrySize = 14

	typeIcon uint16 = 1
)

// ErrMalformed is returned for data that is not a valid icon file or group.
var ErrMalformed = errors.New("malformed icon")

// Image is one image of an icon file.
type Image struct {
	// Width and Height are in pixels; zero means 256.
	Width, Height uint8
	Colors        uint8
	Planes        uint16
	BitCount      uint16
	// Data is a BMP without file header, or a PNG stream.
	Data []byte
}

// File is a decoded .ico file.
type File struct {
	Images []Image
}

type dirHeader struct {
	Reserved uint16
	Type     uint16
	Count    uint16
}

type fileEntry struct {
	Width, Height, Colors, Reserved uint8
	Planes, BitCount                uint16
	BytesInRes, Offset              uint32
}

type groupEntry struct {
	Width, Height, Colors, Reserved uint8
	Planes, BitCount                uint16
	BytesInRes                      uint32
	ID                              uint16
}

// Decode reads an .ico file.
func Decode(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	entries, err := readEntries[fileEntry](data, fileEntrySize)
	if err != nil {
		return nil, err
	}

	file := &File{Images: make([]Image, 0, len(entries))}

	for i, e := range entries {
		end := uint64(e.Offset) + uint64(e.BytesInRes)
		if e.BytesInRes == 0 || end > uint64(len(data)) {
			return nil, fmt.Errorf("%w: image %d is outside the file", ErrMalformed, i)
		}

		file.Images = append(file.Images, Image{
			Width:    e.Width,
			Height:   e.Height,
			Colors:   e.Colors,
			Planes:   e.Planes,
			BitCount: e.BitCount,
			Data:     bytes.Clone(data[e.Offset:end]),
		})
	}

	return file, nil
}

// Bytes encodes the images as an .ico file.
func (f *File) Bytes() []byte {
	var buf bytes.Buffer

	writeLE(&buf, dirHeader{Type: typeIcon, Count: uint16(len(f.Images))}) //nolint:gosec // Icon files hold few images.

	offset := uint32(dirSize + fileEntrySize*len(f.Images)) //nolint:gosec // Bounded by the image count.

	for _, img := range f.Images {
		writeLE(&buf, fileEntry{
			Width:      img.Width,
			Height:     img.Height,
			Colors:     img.Colors,
			Planes:     img.Planes,
			BitCount:   img.BitCount,
			BytesInRes: uint32(len(img.Data)), //nolint:gosec // Images are far below 4 GiB.
			Offset:     offset,
		})

		offset += uint32(len(img.Data)) //nolint:gosec // Images are far below 4 GiB.
	}

	for _, img := range f.Images {
		buf.Write(img.Data)
	}

	return buf.Bytes()
}

// GroupBytes encodes the RT_GROUP_ICON directory for f, with ids[i] the
// RT_ICON identifier of f.Images[i].
func (f *File) GroupBytes(ids []uint16) []byte {
	var buf bytes.Buffer

	writeLE(&buf, dirHeader{Type: typeIcon, Count: uint16(len(f.Images))}) //nolint:gosec // Icon files hold few images.

	for i, img := range f.Images {
		writeLE(&buf, groupEntry{
			Width:      img.Width,
			Height:     img.Height,
			Colors:     img.Colors,
			Planes:     img.Planes,
			BitCount:   img.BitCount,
			BytesInRes: uint32(len(img.Data)), //nolint:gosec // Images are far below 4 GiB.
			ID:         ids[i],
		})
	}

	return buf.Bytes()
}

// GroupIDs returns the RT_ICON identifiers referenced by a group directory.
func GroupIDs(data []byte) ([]uint16, error) {
	entries, err := readEntries[groupEntry](data, groupEntrySize)
	if err != nil {
		return nil, err
	}

	ids := make([]uint16, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}

	return ids, nil
}

// readEntries decodes the directory header and count entries of type T.
func readEntries[T fileEntry | groupEntry](data []byte, entrySize int) ([]T, error) {
	r := bytes.NewReader(data)

	var hdr dirHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if hdr.Reserved != 0 || hdr.Type != typeIcon {
		return nil, fmt.Errorf("%w: not an icon directory", ErrMalformed)
	}

	if hdr.Count == 0 {
		return nil, fmt.Errorf("%w: no images", ErrMalformed)
	}

	if len(data) < dirSize+entrySize*int(hdr.Count) {
		return nil, fmt.Errorf("%w: truncated directory", ErrMalformed)
	}

	entries := make([]T, hdr.Count)
	if err := binary.Read(r, binary.LittleEndian, entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return entries, nil
}

func writeLE(buf *bytes.Buffer, v any) {
	//nolint:errcheck // Writes to a bytes.Buffer do not fail.
	_ = binary.Write(buf, binary.LittleEndian, v)
}

package versioninfo

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
)

const (
	rootKey           = "VS_VERSION_INFO"
	stringFileInfoKey = "StringFileInfo"
	varFileInfoKey    = "VarFileInfo"
	translationKey    = "Translation"

	// FixedSignature starts every VS_FIXEDFILEINFO.
	FixedSignature uint32 = 0xFEEF04BD

	// CodePageUnicode is the default code page of string tables.
	CodePageUnicode uint16 = 0x04B0

	fixedSize = 52
)

// FixedFileInfo is VS_FIXEDFILEINFO.
type FixedFileInfo struct {
	Signature        uint32
	StrucVersion     uint32
	FileVersionMS    uint32
	FileVersionLS    uint32
	ProductVersionMS uint32
	ProductVersionLS uint32
	FileFlagsMask    uint32
	FileFlags        uint32
	FileOS           uint32
	FileType         uint32
	FileSubtype      uint32
	FileDateMS       uint32
	FileDateLS       uint32
}

// Entry is one key/value pair of a string table.
type Entry struct {
	Key   string
	Value string
}

// StringTable holds the strings of one language and code page.
type StringTable struct {
	Lang     uint16
	CodePage uint16
	Entries  []Entry
}

// Get returns the value stored under key.
func (s *StringTable) Get(key string) (string, bool) {
	for _, e := range s.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}

	return "", false
}

// Set overwrites key in place or appends it.
func (s *StringTable) Set(key, value string) {
	for i := range s.Entries {
		if s.Entries[i].Key == key {
			s.Entries[i].Value = value

			return
		}
	}

	s.Entries = append(s.Entries, Entry{Key: key, Value: value})
}

// Translation is one language/code page pair of VarFileInfo.
type Translation struct {
	Lang     uint16
	CodePage uint16
}

// Info is a decoded VS_VERSIONINFO.
type Info struct {
	// Fixed is nil when the resource carries no fixed file info.
	Fixed        *FixedFileInfo
	StringTables []StringTable
	Translations []Translation

	// unknown keeps root children and VarFileInfo children this package does not model.
	unknown    []*block
	unknownVar []*block
}

// Parse decodes a VS_VERSIONINFO resource.
func Parse(data []byte) (*Info, error) {
	root, _, err := parseBlock(data, 0)
	if err != nil {
		return nil, err
	}

	if root.key != rootKey {
		return nil, fmt.Errorf("%w: unexpected root key %q", ErrMalformed, root.key)
	}

	info := new(Info)

	if len(root.value) >= fixedSize {
		var fixed FixedFileInfo
		if err := binary.Read(bytes.NewReader(root.value), binary.LittleEndian, &fixed); err != nil {
			return nil, fmt.Errorf("%w: fixed file info: %w", ErrMalformed, err)
		}

		if fixed.Signature != FixedSignature {
			return nil, fmt.Errorf("%w: fixed file info signature %#x", ErrMalformed, fixed.Signature)
		}

		info.Fixed = &fixed
	}

	for _, child := range root.children {
		switch child.key {
		case stringFileInfoKey:
			if err := info.parseStrings(child); err != nil {
				return nil, err
			}
		case varFileInfoKey:
			info.parseVars(child)
		default:
			info.unknown = append(info.unknown, child)
		}
	}

	return info, nil
}

func (info *Info) parseStrings(sfi *block) error {
	for _, tableBlock := range sfi.children {
		table, err := parseTableKey(tableBlock.key)
		if err != nil {
			return err
		}

		for _, entry := range tableBlock.children {
			value, err := entry.text()
			if err != nil {
				return fmt.Errorf("%s: %w", entry.key, err)
			}

			table.Entries = append(table.Entries, Entry{Key: entry.key, Value: value})
		}

		info.StringTables = append(info.StringTables, table)
	}

	return nil
}

func (info *Info) parseVars(vfi *block) {
	for _, v := range vfi.children {
		if v.key != translationKey {
			info.unknownVar = append(info.unknownVar, v)

			continue
		}

		for i := 0; i+4 <= len(v.value); i += 4 {
			info.Translations = append(info.Translations, Translation{
				Lang:     binary.LittleEndian.Uint16(v.value[i:]),
				CodePage: binary.LittleEndian.Uint16(v.value[i+2:]),
			})
		}
	}
}

func parseTableKey(key string) (StringTable, error) {
	if len(key) != 8 { //nolint:mnd // Four hex digits of language and four of code page.
		return StringTable{}, fmt.Errorf("%w: string table key %q", ErrMalformed, key)
	}

	lang, err := strconv.ParseUint(key[:4], 16, 16)
	if err != nil {
		return StringTable{}, fmt.Errorf("%w: string table key %q", ErrMalformed, key)
	}

	codePage, err := strconv.ParseUint(key[4:], 16, 16)
	if err != nil {
		return StringTable{}, fmt.Errorf("%w: string table key %q", ErrMalformed, key)
	}

	return StringTable{Lang: uint16(lang), CodePage: uint16(codePage)}, nil
}

// Bytes encodes the resource with 32-bit alignment and recomputed lengths.
func (info *Info) Bytes() []byte {
	root := &block{key: rootKey, typ: typeBinary}

	if info.Fixed != nil {
		var buf bytes.Buffer
		//nolint:errcheck // Writes to a bytes.Buffer do not fail.
		_ = binary.Write(&buf, binary.LittleEndian, info.Fixed)
		root.value = buf.Bytes()
	}

	if len(info.StringTables) > 0 {
		sfi := &block{key: stringFileInfoKey, typ: typeText}

		for _, table := range info.StringTables {
			tb := &block{key: fmt.Sprintf("%04x%04x", table.Lang, table.CodePage), typ: typeText}
			for _, e := range table.Entries {
				tb.children = append(tb.children, textBlock(e.Key, e.Value))
			}

			sfi.children = append(sfi.children, tb)
		}

		root.children = append(root.children, sfi)
	}

	if len(info.Translations) > 0 || len(info.unknownVar) > 0 {
		vfi := &block{key: varFileInfoKey, typ: typeText}

		if len(info.Translations) > 0 {
			value := make([]byte, 0, 4*len(info.Translations)) //nolint:mnd // Two WORDs per pair.
			for _, t := range info.Translations {
				value = binary.LittleEndian.AppendUint16(value, t.Lang)
				value = binary.LittleEndian.AppendUint16(value, t.CodePage)
			}

			vfi.children = append(vfi.children, &block{key: translationKey, typ: typeBinary, value: value})
		}

		vfi.children = append(vfi.children, info.unknownVar...)
		root.children = append(root.children, vfi)
	}

	root.children = append(root.children, info.unknown...)

	return root.encode()
}

// NewFixed returns fixed file info with a valid signature and structure version.
func NewFixed() *FixedFileInfo {
	return &FixedFileInfo{
		Signature:    FixedSignature,
		StrucVersion: 0x00010000, //nolint:mnd // Structure version 1.0.
		FileOS:       0x00040004, //nolint:mnd // VOS_NT_WINDOWS32.
		FileType:     1,          // VFT_APP
	}
}

package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// Well-known icon MIME types.
const (
	MimeTypeICO = "image/vnd.microsoft.icon"
	MimeTypePNG = "image/png"
)

// signatureMarker starts the trailing signature comment of a signed feed.
const signatureMarker = "<!-- Base64 Signature"

var (
	// ErrMalformed is returned for feeds that cannot be parsed.
	ErrMalformed = errors.New("malformed feed")
	// ErrNoName is returned for feeds without a name.
	ErrNoName = errors.New("feed has no name")
)

// Icon is an image published by a feed.
type Icon struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

// Descriptor is the part of a feed the builder uses.
type Descriptor struct {
	XMLName       xml.Name  `xml:"interface"`
	URI           string    `xml:"uri,attr"`
	Name          string    `xml:"name"`
	Summary       string    `xml:"summary"`
	Icons         []Icon    `xml:"icon"`
	SplashScreens []Icon    `xml:"splash-screen"`
	Terminal      *struct{} `xml:"needs-terminal"`
}

// NeedsTerminal reports whether the application is a console program.
func (d *Descriptor) NeedsTerminal() bool {
	return d.Terminal != nil
}

// Icon returns the first icon of the given MIME type.
func (d *Descriptor) Icon(mimeType string) (Icon, bool) {
	return pick(d.Icons, mimeType)
}

// SplashScreen returns the first splash screen of the given MIME type.
func (d *Descriptor) SplashScreen(mimeType string) (Icon, bool) {
	return pick(d.SplashScreens, mimeType)
}

func pick(icons []Icon, mimeType string) (Icon, bool) {
	for _, icon := range icons {
		if strings.EqualFold(icon.Type, mimeType) && icon.Href != "" {
			return icon, true
		}
	}

	return Icon{}, false
}

// Signed splits a feed into the signed XML and its detached signature.
// The signature is empty for unsigned feeds.
type Signed struct {
	Data      []byte
	Signature string
}

// Split separates the trailing signature comment from the XML.
func Split(raw []byte) Signed {
	idx := bytes.LastIndex(raw, []byte(signatureMarker))
	if idx < 0 {
		return Signed{Data: raw}
	}

	body := raw[idx+len(signatureMarker):]
	if end := bytes.Index(body, []byte("-->")); end >= 0 {
		body = body[:end]
	}

	return Signed{
		Data:      raw[:idx],
		Signature: strings.Join(strings.Fields(string(body)), ""),
	}
}

// Parse decodes the descriptor of a feed.
func Parse(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := xml.Unmarshal(Split(data).Data, &d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return nil, ErrNoName
	}

	return &d, nil
}

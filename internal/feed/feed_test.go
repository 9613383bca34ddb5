package feed

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
	"github.com/oshokin/bootstrap-builder/internal/fetch"
)

const sampleFeed = `<?xml version="1.0" ?>
<interface xmlns="http://zero-install.sourceforge.net/2004/injector/interface" uri="https://apps.example.com/app.xml">
  <name>Example App</name>
  <summary>does things</summary>
  <icon href="https://apps.example.com/app.png" type="image/png"/>
  <icon href="https://apps.example.com/app.ico" type="image/vnd.microsoft.icon"/>
  <splash-screen href="https://apps.example.com/splash.png" type="image/png"/>
  <needs-terminal/>
  <group>
    <implementation id="sha256new_X" version="1.0"/>
  </group>
</interface>
`

// sign appends a 0install signature block made by entity.
func sign(t *testing.T, data string, entity *openpgp.Entity) []byte {
	t.Helper()

	var sig bytes.Buffer
	require.NoError(t, openpgp.DetachSign(&sig, entity, bytes.NewReader([]byte(data)), nil))

	return []byte(data + "<!-- Base64 Signature\n" + base64.StdEncoding.EncodeToString(sig.Bytes()) + "\n-->\n")
}

func newEntity(t *testing.T) *openpgp.Entity {
	t.Helper()

	entity, err := openpgp.NewEntity("Feed Signer", "", "signer@example.com", nil)
	require.NoError(t, err)

	return entity
}

// TestParse decodes the descriptor fields the builder uses.
func TestParse(t *testing.T) {
	t.Parallel()

	d, err := Parse([]byte(sampleFeed))
	require.NoError(t, err)
	require.Equal(t, "Example App", d.Name)
	require.Equal(t, "https://apps.example.com/app.xml", d.URI)
	require.True(t, d.NeedsTerminal())

	icon, ok := d.Icon(MimeTypeICO)
	require.True(t, ok)
	require.Equal(t, "https://apps.example.com/app.ico", icon.Href)

	splash, ok := d.SplashScreen(MimeTypePNG)
	require.True(t, ok)
	require.Equal(t, "https://apps.example.com/splash.png", splash.Href)

	_, ok = d.SplashScreen(MimeTypeICO)
	require.False(t, ok)
}

// TestParse_Invalid rejects broken XML and nameless feeds.
func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("<interface><name>"))
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Parse([]byte(`<interface uri="x"><summary>s</summary></interface>`))
	require.ErrorIs(t, err, ErrNoName)
}

// TestSplit separates the signature comment.
func TestSplit(t *testing.T) {
	t.Parallel()

	signed := Split([]byte("<interface/>\n<!-- Base64 Signature\nAAAA\nBBBB\n-->\n"))
	require.Equal(t, "<interface/>\n", string(signed.Data))
	require.Equal(t, "AAAABBBB", signed.Signature)

	unsigned := Split([]byte("<interface/>"))
	require.Empty(t, unsigned.Signature)
}

// TestVerify reports the signer fingerprint only for trusted signers.
func TestVerify(t *testing.T) {
	t.Parallel()

	trusted, stranger := newEntity(t), newEntity(t)
	raw := sign(t, sampleFeed, trusted)

	fingerprint, err := Verify(raw, openpgp.EntityList{trusted})
	require.NoError(t, err)
	require.Equal(t, Fingerprint(trusted), fingerprint)
	require.Len(t, fingerprint, 40)

	_, err = Verify(raw, openpgp.EntityList{stranger})
	require.Error(t, err)

	tampered := bytes.Replace(raw, []byte("Example App"), []byte("Evil App"), 1)
	_, err = Verify(tampered, openpgp.EntityList{trusted})
	require.Error(t, err)

	_, err = Verify([]byte(sampleFeed), openpgp.EntityList{trusted})
	require.ErrorIs(t, err, ErrUnsigned)
}

// TestResolver_Resolve fetches a feed and falls back to an empty fingerprint.
func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	entity := newEntity(t)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/feeds/app.xml", sign(t, sampleFeed, entity), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/feeds/broken.xml", []byte("<interface>"), 0o644))

	r := &Resolver{Fetcher: &fetch.File{Fs: fs}, Keyring: openpgp.EntityList{entity}}

	d, fingerprint, err := r.Resolve(context.Background(), "/feeds/app.xml")
	require.NoError(t, err)
	require.Equal(t, "Example App", d.Name)
	require.Equal(t, Fingerprint(entity), fingerprint)

	r.Keyring = nil

	_, fingerprint, err = r.Resolve(context.Background(), "/feeds/app.xml")
	require.NoError(t, err)
	require.Empty(t, fingerprint)

	_, _, err = r.Resolve(context.Background(), "/feeds/broken.xml")
	require.Equal(t, apperr.KindInvalidData, apperr.KindOf(err))

	_, _, err = r.Resolve(context.Background(), "/feeds/missing.xml")
	require.Equal(t, apperr.KindIO, apperr.KindOf(err))
}

package integration

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/require"
	"github.com/tc-hib/winres"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
	"github.com/oshokin/bootstrap-builder/internal/config"
	"github.com/oshokin/bootstrap-builder/internal/feed"
	"github.com/oshokin/bootstrap-builder/internal/icon"
	"github.com/oshokin/bootstrap-builder/internal/peimage/petest"
	"github.com/oshokin/bootstrap-builder/internal/service/builder"
	"github.com/oshokin/bootstrap-builder/internal/service/inspector"
	"github.com/oshokin/bootstrap-builder/internal/versioninfo"
)

// origin serves a template, a signed feed, an icon and a splash screen.
type origin struct {
	server      *httptest.Server
	iconBroken  atomic.Bool
	templateHit atomic.Int32
	signer      *openpgp.Entity
}

func newOrigin(t *testing.T) *origin {
	t.Helper()

	signer, err := openpgp.NewEntity("Feed Signer", "", "signer@example.com", nil)
	require.NoError(t, err)

	info := &versioninfo.Info{Fixed: versioninfo.NewFixed()}
	info.Apply(versioninfo.Record{ProductName: "Zero Install", ProductVersion: "2.25.0.0"})

	template := petest.New().
		Resource(winres.RT_VERSION, winres.ID(1), 0x0409, info.Bytes()).
		Bytes(t)

	ico := &icon.File{Images: []icon.Image{{Width: 48, Height: 48, Planes: 1, BitCount: 32, Data: []byte("served icon")}}}

	o := &origin{signer: signer}

	mux := http.NewServeMux()
	mux.HandleFunc("/zero-install.exe", func(w http.ResponseWriter, _ *http.Request) {
		o.templateHit.Add(1)
		_, _ = w.Write(template)
	})
	mux.HandleFunc("/app.xml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(o.feed(t, "http://"+r.Host))
	})
	mux.HandleFunc("/app.ico", func(w http.ResponseWriter, _ *http.Request) {
		if o.iconBroken.Load() {
			http.Error(w, "gone", http.StatusNotFound)

			return
		}

		_, _ = w.Write(ico.Bytes())
	})
	mux.HandleFunc("/splash.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("served splash"))
	})

	o.server = httptest.NewServer(mux)
	t.Cleanup(o.server.Close)

	return o
}

// feed returns the signed feed document.
func (o *origin) feed(t *testing.T, base string) []byte {
	t.Helper()

	data := `<?xml version="1.0" ?>
<interface xmlns="http://zero-install.sourceforge.net/2004/injector/interface" uri="` + base + `/app.xml">
  <name>Served App</name>
  <summary>remote application</summary>
  <icon href="` + base + `/app.ico" type="` + feed.MimeTypeICO + `"/>
  <splash-screen href="` + base + `/splash.png" type="` + feed.MimeTypePNG + `"/>
</interface>
`

	var sig bytes.Buffer
	require.NoError(t, openpgp.DetachSign(&sig, o.signer, bytes.NewReader([]byte(data)), nil))

	return []byte(data + "<!-- Base64 Signature\n" + base64.StdEncoding.EncodeToString(sig.Bytes()) + "\n-->\n")
}

// settings points every download at the origin and trusts its signer.
func (o *origin) settings(t *testing.T, dir string) *config.Config {
	t.Helper()

	keysPath := filepath.Join(dir, "trusted.asc")

	var keys bytes.Buffer

	w, err := armor.Encode(&keys, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, o.signer.Serialize(w))
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(keysPath, keys.Bytes(), 0o600))

	settings := config.Default()
	settings.GUITemplate = o.server.URL + "/zero-install.exe"
	settings.CLITemplate = o.server.URL + "/missing.exe"
	settings.IconCacheDir = filepath.Join(dir, "icons")
	settings.TrustedKeys = keysPath
	settings.Progress = config.ProgressLog
	settings.HTTPRetryMax = 1
	settings.HTTPTimeout = 5 * time.Second

	return settings
}

// TestBuilder_RemoteFeed builds from a served, signed feed end to end.
func TestBuilder_RemoteFeed(t *testing.T) {
	t.Parallel()

	o := newOrigin(t)
	dir := t.TempDir()
	output := filepath.Join(dir, "served.exe")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := builder.Run(ctx, &builder.Options{
		FeedURI:  o.server.URL + "/app.xml",
		Output:   output,
		Settings: o.settings(t, dir),
	})
	require.NoError(t, err)

	report, err := inspector.Inspect(ctx, output)
	require.NoError(t, err)
	require.Equal(t, "Served App", report.Config.AppName)
	require.Equal(t, o.server.URL+"/app.xml", report.Config.AppURI)
	require.Equal(t, feed.Fingerprint(o.signer), report.Config.KeyFingerprint)
	require.False(t, report.Config.ShowAppNameBelowSplashScreen)
	require.Equal(t, 1, report.Icons)
	require.Equal(t, "served.exe", report.Version.OriginalFilename)
}

// TestBuilder_CachedIcon falls back to the cached icon when the origin
// stops serving it.
func TestBuilder_CachedIcon(t *testing.T) {
	t.Parallel()

	o := newOrigin(t)
	dir := t.TempDir()
	settings := o.settings(t, dir)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	build := func(output string) error {
		return builder.Run(ctx, &builder.Options{
			FeedURI:  o.server.URL + "/app.xml",
			Output:   filepath.Join(dir, output),
			Settings: settings,
		})
	}

	require.NoError(t, build("first.exe"))

	o.iconBroken.Store(true)

	require.NoError(t, build("second.exe"))

	report, err := inspector.Inspect(ctx, filepath.Join(dir, "second.exe"))
	require.NoError(t, err)
	require.Equal(t, 1, report.Icons)
	require.Equal(t, int32(2), o.templateHit.Load())
}

// TestBuilder_TemplateUnavailable reports a network failure and publishes nothing.
func TestBuilder_TemplateUnavailable(t *testing.T) {
	t.Parallel()

	o := newOrigin(t)
	dir := t.TempDir()
	output := filepath.Join(dir, "never.exe")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := builder.Run(ctx, &builder.Options{
		FeedURI:  o.server.URL + "/app.xml",
		Output:   output,
		Template: o.server.URL + "/missing.exe",
		Settings: o.settings(t, dir),
	})
	require.Error(t, err)
	require.Equal(t, apperr.KindNetwork, apperr.KindOf(err))
	require.NoFileExists(t, output)
}

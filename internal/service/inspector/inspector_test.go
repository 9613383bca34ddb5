package inspector

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tc-hib/winres"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
	"github.com/oshokin/bootstrap-builder/internal/bootstrapconfig"
	"github.com/oshokin/bootstrap-builder/internal/icon"
	"github.com/oshokin/bootstrap-builder/internal/peimage/petest"
	"github.com/oshokin/bootstrap-builder/internal/resources"
	"github.com/oshokin/bootstrap-builder/internal/versioninfo"
)

func builtImage(t *testing.T) string {
	t.Helper()

	info := &versioninfo.Info{Fixed: versioninfo.NewFixed()}
	info.Apply(versioninfo.Record{
		ProductName:      "Example App",
		ProductVersion:   "1.0.0.0",
		FileDescription:  "Bootstrapper for Example App",
		OriginalFilename: "app.exe",
	})

	cfg := &bootstrapconfig.Config{AppURI: "https://apps.example.com/app.xml", AppName: "Example App"}
	cfg.SetGlobal("freshness", "0")

	raw, err := cfg.Render()
	require.NoError(t, err)

	ico := &icon.File{Images: []icon.Image{{Width: 16, Height: 16, Planes: 1, BitCount: 32, Data: []byte("img")}}}

	path := filepath.Join(t.TempDir(), "app.exe")
	petest.New().
		Resource(winres.RT_VERSION, winres.ID(1), 0, info.Bytes()).
		Resource(winres.RT_ICON, winres.ID(1), 0, []byte("img")).
		Resource(winres.RT_GROUP_ICON, winres.ID(1), 0, ico.GroupBytes([]uint16{1})).
		RCData(resources.ConfigName, raw).
		RCData(resources.SplashScreenName, []byte("png")).
		WriteFile(t, path)

	return path
}

// TestInspect reads back every customization.
func TestInspect(t *testing.T) {
	t.Parallel()

	path := builtImage(t)

	report, err := Inspect(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, path, report.File)
	require.NotNil(t, report.Version)
	require.Equal(t, "Example App", report.Version.ProductName)
	require.Equal(t, "app.exe", report.Version.OriginalFilename)
	require.Equal(t, 1, report.Icons)
	require.Len(t, report.Resources, 2)
	require.NotNil(t, report.Config)
	require.Equal(t, "Example App", report.Config.AppName)
	require.Equal(t, []GlobalSetting{{Key: "freshness", Value: "0"}}, report.Global)
}

// TestRun_YAML writes a decodable report.
func TestRun_YAML(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	require.NoError(t, Run(context.Background(), &Options{Path: builtImage(t), Out: &out}))

	var decoded Report
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &decoded))
	require.Equal(t, "Example App", decoded.Config.AppName)
	require.Equal(t, "1.0.0.0", decoded.Version.ProductVersion)
}

// TestInspect_Bare reports an image without customizations.
func TestInspect_Bare(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bare.exe")
	require.NoError(t, os.WriteFile(path, petest.Bare(), 0o600))

	report, err := Inspect(context.Background(), path)
	require.NoError(t, err)
	require.Nil(t, report.Version)
	require.Nil(t, report.Config)
	require.Empty(t, report.Resources)
	require.Zero(t, report.Icons)
}

// TestInspect_Missing classifies an absent file as an I/O failure.
func TestInspect_Missing(t *testing.T) {
	t.Parallel()

	_, err := Inspect(context.Background(), filepath.Join(t.TempDir(), "absent.exe"))
	require.Error(t, err)
	require.Equal(t, apperr.KindIO, apperr.KindOf(err))
}

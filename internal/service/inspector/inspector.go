// Package inspector reports what a built bootstrapper carries.
package inspector

import (
	"context"
	"errors"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
	"github.com/oshokin/bootstrap-builder/internal/bootstrapconfig"
	"github.com/oshokin/bootstrap-builder/internal/icon"
	"github.com/oshokin/bootstrap-builder/internal/logger"
	"github.com/oshokin/bootstrap-builder/internal/peimage"
	"github.com/oshokin/bootstrap-builder/internal/resources"
	"github.com/oshokin/bootstrap-builder/internal/versioninfo"
)

// Options contains inputs for one inspection.
type Options struct {
	// Path is the executable to inspect.
	Path string
	// Out receives the YAML report.
	Out io.Writer
}

// Report is the YAML document written by Run.
type Report struct {
	File      string          `yaml:"file"`
	Version   *Version        `yaml:"version,omitempty"`
	Icons     int             `yaml:"icons"`
	Resources []Resource      `yaml:"resources"`
	Config    *Configuration  `yaml:"config,omitempty"`
	Global    []GlobalSetting `yaml:"global,omitempty"`
}

// Version mirrors the version strings of the executable.
type Version struct {
	ProductName      string `yaml:"product_name"`
	ProductVersion   string `yaml:"product_version"`
	FileDescription  string `yaml:"file_description"`
	OriginalFilename string `yaml:"original_filename"`
	Language         uint16 `yaml:"language"`
}

// Resource is one named RT_RCDATA entry.
type Resource struct {
	Name string `yaml:"name"`
	Size int    `yaml:"size"`
}

// Configuration is the embedded [bootstrap] section.
type Configuration struct {
	KeyFingerprint               string `yaml:"key_fingerprint,omitempty"`
	AppURI                       string `yaml:"app_uri"`
	AppName                      string `yaml:"app_name"`
	AppArgs                      string `yaml:"app_args,omitempty"`
	IntegrateArgs                string `yaml:"integrate_args,omitempty"`
	CatalogURI                   string `yaml:"catalog_uri,omitempty"`
	ShowAppNameBelowSplashScreen bool   `yaml:"show_app_name_below_splash_screen"`
	CustomizableStorePath        bool   `yaml:"customizable_store_path"`
	EstimatedRequiredSpace       *int64 `yaml:"estimated_required_space,omitempty"`
}

// GlobalSetting is one entry of the embedded [global] section.
type GlobalSetting struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// Run writes a report about opts.Path to opts.Out.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "inspector")

	report, err := Inspect(ctx, opts.Path)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(opts.Out)
	enc.SetIndent(2)

	if err := enc.Encode(report); err != nil {
		return apperr.Publish("write report", err)
	}

	return enc.Close()
}

// Inspect collects the report for the executable at path.
func Inspect(ctx context.Context, path string) (*Report, error) {
	img := peimage.Open(path)
	report := &Report{File: path}

	rec, err := versioninfo.Read(img)

	switch {
	case err == nil:
		report.Version = &Version{
			ProductName:      rec.ProductName,
			ProductVersion:   rec.ProductVersion,
			FileDescription:  rec.FileDescription,
			OriginalFilename: rec.OriginalFilename,
			Language:         rec.Language,
		}
	case errors.Is(err, versioninfo.ErrNoVersionInfo):
		logger.DebugKV(ctx, "No version information", "path", path)
	default:
		return nil, err
	}

	var rawConfig []byte

	err = resources.Read(img, func(e *resources.Editor) error {
		for _, name := range e.Names() {
			data, _ := e.Get(name)
			report.Resources = append(report.Resources, Resource{Name: name, Size: len(data)})
		}

		rawConfig, _ = e.Get(resources.ConfigName)

		return nil
	})
	if err != nil {
		return nil, err
	}

	if rawConfig != nil {
		if err := report.addConfig(rawConfig); err != nil {
			return nil, err
		}
	}

	err = peimage.View(img, func(t *peimage.Table) error {
		group, err := icon.Group(t)
		if err != nil {
			return err
		}

		report.Icons = len(group.Images)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return report, nil
}

func (r *Report) addConfig(raw []byte) error {
	cfg, err := bootstrapconfig.Parse(raw)
	if err != nil {
		return apperr.Malformed("parse "+resources.ConfigName, err)
	}

	r.Config = &Configuration{
		KeyFingerprint:               cfg.KeyFingerprint,
		AppURI:                       cfg.AppURI,
		AppName:                      cfg.AppName,
		AppArgs:                      cfg.AppArgs,
		IntegrateArgs:                cfg.IntegrateArgs,
		CatalogURI:                   cfg.CatalogURI,
		ShowAppNameBelowSplashScreen: cfg.ShowAppNameBelowSplashScreen,
		CustomizableStorePath:        cfg.CustomizableStorePath,
		EstimatedRequiredSpace:       cfg.EstimatedRequiredSpace,
	}

	for _, kv := range cfg.Global {
		r.Global = append(r.Global, GlobalSetting{Key: kv.Key, Value: kv.Value})
	}

	return nil
}

package builder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
	"github.com/oshokin/bootstrap-builder/internal/bootstrapconfig"
	"github.com/oshokin/bootstrap-builder/internal/config"
	"github.com/oshokin/bootstrap-builder/internal/feed"
	"github.com/oshokin/bootstrap-builder/internal/fetch"
	"github.com/oshokin/bootstrap-builder/internal/icon"
	"github.com/oshokin/bootstrap-builder/internal/logger"
	"github.com/oshokin/bootstrap-builder/internal/resources"
	"github.com/oshokin/bootstrap-builder/internal/versioninfo"
	"github.com/oshokin/bootstrap-builder/internal/workfile"
)

// ProductVersion is written into every bootstrapper.
const ProductVersion = "1.0.0.0"

// errFeedRequired is returned when no feed is given.
var errFeedRequired = errors.New("feed URI must be provided")

// Result describes a published bootstrapper.
type Result struct {
	// Name is the application name taken from the feed.
	Name string
	// Output is the absolute path of the bootstrapper.
	Output string
}

// Builder runs builds with a fixed set of collaborators.
type Builder struct {
	deps Dependencies
}

// Run executes one build with production collaborators.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "builder")

	if opts.Settings == nil {
		opts.Settings = config.Default()
	}

	deps, err := NewDependencies(ctx, opts.Settings)
	if err != nil {
		return err
	}

	result, err := New(deps).Build(ctx, opts)
	if err != nil {
		return err
	}

	logger.Infof(ctx, "Bootstrapper for %s: generated %s", result.Name, result.Output)

	return nil
}

// New creates a builder.
func New(deps Dependencies) *Builder {
	return &Builder{deps: deps}
}

// Build produces one bootstrapper.
func (b *Builder) Build(ctx context.Context, opts *Options) (res Result, err error) {
	if opts.FeedURI == "" {
		return Result{}, apperr.InvalidArguments("build", errFeedRequired)
	}

	settings := opts.Settings
	if settings == nil {
		settings = config.Default()
	}

	if err := checkpoint(ctx, "resolve feed"); err != nil {
		return Result{}, err
	}

	desc, fingerprint, err := b.deps.Resolver.Resolve(ctx, opts.FeedURI)
	if err != nil {
		return Result{}, err
	}

	ctx = logger.WithKV(ctx, "app", desc.Name)

	output, err := outputPath(opts.Output, desc.Name)
	if err != nil {
		return Result{}, err
	}

	if !opts.Force {
		if err := refuseExisting(output); err != nil {
			return Result{}, err
		}
	}

	iconPath, err := b.image(ctx, desc.Icon, feed.MimeTypeICO)
	if err != nil {
		return Result{}, err
	}

	splashPath, err := b.image(ctx, desc.SplashScreen, feed.MimeTypePNG)
	if err != nil {
		return Result{}, err
	}

	var tree resources.ContentTree
	if opts.ContentDir != "" {
		if tree, err = resources.ReadTree(b.deps.Fs, opts.ContentDir); err != nil {
			return Result{}, err
		}
	}

	if err := checkpoint(ctx, "acquire template"); err != nil {
		return Result{}, err
	}

	template := selectTemplate(opts, settings, desc)
	logger.InfoKV(ctx, "Using template", "template", template)

	work, err := workfile.AcquireInDir(ctx, b.deps.WorkDir, b.deps.Fetcher, template, b.deps.Reporter)
	if err != nil {
		return Result{}, err
	}

	defer multierr.AppendInvoke(&err, multierr.Close(work))

	if err := checkpoint(ctx, "embed resources"); err != nil {
		return Result{}, err
	}

	cfg := bootstrapConfig(opts, desc, fingerprint, splashPath != "")

	if err := embed(work, cfg, splashPath, tree); err != nil {
		return Result{}, err
	}

	if err := checkpoint(ctx, "patch version info"); err != nil {
		return Result{}, err
	}

	if err := versioninfo.Patch(work, versioninfo.Record{
		ProductName:      desc.Name,
		ProductVersion:   ProductVersion,
		FileDescription:  "Bootstrapper for " + desc.Name,
		OriginalFilename: filepath.Base(output),
		Language:         0,
	}); err != nil {
		return Result{}, err
	}

	if iconPath != "" {
		if err := checkpoint(ctx, "patch icon"); err != nil {
			return Result{}, err
		}

		if err := icon.Patch(work, iconPath); err != nil {
			return Result{}, err
		}
	}

	if err := checkpoint(ctx, "publish"); err != nil {
		return Result{}, err
	}

	err = work.Publish(ctx, output, workfile.PublishOptions{
		Force:        opts.Force,
		CheckRunning: settings.CheckRunning,
	})
	if err != nil {
		return Result{}, err
	}

	return Result{Name: desc.Name, Output: output}, nil
}

// image fetches the first image of mimeType through the icon store.
// It returns "" when the feed has none.
func (b *Builder) image(ctx context.Context, lookup func(string) (feed.Icon, bool), mimeType string) (string, error) {
	img, ok := lookup(mimeType)
	if !ok {
		return "", nil
	}

	if err := checkpoint(ctx, "fetch "+mimeType); err != nil {
		return "", err
	}

	return b.deps.Icons.GetFresh(ctx, img.Href)
}

// embed writes the configuration, the splash screen and the content tree in
// one resource transaction.
func embed(work *workfile.WorkFile, cfg *bootstrapconfig.Config, splashPath string, tree resources.ContentTree) error {
	rendered, err := cfg.Render()
	if err != nil {
		return apperr.Structural("render config", err)
	}

	var splash []byte
	if splashPath != "" {
		if splash, err = os.ReadFile(splashPath); err != nil {
			return apperr.Input("read splash screen", err)
		}
	}

	return resources.Edit(work, func(e *resources.Editor) error {
		if err := e.Replace(resources.ConfigName, rendered); err != nil {
			return err
		}

		if splash != nil {
			if err := e.Replace(resources.SplashScreenName, splash); err != nil {
				return err
			}
		}

		return e.AddTree(resources.ContentPrefix, tree)
	})
}

// selectTemplate returns the explicit template, or the console template for
// terminal applications unless desktop integration or a store path choice
// needs the graphical one.
func selectTemplate(opts *Options, settings *config.Config, desc *feed.Descriptor) string {
	if opts.Template != "" {
		return opts.Template
	}

	if desc.NeedsTerminal() && opts.IntegrateArgs == "" && !customizableStorePath(opts) {
		return settings.CLITemplate
	}

	return settings.GUITemplate
}

func customizableStorePath(opts *Options) bool {
	return opts.CustomizableStorePath || opts.EstimatedRequiredSpace != nil
}

func bootstrapConfig(opts *Options, desc *feed.Descriptor, fingerprint string, customSplash bool) *bootstrapconfig.Config {
	cfg := &bootstrapconfig.Config{
		KeyFingerprint:               fingerprint,
		AppURI:                       feedURI(opts.FeedURI),
		AppName:                      desc.Name,
		AppArgs:                      opts.AppArgs,
		IntegrateArgs:                opts.IntegrateArgs,
		CatalogURI:                   opts.CatalogURI,
		ShowAppNameBelowSplashScreen: !customSplash,
		CustomizableStorePath:        customizableStorePath(opts),
		EstimatedRequiredSpace:       opts.EstimatedRequiredSpace,
	}

	for _, kv := range opts.Global {
		cfg.SetGlobal(kv.Key, kv.Value)
	}

	return cfg
}

// feedURI makes local feed paths absolute so the bootstrapper finds them
// from any working directory.
func feedURI(uri string) string {
	if fetch.IsRemote(uri) {
		return uri
	}

	abs, err := filepath.Abs(fetch.LocalPath(uri))
	if err != nil {
		return uri
	}

	return abs
}

func outputPath(output, name string) (string, error) {
	if output == "" {
		output = name + ".exe"
	}

	abs, err := filepath.Abs(output)
	if err != nil {
		return "", apperr.InvalidArguments("output path", err)
	}

	return abs, nil
}

func refuseExisting(output string) error {
	_, err := os.Stat(output)

	switch {
	case err == nil:
		return apperr.Publish("check output", fmt.Errorf("%s: %w", output, workfile.ErrDestinationExists))
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return apperr.Publish("check output", err)
	}
}

// checkpoint reports cancellation before the named step.
func checkpoint(ctx context.Context, step string) error {
	if err := ctx.Err(); err != nil {
		return apperr.New(apperr.KindCanceled, step, err)
	}

	return nil
}

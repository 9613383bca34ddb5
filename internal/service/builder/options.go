package builder

import (
	"context"
	"os"

	"github.com/spf13/afero"

	"github.com/oshokin/bootstrap-builder/internal/bootstrapconfig"
	"github.com/oshokin/bootstrap-builder/internal/config"
	"github.com/oshokin/bootstrap-builder/internal/feed"
	"github.com/oshokin/bootstrap-builder/internal/fetch"
	"github.com/oshokin/bootstrap-builder/internal/progress"
	"github.com/oshokin/bootstrap-builder/internal/repository/icons"
)

// Options contains inputs for one build.
type Options struct {
	// FeedURI is the URI or local path of the feed to launch.
	FeedURI string
	// Output is the destination file; empty means "<feed name>.exe".
	Output string
	// Force allows replacing an existing output.
	Force bool
	// AppArgs are passed to the application.
	AppArgs string
	// IntegrateArgs are passed to desktop integration; non-empty selects the GUI template.
	IntegrateArgs string
	// CatalogURI is an optional catalog to register.
	CatalogURI string
	// CustomizableStorePath lets the user choose the implementation store location.
	CustomizableStorePath bool
	// EstimatedRequiredSpace is shown when choosing a store path; it implies CustomizableStorePath.
	EstimatedRequiredSpace *int64
	// Global holds [global] settings in insertion order.
	Global []bootstrapconfig.KeyValue
	// ContentDir is an optional directory embedded below resources.ContentPrefix.
	ContentDir string
	// Template overrides the default template.
	Template string
	// Settings are the loaded settings file; nil means defaults.
	Settings *config.Config
}

// FeedResolver returns the descriptor and trusted signer fingerprint of a feed.
type FeedResolver interface {
	Resolve(ctx context.Context, uri string) (*feed.Descriptor, string, error)
}

// Dependencies are the collaborators of a Builder.
type Dependencies struct {
	Resolver FeedResolver
	Icons    icons.Store
	Fetcher  fetch.Fetcher
	Reporter progress.Reporter
	// Fs reads content directories.
	Fs afero.Fs
	// WorkDir holds the temporary copy of the template; empty means the system temp directory.
	WorkDir string
}

// NewDependencies wires the production collaborators from settings.
func NewDependencies(ctx context.Context, settings *config.Config) (Dependencies, error) {
	keyring, err := feed.LoadKeyring(settings.TrustedKeys)
	if err != nil {
		return Dependencies{}, err
	}

	fetcher := &fetch.Auto{
		Local:  fetch.NewFile(),
		Remote: fetch.NewHTTP(ctx, settings.HTTPTimeout, settings.HTTPRetryMax),
	}

	reporter := progress.New(ctx, settings.Progress, os.Stderr)

	return Dependencies{
		Resolver: &feed.Resolver{Fetcher: fetcher, Keyring: keyring, Reporter: progress.Noop{}},
		Icons:    icons.NewFileRepository(settings.IconCacheDir, fetcher),
		Fetcher:  fetcher,
		Reporter: reporter,
		Fs:       afero.NewOsFs(),
	}, nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
	"github.com/oshokin/bootstrap-builder/internal/bootstrapconfig"
	"github.com/oshokin/bootstrap-builder/internal/config"
	"github.com/oshokin/bootstrap-builder/internal/logger"
	"github.com/oshokin/bootstrap-builder/internal/service/builder"
	"github.com/oshokin/bootstrap-builder/internal/version"
)

var (
	// errOutputTwice is returned when the output is given as flag and argument.
	errOutputTwice = errors.New("output given both as --output and as argument")
	// errBadKeyValue is returned for --config values without '='.
	errBadKeyValue = errors.New("expected KEY=VALUE")
	// errNegativeSpace is returned for a negative --estimated-required-space.
	errNegativeSpace = errors.New("estimated required space must not be negative")
)

// rootFlags holds the values bound to the root command flags.
type rootFlags struct {
	settingsPath           string
	logLevel               string
	output                 string
	force                  bool
	appArgs                string
	integrateArgs          string
	catalogURI             string
	customizableStorePath  bool
	estimatedRequiredSpace int64
	globals                []string
	contentDir             string
	template               string
}

// newRootCommand builds the 0bootstrap command tree.
func newRootCommand() *cobra.Command {
	flags := new(rootFlags)

	rootCmd := &cobra.Command{
		Use:   "0bootstrap [flags] FEED-URI [OUTPUT]",
		Short: "Generate a customized 0install bootstrapper for an application",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.RangeArgs(1, 2)(cmd, args); err != nil {
				return apperr.InvalidArguments("arguments", err)
			}

			return nil
		},
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return applyLogLevel(flags.logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options, err := flags.options(cmd, args)
			if err != nil {
				return err
			}

			return builder.Run(cmd.Context(), options)
		},
	}

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return apperr.InvalidArguments("flags", err)
	})

	persistent := rootCmd.PersistentFlags()
	persistent.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")

	// Setup command flags with consistent naming and descriptions.
	f := rootCmd.Flags()
	f.StringVar(&flags.settingsPath, "settings", config.DefaultConfigFilename, "path to settings file")
	f.StringVarP(&flags.output, "output", "o", "", "path of the generated bootstrapper (default \"<app name>.exe\")")
	f.BoolVarP(&flags.force, "force", "f", false, "overwrite an existing output")
	f.StringVarP(&flags.appArgs, "app-args", "a", "", "additional arguments to pass to the application")
	f.StringVarP(&flags.integrateArgs, "integrate-args", "i", "", "arguments for desktop integration; selects the graphical template")
	f.StringVar(&flags.catalogURI, "catalog-uri", "", "catalog to register with 0install")
	f.BoolVar(&flags.customizableStorePath, "customizable-store-path", false, "let the user choose where implementations are stored")
	f.Int64Var(&flags.estimatedRequiredSpace, "estimated-required-space", 0,
		"bytes needed for the application; implies --customizable-store-path")
	f.StringArrayVarP(&flags.globals, "config", "c", nil, "KEY=VALUE setting for the [global] section (repeatable)")
	f.StringVar(&flags.contentDir, "content", "", "directory embedded into the bootstrapper")
	f.StringVar(&flags.template, "template", "", "template executable to use instead of the default")

	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(newInspectCommand())

	return rootCmd
}

// Execute runs the 0bootstrap CLI and exits with the code of the failure kind.
func Execute() {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)

	err := newRootCommand().ExecuteContext(ctx)

	stop()

	if err != nil {
		logger.ErrorKV(ctx, "Failed", "kind", apperr.KindOf(err).String(), "error", err)
	}

	logger.Sync()
	os.Exit(apperr.ExitCode(err))
}

func applyLogLevel(raw string) error {
	if raw == "" {
		return nil
	}

	lvl, ok := logger.ParseLogLevel(raw)
	if !ok {
		return apperr.InvalidArguments("log level", fmt.Errorf("unknown log level %q", raw))
	}

	logger.SetLevel(lvl)

	return nil
}

// options converts flags and arguments into builder options.
func (f *rootFlags) options(cmd *cobra.Command, args []string) (*builder.Options, error) {
	settings, err := config.Load(f.settingsPath)
	if err != nil {
		return nil, apperr.InvalidArguments("load settings", err)
	}

	if f.logLevel == "" {
		if lvl, ok := logger.ParseLogLevel(settings.LogLevel); ok {
			logger.SetLevel(lvl)
		}
	}

	output := f.output
	if len(args) == 2 {
		if output != "" {
			return nil, apperr.InvalidArguments("arguments", errOutputTwice)
		}

		output = args[1]
	}

	globals, err := parseGlobals(f.globals)
	if err != nil {
		return nil, err
	}

	options := &builder.Options{
		FeedURI:               args[0],
		Output:                output,
		Force:                 f.force,
		AppArgs:               f.appArgs,
		IntegrateArgs:         f.integrateArgs,
		CatalogURI:            f.catalogURI,
		CustomizableStorePath: f.customizableStorePath,
		Global:                globals,
		ContentDir:            f.contentDir,
		Template:              f.template,
		Settings:              settings,
	}

	if cmd.Flags().Changed("estimated-required-space") {
		space := f.estimatedRequiredSpace
		if space < 0 {
			return nil, apperr.InvalidArguments("--estimated-required-space", fmt.Errorf("%w: %d", errNegativeSpace, space))
		}

		options.EstimatedRequiredSpace = &space
	}

	return options, nil
}

// parseGlobals splits KEY=VALUE pairs at the first '='. Values are taken
// verbatim.
func parseGlobals(pairs []string) ([]bootstrapconfig.KeyValue, error) {
	result := make([]bootstrapconfig.KeyValue, 0, len(pairs))

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, apperr.InvalidArguments("--config", fmt.Errorf("%w: %q", errBadKeyValue, pair))
		}

		result = append(result, bootstrapconfig.KeyValue{Key: strings.TrimSpace(key), Value: value})
	}

	return result, nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/bootstrap-builder/internal/logger"
)

// Config holds settings shared by every build.
type Config struct {
	// LogLevel is the minimum level written to stderr.
	LogLevel string `yaml:"log_level"`
	// GUITemplate is the template used for graphical launchers.
	GUITemplate string `yaml:"gui_template"`
	// CLITemplate is the template used when the feed needs a terminal.
	CLITemplate string `yaml:"cli_template"`
	// HTTPTimeout bounds a single HTTP request.
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	// HTTPRetryMax is the number of retries of a failed HTTP request.
	HTTPRetryMax int `yaml:"http_retry_max"`
	// IconCacheDir stores downloaded icons and splash screens.
	IconCacheDir string `yaml:"icon_cache_dir"`
	// TrustedKeys is an armored OpenPGP keyring used to verify feed signatures.
	TrustedKeys string `yaml:"trusted_keys"`
	// CheckRunning refuses to overwrite an output that is currently running.
	CheckRunning bool `yaml:"check_running"`
	// Progress selects how download progress is shown.
	Progress string `yaml:"progress"`
}

// Progress modes.
const (
	ProgressAuto = "auto"
	ProgressBar  = "bar"
	ProgressLog  = "log"
	ProgressNone = "none"
)

const (
	// DefaultConfigFilename is the default filename for builder settings.
	DefaultConfigFilename = "0bootstrap-settings.yaml"

	// DefaultGUITemplate is the graphical bootstrap template.
	DefaultGUITemplate = "https://get.0install.net/zero-install.exe"

	// DefaultCLITemplate is the console bootstrap template.
	DefaultCLITemplate = "https://get.0install.net/0install.exe"

	// DefaultHTTPTimeout is the default duration of one HTTP request.
	DefaultHTTPTimeout = 2 * time.Minute

	// DefaultHTTPRetryMax is the default number of HTTP retries.
	DefaultHTTPRetryMax = 3

	// DefaultIconCacheDirname is created below the user cache directory.
	DefaultIconCacheDirname = "0bootstrap/icons"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownProgress is returned for an unsupported progress mode.
	errUnknownProgress = errors.New("unknown progress mode")
	// errUnknownLogLevel is returned for an unsupported log level.
	errUnknownLogLevel = errors.New("unknown log level")
	// errNegativeRetries is returned for a negative retry count.
	errNegativeRetries = errors.New("http_retry_max must not be negative")
)

// Default returns the settings used when no file exists.
func Default() *Config {
	cfg := new(Config)
	//nolint:errcheck // Defaults always validate.
	_ = Validate(cfg)

	return cfg
}

// Load reads settings from the provided path and validates them.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the settings and fills in defaults for empty fields.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if _, ok := logger.ParseLogLevel(settings.LogLevel); !ok {
		return fmt.Errorf("%w: %q", errUnknownLogLevel, settings.LogLevel)
	}

	if settings.GUITemplate == "" {
		settings.GUITemplate = DefaultGUITemplate
	}

	if settings.CLITemplate == "" {
		settings.CLITemplate = DefaultCLITemplate
	}

	for _, template := range []string{settings.GUITemplate, settings.CLITemplate} {
		if err := validateSource(template); err != nil {
			return err
		}
	}

	if settings.HTTPTimeout <= 0 {
		settings.HTTPTimeout = DefaultHTTPTimeout
	}

	if settings.HTTPRetryMax < 0 {
		return errNegativeRetries
	}

	if settings.HTTPRetryMax == 0 {
		settings.HTTPRetryMax = DefaultHTTPRetryMax
	}

	if settings.IconCacheDir == "" {
		settings.IconCacheDir = defaultIconCacheDir()
	}

	switch settings.Progress {
	case "":
		settings.Progress = ProgressAuto
	case ProgressAuto, ProgressBar, ProgressLog, ProgressNone:
	default:
		return fmt.Errorf("%w: %q", errUnknownProgress, settings.Progress)
	}

	return nil
}

// validateSource accepts local paths and absolute URLs.
func validateSource(source string) error {
	u, err := url.Parse(source)
	if err != nil {
		return fmt.Errorf("invalid template location %q: %w", source, err)
	}

	if u.Scheme == "http" || u.Scheme == "https" {
		if _, err := url.ParseRequestURI(source); err != nil {
			return fmt.Errorf("invalid template URI: %w", err)
		}
	}

	return nil
}

func defaultIconCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}

	return filepath.Join(base, filepath.FromSlash(DefaultIconCacheDirname))
}

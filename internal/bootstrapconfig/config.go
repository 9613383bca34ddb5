package bootstrapconfig

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
)

// Section names.
const (
	SectionGlobal    = "global"
	SectionBootstrap = "bootstrap"
)

// Keys of the [bootstrap] section in rendering order.
const (
	KeyFingerprint                  = "key_fingerprint"
	KeyAppURI                       = "app_uri"
	KeyAppName                      = "app_name"
	KeyAppArgs                      = "app_args"
	KeyIntegrateArgs                = "integrate_args"
	KeyCatalogURI                   = "catalog_uri"
	KeyShowAppNameBelowSplashScreen = "show_app_name_below_splash_screen"
	KeyCustomizableStorePath        = "customizable_store_path"
	KeyEstimatedRequiredSpace       = "estimated_required_space"
)

const lineBreak = "\r\n"

var (
	// ErrInvalidKey is returned for keys a reader would not get back unchanged.
	ErrInvalidKey = errors.New("invalid key")
	// ErrInvalidValue is returned for values spanning several lines.
	ErrInvalidValue = errors.New("invalid value")
)

// KeyValue is one caller-supplied [global] setting.
type KeyValue struct {
	Key   string
	Value string
}

// Config is the runtime configuration of one bootstrapper.
type Config struct {
	// Global holds arbitrary settings in insertion order.
	Global []KeyValue

	KeyFingerprint               string
	AppURI                       string
	AppName                      string
	AppArgs                      string
	IntegrateArgs                string
	CatalogURI                   string
	ShowAppNameBelowSplashScreen bool
	CustomizableStorePath        bool
	// EstimatedRequiredSpace is in bytes; nil renders an empty value.
	EstimatedRequiredSpace *int64
}

// SetGlobal adds or overwrites a [global] setting, keeping the first position.
func (c *Config) SetGlobal(key, value string) {
	for i := range c.Global {
		if c.Global[i].Key == key {
			c.Global[i].Value = value

			return
		}
	}

	c.Global = append(c.Global, KeyValue{Key: key, Value: value})
}

// Render returns the INI text. Keys and values are written verbatim, without
// quoting; input that cannot survive that is rejected.
func (c *Config) Render() ([]byte, error) {
	file := ini.Empty(loadOptions())

	global, err := file.NewSection(SectionGlobal)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}

	if err := addKeys(global, c.Global); err != nil {
		return nil, err
	}

	bootstrap, err := file.NewSection(SectionBootstrap)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}

	if err := addKeys(bootstrap, c.bootstrapKeys()); err != nil {
		return nil, err
	}

	return write(file), nil
}

func addKeys(section *ini.Section, kvs []KeyValue) error {
	for _, kv := range kvs {
		if err := validate(kv); err != nil {
			return apperr.InvalidArguments("render config ["+section.Name()+"]", err)
		}

		if _, err := section.NewKey(kv.Key, kv.Value); err != nil {
			return fmt.Errorf("render config: [%s] key %q: %w", section.Name(), kv.Key, err)
		}
	}

	return nil
}

func validate(kv KeyValue) error {
	key := kv.Key

	switch {
	case key == "", key != strings.TrimSpace(key),
		strings.ContainsAny(key, "=\r\n"),
		strings.ContainsAny(key[:1], "[;#"):
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	case strings.ContainsAny(kv.Value, "\r\n"):
		return fmt.Errorf("%w: %s spans several lines", ErrInvalidValue, key)
	default:
		return nil
	}
}

// write emits the sections as unquoted "key = value" lines.
func write(file *ini.File) []byte {
	var buf bytes.Buffer

	for _, section := range file.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}

		if buf.Len() > 0 {
			buf.WriteString(lineBreak)
		}

		buf.WriteString("[" + section.Name() + "]" + lineBreak)

		for _, key := range section.Keys() {
			buf.WriteString(key.Name() + " = " + key.Value() + lineBreak)
		}
	}

	return buf.Bytes()
}

func (c *Config) bootstrapKeys() []KeyValue {
	space := ""
	if c.EstimatedRequiredSpace != nil {
		space = strconv.FormatInt(*c.EstimatedRequiredSpace, 10)
	}

	return []KeyValue{
		{KeyFingerprint, c.KeyFingerprint},
		{KeyAppURI, c.AppURI},
		{KeyAppName, c.AppName},
		{KeyAppArgs, c.AppArgs},
		{KeyIntegrateArgs, c.IntegrateArgs},
		{KeyCatalogURI, c.CatalogURI},
		{KeyShowAppNameBelowSplashScreen, strconv.FormatBool(c.ShowAppNameBelowSplashScreen)},
		{KeyCustomizableStorePath, strconv.FormatBool(c.CustomizableStorePath)},
		{KeyEstimatedRequiredSpace, space},
	}
}

// Parse reads a rendered configuration back.
func Parse(data []byte) (*Config, error) {
	file, err := ini.LoadSources(loadOptions(), data)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := new(Config)

	if global, err := file.GetSection(SectionGlobal); err == nil {
		for _, key := range global.Keys() {
			cfg.Global = append(cfg.Global, KeyValue{Key: key.Name(), Value: key.Value()})
		}
	}

	bootstrap := file.Section(SectionBootstrap)

	cfg.KeyFingerprint = bootstrap.Key(KeyFingerprint).String()
	cfg.AppURI = bootstrap.Key(KeyAppURI).String()
	cfg.AppName = bootstrap.Key(KeyAppName).String()
	cfg.AppArgs = bootstrap.Key(KeyAppArgs).String()
	cfg.IntegrateArgs = bootstrap.Key(KeyIntegrateArgs).String()
	cfg.CatalogURI = bootstrap.Key(KeyCatalogURI).String()
	cfg.ShowAppNameBelowSplashScreen = bootstrap.Key(KeyShowAppNameBelowSplashScreen).MustBool(false)
	cfg.CustomizableStorePath = bootstrap.Key(KeyCustomizableStorePath).MustBool(false)

	if raw := bootstrap.Key(KeyEstimatedRequiredSpace).String(); raw != "" {
		space, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse config: %s: %w", KeyEstimatedRequiredSpace, err)
		}

		cfg.EstimatedRequiredSpace = &space
	}

	return cfg, nil
}

func loadOptions() ini.LoadOptions {
	//nolint:exhaustruct // Other options keep their defaults.
	return ini.LoadOptions{
		IgnoreInlineComment:     true,
		PreserveSurroundedQuote: true,
		KeyValueDelimiters:      "=",
	}
}

// Package config defines the builder settings file and provides helpers to
// load, validate and save it in YAML format.
//
// The Config type holds the default template locations, HTTP behavior of the
// template and feed downloads, the icon cache directory, trusted feed keys
// and presentation options. A missing settings file yields the defaults.
package config

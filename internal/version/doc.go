// Package version exposes build metadata of 0bootstrap.
//
// Version, Commit and BuildTime are injected with -ldflags at build time.
// UserAgent identifies the tool in template and feed downloads.
package version

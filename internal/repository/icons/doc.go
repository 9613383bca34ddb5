// Package icons caches the icons and splash screens referenced by feeds.
//
// The FileRepository downloads images into a cache directory keyed by URL and
// exposes a Store interface that the builder service depends on.
package icons

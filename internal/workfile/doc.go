// Package workfile owns the private copy of a template executable during one
// build.
//
// A WorkFile is acquired from a template source, rewritten in whole-file
// transactions by the resource patchers and finally published to its
// destination with an atomic swap. Close removes whatever is left behind.
package workfile

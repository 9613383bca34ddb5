// Package resources edits the named data blobs embedded in a bootstrap
// template: the configuration, the optional splash screen and an optional
// tree of content files.
//
// Blobs are RT_RCDATA entries addressed by dotted names. Names compare
// case-insensitively; a replaced name keeps exactly one entry.
package resources

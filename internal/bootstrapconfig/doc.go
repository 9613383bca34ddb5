// Package bootstrapconfig renders the INI configuration embedded into a
// bootstrapper: a [global] section with caller-supplied settings and a
// [bootstrap] section describing the application to launch.
//
// Rendering is deterministic: UTF-8 without BOM, CRLF line breaks, keys in a
// fixed order and every [bootstrap] key present even when empty.
package bootstrapconfig

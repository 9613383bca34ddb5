// Package builder implements the 0bootstrap build workflow.
//
// It resolves the feed, picks and acquires a template, embeds the rendered
// configuration, the splash screen and content files, rewrites the version
// information and the icon, and publishes the result. Steps run strictly in
// sequence and the context is checked before each of them; a failed or
// canceled build leaves the destination untouched.
package builder

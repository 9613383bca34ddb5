// Package feed downloads and parses the 0install feed a bootstrapper is built
// for and determines the fingerprint of the key that signed it.
//
// Only the descriptor fields the builder needs are decoded: the name, icons,
// splash screens and whether the application needs a terminal.
package feed

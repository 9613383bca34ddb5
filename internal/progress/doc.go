// Package progress reports the progress of long-running build tasks such as
// template downloads.
//
// A Reporter is chosen once per command: a terminal bar rendered with
// bubbles, periodic log lines, or nothing.
package progress

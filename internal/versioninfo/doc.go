// Package versioninfo reads and rewrites the VS_VERSIONINFO resource of an
// executable: the fixed file info, the string tables shown by Explorer and the
// translation list.
//
// Parse and Bytes form a lossless codec for the parts this package
// understands; unknown blocks are carried through unchanged.
package versioninfo

// Package apperr defines the error taxonomy shared by all build steps.
//
// Every component translates the failures of the libraries it drives into an
// *Error carrying a Kind, so callers never have to recognize a platform- or
// library-specific error type. The CLI maps the Kind to a process exit code.
package apperr

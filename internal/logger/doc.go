// Package logger wraps zap for the bootstrap builder:
//   - a global sugared logger writing a console encoding to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and a leveled adapter for libraries that accept one.
//
// Services take a context and log through the logger stored in it, so each
// build step reports under its own name.
package logger

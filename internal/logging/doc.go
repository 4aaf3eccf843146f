// Package logging provides file-based logging with rotation for Vectorizer.
// Every CLI command writes JSON logs to ~/.vectorizer/logs/server.log
// (rotated by size) and to stderr, at the configured log level; the
// --debug flag sets the level to debug.
package logging

// Package logger provides the process-wide structured logger used by every
// other package in this module.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is the global logger instance. Packages that need a logger before a
// config.Config is available (init-time wiring, tests) can use this directly;
// cmd/daemon calls Configure once it has loaded one.
var Log zerolog.Logger

func init() {
	// Default to JSON output for production.
	Log = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()

	// Pretty print for development if requested.
	if os.Getenv("TOMTOM_ENV") != "production" {
		Log = Log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// Configure rebuilds the global logger at the given level, writing JSON to
// stdout and, if w is non-nil, to w as well; the console output set up by
// init is not kept. An unrecognized level falls back to info. The
// scheduler daemon uses this to also append to daemon.log, since it has no
// interactive stdout/stderr to rely on.
func Configure(level string, w io.Writer) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	writers := []io.Writer{os.Stdout}
	if w != nil {
		writers = append(writers, w)
	}

	Log = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Logger().
		Level(lvl)
}

// GetLogger returns the global logger instance.
func GetLogger() zerolog.Logger {
	return Log
}

// SPDX-License-Identifier: Apache-2.0

// Package trace is the boundary logging hook for the allocator module. The
// core never imports a logging framework directly; it calls through Sink so
// a host process can wire in whatever it already uses.
package trace

import (
	"fmt"
	"log/slog"
	"os"
)

// Sink receives diagnostic traces from allocator internals. The default
// Sink is a no-op; install a different one with SetSink.
type Sink interface {
	Tracef(format string, args ...any)
}

type noopSink struct{}

func (noopSink) Tracef(string, ...any) {}

// slogSink adapts a *slog.Logger to Sink.
type slogSink struct {
	logger *slog.Logger
}

func (s slogSink) Tracef(format string, args ...any) {
	s.logger.Debug(sprintf(format, args...))
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

var current Sink = noopSink{}

// SetSink installs sink as the package-wide trace destination.
func SetSink(sink Sink) {
	if sink == nil {
		sink = noopSink{}
	}
	current = sink
}

// NewSlogSink wraps logger as a Sink, matching the structured-logging idiom
// used elsewhere in this ecosystem (log/slog) rather than a bespoke logger
// type.
func NewSlogSink(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return slogSink{logger: logger}
}

// Tracef routes a diagnostic message to the installed Sink.
func Tracef(format string, args ...any) {
	current.Tracef(format, args...)
}

// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import "log/slog"

// SLogger is the logger used by the pipeline, the dialer and the cache.
//
// Lookups emit Info events for their lifecycle (connect and close, HTTP
// round trip and body stream, rate limiter reservation, cache lookup and
// store) and Debug events for socket reads and writes and for pipeline
// compilation. Pass a [*slog.Logger] to route them to a handler.
type SLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

var _ SLogger = (*slog.Logger)(nil)

// DefaultSLogger returns the logger used when the caller does not provide
// one. It discards every event, so a [*Client] is silent by default.
func DefaultSLogger() SLogger {
	return discardSLogger{}
}

type discardSLogger struct{}

var _ SLogger = discardSLogger{}

// Debug implements [SLogger].
func (discardSLogger) Debug(msg string, args ...any) {}

// Info implements [SLogger].
func (discardSLogger) Info(msg string, args ...any) {}

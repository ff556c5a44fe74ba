// SPDX-License-Identifier: GPL-3.0-or-later

// Package ipquery is a client for the ipquery.io IP lookup API.
//
// # Lookups
//
// [*Client.Lookup] validates a batch of IP addresses and a response format,
// sends a single GET request for "/{comma-separated addresses}?format={format}"
// and returns the response body verbatim. Invalid input fails with
// [ErrInvalidInput] before any network activity. [PrepareURI], [ValidateBatch],
// [IsValidIP] and [IsValidFormat] expose the validation rules.
//
// Lookup is a pipeline of [Func] composed using [Compose3]: prepare the URI,
// send the request, read the body.
//
// # Pipeline
//
// Requests flow through an ordered list of [Stage] owned by a [*Builder].
// Each stage receives the request and the rest of the pipeline, so it can
// rewrite the request, block, short-circuit or transform the response. The
// builder compiles the stages into a [*CompiledClient] and memoizes it until
// the next mutation. A compiled client never changes, so in-flight requests
// are unaffected by later mutations.
//
// [NewClient] installs, in order:
//
//   - [*ErrorStage]: turns 4xx and 5xx responses into [*HTTPStatusError]
//   - [*HistoryStage]: records the last response (see [*Client.LastResponse])
//   - [*MetricsStage]: reports outcomes to [Metrics] (optional)
//   - [*HeaderDefaultsStage]: sets the User-Agent and other default headers
//   - [*RateLimitStage]: waits for a [Limiter] to grant tokens (optional)
//   - [*HostStage]: binds requests to [BaseURL] (see [*Client.SetHost])
//
// [*Client.AddCache] installs a cache backed by a [CacheStore] right above
// the transport. [*MemoryCacheStore] is an in-process store; the redisstore
// subpackage provides a Redis-backed one. The prometheus subpackage
// implements [Metrics].
//
// # Rate limiting
//
// [NewLimiter] builds fixed window, sliding window or token bucket limiters
// from a [ThrottleConfig], which [ParseThrottleConfig] can load from YAML.
// By default requests wait as long as needed for tokens; [WithMaxWait]
// bounds the wait and makes requests fail with [ErrRateLimitExceeded].
//
// # Observability
//
// All components support structured logging via [SLogger] (compatible with
// [log/slog]). By default, logging is disabled. Error classification for
// logs and metrics is configurable via [ErrClassifier].
//
// Components emit span events (*Start/*Done pairs) carrying t0, t, err and
// errClass. Each HTTP round trip gets a UUIDv7 spanID (see [NewSpanID]) shared
// by its round trip and body events. I/O events are emitted at
// [slog.LevelDebug]; all other events use [slog.LevelInfo].
//
// # Errors
//
// Failures are returned to the caller and never logged as errors. Use
// [errors.Is] with [ErrInvalidInput], [ErrRateLimitExceeded],
// [ErrReserveNotSupported] and [ErrInvalidConfiguration], and [errors.As]
// with [*HTTPStatusError] and [*MaxWaitError].
package ipquery

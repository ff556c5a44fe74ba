// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import (
	"net/http"
)

// BaseURL is the URL of the API.
const BaseURL = "https://api.ipquery.io"

// UserAgent is the User-Agent header sent with every request.
const UserAgent = "bassosimone/ipquery v0.1.0 (https://github.com/bassosimone/ipquery)"

// Client is a client for the IP lookup API.
//
// A Client configures its [*Builder] with the default stages on
// construction. The pipeline can later be changed through [*Client.Builder],
// [*Client.SetHost], [*Client.AddCache] and [*Client.RemoveCache].
//
// Construct using [NewClient], [NewClientWithTransport] or [NewDefaultClient].
type Client struct {
	builder *Builder
	history *History
}

// ClientOption configures a [*Client] under construction.
type ClientOption func(o *clientOptions)

type clientOptions struct {
	headers   http.Header
	limiter   Limiter
	metrics   Metrics
	rlOptions []RateLimitOption
	throttle  *ThrottleConfig
	throttled bool
}

// WithThrottle enables the rate limit stage with an in-process [Limiter]
// built by [NewLimiter] from opts completed by [ValidateThrottleOptions].
// A nil opts selects the defaults.
func WithThrottle(opts *ThrottleConfig) ClientOption {
	return func(o *clientOptions) {
		o.throttled = true
		o.throttle = opts
	}
}

// WithLimiter enables the rate limit stage with the given [Limiter].
func WithLimiter(limiter Limiter) ClientOption {
	return func(o *clientOptions) {
		o.throttled = true
		o.limiter = limiter
	}
}

// WithRateLimitOptions configures the rate limit stage enabled by
// [WithThrottle] or [WithLimiter].
func WithRateLimitOptions(opts ...RateLimitOption) ClientOption {
	return func(o *clientOptions) {
		o.rlOptions = append(o.rlOptions, opts...)
	}
}

// WithHeaders adds default headers sent along with the User-Agent.
func WithHeaders(headers http.Header) ClientOption {
	return func(o *clientOptions) {
		for key, values := range headers {
			o.headers[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
		}
	}
}

// WithMetrics installs a [*MetricsStage] reporting to metrics.
func WithMetrics(metrics Metrics) ClientOption {
	return func(o *clientOptions) {
		o.metrics = metrics
	}
}

// NewClient returns a new [*Client] configuring builder.
//
// It installs, in order: [*ErrorStage], [*HistoryStage], [*MetricsStage]
// (with [WithMetrics]), [*HeaderDefaultsStage], [*RateLimitStage] (with
// [WithThrottle] or [WithLimiter]) and a [*HostStage] bound to [BaseURL].
//
// It fails with [ErrInvalidConfiguration] when the throttle configuration
// is invalid.
func NewClient(builder *Builder, opts ...ClientOption) (*Client, error) {
	options := &clientOptions{headers: http.Header{}}
	for _, opt := range opts {
		opt(options)
	}
	options.headers.Set("User-Agent", UserAgent)

	cfg, logger := builder.Config(), builder.Logger()
	client := &Client{builder: builder, history: &History{}}

	limiter := options.limiter
	if options.throttled && limiter == nil {
		var err error
		limiter, err = NewLimiter(ValidateThrottleOptions(options.throttle), cfg.TimeNow)
		if err != nil {
			return nil, err
		}
	}

	builder.AddStage(NewErrorStage())
	builder.AddStage(NewHistoryStage(client.history))
	if options.metrics != nil {
		builder.AddStage(NewMetricsStage(cfg, options.metrics))
	}
	builder.AddStage(NewHeaderDefaultsStage(options.headers))
	if limiter != nil {
		builder.AddStage(NewRateLimitStage(cfg, limiter, logger, options.rlOptions...))
	}
	if err := client.SetHost(BaseURL); err != nil {
		return nil, err
	}
	return client, nil
}

// NewClientWithTransport returns a new [*Client] using a fresh [*Builder]
// around the given transport.
func NewClientWithTransport(cfg *Config, txp http.RoundTripper, logger SLogger, opts ...ClientOption) (*Client, error) {
	return NewClient(NewBuilder(cfg, txp, logger), opts...)
}

// NewDefaultClient returns a new [*Client] using [NewDefaultBuilder].
func NewDefaultClient(cfg *Config, logger SLogger, opts ...ClientOption) (*Client, error) {
	return NewClient(NewDefaultBuilder(cfg, logger), opts...)
}

// Builder returns the [*Builder] owned by the client.
func (c *Client) Builder() *Builder {
	return c.builder
}

// HTTPClient returns the compiled pipeline.
func (c *Client) HTTPClient() *CompiledClient {
	return c.builder.Compiled()
}

// SetHost binds requests to rawURL, replacing the previous binding.
func (c *Client) SetHost(rawURL string) error {
	stage, err := NewHostStage(rawURL)
	if err != nil {
		return err
	}
	c.builder.Replace(stage)
	return nil
}

// AddCache installs a response cache backed by store.
func (c *Client) AddCache(store CacheStore, config CacheConfig) {
	c.builder.SetCache(store, config)
}

// RemoveCache removes the response cache.
func (c *Client) RemoveCache() {
	c.builder.ClearCache()
}

// LastResponse returns the last response received, or false when no
// request has completed yet.
func (c *Client) LastResponse() (*http.Response, bool) {
	return c.history.Last()
}

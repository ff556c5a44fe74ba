// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import (
	"log/slog"
	"net/http"
	"time"
)

// RateLimitStage blocks each request until its [Limiter] grants tokens.
//
// No byte reaches the network before the tokens are granted. Limiter
// errors are returned unchanged.
type RateLimitStage struct {
	limiter Limiter
	tokens  int
	maxWait time.Duration

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

// RateLimitOption configures a [*RateLimitStage].
type RateLimitOption func(s *RateLimitStage)

// WithTokens sets the number of tokens consumed by each request (default 1).
func WithTokens(tokens int) RateLimitOption {
	return func(s *RateLimitStage) {
		s.tokens = tokens
	}
}

// WithMaxWait bounds the time a request may wait for tokens. By default
// requests wait as long as needed.
func WithMaxWait(maxWait time.Duration) RateLimitOption {
	return func(s *RateLimitStage) {
		s.maxWait = maxWait
	}
}

// NewRateLimitStage returns a new [*RateLimitStage].
func NewRateLimitStage(cfg *Config, limiter Limiter, logger SLogger, opts ...RateLimitOption) *RateLimitStage {
	s := &RateLimitStage{
		limiter:       limiter,
		tokens:        1,
		maxWait:       WaitForever,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Stage = &RateLimitStage{}

// Kind implements [Stage].
func (*RateLimitStage) Kind() StageKind {
	return KindRateLimit
}

// Handle implements [Stage].
func (s *RateLimitStage) Handle(req *http.Request, next http.RoundTripper) (*http.Response, error) {
	t0 := s.TimeNow()
	reservation, err := s.limiter.Reserve(s.tokens, s.maxWait)
	var delay time.Duration
	if err == nil {
		delay = reservation.Delay()
	}
	s.Logger.Info(
		"rateLimitReserve",
		slog.Duration("delay", delay),
		slog.Any("err", err),
		slog.String("errClass", s.ErrClassifier.Classify(err)),
		slog.String("httpUrl", req.URL.String()),
		slog.Duration("maxWait", s.maxWait),
		slog.Int("tokens", s.tokens),
		slog.Time("t0", t0),
		slog.Time("t", s.TimeNow()),
	)
	if err != nil {
		return nil, err
	}
	if err := reservation.Wait(req.Context()); err != nil {
		return nil, err
	}
	return next.RoundTrip(req)
}

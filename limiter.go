// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// WaitForever is the maxWait value that disables the wait bound.
const WaitForever = time.Duration(-1)

// Limiter grants tokens according to a rate limiting policy.
//
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Reserve reserves tokens and returns a [Reservation] telling the caller
	// how long to wait before using them.
	//
	// When maxWait is not negative and the wait would exceed it, Reserve
	// gives the tokens back and fails with an error wrapping
	// [ErrRateLimitExceeded]. Reserve fails with [ErrInvalidConfiguration]
	// when tokens exceeds the burst size and with [ErrReserveNotSupported]
	// when the implementation cannot reserve tokens ahead of time.
	Reserve(tokens int, maxWait time.Duration) (Reservation, error)
}

// Reservation is a grant of tokens usable after a delay.
type Reservation interface {
	// Delay returns the wait computed when reserving.
	Delay() time.Duration

	// Wait blocks until the tokens are usable or ctx is done. In the
	// latter case the tokens are given back when possible.
	Wait(ctx context.Context) error
}

// NewLimiter returns the in-process [Limiter] for cfg.Policy.
//
// The cfg must be complete (see [ValidateThrottleOptions]). A nil timeNow
// means [time.Now]. Errors wrap [ErrInvalidConfiguration].
func NewLimiter(cfg ThrottleConfig, timeNow func() time.Time) (Limiter, error) {
	if timeNow == nil {
		timeNow = time.Now
	}
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("%w: %s: limit must be positive, got %d", ErrInvalidConfiguration, cfg.ID, cfg.Limit)
	}
	interval, err := ParseInterval(cfg.Interval)
	if err != nil {
		return nil, err
	}
	switch cfg.Policy {
	case PolicyFixedWindow:
		return &fixedWindowLimiter{id: cfg.ID, limit: cfg.Limit, interval: interval, timeNow: timeNow}, nil
	case PolicySlidingWindow:
		return &slidingWindowLimiter{id: cfg.ID, limit: cfg.Limit, interval: interval, timeNow: timeNow}, nil
	case PolicyTokenBucket:
		per := interval / time.Duration(cfg.Limit)
		if per <= 0 {
			return nil, fmt.Errorf("%w: %s: interval %s is too short for limit %d",
				ErrInvalidConfiguration, cfg.ID, interval, cfg.Limit)
		}
		return &tokenBucketLimiter{id: cfg.ID, limiter: rate.NewLimiter(rate.Every(per), cfg.Limit), timeNow: timeNow}, nil
	default:
		return nil, fmt.Errorf("%w: %s: unknown policy %q", ErrInvalidConfiguration, cfg.ID, cfg.Policy)
	}
}

func checkTokens(id string, tokens, burst int) error {
	if tokens <= 0 || tokens > burst {
		return fmt.Errorf("%w: %s: cannot reserve %d tokens, the maximum burst size is %d",
			ErrInvalidConfiguration, id, tokens, burst)
	}
	return nil
}

func exceedsMaxWait(delay, maxWait time.Duration) bool {
	return maxWait >= 0 && delay > maxWait
}

// timedReservation is the [Reservation] returned by in-process limiters.
type timedReservation struct {
	delay  time.Duration
	cancel func()
}

var _ Reservation = &timedReservation{}

// Delay implements [Reservation].
func (r *timedReservation) Delay() time.Duration {
	return r.delay
}

// Wait implements [Reservation].
func (r *timedReservation) Wait(ctx context.Context) error {
	if r.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.cancel()
		return ctx.Err()
	}
}

// tokenBucketLimiter implements [PolicyTokenBucket] using [*rate.Limiter].
type tokenBucketLimiter struct {
	id      string
	limiter *rate.Limiter
	timeNow func() time.Time
}

// Reserve implements [Limiter].
func (l *tokenBucketLimiter) Reserve(tokens int, maxWait time.Duration) (Reservation, error) {
	if err := checkTokens(l.id, tokens, l.limiter.Burst()); err != nil {
		return nil, err
	}
	now := l.timeNow()
	r := l.limiter.ReserveN(now, tokens)
	if !r.OK() {
		return nil, checkTokens(l.id, tokens, 0)
	}
	delay := r.DelayFrom(now)
	if exceedsMaxWait(delay, maxWait) {
		r.CancelAt(now)
		return nil, &MaxWaitError{ID: l.id, Wait: delay, MaxWait: maxWait}
	}
	cancel := func() { r.CancelAt(l.timeNow()) }
	return &timedReservation{delay: delay, cancel: cancel}, nil
}

// fixedWindowLimiter implements [PolicyFixedWindow].
//
// Tokens reserved beyond the limit of the current window are charged to
// the following windows.
type fixedWindowLimiter struct {
	id       string
	limit    int
	interval time.Duration
	timeNow  func() time.Time

	// mu protects start and used.
	mu sync.Mutex

	// start is the beginning of the current window.
	start time.Time

	// used is the number of tokens charged to the current and later windows.
	used int
}

// Reserve implements [Limiter].
func (l *fixedWindowLimiter) Reserve(tokens int, maxWait time.Duration) (Reservation, error) {
	if err := checkTokens(l.id, tokens, l.limit); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.timeNow()
	l.advance(now)
	l.used += tokens
	delay := l.delay(now)
	if exceedsMaxWait(delay, maxWait) {
		l.used -= tokens
		return nil, &MaxWaitError{ID: l.id, Wait: delay, MaxWait: maxWait}
	}
	return &timedReservation{delay: delay, cancel: func() { l.release(tokens) }}, nil
}

func (l *fixedWindowLimiter) advance(now time.Time) {
	if l.start.IsZero() {
		l.start = now
		return
	}
	elapsed := now.Sub(l.start)
	if elapsed < l.interval {
		return
	}
	windows := int(elapsed / l.interval)
	if backlog := (l.used + l.limit - 1) / l.limit; windows >= backlog {
		l.start, l.used = now, 0
		return
	}
	l.start = l.start.Add(time.Duration(windows) * l.interval)
	l.used -= windows * l.limit
}

func (l *fixedWindowLimiter) delay(now time.Time) time.Duration {
	overflow := l.used - l.limit
	if overflow <= 0 {
		return 0
	}
	ahead := (overflow + l.limit - 1) / l.limit
	return l.start.Add(time.Duration(ahead) * l.interval).Sub(now)
}

func (l *fixedWindowLimiter) release(tokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.used = max(0, l.used-tokens)
}

// slidingWindowLimiter implements [PolicySlidingWindow].
//
// It keeps the time at which each token was granted and never grants more
// than limit tokens within any interval-long window.
type slidingWindowLimiter struct {
	id       string
	limit    int
	interval time.Duration
	timeNow  func() time.Time

	// mu protects grants.
	mu sync.Mutex

	// grants contains one entry per token, in nondecreasing order.
	grants []time.Time
}

// Reserve implements [Limiter].
func (l *slidingWindowLimiter) Reserve(tokens int, maxWait time.Duration) (Reservation, error) {
	if err := checkTokens(l.id, tokens, l.limit); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.timeNow()
	l.prune(now)

	at := now
	if n := len(l.grants); n > 0 && l.grants[n-1].After(at) {
		at = l.grants[n-1]
	}
	if keep := l.limit - tokens; len(l.grants) > keep {
		// this grant must leave the window before the new tokens enter it
		if t := l.grants[len(l.grants)-keep-1].Add(l.interval); t.After(at) {
			at = t
		}
	}

	delay := at.Sub(now)
	if exceedsMaxWait(delay, maxWait) {
		return nil, &MaxWaitError{ID: l.id, Wait: delay, MaxWait: maxWait}
	}
	for range tokens {
		l.grants = append(l.grants, at)
	}
	return &timedReservation{delay: delay, cancel: func() { l.release(at, tokens) }}, nil
}

func (l *slidingWindowLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.interval)
	idx := 0
	for idx < len(l.grants) && !l.grants[idx].After(cutoff) {
		idx++
	}
	l.grants = l.grants[idx:]
}

func (l *slidingWindowLimiter) release(at time.Time, tokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for idx := len(l.grants) - 1; idx >= 0 && tokens > 0; idx-- {
		if l.grants[idx].Equal(at) {
			l.grants = append(l.grants[:idx], l.grants[idx+1:]...)
			tokens--
		}
	}
}

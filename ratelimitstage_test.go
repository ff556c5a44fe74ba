// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcLimiter is a [Limiter] implemented using a function.
type funcLimiter func(tokens int, maxWait time.Duration) (Reservation, error)

func (f funcLimiter) Reserve(tokens int, maxWait time.Duration) (Reservation, error) {
	return f(tokens, maxWait)
}

// funcReservation is a [Reservation] implemented using functions.
type funcReservation struct {
	delay    time.Duration
	waitFunc func(ctx context.Context) error
}

func (r *funcReservation) Delay() time.Duration {
	return r.delay
}

func (r *funcReservation) Wait(ctx context.Context) error {
	return r.waitFunc(ctx)
}

// Handle reserves the configured tokens and waits before forwarding.
func TestRateLimitStageSuccess(t *testing.T) {
	var (
		gotTokens  int
		gotMaxWait time.Duration
		waited     bool
	)
	limiter := funcLimiter(func(tokens int, maxWait time.Duration) (Reservation, error) {
		gotTokens, gotMaxWait = tokens, maxWait
		return &funcReservation{delay: time.Second, waitFunc: func(ctx context.Context) error {
			waited = true
			return nil
		}}, nil
	})
	logger, records := newCapturingLogger()
	stage := NewRateLimitStage(NewConfig(), limiter, logger, WithTokens(2), WithMaxWait(5*time.Second))
	assert.Equal(t, KindRateLimit, stage.Kind())

	next := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		assert.True(t, waited, "forwarded before waiting")
		return newTestResponse(200, ""), nil
	})
	_, err := stage.Handle(newTestRequest("https://api.ipquery.io/1.1.1.1"), next)

	require.NoError(t, err)
	assert.Equal(t, 2, gotTokens)
	assert.Equal(t, 5*time.Second, gotMaxWait)
	require.Len(t, *records, 1)
	assert.Equal(t, "rateLimitReserve", (*records)[0].Message)
	delay, found := recordAttr((*records)[0], "delay")
	require.True(t, found)
	assert.Equal(t, time.Second, delay.Duration())
}

// The defaults are one token and no bound on the wait.
func TestRateLimitStageDefaults(t *testing.T) {
	var (
		gotTokens  int
		gotMaxWait time.Duration
	)
	limiter := funcLimiter(func(tokens int, maxWait time.Duration) (Reservation, error) {
		gotTokens, gotMaxWait = tokens, maxWait
		return &funcReservation{waitFunc: func(ctx context.Context) error { return nil }}, nil
	})
	stage := NewRateLimitStage(NewConfig(), limiter, DefaultSLogger())

	_, err := stage.Handle(newTestRequest("https://api.ipquery.io/1.1.1.1"), newStaticTransport(200, ""))

	require.NoError(t, err)
	assert.Equal(t, 1, gotTokens)
	assert.Equal(t, WaitForever, gotMaxWait)
}

// Handle returns limiter errors unchanged without touching the network.
func TestRateLimitStageLimiterErrors(t *testing.T) {
	for _, wantErr := range []error{
		&MaxWaitError{ID: "test", Wait: time.Minute, MaxWait: time.Second},
		ErrReserveNotSupported,
		ErrInvalidConfiguration,
	} {
		t.Run(wantErr.Error(), func(t *testing.T) {
			limiter := funcLimiter(func(tokens int, maxWait time.Duration) (Reservation, error) {
				return nil, wantErr
			})
			txp := newStaticTransport(200, "")
			stage := NewRateLimitStage(NewConfig(), limiter, DefaultSLogger())

			resp, err := stage.Handle(newTestRequest("https://api.ipquery.io/1.1.1.1"), txp)

			assert.Nil(t, resp)
			assert.Same(t, wantErr, err)
			assert.Empty(t, txp.Requests())
		})
	}
}

// Handle fails when the request context is done while waiting.
func TestRateLimitStageContextDone(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(t, PolicyFixedWindow, clock)
	stage := NewRateLimitStage(NewConfig(), limiter, DefaultSLogger())
	txp := newStaticTransport(200, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := newTestRequest("https://api.ipquery.io/1.1.1.1").WithContext(ctx)

	// the first two requests fit the window
	for range 2 {
		_, err := stage.Handle(req, txp)
		require.NoError(t, err)
	}
	_, err := stage.Handle(req, txp)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, txp.Requests(), 2)
}

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/httpslog/httpslog.go
//

package ipquery

import (
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// observedTransport wraps the transport at the bottom of a pipeline
// with structured logging.
//
// httpRoundTripStart/httpRoundTripDone span events are emitted around each
// round trip, and the response body is lazily wrapped to emit
// httpBodyStreamStart/httpBodyStreamDone events. All the events of a
// round trip share the same spanID.
type observedTransport struct {
	// txp is the underlying transport.
	txp http.RoundTripper

	// errClassifier classifies errors for structured logging.
	errClassifier ErrClassifier

	// logger is the [SLogger] to use.
	logger SLogger

	// timeNow is the function to get the current time.
	timeNow func() time.Time
}

var _ http.RoundTripper = &observedTransport{}

// RoundTrip implements [http.RoundTripper].
func (ot *observedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// 1. Log before the round trip
	spanID := NewSpanID()
	t0 := ot.timeNow()
	deadline, _ := req.Context().Deadline()
	ot.logRoundTripStart(spanID, req, t0, deadline)

	// 2. Perform the round trip
	resp, err := ot.txp.RoundTrip(req)

	// 3. Log after the round trip
	ot.logRoundTripDone(spanID, req, t0, deadline, resp, err)

	// 4. On error, return immediately
	if err != nil {
		return nil, err
	}

	// 5. Wrap the response body with lazy structured logging
	resp.Body = &httpBodyWrapper{
		body:     resp.Body,
		errClass: ot.errClassifier,
		logger:   ot.logger,
		spanID:   spanID,
		timeNow:  ot.timeNow,
	}
	return resp, nil
}

func (ot *observedTransport) logRoundTripStart(spanID string, req *http.Request, t0, deadline time.Time) {
	ot.logger.Info(
		"httpRoundTripStart",
		slog.Time("deadline", deadline),
		slog.String("httpMethod", req.Method),
		slog.String("httpUrl", req.URL.String()),
		slog.Any("httpRequestHeaders", req.Header),
		slog.String("spanID", spanID),
		slog.Time("t", t0),
	)
}

func (ot *observedTransport) logRoundTripDone(spanID string, req *http.Request,
	t0, deadline time.Time, resp *http.Response, err error) {
	var (
		statusCode int
		headers    http.Header
	)
	if resp != nil {
		statusCode = resp.StatusCode
		headers = resp.Header
	}
	ot.logger.Info(
		"httpRoundTripDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", ot.errClassifier.Classify(err)),
		slog.String("httpMethod", req.Method),
		slog.String("httpUrl", req.URL.String()),
		slog.Any("httpRequestHeaders", req.Header),
		slog.Any("httpResponseHeaders", headers),
		slog.Int("httpResponseStatusCode", statusCode),
		slog.String("spanID", spanID),
		slog.Time("t0", t0),
		slog.Time("t", ot.timeNow()),
	)
}

// httpBodyWrapper emits structured log events lazily: httpBodyStreamStart
// on the first Read, and httpBodyStreamDone on Close (only if at least
// one Read happened).
type httpBodyWrapper struct {
	// body is the actual body.
	body io.ReadCloser

	// closeOnce ensures that Close has "once" semantics.
	closeOnce sync.Once

	// didRead tracks whether at least one Read happened.
	didRead atomic.Bool

	// errClass is the err classifier in use.
	errClass ErrClassifier

	// logger is the [SLogger] in use.
	logger SLogger

	// readOnce ensures we log httpBodyStreamStart only once.
	readOnce sync.Once

	// spanID is the span ID of the round trip.
	spanID string

	// t0 is the time when we started reading the body.
	t0 time.Time

	// timeNow mocks [time.Now].
	timeNow func() time.Time
}

var _ io.ReadCloser = &httpBodyWrapper{}

// Close implements [io.ReadCloser].
func (b *httpBodyWrapper) Close() (err error) {
	b.closeOnce.Do(func() {
		err = b.body.Close()
		if b.didRead.Load() { // acquire: t0 is visible if this returns true
			b.logger.Info(
				"httpBodyStreamDone",
				slog.Any("err", err),
				slog.String("errClass", b.errClass.Classify(err)),
				slog.String("spanID", b.spanID),
				slog.Time("t0", b.t0),
				slog.Time("t", b.timeNow()),
			)
		}
	})
	return
}

// Read implements [io.ReadCloser].
func (b *httpBodyWrapper) Read(buffer []byte) (int, error) {
	b.readOnce.Do(func() {
		b.t0 = b.timeNow()    // write t0 BEFORE the atomic store (release)
		b.didRead.Store(true) // release: makes t0 visible to Close
		b.logger.Info(
			"httpBodyStreamStart",
			slog.String("spanID", b.spanID),
			slog.Time("t", b.t0),
		)
	})
	return b.body.Read(buffer)
}

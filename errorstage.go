// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import "net/http"

// ErrorStage converts 4xx and 5xx responses into [*HTTPStatusError].
//
// Install it first, so it observes the response produced by the
// whole pipeline, including the cache.
type ErrorStage struct{}

// NewErrorStage returns a new [*ErrorStage].
func NewErrorStage() *ErrorStage {
	return &ErrorStage{}
}

var _ Stage = &ErrorStage{}

// Kind implements [Stage].
func (*ErrorStage) Kind() StageKind {
	return KindErrors
}

// Handle implements [Stage].
func (*ErrorStage) Handle(req *http.Request, next http.RoundTripper) (*http.Response, error) {
	resp, err := next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 600 {
		resp.Body.Close()
		return nil, newHTTPStatusError(resp)
	}
	return resp, nil
}

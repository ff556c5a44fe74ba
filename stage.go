// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import "net/http"

// StageKind identifies the category of a [Stage].
//
// [*Builder.RemoveStages] removes stages by kind.
type StageKind string

// Kinds of the stages provided by this package.
const (
	KindErrors    = StageKind("errors")
	KindHistory   = StageKind("history")
	KindHeaders   = StageKind("headers")
	KindHost      = StageKind("host")
	KindRateLimit = StageKind("ratelimit")
	KindMetrics   = StageKind("metrics")

	// KindCache is reported by [*CompiledClient.Kinds] for the cache
	// stage installed using [*Builder.SetCache].
	KindCache = StageKind("cache")
)

// Stage is a request/response interceptor in a [*Builder] pipeline.
//
// Handle receives the request and next, which is the rest of the
// pipeline down to the transport. A stage may forward the request as is,
// forward a modified clone, block before forwarding, or transform what
// next returns. Stages must not modify the request they receive.
//
// Stages must be safe for concurrent use.
type Stage interface {
	Kind() StageKind
	Handle(req *http.Request, next http.RoundTripper) (*http.Response, error)
}

// StageFunc adapts a function to the [Stage] interface.
type StageFunc struct {
	// StageKind is the kind returned by Kind.
	StageKind StageKind

	// HandleFunc implements Handle.
	HandleFunc func(req *http.Request, next http.RoundTripper) (*http.Response, error)
}

var _ Stage = &StageFunc{}

// Kind implements [Stage].
func (s *StageFunc) Kind() StageKind {
	return s.StageKind
}

// Handle implements [Stage].
func (s *StageFunc) Handle(req *http.Request, next http.RoundTripper) (*http.Response, error) {
	return s.HandleFunc(req, next)
}

// RoundTripperFunc adapts a function to the [http.RoundTripper] interface.
type RoundTripperFunc func(req *http.Request) (*http.Response, error)

var _ http.RoundTripper = RoundTripperFunc(nil)

// RoundTrip implements [http.RoundTripper].
func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// stageRoundTripper binds a [Stage] to the rest of the pipeline.
type stageRoundTripper struct {
	stage Stage
	next  http.RoundTripper
}

// RoundTrip implements [http.RoundTripper].
func (s *stageRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return s.stage.Handle(req, s.next)
}

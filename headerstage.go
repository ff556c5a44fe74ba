// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import "net/http"

// HeaderDefaultsStage sets headers the request does not already carry.
type HeaderDefaultsStage struct {
	headers http.Header
}

// NewHeaderDefaultsStage returns a new [*HeaderDefaultsStage].
func NewHeaderDefaultsStage(headers http.Header) *HeaderDefaultsStage {
	canonical := make(http.Header, len(headers))
	for key, values := range headers {
		canonical[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
	return &HeaderDefaultsStage{headers: canonical}
}

var _ Stage = &HeaderDefaultsStage{}

// Kind implements [Stage].
func (*HeaderDefaultsStage) Kind() StageKind {
	return KindHeaders
}

// Handle implements [Stage].
func (s *HeaderDefaultsStage) Handle(req *http.Request, next http.RoundTripper) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if clone.Header == nil {
		clone.Header = make(http.Header)
	}
	for key, values := range s.headers {
		if _, found := clone.Header[key]; !found {
			clone.Header[key] = append([]string(nil), values...)
		}
	}
	return next.RoundTrip(clone)
}

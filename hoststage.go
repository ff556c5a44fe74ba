// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import (
	"fmt"
	"net/http"
	"net/url"
)

// HostStage binds requests to a scheme and host.
//
// By default only requests without a host are bound.
type HostStage struct {
	base *url.URL

	// Replace causes the stage to also override existing hosts.
	Replace bool
}

// NewHostStage returns a new [*HostStage] for an absolute http or https URL
// (e.g., "https://api.ipquery.io"). Only the scheme and host (including
// the port) of rawURL are used. Errors wrap [ErrInvalidInput].
func NewHostStage(rawURL string) (*HostStage, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: host URL: %w", ErrInvalidInput, err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: host URL %q: need an absolute http or https URL", ErrInvalidInput, rawURL)
	}
	return &HostStage{base: base}, nil
}

var _ Stage = &HostStage{}

// Kind implements [Stage].
func (*HostStage) Kind() StageKind {
	return KindHost
}

// Handle implements [Stage].
func (s *HostStage) Handle(req *http.Request, next http.RoundTripper) (*http.Response, error) {
	if req.URL.Host != "" && !s.Replace {
		return next.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.URL.Scheme = s.base.Scheme
	clone.URL.Host = s.base.Host
	clone.Host = s.base.Host
	return next.RoundTrip(clone)
}

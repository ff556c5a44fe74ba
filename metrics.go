// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import (
	"net/http"
	"time"
)

// Metrics records the outcome of requests observed by a [*MetricsStage].
//
// Implementations should be safe for concurrent use. See the prometheus
// subpackage for a Prometheus-backed implementation.
type Metrics interface {
	// RecordSuccess is called when the pipeline below the stage returns
	// a response, whatever its status code.
	RecordSuccess(statusCode int, elapsed time.Duration)

	// RecordFailure is called when the pipeline below the stage fails,
	// with the error classified by the stage [ErrClassifier].
	RecordFailure(errClass string, elapsed time.Duration)
}

// MetricsStage reports each request outcome to [Metrics].
type MetricsStage struct {
	metrics Metrics

	// ErrClassifier classifies errors for the failure label.
	ErrClassifier ErrClassifier

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

// NewMetricsStage returns a new [*MetricsStage].
func NewMetricsStage(cfg *Config, metrics Metrics) *MetricsStage {
	return &MetricsStage{
		metrics:       metrics,
		ErrClassifier: cfg.ErrClassifier,
		TimeNow:       cfg.TimeNow,
	}
}

var _ Stage = &MetricsStage{}

// Kind implements [Stage].
func (*MetricsStage) Kind() StageKind {
	return KindMetrics
}

// Handle implements [Stage].
func (s *MetricsStage) Handle(req *http.Request, next http.RoundTripper) (*http.Response, error) {
	t0 := s.TimeNow()
	resp, err := next.RoundTrip(req)
	elapsed := s.TimeNow().Sub(t0)
	if err != nil {
		s.metrics.RecordFailure(s.ErrClassifier.Classify(err), elapsed)
		return nil, err
	}
	s.metrics.RecordSuccess(resp.StatusCode, elapsed)
	return resp, nil
}

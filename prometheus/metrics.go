// SPDX-License-Identifier: GPL-3.0-or-later

// Package prometheus implements [ipquery.Metrics] using Prometheus collectors.
package prometheus

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bassosimone/ipquery"
	prom "github.com/prometheus/client_golang/prometheus"
)

const (
	requestsTotalName   = "ipquery_requests_total"
	requestDurationName = "ipquery_request_duration_seconds"
)

// PrometheusMetrics is a Prometheus-backed implementation of [ipquery.Metrics].
type PrometheusMetrics struct {
	requestsTotal   *prom.CounterVec
	requestDuration *prom.HistogramVec
}

var _ ipquery.Metrics = &PrometheusMetrics{}

// WithMetrics returns an [ipquery.ClientOption] installing metrics
// registered on prom.DefaultRegisterer. It panics if registration fails.
func WithMetrics() ipquery.ClientOption {
	return WithRegisterer(prom.DefaultRegisterer)
}

// WithRegisterer is like [WithMetrics] with an explicit registerer.
func WithRegisterer(registerer prom.Registerer) ipquery.ClientOption {
	metrics, err := NewWithRegisterer(registerer)
	if err != nil {
		panic(err)
	}
	return ipquery.WithMetrics(metrics)
}

// New creates PrometheusMetrics and registers its collectors on
// prom.DefaultRegisterer.
func New() (*PrometheusMetrics, error) {
	return NewWithRegisterer(prom.DefaultRegisterer)
}

// NewWithRegisterer creates PrometheusMetrics and registers its collectors on
// the given registerer.
//
// If registerer is nil, prom.DefaultRegisterer is used. If the metrics are
// already registered, existing compatible collectors are reused.
func NewWithRegisterer(registerer prom.Registerer) (*PrometheusMetrics, error) {
	if registerer == nil {
		registerer = prom.DefaultRegisterer
	}

	requestsTotal, err := register(registerer, prom.NewCounterVec(
		prom.CounterOpts{
			Name: requestsTotalName,
			Help: "Total number of API requests by result (success, failure) and outcome (status code or error class).",
		},
		[]string{"result", "outcome"},
	), requestsTotalName)
	if err != nil {
		return nil, err
	}

	requestDuration, err := register(registerer, prom.NewHistogramVec(
		prom.HistogramOpts{
			Name:    requestDurationName,
			Help:    "Duration of API requests by result (success, failure).",
			Buckets: prom.DefBuckets,
		},
		[]string{"result"},
	), requestDurationName)
	if err != nil {
		return nil, err
	}

	return &PrometheusMetrics{
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
	}, nil
}

func register[C prom.Collector](registerer prom.Registerer, collector C, metricName string) (C, error) {
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prom.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(C)
			if ok {
				return existing, nil
			}
			var zero C
			return zero, fmt.Errorf("metric %q already registered with incompatible collector type %T", metricName, alreadyRegistered.ExistingCollector)
		}
		var zero C
		return zero, fmt.Errorf("register metric %q: %w", metricName, err)
	}
	return collector, nil
}

// RecordSuccess implements [ipquery.Metrics].
func (m *PrometheusMetrics) RecordSuccess(statusCode int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues("success", strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues("success").Observe(elapsed.Seconds())
}

// RecordFailure implements [ipquery.Metrics].
func (m *PrometheusMetrics) RecordFailure(errClass string, elapsed time.Duration) {
	if errClass == "" {
		errClass = "unknown"
	}
	m.requestsTotal.WithLabelValues("failure", errClass).Inc()
	m.requestDuration.WithLabelValues("failure").Observe(elapsed.Seconds())
}

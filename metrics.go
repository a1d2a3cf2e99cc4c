// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts requests, retries, errors and walked bindings. A nil
// *Metrics records nothing, so a Target without metrics pays nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	retries      prometheus.Counter
	errors       *prometheus.CounterVec
	walkBindings *prometheus.CounterVec
}

// NewMetrics registers the snmpclient collectors with reg. Share one
// Metrics between Targets; registering twice with the same registry
// panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snmpclient",
			Name:      "requests_total",
			Help:      "SNMP requests by protocol version and outcome.",
		}, []string{"version", "outcome"}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "snmpclient",
			Name:      "retries_total",
			Help:      "Datagrams re-sent after a timeout or rejected reply.",
		}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snmpclient",
			Name:      "errors_total",
			Help:      "Failed requests by error kind.",
		}, []string{"kind"}),
		walkBindings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snmpclient",
			Name:      "walk_bindings_total",
			Help:      "Bindings delivered by walks, by strategy.",
		}, []string{"strategy"}),
	}
}

func (m *Metrics) request(params AgentParameters, err error) {
	if m == nil {
		return
	}
	version := "unknown"
	if params != nil {
		version = params.Version().String()
	}
	if err == nil {
		m.requests.WithLabelValues(version, "ok").Inc()
		return
	}
	kind := KindOf(err).String()
	m.requests.WithLabelValues(version, kind).Inc()
	m.errors.WithLabelValues(kind).Inc()
}

func (m *Metrics) retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) walkDelivered(strategy string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.walkBindings.WithLabelValues(strategy).Add(float64(n))
}

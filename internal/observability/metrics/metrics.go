// Copyright 2026 The TrustFabric Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics owns the Prometheus registry and every collector the
// service exposes on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors registered on a private registry so
// tests can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        prometheus.Gauge

	rpcRequestsTotal   *prometheus.CounterVec
	rpcRequestDuration *prometheus.HistogramVec

	authEventsTotal       *prometheus.CounterVec
	tokensIssuedTotal     *prometheus.CounterVec
	tokensRevokedTotal    prometheus.Counter
	rateLimitRejections   *prometheus.CounterVec
	signatureChecksTotal  *prometheus.CounterVec
	capabilityChecksTotal *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered,
// including the standard Go runtime and process collectors.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		rpcRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "RPC requests by full method and status code.",
		}, []string{"method", "code"}),
		rpcRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_request_duration_seconds",
			Help:      "RPC request latency by full method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		authEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_events_total",
			Help:      "Authentication events by action and result.",
		}, []string{"action", "result"}),
		tokensIssuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Tokens issued by class (access, refresh, app).",
		}, []string{"class"}),
		tokensRevokedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_revoked_total",
			Help:      "Access tokens placed on the blacklist.",
		}),
		rateLimitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by a rate limiter, by limiter name.",
		}, []string{"limiter"}),
		signatureChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signature_checks_total",
			Help:      "Request signature verifications by result.",
		}, []string{"result"}),
		capabilityChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_checks_total",
			Help:      "Capability authorization decisions by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpInflight,
		m.rpcRequestsTotal,
		m.rpcRequestDuration,
		m.authEventsTotal,
		m.tokensIssuedTotal,
		m.tokensRevokedTotal,
		m.rateLimitRejections,
		m.signatureChecksTotal,
		m.capabilityChecksTotal,
	)
	return m
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for test scrapes.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) HTTPInflightAdd(delta float64) {
	m.httpInflight.Add(delta)
}

func (m *Metrics) ObserveRPCRequest(fullMethod, code string, elapsed time.Duration) {
	m.rpcRequestsTotal.WithLabelValues(fullMethod, code).Inc()
	m.rpcRequestDuration.WithLabelValues(fullMethod).Observe(elapsed.Seconds())
}

func (m *Metrics) AuthEvent(action, result string) {
	m.authEventsTotal.WithLabelValues(action, result).Inc()
}

func (m *Metrics) TokenIssued(class string) {
	m.tokensIssuedTotal.WithLabelValues(class).Inc()
}

func (m *Metrics) TokenRevoked() {
	m.tokensRevokedTotal.Inc()
}

func (m *Metrics) RateLimitRejected(limiter string) {
	m.rateLimitRejections.WithLabelValues(limiter).Inc()
}

func (m *Metrics) SignatureCheck(result string) {
	m.signatureChecksTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) CapabilityCheck(result string) {
	m.capabilityChecksTotal.WithLabelValues(result).Inc()
}

// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "notekeeper"

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	RateLimitDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "ratelimit", Name: "decisions_total",
		Help: "Rate-limit decisions by scope kind and result (allowed|throttled|store_error)",
	}, []string{"scope", "result"})

	TokenVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "token", Name: "verifications_total",
		Help: "Token verifications by outcome (ok or failure kind)",
	}, []string{"outcome"})

	CounterOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "category_counter", Name: "ops_total",
		Help: "Category counter operations by result (hit|miss|recompute|store_error)",
	}, []string{"result"})

	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "events", Name: "published_total",
		Help: "Domain events by type and result (ok|error)",
	}, []string{"type", "result"})
)

var (
	once    sync.Once
	regErr  error
	allColl = []prometheus.Collector{
		HTTPRequests, HTTPDuration, RateLimitDecisions, TokenVerifications, CounterOps, EventsPublished,
	}
)

// Register registers all collectors exactly once. If r == nil, prometheus.DefaultRegisterer is used;
// collectors already registered are ignored.
func Register(r prometheus.Registerer) error {
	once.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}
		for _, c := range allColl {
			if err := r.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					regErr = err
					return
				}
			}
		}
	})
	return regErr
}

// Package metrics exposes Prometheus counters for the sign-in flow, token
// refreshes and resource API calls.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is implemented by Collector and Nop.
type Recorder interface {
	RecordLogin(outcome string)
	RecordCallback(outcome string)
	RecordRefresh(outcome string)
	RecordRefreshShared()
	RecordGatewayRequest(statusCode int, retried bool)
	ObserveTokenRequest(grantType string, d time.Duration)
}

type Collector struct {
	logins          *prometheus.CounterVec
	callbacks       *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	refreshShared   prometheus.Counter
	gatewayRequests *prometheus.CounterVec
	tokenLatency    *prometheus.HistogramVec
}

// NewCollector registers all collectors on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qf_auth_login_total",
			Help: "Sign-in initiations by outcome.",
		}, []string{"outcome"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qf_auth_callback_total",
			Help: "Authorization callbacks by outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qf_auth_refresh_total",
			Help: "Token refresh attempts by outcome.",
		}, []string{"outcome"}),
		refreshShared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qf_auth_refresh_shared_total",
			Help: "Refresh callers that received the result of a shared in-flight refresh.",
		}),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qf_gateway_requests_total",
			Help: "Resource API calls by final status code and whether they were retried.",
		}, []string{"status_code", "retried"}),
		tokenLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qf_auth_token_request_seconds",
			Help:    "Token endpoint latency by grant type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"grant_type"}),
	}

	reg.MustRegister(
		c.logins,
		c.callbacks,
		c.refreshes,
		c.refreshShared,
		c.gatewayRequests,
		c.tokenLatency,
	)

	return c
}

func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordCallback(outcome string) {
	c.callbacks.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordRefresh(outcome string) {
	c.refreshes.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordRefreshShared() {
	c.refreshShared.Inc()
}

func (c *Collector) RecordGatewayRequest(statusCode int, retried bool) {
	c.gatewayRequests.WithLabelValues(strconv.Itoa(statusCode), strconv.FormatBool(retried)).Inc()
}

func (c *Collector) ObserveTokenRequest(grantType string, d time.Duration) {
	c.tokenLatency.WithLabelValues(grantType).Observe(d.Seconds())
}

// Nop discards everything. Used where metrics are optional.
type Nop struct{}

func (Nop) RecordLogin(string)                        {}
func (Nop) RecordCallback(string)                     {}
func (Nop) RecordRefresh(string)                      {}
func (Nop) RecordRefreshShared()                      {}
func (Nop) RecordGatewayRequest(int, bool)            {}
func (Nop) ObserveTokenRequest(string, time.Duration) {}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

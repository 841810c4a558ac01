// Package metrics exposes provisioning and HTTP metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/account-provisioner/pkg/domain"
)

// Collector implements provisioning.Recorder on Prometheus counters.
type Collector struct {
	accountsCreated    prometheus.Counter
	profileWriteFailed prometheus.Counter
	profileReconciled  prometheus.Counter
	profileAbandoned   prometheus.Counter
	providerErrors     *prometheus.CounterVec
	pendingProfiles    prometheus.Gauge
	httpRequests       *prometheus.CounterVec
	httpLatency        *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		accountsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "provisioner_accounts_created_total",
			Help: "Accounts created through the identity provider.",
		}),
		profileWriteFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "provisioner_profile_write_failures_total",
			Help: "Profile writes that failed right after sign-up.",
		}),
		profileReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "provisioner_profiles_reconciled_total",
			Help: "Queued profile writes completed by the reconciler.",
		}),
		profileAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "provisioner_profiles_abandoned_total",
			Help: "Queued profile writes dropped after exhausting retries.",
		}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provisioner_provider_errors_total",
			Help: "Identity provider failures by operation and error kind.",
		}, []string{"op", "kind"}),
		pendingProfiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "provisioner_pending_profiles",
			Help: "Profile writes waiting for reconciliation.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provisioner_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provisioner_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.accountsCreated,
		c.profileWriteFailed,
		c.profileReconciled,
		c.profileAbandoned,
		c.providerErrors,
		c.pendingProfiles,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

func (c *Collector) AccountCreated() {
	c.accountsCreated.Inc()
}

func (c *Collector) ProfileWriteFailed() {
	c.profileWriteFailed.Inc()
}

func (c *Collector) ProfileReconciled() {
	c.profileReconciled.Inc()
}

func (c *Collector) ProfileAbandoned() {
	c.profileAbandoned.Inc()
}

func (c *Collector) ProviderError(op string, kind domain.ErrorKind) {
	c.providerErrors.WithLabelValues(op, string(kind)).Inc()
}

// SetPendingProfiles records the current reconciliation queue depth.
func (c *Collector) SetPendingProfiles(n int) {
	c.pendingProfiles.Set(float64(n))
}

// RecordRequest records one served HTTP request. route is the matched
// route pattern, not the raw path.
func (c *Collector) RecordRequest(method, route string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

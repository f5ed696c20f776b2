package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newsletter_engine"

// Metrics stores Prometheus collectors used by the API and the triage worker.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	notificationsIngested   *prometheus.CounterVec
	triageOutcomesTotal     *prometheus.CounterVec
	bouncedAddressesTotal   prometheus.Counter
	triageInflight          prometheus.Gauge
	pendingRequeuedTotal    prometheus.Counter
	referralCodeCollisions  prometheus.Counter
	referralCodesAssigned   prometheus.Counter
	referralRankDuration    prometheus.Histogram
	referralTierCacheLookup *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		notificationsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sns_notifications_ingested_total",
				Help:      "SNS messages stored for triage, by envelope type.",
			},
			[]string{"type"},
		),
		triageOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "triage_outcomes_total",
				Help:      "Triage results by final state and failure reason.",
			},
			[]string{"state", "reason"},
		),
		bouncedAddressesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bounced_addresses_total",
				Help:      "Permanently bounced addresses handed to the suppression sink.",
			},
		),
		triageInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "triage_inflight",
				Help:      "Triage jobs currently being processed by this worker.",
			},
		),
		pendingRequeuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pending_requeued_total",
				Help:      "Stale NEW notifications published again by the pending scanner.",
			},
		),
		referralCodeCollisions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "referral_code_collisions_total",
				Help:      "Generated referral codes that were already taken.",
			},
		),
		referralCodesAssigned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "referral_codes_assigned_total",
				Help:      "Referral codes persisted to subscribers.",
			},
		),
		referralRankDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "referral_rank_duration_seconds",
				Help:      "Time spent computing a subscriber's referral rank.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),
		referralTierCacheLookup: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "referral_tier_cache_lookups_total",
				Help:      "Referral tier cache lookups by result.",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.notificationsIngested,
		m.triageOutcomesTotal,
		m.bouncedAddressesTotal,
		m.triageInflight,
		m.pendingRequeuedTotal,
		m.referralCodeCollisions,
		m.referralCodesAssigned,
		m.referralRankDuration,
		m.referralTierCacheLookup,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncNotificationIngested(envelopeType string) {
	if m == nil {
		return
	}
	m.notificationsIngested.WithLabelValues(normalizeLabel(envelopeType)).Inc()
}

func (m *Metrics) IncTriageOutcome(state string, reason string) {
	if m == nil {
		return
	}
	m.triageOutcomesTotal.WithLabelValues(normalizeLabel(state), normalizeLabel(reason)).Inc()
}

func (m *Metrics) AddBouncedAddresses(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bouncedAddressesTotal.Add(float64(n))
}

func (m *Metrics) IncTriageInFlight() {
	if m == nil {
		return
	}
	m.triageInflight.Inc()
}

func (m *Metrics) DecTriageInFlight() {
	if m == nil {
		return
	}
	m.triageInflight.Dec()
}

func (m *Metrics) IncPendingRequeued() {
	if m == nil {
		return
	}
	m.pendingRequeuedTotal.Inc()
}

func (m *Metrics) IncReferralCodeCollision() {
	if m == nil {
		return
	}
	m.referralCodeCollisions.Inc()
}

func (m *Metrics) IncReferralCodeAssigned() {
	if m == nil {
		return
	}
	m.referralCodesAssigned.Inc()
}

func (m *Metrics) ObserveReferralRankDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.referralRankDuration.Observe(max(duration.Seconds(), 0))
}

func (m *Metrics) IncReferralTierCacheHit() {
	if m == nil {
		return
	}
	m.referralTierCacheLookup.WithLabelValues("hit").Inc()
}

func (m *Metrics) IncReferralTierCacheMiss() {
	if m == nil {
		return
	}
	m.referralTierCacheLookup.WithLabelValues("miss").Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "none"
	}
	return normalized
}

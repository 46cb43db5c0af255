// AngelaMos | 2026
// metrics.go

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "billing"

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	webhookEvents     *prometheus.CounterVec
	webhookRejections *prometheus.CounterVec
	reconcileDuration *prometheus.HistogramVec
	storeRetries      prometheus.Counter
	checkoutRequests  *prometheus.CounterVec
	checkoutDuration  prometheus.Histogram
	expiredBySweep    prometheus.Counter
	eventsPublished   *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Authenticated webhook deliveries by event name and outcome",
			},
			[]string{"event", "outcome"},
		),
		webhookRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_rejections_total",
				Help:      "Webhook deliveries rejected before reconciliation",
			},
			[]string{"reason"},
		),
		reconcileDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "webhook_reconcile_duration_seconds",
				Help:      "Time spent reconciling one webhook delivery",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event"},
		),
		storeRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_write_retries_total",
				Help:      "Entitlement store operations repeated after a transient failure",
			},
		),
		checkoutRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkout_requests_total",
				Help:      "Checkout session requests by outcome",
			},
			[]string{"outcome"},
		),
		checkoutDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "checkout_provider_duration_seconds",
				Help:      "Latency of checkout creation calls to the provider",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		expiredBySweep: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entitlements_expired_total",
				Help:      "Lapsed premium entitlements normalised to free by the expiry sweep",
			},
		),
		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entitlement_events_published_total",
				Help:      "Entitlement change events handed to the message broker",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry: m.registry,
	})
}

func (m *Metrics) WebhookEvent(event, outcome string) {
	m.webhookEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) WebhookRejected(reason string) {
	m.webhookRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveReconcile(event string, d time.Duration) {
	m.reconcileDuration.WithLabelValues(event).Observe(d.Seconds())
}

func (m *Metrics) StoreRetry() {
	m.storeRetries.Inc()
}

func (m *Metrics) CheckoutRequest(outcome string) {
	m.checkoutRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCheckout(d time.Duration) {
	m.checkoutDuration.Observe(d.Seconds())
}

func (m *Metrics) EntitlementsExpired(n int) {
	m.expiredBySweep.Add(float64(n))
}

func (m *Metrics) EventPublished(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.eventsPublished.WithLabelValues(result).Inc()
}

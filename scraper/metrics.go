package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for a price sync run.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	ProductsTotal     *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	DealsTotal        *prometheus.CounterVec
	PriceChangesTotal *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricesync_requests_total",
			Help: "Total vendor API requests by result.",
		},
		[]string{"result"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricesync_request_duration_seconds",
			Help:    "Vendor API request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	products := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricesync_products_total",
			Help: "Products processed by terminal outcome.",
		},
		[]string{"outcome"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricesync_errors_total",
			Help: "Total number of product failures by type.",
		},
		[]string{"error_type"},
	)
	deals := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricesync_deals_total",
			Help: "Recorded observations by deal type.",
		},
		[]string{"deal_type"},
	)
	changes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricesync_price_changes_total",
			Help: "Recorded observations by direction against the last known price.",
		},
		[]string{"direction"},
	)

	registry.MustRegister(requests, requestDuration, products, errorsTotal, deals, changes)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		ProductsTotal:     products,
		ErrorsTotal:       errorsTotal,
		DealsTotal:        deals,
		PriceChangesTotal: changes,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(result string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(result).Inc()
}

// ObserveDuration records a vendor request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncOutcome increments the per-product outcome counter.
func (m *Metrics) IncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ProductsTotal.WithLabelValues(outcome).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncDeal increments the deal type counter.
func (m *Metrics) IncDeal(dealType string) {
	if m == nil {
		return
	}
	m.DealsTotal.WithLabelValues(dealType).Inc()
}

// IncPriceChange increments the price change counter.
func (m *Metrics) IncPriceChange(direction string) {
	if m == nil {
		return
	}
	m.PriceChangesTotal.WithLabelValues(direction).Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// The struct is passed explicitly to every component that records metrics.
type Metrics struct {
	// Sell flow metrics
	sellSubmissionsTotal *prometheus.CounterVec
	referencesIssued     prometheus.Counter
	confirmationsTotal   *prometheus.CounterVec
	ordersCreatedTotal   *prometheus.CounterVec
	orderAmountWLD       *prometheus.HistogramVec

	// Developer Portal metrics
	devPortalCallsTotal   *prometheus.CounterVec
	devPortalCallDuration *prometheus.HistogramVec

	// Price metrics
	priceFetchesTotal *prometheus.CounterVec
	priceFetchLatency prometheus.Histogram
	wldPriceUSD       prometheus.Gauge

	// Sweep metrics
	referencesExpired    prometheus.Counter
	orphanedPayments     prometheus.Counter
	sweepDuration        *prometheus.HistogramVec
	sweepActivityLatency *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Sell flow metrics
		sellSubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sell_submissions_total",
				Help: "Total number of sell submissions by terminal stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		referencesIssued: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "payment_references_issued_total",
				Help: "Total number of payment references issued",
			},
		),
		confirmationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_confirmations_total",
				Help: "Total number of payment confirmations by result",
			},
			[]string{"result"},
		),
		ordersCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_created_total",
				Help: "Total number of sell orders recorded",
			},
			[]string{"payment_method"},
		),
		orderAmountWLD: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "order_amount_wld",
				Help:    "WLD amount of recorded sell orders",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 500},
			},
			[]string{"payment_method"},
		),

		// Developer Portal metrics
		devPortalCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dev_portal_calls_total",
				Help: "Total number of Developer Portal transaction lookups by status",
			},
			[]string{"status"},
		),
		devPortalCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dev_portal_call_duration_seconds",
				Help:    "Duration of Developer Portal transaction lookups in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"status"},
		),

		// Price metrics
		priceFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_fetches_total",
				Help: "Total number of WLD price fetches by status",
			},
			[]string{"status"},
		),
		priceFetchLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "price_fetch_duration_seconds",
				Help:    "Duration of WLD price fetches in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
		),
		wldPriceUSD: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wld_price_usd",
				Help: "Last observed WLD price in USD",
			},
		),

		// Sweep metrics
		referencesExpired: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "payment_references_expired_total",
				Help: "Total number of unconfirmed payment references expired by the sweep",
			},
		),
		orphanedPayments: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "orphaned_payments_total",
				Help: "Total number of confirmed payments reported without an order",
			},
		),
		sweepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sweep_workflow_duration_seconds",
				Help:    "Duration of reference sweep workflow execution in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		sweepActivityLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sweep_activity_duration_seconds",
				Help:    "Duration of reference sweep activities in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"activity"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active price stream connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Sell flow metric helpers

// RecordSellOutcome records the terminal stage and outcome of a submission.
func (m *Metrics) RecordSellOutcome(stage, outcome string) {
	m.sellSubmissionsTotal.WithLabelValues(stage, outcome).Inc()
}

// RecordReferenceIssued records a newly issued payment reference.
func (m *Metrics) RecordReferenceIssued() {
	m.referencesIssued.Inc()
}

// RecordConfirmation records a confirmation result ("confirmed", "rejected", "error").
func (m *Metrics) RecordConfirmation(result string) {
	m.confirmationsTotal.WithLabelValues(result).Inc()
}

// RecordOrderCreated records a recorded order and its WLD amount.
func (m *Metrics) RecordOrderCreated(paymentMethod string, amount float64) {
	m.ordersCreatedTotal.WithLabelValues(paymentMethod).Inc()
	m.orderAmountWLD.WithLabelValues(paymentMethod).Observe(amount)
}

// RecordDevPortalCall records a Developer Portal lookup with duration.
func (m *Metrics) RecordDevPortalCall(status string, duration float64) {
	m.devPortalCallsTotal.WithLabelValues(status).Inc()
	m.devPortalCallDuration.WithLabelValues(status).Observe(duration)
}

// Price metric helpers

// RecordPriceFetch records a price fetch. price is only set on success.
func (m *Metrics) RecordPriceFetch(duration float64, price float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.priceFetchesTotal.WithLabelValues(status).Inc()
	m.priceFetchLatency.Observe(duration)
	if err == nil {
		m.wldPriceUSD.Set(price)
	}
}

// Sweep metric helpers

// RecordReferencesExpired records references expired by a sweep.
func (m *Metrics) RecordReferencesExpired(count int) {
	m.referencesExpired.Add(float64(count))
}

// RecordOrphanedPayments records orphaned payments reported by a sweep.
func (m *Metrics) RecordOrphanedPayments(count int) {
	m.orphanedPayments.Add(float64(count))
}

// RecordSweepDuration records sweep workflow duration.
func (m *Metrics) RecordSweepDuration(status string, duration float64) {
	m.sweepDuration.WithLabelValues(status).Observe(duration)
}

// RecordActivityDuration records sweep activity duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.sweepActivityLatency.WithLabelValues(activity).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	m.sseActiveConnections.Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}

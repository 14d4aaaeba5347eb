package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// FulfillmentMetrics records webhook reconciliation and order-creation outcomes.
type FulfillmentMetrics struct {
	webhookEvents *prometheus.CounterVec
	ordersCreated *prometheus.CounterVec
	stockFailures *prometheus.CounterVec
}

// NewFulfillmentMetrics registers the fulfillment metrics on the provided registerer.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Payment webhook notifications by terminal outcome.",
	}, []string{"outcome"})
	ordersCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders materialized, by source.",
	}, []string{"source"})
	stockFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservation_failures_total",
		Help: "Reservations aborted for insufficient stock.",
	}, []string{"source"})
	reg.MustRegister(webhookEvents, ordersCreated, stockFailures)
	return &FulfillmentMetrics{
		webhookEvents: webhookEvents,
		ordersCreated: ordersCreated,
		stockFailures: stockFailures,
	}
}

// IncWebhookEvent increments the webhook outcome counter.
func (m *FulfillmentMetrics) IncWebhookEvent(outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncOrderCreated increments the created-order counter for the named source.
func (m *FulfillmentMetrics) IncOrderCreated(source string) {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncStockFailure increments the reservation-failure counter.
func (m *FulfillmentMetrics) IncStockFailure(source string) {
	if m == nil || m.stockFailures == nil {
		return
	}
	m.stockFailures.WithLabelValues(normalizeLabel(source)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

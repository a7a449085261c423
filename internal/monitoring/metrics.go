// Package monitoring exposes prometheus metrics for the ticket pipeline.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Total tickets issued",
		},
	)

	issuanceRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issuance_rejections_total",
			Help: "Issuance precondition failures by reason",
		},
		[]string{"reason"},
	)

	checkins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkins_total",
			Help: "Check-in attempts by outcome",
		},
		[]string{"outcome"},
	)

	deliveriesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deliveries_sent_total",
			Help: "Confirmation emails delivered",
		},
	)

	deliveryRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_retries_total",
			Help: "Confirmation email attempts that failed and were rescheduled",
		},
	)

	deliveriesExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deliveries_exhausted_total",
			Help: "Confirmation emails that hit the attempt ceiling",
		},
	)

	sendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "delivery_send_duration_seconds",
			Help:    "Duration of transport send attempts",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
)

func TicketIssued()                  { ticketsIssued.Inc() }
func IssuanceRejected(reason string) { issuanceRejections.WithLabelValues(reason).Inc() }
func CheckIn(outcome string)         { checkins.WithLabelValues(outcome).Inc() }
func DeliverySent()                  { deliveriesSent.Inc() }
func DeliveryRetried()               { deliveryRetries.Inc() }
func DeliveryExhausted()             { deliveriesExhausted.Inc() }
func ObserveSendDuration(s float64)  { sendDuration.Observe(s) }

package billing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	paymentAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_payment_attempts_total",
		Help: "Total payment attempts by outcome",
	}, []string{"outcome"})

	cycleTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_cycle_transitions_total",
		Help: "Billing cycle state transitions by resulting status",
	}, []string{"status"})

	overageInvoicesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_overage_invoices_total",
		Help: "Supplemental overage invoices by outcome",
	}, []string{"outcome"})

	notificationsScheduledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_notifications_scheduled_total",
		Help: "Notification intents written to the outbox by type",
	}, []string{"type"})

	suspensionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_subscription_suspensions_total",
		Help: "Subscriptions suspended after exhausted retries",
	})
)

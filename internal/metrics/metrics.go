// Package metrics регистрирует метрики Prometheus для движка реконсиляции.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WebhookEventsTotal считает обработанные webhook-события Stripe
// с разбивкой по типу события и результату обработки.
var WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reconciler_webhook_events_total",
	Help: "Total number of processed Stripe webhook events by kind and outcome.",
}, []string{"kind", "outcome"})

// WebhookVerificationFailures считает события, не прошедшие проверку подписи.
var WebhookVerificationFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "reconciler_webhook_verification_failures_total",
	Help: "Total number of webhook requests rejected due to invalid signature.",
})

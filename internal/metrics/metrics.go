// Package metrics owns the Prometheus registry and the collectors the
// server exports at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "loop"

// Registry is the Prometheus registry for all server metrics.
var Registry = prometheus.NewRegistry()

// AppInfo exposes build information as labels, always set to 1.
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always 1, version in labels)",
	},
	[]string{"version", "commit"},
)

// MessagesPosted counts messages accepted per workspace.
var MessagesPosted = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_posted_total",
		Help:      "Total messages posted",
	},
	[]string{"workspace_id"},
)

// ScheduledDeliveries counts scheduled messages published by the worker.
var ScheduledDeliveries = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduled_deliveries_total",
		Help:      "Total scheduled messages delivered by the background worker",
	},
)

// RemindersFired counts calendar reminders delivered.
var RemindersFired = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reminders_fired_total",
		Help:      "Total calendar reminders fired",
	},
)

// AuthFailures counts rejected credential resolutions by reason.
var AuthFailures = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_failures_total",
		Help:      "Total failed authentication attempts",
	},
	[]string{"reason"},
)

// WebhookDeliveries counts outbound webhook posts by outcome.
var WebhookDeliveries = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_deliveries_total",
		Help:      "Total outbound webhook delivery attempts",
	},
	[]string{"outcome"},
)

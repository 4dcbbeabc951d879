// Package metrics registers the process's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal counts transition attempts by outcome: applied,
	// noop, rejected, conflict.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dealflow",
		Name:      "transitions_total",
		Help:      "Deal stage transition attempts by outcome.",
	}, []string{"outcome"})

	// AgentActionsTotal counts bridge action executions by action and result.
	AgentActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dealflow",
		Name:      "agent_actions_total",
		Help:      "Agent bridge actions by action type and result.",
	}, []string{"action", "result"})

	// HTTPRequestsTotal counts API requests by method, path pattern and code.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dealflow",
		Name:      "http_requests_total",
		Help:      "HTTP API requests.",
	}, []string{"method", "path", "code"})

	// WebhookDeliveriesTotal counts webhook delivery attempts by result.
	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dealflow",
		Name:      "webhook_deliveries_total",
		Help:      "Outbound webhook deliveries by result.",
	}, []string{"result"})
)

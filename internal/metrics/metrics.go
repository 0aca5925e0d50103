// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Arrivals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatepass",
		Name:      "arrivals_total",
		Help:      "Arrivals recorded, by entry type.",
	}, []string{"entry_type"})

	Departures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatepass",
		Name:      "departures_total",
		Help:      "Departures recorded.",
	})

	LedgerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatepass",
		Name:      "ledger_rejections_total",
		Help:      "Ledger operations refused by a business rule, by reason.",
	}, []string{"reason"})

	IntegrityAnomalies = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatepass",
		Name:      "integrity_anomalies_total",
		Help:      "Stored or computed entries that violate ledger invariants.",
	})

	VersionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatepass",
		Name:      "record_version_conflicts_total",
		Help:      "Compare-and-swap failures while saving daily records.",
	})

	MealsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatepass",
		Name:      "meals_served_total",
		Help:      "Meals logged, by meal type.",
	}, []string{"meal_type"})

	AnalyticsSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gatepass",
		Name:      "analytics_compute_seconds",
		Help:      "Time spent computing analytics reports.",
		Buckets:   prometheus.DefBuckets,
	})

	HTTPRequestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gatepass",
		Name:      "http_request_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatepass",
		Name:      "jobs_processed_total",
		Help:      "Background jobs handled by the worker, by type and outcome.",
	}, []string{"type", "outcome"})
)

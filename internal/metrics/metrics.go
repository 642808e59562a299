// Package metrics exposes Prometheus instrumentation for the generation
// pipeline plus the HTTP endpoint that serves it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsProcessedTotal counts finished jobs by terminal outcome
	// (completed, failed, skipped, dead_lettered).
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidarena_jobs_processed_total",
		Help: "Total number of generation jobs processed, by outcome",
	}, []string{"outcome"})

	// StageDuration observes how long each pipeline stage takes.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidarena_job_stage_duration_seconds",
		Help:    "Duration of generation pipeline stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	// ActiveWorkers tracks jobs currently in flight.
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidarena_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	// GenerationCost accumulates the computed cost per provider.
	GenerationCost = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidarena_generation_cost_total",
		Help: "Total computed generation cost in USD, by provider",
	}, []string{"provider"})

	// VendorFailuresTotal counts vendor-side generation failures by provider.
	VendorFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidarena_vendor_failures_total",
		Help: "Total vendor-side generation failures, by provider",
	}, []string{"provider"})
)

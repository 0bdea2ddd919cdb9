// Package metrics provides Prometheus metrics for the resolution engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsScannedTotal tracks source records scanned per rule
	RecordsScannedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resolve",
			Subsystem: "generator",
			Name:      "records_scanned_total",
			Help:      "Total number of source records scanned by candidate generation",
		},
		[]string{"rule_id", "table"},
	)

	// CandidatesFoundTotal tracks candidates stored per rule and classification
	CandidatesFoundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resolve",
			Subsystem: "generator",
			Name:      "candidates_found_total",
			Help:      "Total number of duplicate candidates stored by classification",
		},
		[]string{"rule_id", "classification"},
	)

	// PairsScoredTotal tracks pairwise comparisons performed
	PairsScoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resolve",
			Subsystem: "generator",
			Name:      "pairs_scored_total",
			Help:      "Total number of record pairs scored",
		},
		[]string{"rule_id"},
	)

	// MergesTotal tracks merges applied and rolled back
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resolve",
			Subsystem: "merge",
			Name:      "merges_total",
			Help:      "Total number of merge operations by outcome",
		},
		[]string{"operation", "status"},
	)

	// RunDuration tracks end-to-end run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "resolve",
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Duration of deduplication runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"status"},
	)

	// RunsInFlight tracks currently executing runs
	RunsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "resolve",
			Subsystem: "run",
			Name:      "in_flight",
			Help:      "Number of deduplication runs currently executing",
		},
	)
)

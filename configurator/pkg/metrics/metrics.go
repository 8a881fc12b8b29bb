package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taxonomy_configurator_build_info",
			Help: "Build information of the taxonomy configurator",
		},
		[]string{"version", "commit", "date"},
	)

	ConfigRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxonomy_configurator_runs_total",
			Help: "Total number of configuration runs",
		},
		[]string{"status"},
	)

	ConfigRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taxonomy_configurator_run_duration_seconds",
			Help:    "Duration of configuration runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~410s
		},
	)

	SpecificationsGenerated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taxonomy_configurator_specifications_generated",
			Help: "Number of specifications persisted by the last run",
		},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taxonomy_validator_build_info",
			Help: "Build information of the taxonomy validator",
		},
		[]string{"version", "commit", "date"},
	)

	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxonomy_validator_actions_total",
			Help: "Total number of dispatched validator actions",
		},
		[]string{"action", "status"},
	)

	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taxonomy_validator_action_duration_seconds",
			Help:    "Duration of validator actions",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~200s
		},
		[]string{"action"},
	)

	NamesValidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taxonomy_validator_names_validated_total",
			Help: "Total number of entity names validated",
		},
	)

	NameUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxonomy_validator_name_updates_total",
			Help: "Total number of entity name updates pushed to ad platforms",
		},
		[]string{"status"},
	)
)

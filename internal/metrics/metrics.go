package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recommendation runs
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketlink_recommendation_runs_total",
			Help: "Recommendation runs by terminal state",
		},
		[]string{"state"}, // completed, failed, partial
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marketlink_recommendation_run_duration_seconds",
			Help:    "Wall time of recommendation runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	RunActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketlink_recommendation_run_active",
			Help: "1 while a recommendation run is in flight",
		},
	)

	ProductsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketlink_products_processed_total",
			Help: "Source products processed by outcome",
		},
		[]string{"reason"},
	)

	MatchLevelHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketlink_match_level_hits_total",
			Help: "Match level that produced the final candidate set",
		},
		[]string{"level"},
	)

	RecommendationsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketlink_recommendations_written_total",
			Help: "Recommendation rows persisted",
		},
	)

	// Cross-marketplace links
	LinkUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketlink_link_upserts_total",
			Help: "Link upserts by outcome",
		},
		[]string{"outcome"}, // created, replaced, conflict
	)
)

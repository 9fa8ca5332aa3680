package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudatlas_sessions_started_total",
		Help: "Matching sessions started, by role.",
	}, []string{"role"})

	matchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudatlas_matches_total",
		Help: "Sessions that reached the matched state.",
	})

	listingsPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudatlas_listings_published_total",
		Help: "Listings published to the relays.",
	})
)

package hierarchy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brigadas_cache_requests_total",
		Help: "Derived-view cache lookups by view and result (hit, miss)",
	}, []string{"view", "result"})

	gatewayFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "brigadas_gateway_fetch_seconds",
		Help:    "Duration of raw hierarchy fetches from the gateway",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	gatewayErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brigadas_gateway_errors_total",
		Help: "Total failed gateway fetches",
	})

	buildErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brigadas_build_errors_total",
		Help: "Total hierarchy builds rejected because of malformed rows",
	})
)

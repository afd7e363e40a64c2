package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "raikou"

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Read requests served from the cache store.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Read requests that fell through to the handler.",
	})

	CacheBypass = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_bypass_total",
		Help:      "Read requests that skipped the cache entirely.",
	}, []string{"reason"})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_errors_total",
		Help:      "Cache store operations that failed.",
	}, []string{"op"})

	InvalidatedKeys = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invalidated_keys_total",
		Help:      "Cache entries removed by resource invalidation.",
	}, []string{"resource"})

	InvalidationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invalidation_errors_total",
		Help:      "Resource invalidations that did not fully complete.",
	}, []string{"resource"})
)

package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chainTruncated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hierarchy",
		Name:      "manager_chain_truncated_total",
		Help:      "Total number of manager chains cut off at the depth ceiling.",
	})

	treeCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hierarchy",
		Subsystem: "tree_cache",
		Name:      "requests_total",
		Help:      "Total number of tree cache lookups broken down by backend and hit/miss.",
	}, []string{"backend", "result"})

	treeCacheInvalidate = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hierarchy",
		Subsystem: "tree_cache",
		Name:      "invalidate_total",
		Help:      "Total number of tree cache invalidations broken down by reason.",
	}, []string{"reason"})

	writeConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hierarchy",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of hierarchy write conflicts broken down by kind.",
	}, []string{"kind"})

	bulkItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hierarchy",
		Subsystem: "bulk",
		Name:      "items_total",
		Help:      "Total number of bulk relationship items broken down by outcome.",
	}, []string{"result"})
)

func recordCacheRequest(backend string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	treeCacheRequests.WithLabelValues(backend, result).Inc()
}

func recordCacheInvalidate(reason string) {
	if reason == "" {
		reason = "manual"
	}
	treeCacheInvalidate.WithLabelValues(reason).Inc()
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	writeConflicts.WithLabelValues(kind).Inc()
}

func recordBulkItem(result string) {
	bulkItems.WithLabelValues(result).Inc()
}

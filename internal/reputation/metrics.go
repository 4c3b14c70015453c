package reputation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ledgerEventCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "safeyak_reputation_event_count",
	Help: "Number of reputation events applied or skipped as duplicates, by kind",
}, []string{"kind", "outcome"})

var cacheLookupCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "safeyak_reputation_cache_lookup_count",
	Help: "Number of cached reputation lookups, by result",
}, []string{"result"})

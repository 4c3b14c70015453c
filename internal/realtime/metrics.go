package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var subscriberGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "safeyak_realtime_subscribers",
	Help: "Number of live realtime subscriptions",
})

var droppedEventCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "safeyak_realtime_dropped_event_count",
	Help: "Number of change events dropped for slow subscribers, by table",
}, []string{"table"})

var publishedEventCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "safeyak_realtime_published_event_count",
	Help: "Number of row change events published, by table and type",
}, []string{"table", "type"})

package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var scorerDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "safeyak_moderation_scorer_duration_sec",
	Help: "Duration of toxicity scorer API calls",
})

var scorerCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "safeyak_moderation_scorer_count",
	Help: "Number of toxicity scorer API calls, by HTTP status code",
}, []string{"status"})

var verdictCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "safeyak_moderation_verdict_count",
	Help: "Number of moderation verdicts, by outcome",
}, []string{"verdict"})

package forest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	treesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fossil_trees",
		Help: "Number of branches currently held in the forest.",
	})

	leavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fossil_leaves_total",
		Help: "Total leaves appended across all branches.",
	})

	prunesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fossil_prunes_total",
		Help: "Total branches evicted from the forest, by reason.",
	}, []string{"reason"})
)

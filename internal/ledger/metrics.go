package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var entriesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "fossil_ledger_entries_total",
	Help: "Total hash-chain ledger entries appended.",
})

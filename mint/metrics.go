package mint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mintsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minter",
		Name:      "mint_operations_total",
		Help:      "Mint operations by workflow and outcome.",
	}, []string{"workflow", "outcome"})

	stageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minter",
		Name:      "stage_failures_total",
		Help:      "Pipeline failures by stage and error kind.",
	}, []string{"stage", "kind"})

	tokensMinted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "minter",
		Name:      "tokens_minted_total",
		Help:      "Tokens confirmed on the ledger.",
	})

	confirmSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "minter",
		Name:      "confirm_duration_seconds",
		Help:      "Time from submission to receipt.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	gasCostWei = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "minter",
		Name:      "gas_cost_wei_total",
		Help:      "Gas paid for confirmed mint transactions, in wei. Float precision.",
	})
)

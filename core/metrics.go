package core

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusWalletProcessedBlocks prometheus.Counter
	prometheusWalletReceivedUtxos   prometheus.Counter
	prometheusWalletSpentUtxos      prometheus.Counter
	prometheusWalletUtxoCount       prometheus.Gauge
	prometheusWalletRollbacks       prometheus.Counter
	prometheusWalletEpochsArchived  prometheus.Counter
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusWalletProcessedBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "processed_blocks",
			Help:      "Number of confirmed blocks applied to the wallet state",
		},
	)

	prometheusWalletReceivedUtxos = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "received_utxos",
			Help:      "Number of received events appended to the wallet log",
		},
	)

	prometheusWalletSpentUtxos = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "spent_utxos",
			Help:      "Number of spent events appended to the wallet log",
		},
	)

	prometheusWalletUtxoCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wallet",
			Name:      "utxo_count",
			Help:      "Number of unspent outputs owned by the wallet",
		},
	)

	prometheusWalletRollbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "rollbacks",
			Help:      "Number of roll backward requests received from the node",
		},
	)

	prometheusWalletEpochsArchived = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "epochs_archived",
			Help:      "Number of epoch packs finalized and indexed",
		},
	)
}

func observeLogEntries(entries []*LogEntry) {
	for _, entry := range entries {
		switch entry.Kind {
		case LogEntryReceived:
			prometheusWalletReceivedUtxos.Inc()
		case LogEntrySpent:
			prometheusWalletSpentUtxos.Inc()
		}
	}
}

package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChunksStored tracks the number of chunks held across stores.
	ChunksStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sheetctx",
			Subsystem: "vectorstore",
			Name:      "chunks",
			Help:      "Number of chunks currently stored",
		},
	)

	// OperationsTotal counts store operations.
	// Labels: operation (upsert, query, delete), result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetctx",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"operation", "result"},
	)
)

func recordOperation(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(operation, result).Inc()
}

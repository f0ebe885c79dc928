//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StoreDeltas    = "deltas"
	StoreSnapshots = "snapshots"
)

type PrometheusMetrics struct {
	OperationDuration *prometheus.HistogramVec
	OperationErrors   *prometheus.CounterVec

	StreamsOpen    *prometheus.GaugeVec
	StreamsEvicted *prometheus.CounterVec

	DeltaLogRecoveries     *prometheus.CounterVec
	DeltaLogTruncatedBytes prometheus.Counter

	DiskBytes *prometheus.CounterVec

	AdminStreams *prometheus.CounterVec

	MetricsConnections prometheus.Gauge
}

// NewPrometheusMetrics registers all wavestore metrics with reg. A nil
// registerer disables registration.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = noop
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wavestore_operation_duration_seconds",
			Help:    "Duration of operations on per-stream access objects",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"store", "operation"}),
		OperationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wavestore_operation_errors_total",
			Help: "Failed operations on per-stream access objects",
		}, []string{"store", "operation"}),

		StreamsOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wavestore_streams_open",
			Help: "Access objects currently held open by a store cache",
		}, []string{"store"}),
		StreamsEvicted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wavestore_streams_evicted_total",
			Help: "Access objects closed because the store cache was full",
		}, []string{"store"}),

		DeltaLogRecoveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wavestore_delta_log_recoveries_total",
			Help: "Repairs made while opening delta logs",
		}, []string{"kind"}),
		DeltaLogTruncatedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "wavestore_delta_log_truncated_bytes_total",
			Help: "Bytes of partial delta log tails removed by recovery",
		}),

		DiskBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wavestore_disk_bytes_total",
			Help: "Bytes read from and written to store files",
		}, []string{"store", "direction"}),

		AdminStreams: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wavestore_admin_streams_total",
			Help: "Streams processed by administrative batch operations",
		}, []string{"operation", "status"}),

		MetricsConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wavestore_metrics_connections",
			Help: "Open connections to the metrics endpoint",
		}),
	}
}

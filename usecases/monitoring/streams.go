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

import "time"

func (pm *PrometheusMetrics) ObserveOperation(store, operation string, started time.Time, err error) {
	if pm == nil {
		return
	}

	pm.OperationDuration.WithLabelValues(store, operation).Observe(time.Since(started).Seconds())
	if err != nil {
		pm.OperationErrors.WithLabelValues(store, operation).Inc()
	}
}

func (pm *PrometheusMetrics) StreamOpened(store string) {
	if pm == nil {
		return
	}

	pm.StreamsOpen.WithLabelValues(store).Inc()
}

func (pm *PrometheusMetrics) StreamClosed(store string) {
	if pm == nil {
		return
	}

	pm.StreamsOpen.WithLabelValues(store).Dec()
}

// StreamEvicted counts an eviction. The matching StreamClosed is reported
// separately by the cache.
func (pm *PrometheusMetrics) StreamEvicted(store string) {
	if pm == nil {
		return
	}

	pm.StreamsEvicted.WithLabelValues(store).Inc()
}

func (pm *PrometheusMetrics) DeltaLogRecovered(rebuiltIndex bool, reindexed int, truncatedBytes int64) {
	if pm == nil {
		return
	}

	if rebuiltIndex {
		pm.DeltaLogRecoveries.WithLabelValues("rebuilt_index").Inc()
	}
	if reindexed > 0 {
		pm.DeltaLogRecoveries.WithLabelValues("reindexed").Inc()
	}
	if truncatedBytes > 0 {
		pm.DeltaLogRecoveries.WithLabelValues("truncated").Inc()
		pm.DeltaLogTruncatedBytes.Add(float64(truncatedBytes))
	}
}

func (pm *PrometheusMetrics) DiskRead(store string, n int64) {
	if pm == nil {
		return
	}

	pm.DiskBytes.WithLabelValues(store, "read").Add(float64(n))
}

func (pm *PrometheusMetrics) DiskWritten(store string, n int64) {
	if pm == nil {
		return
	}

	pm.DiskBytes.WithLabelValues(store, "write").Add(float64(n))
}

func (pm *PrometheusMetrics) AdminStreamProcessed(operation string, err error) {
	if pm == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	pm.AdminStreams.WithLabelValues(operation, status).Inc()
}

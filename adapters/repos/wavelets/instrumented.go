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

package wavelets

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/weaviate/wavestore/adapters/repos/wavelets/deltalog"
	"github.com/weaviate/wavestore/adapters/repos/wavelets/snapshots"
	enterrors "github.com/weaviate/wavestore/entities/errors"
	"github.com/weaviate/wavestore/entities/wavelet"
	"github.com/weaviate/wavestore/usecases/monitoring"
)

// observed records the duration and outcome of one access object call and
// converts its error into a PersistenceError.
func observed(store string, name wavelet.Name, metrics *monitoring.PrometheusMetrics,
	logger logrus.FieldLogger, op string, started time.Time, err error,
) error {
	metrics.ObserveOperation(store, op, started, err)
	if err == nil {
		return nil
	}

	// lookups past the end and closed handles are part of normal operation
	if !enterrors.IsPrecondition(err) && !enterrors.IsClosed(err) {
		logger.WithField("action", store+"_"+op).
			WithError(err).
			Error("stream operation failed")
	}
	return enterrors.NewPersistence(op, name.String(), err)
}

type instrumentedDeltas struct {
	name    wavelet.Name
	log     *deltalog.Log
	metrics *monitoring.PrometheusMetrics
	logger  logrus.FieldLogger
}

func (d *instrumentedDeltas) done(op string, started time.Time, err error) error {
	return observed(monitoring.StoreDeltas, d.name, d.metrics, d.logger, op, started, err)
}

func (d *instrumentedDeltas) Append(records []*wavelet.DeltaRecord) error {
	started := time.Now()
	return d.done("append", started, d.log.Append(records))
}

func (d *instrumentedDeltas) DeltaByStartVersion(version int64) (*wavelet.DeltaRecord, error) {
	started := time.Now()
	rec, err := d.log.DeltaByStartVersion(version)
	return rec, d.done("delta_by_start_version", started, err)
}

func (d *instrumentedDeltas) DeltaByEndVersion(version int64) (*wavelet.DeltaRecord, error) {
	started := time.Now()
	rec, err := d.log.DeltaByEndVersion(version)
	return rec, d.done("delta_by_end_version", started, err)
}

func (d *instrumentedDeltas) DeltaByArbitraryVersion(version int64) (*wavelet.DeltaRecord, error) {
	started := time.Now()
	rec, err := d.log.DeltaByArbitraryVersion(version)
	return rec, d.done("delta_by_arbitrary_version", started, err)
}

func (d *instrumentedDeltas) DeltasFromVersion(version int64, sink func(*wavelet.DeltaRecord) bool) error {
	started := time.Now()
	return d.done("deltas_from_version", started, d.log.DeltasFromVersion(version, sink))
}

func (d *instrumentedDeltas) IsEmpty() (bool, error) {
	started := time.Now()
	empty, err := d.log.IsEmpty()
	return empty, d.done("is_empty", started, err)
}

func (d *instrumentedDeltas) EndVersion() (int64, error) {
	started := time.Now()
	v, err := d.log.EndVersion()
	return v, d.done("end_version", started, err)
}

func (d *instrumentedDeltas) LastModifiedVersion() (int64, error) {
	started := time.Now()
	v, err := d.log.LastModifiedVersion()
	return v, d.done("last_modified_version", started, err)
}

func (d *instrumentedDeltas) LastModifiedTime() (time.Time, error) {
	started := time.Now()
	ts, err := d.log.LastModifiedTime()
	return ts, d.done("last_modified_time", started, err)
}

func (d *instrumentedDeltas) Recovery() deltalog.RecoveryReport {
	return d.log.Recovery()
}

func (d *instrumentedDeltas) Close() error {
	return enterrors.NewPersistence("close", d.name.String(), d.log.Close())
}

type instrumentedSnapshots struct {
	name    wavelet.Name
	store   *snapshots.Store
	metrics *monitoring.PrometheusMetrics
	logger  logrus.FieldLogger
}

func (s *instrumentedSnapshots) done(op string, started time.Time, err error) error {
	return observed(monitoring.StoreSnapshots, s.name, s.metrics, s.logger, op, started, err)
}

func (s *instrumentedSnapshots) ReadInitialSnapshot() (*wavelet.Snapshot, error) {
	started := time.Now()
	snap, err := s.store.ReadInitialSnapshot()
	return snap, s.done("read_initial_snapshot", started, err)
}

func (s *instrumentedSnapshots) WriteInitialSnapshot(snap *wavelet.Snapshot) error {
	started := time.Now()
	return s.done("write_initial_snapshot", started, s.store.WriteInitialSnapshot(snap))
}

func (s *instrumentedSnapshots) WriteSnapshotToHistory(snap *wavelet.Snapshot) error {
	started := time.Now()
	return s.done("write_snapshot_to_history", started, s.store.WriteSnapshotToHistory(snap))
}

func (s *instrumentedSnapshots) ReadNearestSnapshot(version int64) (*wavelet.Snapshot, error) {
	started := time.Now()
	snap, err := s.store.ReadNearestSnapshot(version)
	return snap, s.done("read_nearest_snapshot", started, err)
}

func (s *instrumentedSnapshots) LastHistorySnapshotVersion() (int64, error) {
	started := time.Now()
	v, err := s.store.LastHistorySnapshotVersion()
	return v, s.done("last_history_snapshot_version", started, err)
}

func (s *instrumentedSnapshots) RemakeSnapshotsHistory(deltas snapshots.DeltaReader,
	newState snapshots.StateFactory, period int64,
) error {
	started := time.Now()
	err := s.store.RemakeSnapshotsHistory(deltas, newState, period)
	if err == nil {
		s.logger.WithField("action", "remake_snapshots_history").
			WithField("took", time.Since(started)).
			Debug("snapshot history rebuilt")
	}
	return s.done("remake_snapshots_history", started, err)
}

func (s *instrumentedSnapshots) Close() error {
	return enterrors.NewPersistence("close", s.name.String(), s.store.Close())
}

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

// Package wavelets provides the store façades that hand out per-stream
// access objects for delta logs and snapshot stores, cache them, and
// enumerate the streams present on disk.
package wavelets

import (
	"time"

	"github.com/weaviate/wavestore/adapters/repos/wavelets/deltalog"
	"github.com/weaviate/wavestore/adapters/repos/wavelets/snapshots"
	"github.com/weaviate/wavestore/entities/wavelet"
)

// DeltaAccess is the per-stream handle of a DeltaStore. Every error it
// returns is an *errors.PersistenceError.
type DeltaAccess interface {
	Append(records []*wavelet.DeltaRecord) error
	DeltaByStartVersion(version int64) (*wavelet.DeltaRecord, error)
	DeltaByEndVersion(version int64) (*wavelet.DeltaRecord, error)
	DeltaByArbitraryVersion(version int64) (*wavelet.DeltaRecord, error)
	DeltasFromVersion(version int64, sink func(*wavelet.DeltaRecord) bool) error
	IsEmpty() (bool, error)
	EndVersion() (int64, error)
	LastModifiedVersion() (int64, error)
	LastModifiedTime() (time.Time, error)
	Recovery() deltalog.RecoveryReport
	Close() error
}

// SnapshotAccess is the per-stream handle of a SnapshotStore. Every error it
// returns is an *errors.PersistenceError.
type SnapshotAccess interface {
	ReadInitialSnapshot() (*wavelet.Snapshot, error)
	WriteInitialSnapshot(snap *wavelet.Snapshot) error
	WriteSnapshotToHistory(snap *wavelet.Snapshot) error
	ReadNearestSnapshot(version int64) (*wavelet.Snapshot, error)
	LastHistorySnapshotVersion() (int64, error)
	RemakeSnapshotsHistory(deltas snapshots.DeltaReader, newState snapshots.StateFactory, period int64) error
	Close() error
}

var (
	_ DeltaAccess    = (*instrumentedDeltas)(nil)
	_ SnapshotAccess = (*instrumentedSnapshots)(nil)
)

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

package wavestate

import (
	"github.com/pkg/errors"

	enterrors "github.com/weaviate/wavestore/entities/errors"
	"github.com/weaviate/wavestore/entities/wavelet"
)

type SnapshotReader interface {
	ReadNearestSnapshot(version int64) (*wavelet.Snapshot, error)
}

type DeltaReader interface {
	DeltasFromVersion(version int64, sink func(*wavelet.DeltaRecord) bool) error
}

// Reconstruct materializes the state at version by loading the nearest
// checkpoint at or below it and replaying the deltas that follow. version
// must be a delta boundary within the log.
func Reconstruct(snaps SnapshotReader, deltas DeltaReader, version int64) (*State, error) {
	if version < 0 {
		return nil, enterrors.NewPrecondition("negative version %d", version)
	}

	state := New()
	snap, err := snaps.ReadNearestSnapshot(version)
	if err != nil {
		return nil, errors.Wrapf(err, "read nearest snapshot for version %d", version)
	}
	if snap != nil {
		if state, err = FromSnapshot(snap); err != nil {
			return nil, err
		}
	}

	if err := Replay(state, deltas, version); err != nil {
		return nil, err
	}
	return state, nil
}

// Replay applies the deltas following the state version until version is
// reached.
func Replay(state *State, deltas DeltaReader, version int64) error {
	if state.Version() == version {
		return nil
	}
	if state.Version() > version {
		return enterrors.NewPrecondition("state at version %d is already past version %d",
			state.Version(), version)
	}

	var applyErr error
	err := deltas.DeltasFromVersion(state.Version(), func(rec *wavelet.DeltaRecord) bool {
		if rec.ResultingVersion() > version {
			applyErr = enterrors.NewPrecondition("version %d lies inside the delta [%d, %d)",
				version, rec.AppliedAtVersion(), rec.ResultingVersion())
			return false
		}
		if applyErr = state.Apply(rec.Transformed); applyErr != nil {
			return false
		}
		return rec.ResultingVersion() < version
	})
	if err != nil {
		return errors.Wrapf(err, "replay deltas from version %d", state.Version())
	}
	if applyErr != nil {
		return applyErr
	}
	if state.Version() != version {
		return enterrors.NewPrecondition("delta log ends at version %d before version %d",
			state.Version(), version)
	}
	return nil
}

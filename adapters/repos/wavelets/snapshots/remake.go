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

package snapshots

import (
	"time"

	"github.com/pkg/errors"

	enterrors "github.com/weaviate/wavestore/entities/errors"
	"github.com/weaviate/wavestore/entities/wavelet"
)

// DeltaReader is the part of a delta log a rebuild replays from.
type DeltaReader interface {
	DeltasFromVersion(version int64, sink func(*wavelet.DeltaRecord) bool) error
}

// State accumulates transformed deltas into wavelet state.
type State interface {
	Apply(delta *wavelet.TransformedDelta) error
	Version() int64
	Snapshot() (*wavelet.Snapshot, error)
}

type StateFactory func() State

// RemakeSnapshotsHistory discards the history and rebuilds it by replaying
// every delta of deltas into a fresh state, writing a checkpoint whenever
// the version advanced by at least period since the previous one. The final
// state becomes the new initial snapshot. An empty delta log leaves the
// history empty and the initial snapshot untouched.
func (s *Store) RemakeSnapshotsHistory(deltas DeltaReader, newState StateFactory, period int64) error {
	if period <= 0 {
		return enterrors.NewPrecondition("snapshot period must be positive, got %d", period)
	}

	return s.guard.Run(func() error {
		return s.remake(deltas, newState(), period)
	})
}

func (s *Store) remake(deltas DeltaReader, state State, period int64) error {
	started := time.Now()
	if err := s.clearHistory(); err != nil {
		return err
	}

	var (
		applied        int
		lastCheckpoint int64
		sinkErr        error
	)
	err := deltas.DeltasFromVersion(0, func(rec *wavelet.DeltaRecord) bool {
		if err := state.Apply(rec.Transformed); err != nil {
			sinkErr = errors.Wrapf(err, "apply delta at version %d", rec.AppliedAtVersion())
			return false
		}
		applied++

		if state.Version()-lastCheckpoint < period {
			return true
		}
		snap, err := state.Snapshot()
		if err != nil {
			sinkErr = errors.Wrapf(err, "snapshot state at version %d", state.Version())
			return false
		}
		if err := s.appendHistory(snap); err != nil {
			sinkErr = err
			return false
		}
		lastCheckpoint = state.Version()
		return true
	})
	if err != nil {
		return errors.Wrap(err, "replay delta log")
	}
	if sinkErr != nil {
		return sinkErr
	}

	if applied == 0 {
		s.logger.WithField("action", "snapshot_remake").
			Info("delta log is empty, no snapshots written")
		return nil
	}

	snap, err := state.Snapshot()
	if err != nil {
		return errors.Wrapf(err, "snapshot state at version %d", state.Version())
	}
	if err := s.writeInitial(snap); err != nil {
		return err
	}

	s.logger.WithField("action", "snapshot_remake").
		WithField("deltas", applied).
		WithField("version", state.Version()).
		WithField("last_checkpoint", lastCheckpoint).
		WithField("took", time.Since(started)).
		Info("rebuilt snapshot history")
	return nil
}

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

// Package admin runs maintenance over every stream of a data directory:
// rebuilding snapshot histories, reindexing delta logs, reconstructing and
// deleting streams.
package admin

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/wavestore/adapters/repos/wavelets"
	"github.com/weaviate/wavestore/adapters/repos/wavelets/blocks"
	"github.com/weaviate/wavestore/adapters/repos/wavelets/snapshots"
	enterrors "github.com/weaviate/wavestore/entities/errors"
	"github.com/weaviate/wavestore/entities/wavelet"
	"github.com/weaviate/wavestore/usecases/monitoring"
	"github.com/weaviate/wavestore/usecases/wavestate"
)

const (
	OperationRemakeSnapshots = "remake_snapshots"
	OperationReindexDeltas   = "reindex_deltas"
)

type Config struct {
	SavingSnapshotPeriod int64
	Concurrency          int
}

func (c Config) Validate() error {
	if c.SavingSnapshotPeriod <= 0 {
		return enterrors.NewPrecondition("snapshot period must be positive, got %d", c.SavingSnapshotPeriod)
	}
	if c.Concurrency <= 0 {
		return enterrors.NewPrecondition("concurrency must be positive, got %d", c.Concurrency)
	}
	return nil
}

// Report is the outcome of a batch operation. Failures is keyed by the
// stream name.
type Report struct {
	Processed int
	Failures  map[string]error
	Took      time.Duration
}

func (r Report) Failed() int {
	return len(r.Failures)
}

// FailedStreams lists the names of the failed streams in order.
func (r Report) FailedStreams() []string {
	names := make([]string, 0, len(r.Failures))
	for name := range r.Failures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Admin struct {
	deltas    *wavelets.DeltaStore
	snapshots *wavelets.SnapshotStore
	blocks    *blocks.Store
	config    Config
	logger    logrus.FieldLogger
	metrics   *monitoring.PrometheusMetrics
}

// New creates the admin usecase. blocks and metrics are optional.
func New(deltas *wavelets.DeltaStore, snaps *wavelets.SnapshotStore, blockStore *blocks.Store,
	config Config, logger logrus.FieldLogger, metrics *monitoring.PrometheusMetrics,
) (*Admin, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Admin{
		deltas:    deltas,
		snapshots: snaps,
		blocks:    blockStore,
		config:    config,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Streams lists every stream that has a delta log, grouped by wave with the
// most recently modified wave first.
func (a *Admin) Streams(ctx context.Context) ([]wavelet.Name, error) {
	it, err := a.deltas.WaveIDIterator()
	if err != nil {
		return nil, err
	}

	var names []wavelet.Name
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := a.deltas.Lookup(it.WaveID())
		if err != nil {
			return nil, err
		}
		names = append(names, found...)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// RemakeSnapshots rebuilds the snapshot history of every stream from its
// delta log. A stream whose snapshot files are unreadable gets them
// recreated from scratch.
func (a *Admin) RemakeSnapshots(ctx context.Context) (Report, error) {
	return a.forEachStream(ctx, OperationRemakeSnapshots, a.RemakeStream)
}

// RemakeStream rebuilds the snapshot history of one stream.
func (a *Admin) RemakeStream(name wavelet.Name) error {
	deltas, err := a.deltas.Open(name)
	if err != nil {
		return err
	}

	snaps, err := a.snapshots.Open(name)
	if err != nil {
		if !enterrors.IsFormat(err) {
			return err
		}
		a.logger.WithField("action", "snapshot_remake").
			WithField("wavelet", name.String()).
			WithError(err).
			Warn("snapshot files are corrupt, recreating them")
		if err := a.snapshots.Delete(name); err != nil {
			return err
		}
		if snaps, err = a.snapshots.Open(name); err != nil {
			return err
		}
	}

	return snaps.RemakeSnapshotsHistory(deltas, newState, a.config.SavingSnapshotPeriod)
}

func newState() snapshots.State {
	return wavestate.New()
}

// ReindexDeltas rebuilds the delta index of every stream.
func (a *Admin) ReindexDeltas(ctx context.Context) (Report, error) {
	return a.forEachStream(ctx, OperationReindexDeltas, func(name wavelet.Name) error {
		report, err := a.deltas.RebuildIndex(name)
		if err != nil {
			return err
		}
		if report.TruncatedBytes > 0 {
			a.logger.WithField("action", "delta_reindex").
				WithField("wavelet", name.String()).
				WithField("truncated_bytes", report.TruncatedBytes).
				Warn("reindex dropped a partial tail")
		}
		return nil
	})
}

// Reconstruct materializes the state of name at version. A negative version
// selects the end of the delta log.
func (a *Admin) Reconstruct(name wavelet.Name, version int64) (*wavestate.State, error) {
	deltas, err := a.deltas.Open(name)
	if err != nil {
		return nil, err
	}
	snaps, err := a.snapshots.Open(name)
	if err != nil {
		return nil, err
	}

	if version < 0 {
		if version, err = deltas.EndVersion(); err != nil {
			return nil, err
		}
	}
	return wavestate.Reconstruct(snaps, deltas, version)
}

// DeleteStream removes every file and block of name.
func (a *Admin) DeleteStream(name wavelet.Name) error {
	var result *multierror.Error
	if err := a.deltas.Delete(name); err != nil {
		result = multierror.Append(result, err)
	}
	if err := a.snapshots.Delete(name); err != nil {
		result = multierror.Append(result, err)
	}
	if a.blocks != nil {
		if err := a.blocks.Delete(name); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (a *Admin) forEachStream(ctx context.Context, operation string,
	process func(name wavelet.Name) error,
) (Report, error) {
	started := time.Now()
	report := Report{Failures: map[string]error{}}

	names, err := a.Streams(ctx)
	if err != nil {
		return report, errors.Wrapf(err, "%s: list streams", operation)
	}

	logger := a.logger.WithField("action", operation)
	logger.WithField("streams", len(names)).Info("starting batch operation")

	var mu sync.Mutex
	eg := enterrors.NewErrorGroupWrapper(a.logger, operation)
	eg.SetLimit(a.config.Concurrency)
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}

		name := name
		eg.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			err := process(name)
			a.metrics.AdminStreamProcessed(operation, err)

			mu.Lock()
			defer mu.Unlock()
			report.Processed++
			if err != nil {
				report.Failures[name.String()] = err
				logger.WithField("wavelet", name.String()).WithError(err).Error("stream failed")
			}
			return nil
		}, name.String())
	}

	if err := eg.Wait(); err != nil {
		return report, errors.Wrapf(err, "%s", operation)
	}
	report.Took = time.Since(started)

	logger.WithField("processed", report.Processed).
		WithField("failed", report.Failed()).
		WithField("took", report.Took).
		Info("finished batch operation")
	return report, ctx.Err()
}

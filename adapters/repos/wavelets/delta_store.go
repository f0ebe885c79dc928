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
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/wavestore/adapters/repos/wavelets/deltalog"
	"github.com/weaviate/wavestore/adapters/repos/wavelets/paths"
	"github.com/weaviate/wavestore/entities/diskio"
	enterrors "github.com/weaviate/wavestore/entities/errors"
	"github.com/weaviate/wavestore/entities/wavelet"
	"github.com/weaviate/wavestore/usecases/monitoring"
)

// DeltaStore hands out the delta logs below one root directory.
type DeltaStore struct {
	*fileStore
	cache *streamCache[DeltaAccess]
}

// NewDeltaStore creates root if needed. metrics may be nil.
func NewDeltaStore(root string, logger logrus.FieldLogger, metrics *monitoring.PrometheusMetrics,
	opts ...StoreOption,
) (*DeltaStore, error) {
	o, err := applyStoreOptions(opts)
	if err != nil {
		return nil, err
	}

	fs, err := newFileStore(monitoring.StoreDeltas, root, paths.DeltasSuffix,
		[]string{paths.DeltasSuffix, paths.DeltaIndexSuffix}, logger, metrics)
	if err != nil {
		return nil, err
	}

	s := &DeltaStore{fileStore: fs}
	s.cache, err = newStreamCache(monitoring.StoreDeltas, o.cacheSize, s.openAccess, fs.logger, metrics)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Open returns the delta log of name, opening and recovering it on first
// use. The handle stays valid until the stream is evicted, deleted or the
// store shuts down; afterwards its methods fail with errors.ErrClosed.
func (s *DeltaStore) Open(name wavelet.Name) (DeltaAccess, error) {
	if err := name.Validate(); err != nil {
		return nil, enterrors.NewPersistence("open deltas", name.String(), err)
	}

	access, err := s.cache.get(name)
	if err != nil {
		return nil, enterrors.NewPersistence("open deltas", name.String(), err)
	}
	return access, nil
}

func (s *DeltaStore) openAccess(name wavelet.Name) (DeltaAccess, error) {
	if err := s.ensureWaveDir(name); err != nil {
		return nil, err
	}

	logger := s.logger.WithField("wavelet", name.String())
	log, err := deltalog.Open(
		s.mapper.File(name, paths.DeltasSuffix),
		s.mapper.File(name, paths.DeltaIndexSuffix),
		logger,
		deltalog.WithReadCallback(func(n, _ int64) { s.metrics.DiskRead(s.label, n) }),
		deltalog.WithWriteCallback(func(n int64) { s.metrics.DiskWritten(s.label, n) }),
	)
	if err != nil {
		return nil, err
	}

	report := log.Recovery()
	s.metrics.DeltaLogRecovered(report.RebuiltIndex, report.ReindexedRecords, report.TruncatedBytes)

	return &instrumentedDeltas{
		name:    name,
		log:     log,
		metrics: s.metrics,
		logger:  logger,
	}, nil
}

// Delete closes the delta log of name if it is open and removes its files.
// Deleting a stream that was never opened or does not exist succeeds.
func (s *DeltaStore) Delete(name wavelet.Name) error {
	err := s.cache.remove(name, func() error {
		return s.removeFiles(name)
	})
	return enterrors.NewPersistence("delete deltas", name.String(), err)
}

// Lookup lists the streams of waveID that have a delta log.
func (s *DeltaStore) Lookup(waveID string) ([]wavelet.Name, error) {
	return s.lookup(waveID)
}

// WaveIDIterator enumerates the waves with at least one delta log.
func (s *DeltaStore) WaveIDIterator() (*WaveIDIterator, error) {
	return s.waveIDs()
}

// RebuildIndex discards the delta index of name and reopens the log, which
// rebuilds the index with a full scan.
func (s *DeltaStore) RebuildIndex(name wavelet.Name) (deltalog.RecoveryReport, error) {
	err := s.cache.remove(name, func() error {
		if err := diskio.RemoveIfExists(s.mapper.File(name, paths.DeltaIndexSuffix)); err != nil {
			return errors.Wrap(err, "remove delta index")
		}
		return nil
	})
	if err != nil {
		return deltalog.RecoveryReport{}, enterrors.NewPersistence("rebuild delta index", name.String(), err)
	}

	access, err := s.Open(name)
	if err != nil {
		return deltalog.RecoveryReport{}, err
	}
	return access.Recovery(), nil
}

// Shutdown closes every open delta log.
func (s *DeltaStore) Shutdown(ctx context.Context) error {
	return enterrors.NewPersistence("shutdown deltas", "", s.cache.shutdown(ctx))
}

// OpenStreams is the number of delta logs currently held open.
func (s *DeltaStore) OpenStreams() int {
	return s.cache.len()
}

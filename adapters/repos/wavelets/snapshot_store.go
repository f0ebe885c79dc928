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

	"github.com/sirupsen/logrus"

	"github.com/weaviate/wavestore/adapters/repos/wavelets/paths"
	"github.com/weaviate/wavestore/adapters/repos/wavelets/snapshots"
	enterrors "github.com/weaviate/wavestore/entities/errors"
	"github.com/weaviate/wavestore/entities/wavelet"
	"github.com/weaviate/wavestore/usecases/monitoring"
)

// SnapshotStore hands out the snapshot stores below one root directory.
type SnapshotStore struct {
	*fileStore
	cache *streamCache[SnapshotAccess]
}

func NewSnapshotStore(root string, logger logrus.FieldLogger, metrics *monitoring.PrometheusMetrics,
	opts ...StoreOption,
) (*SnapshotStore, error) {
	o, err := applyStoreOptions(opts)
	if err != nil {
		return nil, err
	}

	fs, err := newFileStore(monitoring.StoreSnapshots, root, paths.HistorySuffix,
		[]string{paths.SnapshotSuffix, paths.HistorySuffix, paths.HistoryIndexSuffix}, logger, metrics)
	if err != nil {
		return nil, err
	}

	s := &SnapshotStore{fileStore: fs}
	s.cache, err = newStreamCache(monitoring.StoreSnapshots, o.cacheSize, s.openAccess, fs.logger, metrics)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Open returns the snapshot store of name, creating it on first use.
func (s *SnapshotStore) Open(name wavelet.Name) (SnapshotAccess, error) {
	if err := name.Validate(); err != nil {
		return nil, enterrors.NewPersistence("open snapshots", name.String(), err)
	}

	access, err := s.cache.get(name)
	if err != nil {
		return nil, enterrors.NewPersistence("open snapshots", name.String(), err)
	}
	return access, nil
}

func (s *SnapshotStore) openAccess(name wavelet.Name) (SnapshotAccess, error) {
	if err := s.ensureWaveDir(name); err != nil {
		return nil, err
	}

	logger := s.logger.WithField("wavelet", name.String())
	store, err := snapshots.Open(snapshots.Files{
		Initial: s.mapper.File(name, paths.SnapshotSuffix),
		History: s.mapper.File(name, paths.HistorySuffix),
		Index:   s.mapper.File(name, paths.HistoryIndexSuffix),
	}, logger, snapshots.WithWriteCallback(func(n int64) { s.metrics.DiskWritten(s.label, n) }))
	if err != nil {
		return nil, err
	}

	return &instrumentedSnapshots{
		name:    name,
		store:   store,
		metrics: s.metrics,
		logger:  logger,
	}, nil
}

// Delete closes the snapshot store of name if it is open and removes its
// files.
func (s *SnapshotStore) Delete(name wavelet.Name) error {
	err := s.cache.remove(name, func() error {
		return s.removeFiles(name)
	})
	return enterrors.NewPersistence("delete snapshots", name.String(), err)
}

// Lookup lists the streams of waveID that have a snapshot store.
func (s *SnapshotStore) Lookup(waveID string) ([]wavelet.Name, error) {
	return s.lookup(waveID)
}

func (s *SnapshotStore) WaveIDIterator() (*WaveIDIterator, error) {
	return s.waveIDs()
}

func (s *SnapshotStore) Shutdown(ctx context.Context) error {
	return enterrors.NewPersistence("shutdown snapshots", "", s.cache.shutdown(ctx))
}

func (s *SnapshotStore) OpenStreams() int {
	return s.cache.len()
}

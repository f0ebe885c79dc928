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
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/wavestore/adapters/repos/wavelets/paths"
	"github.com/weaviate/wavestore/entities/diskio"
	enterrors "github.com/weaviate/wavestore/entities/errors"
	"github.com/weaviate/wavestore/entities/wavelet"
	"github.com/weaviate/wavestore/usecases/monitoring"
)

type storeOptions struct {
	cacheSize int
}

type StoreOption func(o *storeOptions) error

// WithCacheSize bounds the number of access objects kept open.
func WithCacheSize(size int) StoreOption {
	return func(o *storeOptions) error {
		if size <= 0 {
			return enterrors.NewPrecondition("cache size must be positive, got %d", size)
		}
		o.cacheSize = size
		return nil
	}
}

const defaultCacheSize = 1024

func applyStoreOptions(opts []StoreOption) (storeOptions, error) {
	o := storeOptions{cacheSize: defaultCacheSize}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return o, err
		}
	}
	return o, nil
}

// fileStore is the part shared by the façades: the directory layout, file
// removal and stream enumeration. primary is the suffix whose presence marks
// a stream as existing, suffixes lists every file a stream owns.
type fileStore struct {
	label    string
	mapper   *paths.Mapper
	logger   logrus.FieldLogger
	metrics  *monitoring.PrometheusMetrics
	primary  string
	suffixes []string
}

func newFileStore(label, root string, primary string, suffixes []string,
	logger logrus.FieldLogger, metrics *monitoring.PrometheusMetrics,
) (*fileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, enterrors.NewPersistence("create store root", "", errors.Wrapf(err, "mkdir %q", root))
	}
	return &fileStore{
		label:    label,
		mapper:   paths.NewMapper(root),
		logger:   logger.WithField("store", label),
		metrics:  metrics,
		primary:  primary,
		suffixes: suffixes,
	}, nil
}

func (s *fileStore) ensureWaveDir(name wavelet.Name) error {
	if err := os.MkdirAll(s.mapper.WaveDir(name.WaveID), 0o755); err != nil {
		return errors.Wrapf(err, "create wave directory of %s", name)
	}
	return nil
}

// removeFiles deletes every file of name and the wave directory once it is
// empty.
func (s *fileStore) removeFiles(name wavelet.Name) error {
	var result *multierror.Error
	for _, suffix := range s.suffixes {
		if err := diskio.RemoveIfExists(s.mapper.File(name, suffix)); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "remove %s file", suffix))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}

	waveDir := s.mapper.WaveDir(name.WaveID)
	empty, err := diskio.IsDirEmpty(waveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "inspect wave directory of %s", name)
	}
	if empty {
		// another stream of the wave may be created concurrently
		if err := os.Remove(waveDir); err != nil && !os.IsNotExist(err) {
			s.logger.WithField("action", "delete_stream").
				WithField("path", waveDir).
				WithError(err).
				Debug("keep wave directory")
		}
	}
	return nil
}

func (s *fileStore) lookup(waveID string) ([]wavelet.Name, error) {
	ids, err := s.mapper.WaveletIDs(waveID, s.primary)
	if err != nil {
		return nil, enterrors.NewPersistence("lookup", waveID, err)
	}

	names := make([]wavelet.Name, len(ids))
	for i, id := range ids {
		names[i] = wavelet.Name{WaveID: waveID, WaveletID: id}
	}
	return names, nil
}

func (s *fileStore) waveIDs() (*WaveIDIterator, error) {
	dirs, err := s.mapper.WaveDirs()
	if err != nil {
		return nil, enterrors.NewPersistence("list waves", "", err)
	}

	return &WaveIDIterator{
		dirs: dirs,
		hasChildren: func(waveID string) (bool, error) {
			names, err := s.lookup(waveID)
			return len(names) > 0, err
		},
	}, nil
}

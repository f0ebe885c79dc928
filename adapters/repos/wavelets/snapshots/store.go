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

// Package snapshots stores the checkpoints of a single wavelet: one initial
// snapshot that is replaced wholesale and an append-only history of periodic
// checkpoints with an index for nearest-version lookups.
package snapshots

import (
	"bufio"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/wavestore/entities/diskio"
	enterrors "github.com/weaviate/wavestore/entities/errors"
	"github.com/weaviate/wavestore/entities/lifecycle"
	"github.com/weaviate/wavestore/entities/wavelet"
)

// Files names the three files of one snapshot store.
type Files struct {
	Initial string
	History string
	Index   string
}

type Store struct {
	guard  *lifecycle.Guard
	logger logrus.FieldLogger
	files  Files

	history     *os.File
	historySize int64
	index       *snapshotIndex

	onWrite diskio.MeteredWriterCallback
}

type Option func(s *Store) error

// WithWriteCallback reports bytes written to the initial snapshot and the
// history.
func WithWriteCallback(cb diskio.MeteredWriterCallback) Option {
	return func(s *Store) error {
		s.onWrite = cb
		return nil
	}
}

func Open(files Files, logger logrus.FieldLogger, opts ...Option) (*Store, error) {
	s := &Store{
		guard:  lifecycle.NewGuard(),
		logger: logger.WithField("path", files.History),
		files:  files,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if err := s.open(); err != nil {
		if releaseErr := s.release(); releaseErr != nil {
			s.logger.WithField("action", "snapshot_store_open").WithError(releaseErr).
				Warn("release file handles after failed open")
		}
		return nil, err
	}

	s.guard.MarkOpen()
	return s, nil
}

func (s *Store) open() error {
	f, err := os.OpenFile(s.files.History, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return errors.Wrapf(err, "open snapshot history %q", s.files.History)
	}
	s.history = f

	index, err := openSnapshotIndex(s.files.Index)
	if err != nil {
		return err
	}
	s.index = index

	return s.trimHistory()
}

// trimHistory cuts history records that were written but never indexed,
// which only a crash between the two writes leaves behind.
func (s *Store) trimHistory() error {
	info, err := s.history.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat snapshot history %q", s.files.History)
	}

	end := int64(0)
	if s.index.lastVersion > 0 {
		snap, n, err := readRecordAt(s.history, s.index.lastOffset, info.Size())
		if err != nil {
			return errors.Wrapf(err, "read last indexed snapshot of %q", s.files.History)
		}
		if snap.Version != s.index.lastVersion {
			return enterrors.NewFormat("last indexed snapshot has version %d, index ends at %d",
				snap.Version, s.index.lastVersion)
		}
		end = s.index.lastOffset + n
	}

	if end < info.Size() {
		s.logger.WithField("action", "snapshot_history_truncate").
			WithField("valid_size", end).
			WithField("file_size", info.Size()).
			Warn("snapshot history has unindexed trailing data, truncating")
		if err := s.history.Truncate(end); err != nil {
			return errors.Wrapf(err, "truncate snapshot history %q", s.files.History)
		}
		if err := s.history.Sync(); err != nil {
			return errors.Wrap(err, "fsync truncated snapshot history")
		}
	}

	s.historySize = end
	return nil
}

// ReadInitialSnapshot returns the initial snapshot or nil if none was
// written yet.
func (s *Store) ReadInitialSnapshot() (*wavelet.Snapshot, error) {
	return lifecycle.Call(s.guard, s.readInitial)
}

func (s *Store) readInitial() (*wavelet.Snapshot, error) {
	f, err := os.Open(s.files.Initial)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "open initial snapshot %q", s.files.Initial)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "stat initial snapshot %q", s.files.Initial)
	}
	snap, _, err := readRecord(bufio.NewReader(f), info.Size())
	if err != nil {
		return nil, errors.Wrapf(err, "initial snapshot %q", s.files.Initial)
	}
	return snap, nil
}

// WriteInitialSnapshot replaces the initial snapshot atomically.
func (s *Store) WriteInitialSnapshot(snap *wavelet.Snapshot) error {
	return s.guard.Run(func() error {
		return s.writeInitial(snap)
	})
}

func (s *Store) writeInitial(snap *wavelet.Snapshot) error {
	buf, err := encodeRecord(snap)
	if err != nil {
		return err
	}

	tmpPath := s.files.Initial + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return errors.Wrapf(err, "create temporary snapshot %q", tmpPath)
	}

	if _, err := diskio.NewMeteredWriter(tmp, s.onWrite).Write(buf); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write temporary snapshot %q", tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "fsync temporary snapshot %q", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close temporary snapshot %q", tmpPath)
	}

	if err := os.Rename(tmpPath, s.files.Initial); err != nil {
		return errors.Wrapf(err, "rename %q to %q", tmpPath, s.files.Initial)
	}
	if err := diskio.FsyncDir(s.files.Initial); err != nil {
		return errors.Wrap(err, "fsync snapshot directory")
	}
	return nil
}

// WriteSnapshotToHistory appends a checkpoint. Its version must be greater
// than the version of the last checkpoint.
func (s *Store) WriteSnapshotToHistory(snap *wavelet.Snapshot) error {
	return s.guard.Run(func() error {
		return s.appendHistory(snap)
	})
}

func (s *Store) appendHistory(snap *wavelet.Snapshot) error {
	if snap.Version <= s.index.lastVersion {
		return enterrors.NewPrecondition("snapshot version %d must be greater than last history version %d",
			snap.Version, s.index.lastVersion)
	}

	buf, err := encodeRecord(snap)
	if err != nil {
		return err
	}

	if _, err := s.history.Seek(s.historySize, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek to end of snapshot history")
	}
	if _, err := diskio.NewMeteredWriter(s.history, s.onWrite).Write(buf); err != nil {
		return errors.Wrapf(err, "append snapshot at version %d", snap.Version)
	}
	if err := s.history.Sync(); err != nil {
		return errors.Wrap(err, "fsync snapshot history")
	}

	offset := s.historySize
	s.historySize += int64(len(buf))
	return s.index.add(snap.Version, offset)
}

// ReadNearestSnapshot returns the newest checkpoint whose version is at
// most version, or nil if version precedes the first checkpoint.
func (s *Store) ReadNearestSnapshot(version int64) (*wavelet.Snapshot, error) {
	return lifecycle.Call(s.guard, func() (*wavelet.Snapshot, error) {
		if version < 0 {
			return nil, enterrors.NewPrecondition("negative version %d", version)
		}

		offset, ok, err := s.index.lookup(version)
		if err != nil || !ok {
			return nil, err
		}

		snap, _, err := readRecordAt(s.history, offset, s.historySize)
		if err != nil {
			return nil, errors.Wrapf(err, "read snapshot at offset %d", offset)
		}
		return snap, nil
	})
}

// LastHistorySnapshotVersion is the version of the newest checkpoint, 0 if
// the history is empty.
func (s *Store) LastHistorySnapshotVersion() (int64, error) {
	return lifecycle.Call(s.guard, func() (int64, error) {
		return s.index.lastVersion, nil
	})
}

func (s *Store) clearHistory() error {
	if err := s.history.Truncate(0); err != nil {
		return errors.Wrapf(err, "clear snapshot history %q", s.files.History)
	}
	s.historySize = 0
	if err := s.index.clear(); err != nil {
		return err
	}
	if err := s.history.Sync(); err != nil {
		return errors.Wrap(err, "fsync cleared snapshot history")
	}
	return s.index.sync()
}

func (s *Store) Close() error {
	return s.guard.Close(s.release)
}

func (s *Store) release() error {
	var result *multierror.Error
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "close snapshot history %q", s.files.History))
		}
		s.history = nil
	}
	if s.index != nil {
		if err := s.index.close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "close snapshot index %q", s.files.Index))
		}
		s.index = nil
	}
	s.historySize = 0
	return result.ErrorOrNil()
}

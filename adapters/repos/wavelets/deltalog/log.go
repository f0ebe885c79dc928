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

// Package deltalog implements the append-only, version-indexed delta log of
// a single wavelet together with the crash recovery that runs when it is
// opened.
package deltalog

import (
	"bufio"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/wavestore/entities/diskio"
	enterrors "github.com/weaviate/wavestore/entities/errors"
	"github.com/weaviate/wavestore/entities/lifecycle"
	"github.com/weaviate/wavestore/entities/wavelet"
)

// Log is the delta log of one wavelet. All methods are safe for concurrent
// use; calls are executed one at a time.
type Log struct {
	guard  *lifecycle.Guard
	logger logrus.FieldLogger

	path      string
	indexPath string
	file      *os.File
	index     *deltaIndex

	// end of the last valid record, equal to the file size after recovery
	size int64

	lastModifiedVersion int64
	lastModifiedTime    int64

	recovery RecoveryReport

	onRead  diskio.MeteredReaderCallback
	onWrite diskio.MeteredWriterCallback
}

type Option func(l *Log) error

// WithReadCallback reports bytes read by sequential scans.
func WithReadCallback(cb diskio.MeteredReaderCallback) Option {
	return func(l *Log) error {
		l.onRead = cb
		return nil
	}
}

// WithWriteCallback reports bytes appended to the log.
func WithWriteCallback(cb diskio.MeteredWriterCallback) Option {
	return func(l *Log) error {
		l.onWrite = cb
		return nil
	}
}

// Open opens the delta log at path with its index at indexPath, creating
// both if necessary, and runs recovery before returning.
func Open(path, indexPath string, logger logrus.FieldLogger, opts ...Option) (*Log, error) {
	l := &Log{
		guard:     lifecycle.NewGuard(),
		logger:    logger.WithField("path", path),
		path:      path,
		indexPath: indexPath,
	}

	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}

	if err := l.open(); err != nil {
		if releaseErr := l.release(); releaseErr != nil {
			l.logger.WithField("action", "delta_log_open").WithError(releaseErr).
				Warn("release file handles after failed open")
		}
		return nil, err
	}

	l.guard.MarkOpen()
	return l, nil
}

func (l *Log) open() error {
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return errors.Wrapf(err, "open delta log %q", l.path)
	}
	l.file = f

	size, err := l.initFileHeader()
	if err != nil {
		return err
	}

	index, trusted, err := openDeltaIndex(l.indexPath)
	if err != nil {
		return err
	}
	l.index = index

	return l.recover(trusted, size)
}

// initFileHeader validates the file header, writing it first if the file
// is new or its creation was interrupted. It returns the file size.
func (l *Log) initFileHeader() (int64, error) {
	info, err := l.file.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat delta log %q", l.path)
	}

	header := make([]byte, fileHeaderSize)
	n, err := l.file.ReadAt(header, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, errors.Wrapf(err, "read header of delta log %q", l.path)
	}

	torn, err := checkFileHeader(header[:n])
	if err != nil {
		return 0, errors.Wrapf(err, "delta log %q", l.path)
	}
	if !torn {
		return info.Size(), nil
	}

	if n > 0 {
		l.logger.WithField("action", "delta_log_init").
			Warnf("delta log has a partial header of %d bytes, rewriting it", n)
	}
	if err := l.file.Truncate(0); err != nil {
		return 0, errors.Wrap(err, "truncate delta log before writing header")
	}
	if _, err := l.file.WriteAt(fileHeader(), 0); err != nil {
		return 0, errors.Wrap(err, "write delta log header")
	}
	if err := l.file.Sync(); err != nil {
		return 0, errors.Wrap(err, "fsync delta log header")
	}
	if err := diskio.FsyncDir(l.path); err != nil {
		return 0, errors.Wrap(err, "fsync delta log directory")
	}
	return fileHeaderSize, nil
}

// Append writes records to the end of the log and makes them durable with a
// single fsync. The records must continue the log without gaps: the first
// must be applied at the current end version and each following one at the
// resulting version of its predecessor. On error the log is rolled back to
// its state before the call.
func (l *Log) Append(records []*wavelet.DeltaRecord) error {
	return l.guard.Run(func() error {
		return l.append(records)
	})
}

func (l *Log) append(records []*wavelet.DeltaRecord) error {
	if len(records) == 0 {
		return nil
	}

	expected := l.index.length
	encoded := make([][]byte, len(records))
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return err
		}
		if rec.AppliedAtVersion() != expected {
			return enterrors.NewPrecondition("delta applied at version %d does not continue the log at version %d",
				rec.AppliedAtVersion(), expected)
		}
		expected = rec.ResultingVersion()

		buf, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		encoded[i] = buf
	}

	prevSize, prevLength := l.size, l.index.length
	if err := l.writeRecords(records, encoded); err != nil {
		l.rollback(prevSize, prevLength)
		return err
	}

	last := records[len(records)-1]
	l.lastModifiedVersion = last.ResultingVersion()
	l.lastModifiedTime = last.Transformed.ApplicationTimestamp
	return nil
}

func (l *Log) writeRecords(records []*wavelet.DeltaRecord, encoded [][]byte) error {
	if _, err := l.file.Seek(l.size, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek to end of delta log")
	}

	w := bufio.NewWriter(diskio.NewMeteredWriter(l.file, l.onWrite))
	offset := l.size
	for i, rec := range records {
		if err := l.index.add(rec.AppliedAtVersion(), rec.ResultingVersion(), offset); err != nil {
			return err
		}
		if _, err := w.Write(encoded[i]); err != nil {
			return errors.Wrapf(err, "write delta at version %d", rec.AppliedAtVersion())
		}
		offset += int64(len(encoded[i]))
	}

	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "flush delta log")
	}
	if err := l.file.Sync(); err != nil {
		return errors.Wrap(err, "fsync delta log")
	}

	l.size = offset
	return nil
}

func (l *Log) rollback(size, length int64) {
	if err := l.file.Truncate(size); err != nil {
		l.logger.WithField("action", "delta_log_append_rollback").WithError(err).
			Error("truncate delta log after failed append, recovery will repair it on next open")
	}
	if err := l.index.truncate(length); err != nil {
		l.logger.WithField("action", "delta_log_append_rollback").WithError(err).
			Error("truncate delta index after failed append, recovery will repair it on next open")
	}
	l.size = size
}

// DeltaByStartVersion returns the record applied at version, or nil.
func (l *Log) DeltaByStartVersion(version int64) (*wavelet.DeltaRecord, error) {
	return lifecycle.Call(l.guard, func() (*wavelet.DeltaRecord, error) {
		return l.lookup(version, l.index.offsetForStart)
	})
}

// DeltaByEndVersion returns the record whose resulting version is version,
// or nil.
func (l *Log) DeltaByEndVersion(version int64) (*wavelet.DeltaRecord, error) {
	return lifecycle.Call(l.guard, func() (*wavelet.DeltaRecord, error) {
		return l.lookup(version, l.index.offsetForEnd)
	})
}

// DeltaByArbitraryVersion returns the record whose version span contains
// version, or nil.
func (l *Log) DeltaByArbitraryVersion(version int64) (*wavelet.DeltaRecord, error) {
	return lifecycle.Call(l.guard, func() (*wavelet.DeltaRecord, error) {
		return l.lookup(version, l.index.offsetContaining)
	})
}

func (l *Log) lookup(version int64, resolve func(int64) (int64, bool, error)) (*wavelet.DeltaRecord, error) {
	if version < 0 {
		return nil, enterrors.NewPrecondition("negative version %d", version)
	}

	offset, ok, err := resolve(version)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	rec, _, err := readRecordAt(l.file, offset, l.size)
	if err != nil {
		return nil, errors.Wrapf(err, "read delta at offset %d", offset)
	}
	return rec, nil
}

// DeltasFromVersion streams every record from the one containing version to
// the end of the log into sink, stopping early once sink returns false. The
// sink runs while the log is busy and must not call back into it.
func (l *Log) DeltasFromVersion(version int64, sink func(*wavelet.DeltaRecord) bool) error {
	return l.guard.Run(func() error {
		if version < 0 {
			return enterrors.NewPrecondition("negative version %d", version)
		}

		offset, ok, err := l.index.offsetContaining(version)
		if err != nil || !ok {
			return err
		}

		r := bufio.NewReader(diskio.NewMeteredReader(
			io.NewSectionReader(l.file, offset, l.size-offset), l.onRead))
		for offset < l.size {
			rec, n, err := readRecord(r, l.size-offset)
			if err != nil {
				return errors.Wrapf(err, "read delta at offset %d", offset)
			}
			offset += n
			if !sink(rec) {
				return nil
			}
		}
		return nil
	})
}

func (l *Log) IsEmpty() (bool, error) {
	return lifecycle.Call(l.guard, func() (bool, error) {
		return l.index.length == 0, nil
	})
}

// EndVersion is the resulting version of the last record, 0 for an empty
// log.
func (l *Log) EndVersion() (int64, error) {
	return lifecycle.Call(l.guard, func() (int64, error) {
		return l.index.length, nil
	})
}

// LastModifiedVersion is the resulting version of the most recently
// appended record, 0 if the log is empty.
func (l *Log) LastModifiedVersion() (int64, error) {
	return lifecycle.Call(l.guard, func() (int64, error) {
		return l.lastModifiedVersion, nil
	})
}

// LastModifiedTime is the application time of the most recently appended
// record, the zero time if the log is empty.
func (l *Log) LastModifiedTime() (time.Time, error) {
	return lifecycle.Call(l.guard, func() (time.Time, error) {
		if l.lastModifiedVersion == 0 {
			return time.Time{}, nil
		}
		return time.UnixMilli(l.lastModifiedTime), nil
	})
}

// Recovery describes what the recovery run at open time changed.
func (l *Log) Recovery() RecoveryReport {
	return l.recovery
}

func (l *Log) Path() string {
	return l.path
}

// Close releases the file handles. Every later call fails with
// errors.ErrClosed; closing twice is a no-op.
func (l *Log) Close() error {
	return l.guard.Close(l.release)
}

func (l *Log) release() error {
	var result *multierror.Error
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "close delta log %q", l.path))
		}
		l.file = nil
	}
	if l.index != nil {
		if err := l.index.close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "close delta index %q", l.indexPath))
		}
		l.index = nil
	}
	l.size = 0
	l.lastModifiedVersion = 0
	l.lastModifiedTime = 0
	return result.ErrorOrNil()
}

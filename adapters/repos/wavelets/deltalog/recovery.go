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

package deltalog

import (
	"bufio"
	"io"

	"github.com/pkg/errors"

	"github.com/weaviate/wavestore/entities/diskio"
	enterrors "github.com/weaviate/wavestore/entities/errors"
	"github.com/weaviate/wavestore/entities/wavelet"
)

// RecoveryReport summarizes the repairs made while opening a log. A clean
// open yields the zero value.
type RecoveryReport struct {
	// RebuiltIndex is set if the index could not be trusted and was
	// recreated from a full scan of the log.
	RebuiltIndex bool
	// ReindexedRecords counts records that were present in the log but
	// missing from the index.
	ReindexedRecords int
	// TruncatedBytes is the size of the partial tail that was cut off.
	TruncatedBytes int64
	// ScannedBytes is how much of the log was read past the last trusted
	// record.
	ScannedBytes int64
}

func (r RecoveryReport) Repaired() bool {
	return r.RebuiltIndex || r.ReindexedRecords > 0 || r.TruncatedBytes > 0
}

// recover brings log and index into agreement. It trusts the index up to the
// record it claims to be last, if that record can be read back, and scans
// forward from there. Otherwise it rebuilds the index from the first record.
// Whatever follows the last whole record is truncated.
func (l *Log) recover(indexTrusted bool, fileSize int64) error {
	offset, version := int64(fileHeaderSize), int64(0)
	var last *wavelet.DeltaRecord

	if indexTrusted && l.index.length > 0 {
		claimed := l.index.length
		rec, end, err := l.readClaimedLast(claimed, fileSize)
		if err == nil {
			offset, version, last = end, claimed, rec
		} else {
			l.logger.WithField("action", "delta_log_recovery").
				WithField("claimed_version", claimed).
				WithError(err).
				Warn("last indexed delta is unreadable, rebuilding index from log")
			indexTrusted = false
		}
	}

	if !indexTrusted {
		if err := l.index.truncate(0); err != nil {
			return err
		}
		l.recovery.RebuiltIndex = true
	}

	scanned, err := l.scan(offset, version, fileSize)
	if err != nil {
		return err
	}
	if scanned.last != nil {
		last = scanned.last
	}
	if !l.recovery.RebuiltIndex {
		l.recovery.ReindexedRecords = scanned.records
	}

	if scanned.end < fileSize {
		l.recovery.TruncatedBytes = fileSize - scanned.end
		l.logger.WithField("action", "delta_log_truncate").
			WithField("valid_size", scanned.end).
			WithField("file_size", fileSize).
			Warn("delta log has a partial tail, truncating to last whole delta")
		if err := l.file.Truncate(scanned.end); err != nil {
			return errors.Wrapf(err, "truncate delta log %q", l.path)
		}
		if err := l.file.Sync(); err != nil {
			return errors.Wrap(err, "fsync truncated delta log")
		}
	}

	if l.recovery.Repaired() {
		if err := l.index.sync(); err != nil {
			return errors.Wrap(err, "fsync repaired delta index")
		}
		l.logger.WithField("action", "delta_log_recovery").
			WithField("rebuilt_index", l.recovery.RebuiltIndex).
			WithField("reindexed", l.recovery.ReindexedRecords).
			WithField("truncated_bytes", l.recovery.TruncatedBytes).
			WithField("scanned_bytes", l.recovery.ScannedBytes).
			Info("recovered delta log")
	}

	l.size = scanned.end
	if last != nil {
		l.lastModifiedVersion = last.ResultingVersion()
		l.lastModifiedTime = last.Transformed.ApplicationTimestamp
	}
	return nil
}

func (l *Log) readClaimedLast(claimed, fileSize int64) (*wavelet.DeltaRecord, int64, error) {
	offset, ok, err := l.index.offsetForEnd(claimed)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, enterrors.NewFormat("index has no delta ending at version %d", claimed)
	}

	rec, n, err := readRecordAt(l.file, offset, fileSize)
	if err != nil {
		return nil, 0, err
	}
	if rec.ResultingVersion() != claimed {
		return nil, 0, enterrors.NewFormat("delta at offset %d ends at version %d, index claims %d",
			offset, rec.ResultingVersion(), claimed)
	}
	return rec, offset + n, nil
}

type scanResult struct {
	end     int64
	records int
	last    *wavelet.DeltaRecord
}

// scan indexes every whole record from offset on, expecting the first one to
// be applied at version. It stops at the first record that is incomplete,
// malformed or does not continue the version sequence.
func (l *Log) scan(offset, version, fileSize int64) (scanResult, error) {
	res := scanResult{end: offset}
	if offset >= fileSize {
		return res, nil
	}

	metered := diskio.NewMeteredReader(io.NewSectionReader(l.file, offset, fileSize-offset), l.onRead)
	defer func() { l.recovery.ScannedBytes = metered.Total() }()

	r := bufio.NewReader(metered)
	for res.end < fileSize {
		rec, n, err := readRecord(r, fileSize-res.end)
		if err != nil {
			if enterrors.IsFormat(err) {
				l.logger.WithField("action", "delta_log_recovery").
					WithField("offset", res.end).
					WithError(err).
					Debug("stop recovery scan")
				return res, nil
			}
			return res, errors.Wrapf(err, "scan delta log at offset %d", res.end)
		}

		if rec.AppliedAtVersion() != version {
			l.logger.WithField("action", "delta_log_recovery").
				WithField("offset", res.end).
				Warnf("delta applied at version %d does not follow version %d, stop recovery scan",
					rec.AppliedAtVersion(), version)
			return res, nil
		}

		if err := l.index.add(rec.AppliedAtVersion(), rec.ResultingVersion(), res.end); err != nil {
			return res, err
		}
		version = rec.ResultingVersion()
		res.end += n
		res.records++
		res.last = rec
	}

	return res, nil
}

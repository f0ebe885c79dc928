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
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	enterrors "github.com/weaviate/wavestore/entities/errors"
)

const (
	slotSize = 8
	noOffset = int64(-1)
)

// snapshotIndex maps every version in [1, lastVersion] to the history offset
// of the newest checkpoint at or below it. The slot of version v lives at
// (v-1)*8. Versions before the first checkpoint hold -1.
type snapshotIndex struct {
	path        string
	file        *os.File
	lastVersion int64
	lastOffset  int64
}

func openSnapshotIndex(path string) (*snapshotIndex, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, errors.Wrapf(err, "open snapshot index %q", path)
	}

	idx := &snapshotIndex{path: path, file: f, lastOffset: noOffset}
	if err := idx.init(); err != nil {
		f.Close()
		return nil, err
	}
	return idx, nil
}

func (i *snapshotIndex) init() error {
	info, err := i.file.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat snapshot index %q", i.path)
	}
	if info.Size()%slotSize != 0 {
		return enterrors.NewFormat("snapshot index %q has size %d which is not a multiple of %d",
			i.path, info.Size(), slotSize)
	}

	i.lastVersion = info.Size() / slotSize
	if i.lastVersion == 0 {
		return nil
	}

	last, err := i.slot(i.lastVersion)
	if err != nil {
		return err
	}
	if last < 0 {
		return enterrors.NewFormat("snapshot index %q ends without a checkpoint", i.path)
	}
	i.lastOffset = last
	return nil
}

func (i *snapshotIndex) slot(version int64) (int64, error) {
	buf := make([]byte, slotSize)
	if _, err := i.file.ReadAt(buf, (version-1)*slotSize); err != nil {
		return 0, errors.Wrapf(err, "read snapshot index slot %d", version)
	}
	return int64(binary.BigEndian.Uint64(buf)), nil
}

// lookup returns the offset of the newest checkpoint at or below version.
func (i *snapshotIndex) lookup(version int64) (int64, bool, error) {
	if i.lastVersion == 0 || version < 1 {
		return 0, false, nil
	}
	if version >= i.lastVersion {
		return i.lastOffset, true, nil
	}

	offset, err := i.slot(version)
	if err != nil {
		return 0, false, err
	}
	if offset < 0 {
		return 0, false, nil
	}
	return offset, true, nil
}

// add records a checkpoint for version at offset and backfills the versions
// since the previous checkpoint.
func (i *snapshotIndex) add(version, offset int64) error {
	if version <= i.lastVersion {
		return enterrors.NewPrecondition("snapshot version %d must be greater than last indexed version %d",
			version, i.lastVersion)
	}

	buf := make([]byte, (version-i.lastVersion)*slotSize)
	last := len(buf) - slotSize
	for pos := 0; pos < last; pos += slotSize {
		binary.BigEndian.PutUint64(buf[pos:], uint64(i.lastOffset))
	}
	binary.BigEndian.PutUint64(buf[last:], uint64(offset))

	if _, err := i.file.WriteAt(buf, i.lastVersion*slotSize); err != nil {
		return errors.Wrapf(err, "write snapshot index slots (%d, %d]", i.lastVersion, version)
	}
	i.lastVersion = version
	i.lastOffset = offset
	return nil
}

func (i *snapshotIndex) clear() error {
	if err := i.file.Truncate(0); err != nil {
		return errors.Wrapf(err, "clear snapshot index %q", i.path)
	}
	i.lastVersion = 0
	i.lastOffset = noOffset
	return nil
}

func (i *snapshotIndex) sync() error {
	return i.file.Sync()
}

func (i *snapshotIndex) close() error {
	return i.file.Close()
}

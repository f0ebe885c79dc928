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
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	enterrors "github.com/weaviate/wavestore/entities/errors"
)

const slotSize = 8

// deltaIndex maps versions to record offsets in the delta file. There is
// one big-endian int64 slot per version v in [0, length). A record applied
// at v stores its offset in slot v and the bitwise complement of the same
// offset in every other slot it spans, so every version resolves to the
// record containing it and start versions are distinguishable from the
// rest. The index only caches what a scan of the delta file yields.
type deltaIndex struct {
	path   string
	file   *os.File
	length int64
}

// openDeltaIndex opens or creates the index file. trusted is false if the
// file size is not a whole number of slots.
func openDeltaIndex(path string) (idx *deltaIndex, trusted bool, err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, false, errors.Wrapf(err, "open delta index %q", path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, errors.Wrapf(err, "stat delta index %q", path)
	}

	return &deltaIndex{
		path:   path,
		file:   f,
		length: info.Size() / slotSize,
	}, info.Size()%slotSize == 0, nil
}

func (i *deltaIndex) slot(version int64) (int64, error) {
	buf := make([]byte, slotSize)
	if _, err := i.file.ReadAt(buf, version*slotSize); err != nil {
		return 0, errors.Wrapf(err, "read delta index slot %d", version)
	}
	return int64(binary.BigEndian.Uint64(buf)), nil
}

// offsetForStart resolves the record applied at version.
func (i *deltaIndex) offsetForStart(version int64) (int64, bool, error) {
	if version < 0 || version >= i.length {
		return 0, false, nil
	}
	s, err := i.slot(version)
	if err != nil || s < 0 {
		return 0, false, err
	}
	return s, true, nil
}

// offsetForEnd resolves the record whose resulting version is version.
func (i *deltaIndex) offsetForEnd(version int64) (int64, bool, error) {
	if version < 1 || version > i.length {
		return 0, false, nil
	}
	if version < i.length {
		next, err := i.slot(version)
		if err != nil {
			return 0, false, err
		}
		if next < 0 {
			// version lies inside a record, no record ends there
			return 0, false, nil
		}
	}
	s, err := i.slot(version - 1)
	if err != nil {
		return 0, false, err
	}
	return decodeSlot(s), true, nil
}

// offsetContaining resolves the record whose span includes version.
func (i *deltaIndex) offsetContaining(version int64) (int64, bool, error) {
	if version < 0 || version >= i.length {
		return 0, false, nil
	}
	s, err := i.slot(version)
	if err != nil {
		return 0, false, err
	}
	return decodeSlot(s), true, nil
}

// add indexes a record at offset that was applied at appliedAt and results
// in resulting. Records must be added in version order without gaps.
func (i *deltaIndex) add(appliedAt, resulting, offset int64) error {
	if appliedAt != i.length {
		return enterrors.NewPrecondition("delta index expects version %d, got %d", i.length, appliedAt)
	}
	if resulting <= appliedAt {
		return enterrors.NewPrecondition("delta must advance the version, got %d -> %d", appliedAt, resulting)
	}

	span := resulting - appliedAt
	buf := make([]byte, span*slotSize)
	binary.BigEndian.PutUint64(buf, uint64(offset))
	for j := int64(1); j < span; j++ {
		binary.BigEndian.PutUint64(buf[j*slotSize:], uint64(^offset))
	}

	if _, err := i.file.WriteAt(buf, appliedAt*slotSize); err != nil {
		return errors.Wrapf(err, "write delta index slots [%d, %d)", appliedAt, resulting)
	}
	i.length = resulting
	return nil
}

// truncate drops every slot at or beyond version.
func (i *deltaIndex) truncate(version int64) error {
	if err := i.file.Truncate(version * slotSize); err != nil {
		return errors.Wrapf(err, "truncate delta index %q", i.path)
	}
	i.length = version
	return nil
}

func (i *deltaIndex) sync() error {
	return i.file.Sync()
}

func (i *deltaIndex) close() error {
	return i.file.Close()
}

func decodeSlot(s int64) int64 {
	if s < 0 {
		return ^s
	}
	return s
}

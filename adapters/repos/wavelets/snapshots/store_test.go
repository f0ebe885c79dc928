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
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enterrors "github.com/weaviate/wavestore/entities/errors"
	"github.com/weaviate/wavestore/entities/wavelet"
)

type sliceDeltas []*wavelet.DeltaRecord

func (d sliceDeltas) DeltasFromVersion(version int64, sink func(*wavelet.DeltaRecord) bool) error {
	for _, rec := range d {
		if rec.ResultingVersion() <= version {
			continue
		}
		if !sink(rec) {
			return nil
		}
	}
	return nil
}

type authorState struct {
	version      int64
	lastModified int64
	authors      []string
}

func newAuthorState() State {
	return &authorState{}
}

func (s *authorState) Apply(d *wavelet.TransformedDelta) error {
	if d.AppliedAtVersion != s.version {
		return fmt.Errorf("delta at %d does not apply to version %d", d.AppliedAtVersion, s.version)
	}
	s.version = d.ResultingVersion
	s.lastModified = d.ApplicationTimestamp
	s.authors = append(s.authors, d.Author)
	return nil
}

func (s *authorState) Version() int64 {
	return s.version
}

func (s *authorState) Snapshot() (*wavelet.Snapshot, error) {
	return &wavelet.Snapshot{
		Version:          s.version,
		LastModifiedTime: s.lastModified,
		Data:             []byte(strings.Join(s.authors, ",")),
	}, nil
}

func singleOpDeltas(n int) sliceDeltas {
	out := make(sliceDeltas, n)
	for i := range out {
		out[i] = &wavelet.DeltaRecord{Transformed: &wavelet.TransformedDelta{
			AppliedAtVersion:     int64(i),
			ResultingVersion:     int64(i + 1),
			Author:               fmt.Sprintf("author-%d", i),
			ApplicationTimestamp: int64(1000 + i),
			Operations:           []wavelet.Operation{{Type: wavelet.OpNoOp}},
		}}
	}
	return out
}

func testFiles(t *testing.T) Files {
	dir := t.TempDir()
	return Files{
		Initial: filepath.Join(dir, "s.snapshot"),
		History: filepath.Join(dir, "s.history"),
		Index:   filepath.Join(dir, "s.hindex"),
	}
}

func openTestStore(t *testing.T, files Files) *Store {
	logger, _ := test.NewNullLogger()
	s, err := Open(files, logger)
	require.NoError(t, err)
	return s
}

func snapshotAt(version int64) *wavelet.Snapshot {
	return &wavelet.Snapshot{
		Version:          version,
		LastModifiedTime: 1700000000000 + version,
		Data:             []byte(fmt.Sprintf("state@%d", version)),
	}
}

func fileSize(t *testing.T, path string) int64 {
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Size()
}

func TestSnapshotStore_Empty(t *testing.T) {
	s := openTestStore(t, testFiles(t))
	defer s.Close()

	snap, err := s.ReadInitialSnapshot()
	require.NoError(t, err)
	assert.Nil(t, snap)

	snap, err = s.ReadNearestSnapshot(5)
	require.NoError(t, err)
	assert.Nil(t, snap)

	last, err := s.LastHistorySnapshotVersion()
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestSnapshotStore_InitialSnapshot(t *testing.T) {
	files := testFiles(t)
	s := openTestStore(t, files)

	require.NoError(t, s.WriteInitialSnapshot(snapshotAt(3)))
	require.NoError(t, s.WriteInitialSnapshot(snapshotAt(8)))

	snap, err := s.ReadInitialSnapshot()
	require.NoError(t, err)
	assert.Equal(t, snapshotAt(8), snap)
	require.NoError(t, s.Close())

	_, err = os.Stat(files.Initial + ".tmp")
	assert.True(t, os.IsNotExist(err))

	s = openTestStore(t, files)
	defer s.Close()
	snap, err = s.ReadInitialSnapshot()
	require.NoError(t, err)
	assert.Equal(t, snapshotAt(8), snap)
}

func TestSnapshotStore_CorruptInitialSnapshot(t *testing.T) {
	files := testFiles(t)
	s := openTestStore(t, files)
	defer s.Close()

	require.NoError(t, os.WriteFile(files.Initial, []byte{0, 0, 0, 1, 0, 0, 0, 9, 1}, 0o666))
	_, err := s.ReadInitialSnapshot()
	require.Error(t, err)
	assert.True(t, enterrors.IsFormat(err))
}

func bytesAllocated(fn func()) uint64 {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	fn()
	runtime.ReadMemStats(&after)
	return after.TotalAlloc - before.TotalAlloc
}

func TestSnapshotStore_OversizedLengthIsRejectedBeforeAllocating(t *testing.T) {
	header := make([]byte, recordHeaderSize)
	binary.BigEndian.PutUint32(header[0:4], uint32(recordFormatVersion))
	binary.BigEndian.PutUint32(header[4:8], 1<<30)

	t.Run("record reader", func(t *testing.T) {
		var err error
		allocated := bytesAllocated(func() {
			_, _, err = readRecord(bytes.NewReader(header), int64(len(header)))
		})
		require.Error(t, err)
		assert.True(t, enterrors.IsFormat(err))
		assert.Less(t, allocated, uint64(1<<20))
	})

	t.Run("initial snapshot", func(t *testing.T) {
		files := testFiles(t)
		s := openTestStore(t, files)
		defer s.Close()

		require.NoError(t, os.WriteFile(files.Initial, header, 0o666))
		var err error
		allocated := bytesAllocated(func() {
			_, err = s.ReadInitialSnapshot()
		})
		require.Error(t, err)
		assert.True(t, enterrors.IsFormat(err))
		assert.Less(t, allocated, uint64(1<<20))
	})
}

func TestSnapshotStore_NearestSnapshot(t *testing.T) {
	files := testFiles(t)
	s := openTestStore(t, files)

	require.NoError(t, s.WriteSnapshotToHistory(snapshotAt(5)))
	require.NoError(t, s.WriteSnapshotToHistory(snapshotAt(10)))
	assert.Equal(t, int64(10*slotSize), fileSize(t, files.Index))

	check := func(t *testing.T, s *Store) {
		expected := map[int64]int64{
			0: -1, 1: -1, 4: -1,
			5: 5, 6: 5, 9: 5,
			10: 10, 11: 10, 1000: 10,
		}
		for version, want := range expected {
			snap, err := s.ReadNearestSnapshot(version)
			require.NoError(t, err)
			if want < 0 {
				assert.Nil(t, snap, "version %d", version)
				continue
			}
			require.NotNil(t, snap, "version %d", version)
			assert.Equal(t, snapshotAt(want), snap)
		}

		// nearest lookup never goes backwards
		prev := int64(-1)
		for v := int64(0); v < 20; v++ {
			snap, err := s.ReadNearestSnapshot(v)
			require.NoError(t, err)
			got := int64(-1)
			if snap != nil {
				got = snap.Version
				assert.LessOrEqual(t, got, v)
			}
			assert.GreaterOrEqual(t, got, prev)
			prev = got
		}

		last, err := s.LastHistorySnapshotVersion()
		require.NoError(t, err)
		assert.Equal(t, int64(10), last)
	}

	check(t, s)
	require.NoError(t, s.Close())

	t.Run("after reopen", func(t *testing.T) {
		s := openTestStore(t, files)
		defer s.Close()
		check(t, s)
	})
}

func TestSnapshotStore_Preconditions(t *testing.T) {
	s := openTestStore(t, testFiles(t))
	defer s.Close()

	require.NoError(t, s.WriteSnapshotToHistory(snapshotAt(5)))

	err := s.WriteSnapshotToHistory(snapshotAt(5))
	assert.True(t, enterrors.IsPrecondition(err))
	err = s.WriteSnapshotToHistory(snapshotAt(3))
	assert.True(t, enterrors.IsPrecondition(err))

	_, err = s.ReadNearestSnapshot(-1)
	assert.True(t, enterrors.IsPrecondition(err))

	err = s.RemakeSnapshotsHistory(sliceDeltas{}, newAuthorState, 0)
	assert.True(t, enterrors.IsPrecondition(err))

	last, err := s.LastHistorySnapshotVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(5), last)
}

func TestSnapshotStore_CorruptIndex(t *testing.T) {
	files := testFiles(t)
	require.NoError(t, os.WriteFile(files.Index, []byte{1, 2, 3}, 0o666))

	logger, _ := test.NewNullLogger()
	_, err := Open(files, logger)
	require.Error(t, err)
	assert.True(t, enterrors.IsFormat(err))
}

func TestSnapshotStore_TrimsUnindexedHistory(t *testing.T) {
	files := testFiles(t)
	s := openTestStore(t, files)
	require.NoError(t, s.WriteSnapshotToHistory(snapshotAt(5)))
	require.NoError(t, s.Close())
	validSize := fileSize(t, files.History)

	// a checkpoint that was appended but whose index write never happened
	buf, err := encodeRecord(snapshotAt(7))
	require.NoError(t, err)
	f, err := os.OpenFile(files.History, os.O_WRONLY|os.O_APPEND, 0o666)
	require.NoError(t, err)
	_, err = f.Write(buf[:len(buf)-2])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s = openTestStore(t, files)
	defer s.Close()
	assert.Equal(t, validSize, fileSize(t, files.History))

	require.NoError(t, s.WriteSnapshotToHistory(snapshotAt(7)))
	snap, err := s.ReadNearestSnapshot(8)
	require.NoError(t, err)
	assert.Equal(t, snapshotAt(7), snap)
}

func TestSnapshotStore_Remake(t *testing.T) {
	files := testFiles(t)
	s := openTestStore(t, files)
	defer s.Close()

	// stale history that the remake must discard
	require.NoError(t, s.WriteSnapshotToHistory(snapshotAt(2)))
	require.NoError(t, s.WriteSnapshotToHistory(snapshotAt(40)))

	deltas := singleOpDeltas(12)
	require.NoError(t, s.RemakeSnapshotsHistory(deltas, newAuthorState, 5))

	last, err := s.LastHistorySnapshotVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(10), last)
	assert.Equal(t, int64(10*slotSize), fileSize(t, files.Index))

	for version, want := range map[int64]int64{4: -1, 5: 5, 7: 5, 10: 10, 12: 10} {
		snap, err := s.ReadNearestSnapshot(version)
		require.NoError(t, err)
		if want < 0 {
			assert.Nil(t, snap)
			continue
		}
		require.NotNil(t, snap)
		assert.Equal(t, want, snap.Version)
	}

	snap, err := s.ReadNearestSnapshot(7)
	require.NoError(t, err)
	assert.Equal(t, "author-0,author-1,author-2,author-3,author-4", string(snap.Data))

	initial, err := s.ReadInitialSnapshot()
	require.NoError(t, err)
	require.NotNil(t, initial)
	assert.Equal(t, int64(12), initial.Version)
	assert.Equal(t, int64(1011), initial.LastModifiedTime)

	t.Run("remake is repeatable", func(t *testing.T) {
		historySize := fileSize(t, files.History)
		require.NoError(t, s.RemakeSnapshotsHistory(deltas, newAuthorState, 5))
		assert.Equal(t, historySize, fileSize(t, files.History))
	})
}

func TestSnapshotStore_RemakeMultiOperationDeltas(t *testing.T) {
	s := openTestStore(t, testFiles(t))
	defer s.Close()

	var deltas sliceDeltas
	var version int64
	for _, numOps := range []int{3, 4, 1, 6, 2} {
		ops := make([]wavelet.Operation, numOps)
		deltas = append(deltas, &wavelet.DeltaRecord{Transformed: &wavelet.TransformedDelta{
			AppliedAtVersion: version,
			ResultingVersion: version + int64(numOps),
			Author:           "bob",
			Operations:       ops,
		}})
		version += int64(numOps)
	}

	require.NoError(t, s.RemakeSnapshotsHistory(deltas, newAuthorState, 5))

	// version advances 3, 7, 8, 14, 16: checkpoints once at least 5 versions
	// passed since the previous one
	for v, want := range map[int64]int64{6: -1, 7: 7, 13: 7, 14: 14, 16: 14} {
		snap, err := s.ReadNearestSnapshot(v)
		require.NoError(t, err)
		if want < 0 {
			assert.Nil(t, snap)
			continue
		}
		require.NotNil(t, snap)
		assert.Equal(t, want, snap.Version)
	}

	initial, err := s.ReadInitialSnapshot()
	require.NoError(t, err)
	assert.Equal(t, int64(16), initial.Version)
}

func TestSnapshotStore_RemakeEmptyLog(t *testing.T) {
	files := testFiles(t)
	s := openTestStore(t, files)
	defer s.Close()

	require.NoError(t, s.WriteSnapshotToHistory(snapshotAt(3)))
	require.NoError(t, s.RemakeSnapshotsHistory(sliceDeltas{}, newAuthorState, 5))

	last, err := s.LastHistorySnapshotVersion()
	require.NoError(t, err)
	assert.Zero(t, last)
	assert.Zero(t, fileSize(t, files.History))

	initial, err := s.ReadInitialSnapshot()
	require.NoError(t, err)
	assert.Nil(t, initial)
}

func TestSnapshotStore_RemakeStopsOnApplyError(t *testing.T) {
	s := openTestStore(t, testFiles(t))
	defer s.Close()

	deltas := singleOpDeltas(6)
	deltas[3].Transformed.AppliedAtVersion = 9

	err := s.RemakeSnapshotsHistory(deltas, newAuthorState, 2)
	require.Error(t, err)

	initial, err := s.ReadInitialSnapshot()
	require.NoError(t, err)
	assert.Nil(t, initial)
}

func TestSnapshotStore_Closed(t *testing.T) {
	s := openTestStore(t, testFiles(t))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.ReadInitialSnapshot()
	assert.ErrorIs(t, err, enterrors.ErrClosed)
	assert.ErrorIs(t, s.WriteSnapshotToHistory(snapshotAt(1)), enterrors.ErrClosed)
	assert.ErrorIs(t, s.RemakeSnapshotsHistory(sliceDeltas{}, newAuthorState, 5), enterrors.ErrClosed)
}

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

package wavestate

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/wavestore/adapters/repos/wavelets/deltalog"
	"github.com/weaviate/wavestore/adapters/repos/wavelets/snapshots"
	enterrors "github.com/weaviate/wavestore/entities/errors"
	"github.com/weaviate/wavestore/entities/wavelet"
)

// randomDeltas generates a valid history by applying every generated
// operation to a shadow state first.
func randomDeltas(t *testing.T, r *rand.Rand, count int) []*wavelet.DeltaRecord {
	shadow := New()
	out := make([]*wavelet.DeltaRecord, 0, count)
	nextUser := 0

	for i := 0; i < count; i++ {
		appliedAt := shadow.Version()
		numOps := 1 + r.Intn(3)
		ops := make([]wavelet.Operation, 0, numOps)
		for j := 0; j < numOps; j++ {
			var op wavelet.Operation
			participants := shadow.Participants()
			body, _ := shadow.Document("main")
			length := len([]rune(body))

			switch choice := r.Intn(5); {
			case choice == 0 || len(participants) == 0:
				op = addParticipant(fmt.Sprintf("user-%d", nextUser))
				nextUser++
			case choice == 1 && len(participants) > 1:
				op = removeParticipant(participants[r.Intn(len(participants))])
			case choice == 2 && length > 0:
				pos := r.Intn(length)
				op = remove("main", pos, r.Intn(length-pos+1))
			case choice == 3:
				op = wavelet.Operation{Type: wavelet.OpNoOp}
			default:
				op = insert("main", r.Intn(length+1), fmt.Sprintf("<%d.%d>", i, j))
			}

			require.NoError(t, shadow.Apply(delta(shadow.Version(), "gen", op)))
			ops = append(ops, op)
		}

		out = append(out, &wavelet.DeltaRecord{
			Applied: []byte(fmt.Sprintf("signed-%d", appliedAt)),
			Transformed: &wavelet.TransformedDelta{
				AppliedAtVersion:     appliedAt,
				ResultingVersion:     appliedAt + int64(len(ops)),
				Author:               fmt.Sprintf("author-%d", r.Intn(3)),
				ApplicationTimestamp: 1700000000000 + int64(i),
				Operations:           ops,
			},
		})
	}
	return out
}

func TestReconstructMatchesFullReplay(t *testing.T) {
	dir := t.TempDir()
	logger, _ := test.NewNullLogger()

	log, err := deltalog.Open(filepath.Join(dir, "w.deltas"), filepath.Join(dir, "w.index"), logger)
	require.NoError(t, err)
	defer log.Close()

	store, err := snapshots.Open(snapshots.Files{
		Initial: filepath.Join(dir, "w.snapshot"),
		History: filepath.Join(dir, "w.history"),
		Index:   filepath.Join(dir, "w.hindex"),
	}, logger)
	require.NoError(t, err)
	defer store.Close()

	records := randomDeltas(t, rand.New(rand.NewSource(7)), 60)
	require.NoError(t, log.Append(records))
	require.NoError(t, store.RemakeSnapshotsHistory(log, func() snapshots.State { return New() }, 5))

	boundaries := []int64{0}
	for _, rec := range records {
		boundaries = append(boundaries, rec.ResultingVersion())
	}

	for _, v := range boundaries {
		got, err := Reconstruct(store, log, v)
		require.NoError(t, err, "version %d", v)

		want := New()
		require.NoError(t, Replay(want, log, v))

		gotSnap, err := got.Snapshot()
		require.NoError(t, err)
		wantSnap, err := want.Snapshot()
		require.NoError(t, err)
		assert.Equal(t, wantSnap, gotSnap, "version %d", v)
	}

	end := boundaries[len(boundaries)-1]
	initial, err := store.ReadInitialSnapshot()
	require.NoError(t, err)
	require.NotNil(t, initial)

	full := New()
	require.NoError(t, Replay(full, log, end))
	fullSnap, err := full.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, fullSnap, initial)
}

func TestReconstructRejectsVersionsOffBoundaries(t *testing.T) {
	dir := t.TempDir()
	logger, _ := test.NewNullLogger()

	log, err := deltalog.Open(filepath.Join(dir, "w.deltas"), filepath.Join(dir, "w.index"), logger)
	require.NoError(t, err)
	defer log.Close()

	store, err := snapshots.Open(snapshots.Files{
		Initial: filepath.Join(dir, "w.snapshot"),
		History: filepath.Join(dir, "w.history"),
		Index:   filepath.Join(dir, "w.hindex"),
	}, logger)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, log.Append([]*wavelet.DeltaRecord{
		{Transformed: delta(0, "a", addParticipant("a"), insert("main", 0, "x"))},
		{Transformed: delta(2, "a", insert("main", 1, "y"))},
	}))

	_, err = Reconstruct(store, log, 1)
	assert.True(t, enterrors.IsPrecondition(err))

	_, err = Reconstruct(store, log, 4)
	assert.True(t, enterrors.IsPrecondition(err))

	_, err = Reconstruct(store, log, -1)
	assert.True(t, enterrors.IsPrecondition(err))

	s, err := Reconstruct(store, log, 3)
	require.NoError(t, err)
	body, _ := s.Document("main")
	assert.Equal(t, "xy", body)
}

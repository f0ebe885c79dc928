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

package blocks

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enterrors "github.com/weaviate/wavestore/entities/errors"
	"github.com/weaviate/wavestore/entities/wavelet"
)

func newTestStore(t *testing.T) (*Store, string) {
	logger, _ := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "blocks.db")
	s, err := NewStore(path, logger)
	require.NoError(t, err)
	return s, path
}

func TestBlockStore(t *testing.T) {
	s, path := newTestStore(t)
	name := wavelet.Name{WaveID: "example.com/w+1", WaveletID: "conv+root"}

	a, err := s.Open(name)
	require.NoError(t, err)

	require.NoError(t, a.Write(
		&Block{ID: "b+1", Author: "alice", Contributors: []string{"alice"}, LastModifiedVersion: 3, Content: []byte("one")},
		&Block{ID: "b+2", Author: "bob", LastModifiedVersion: 4, Content: []byte("two")},
	))
	require.NoError(t, a.Write(&Block{ID: "b+1", Author: "alice", Contributors: []string{"alice", "bob"}, LastModifiedVersion: 5, Content: []byte("uno")}))

	got, err := a.Read("b+1", "b+2", "missing")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []byte("uno"), got["b+1"].Content)
	assert.Equal(t, []string{"alice", "bob"}, got["b+1"].Contributors)
	assert.Equal(t, int64(4), got["b+2"].LastModifiedVersion)

	err = a.Write(&Block{Content: []byte("anonymous")})
	assert.True(t, enterrors.IsPrecondition(err))

	require.NoError(t, a.Close())
	_, err = a.Read("b+1")
	assert.ErrorIs(t, err, enterrors.ErrClosed)
	require.NoError(t, s.Close())

	t.Run("blocks survive reopen", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		s, err := NewStore(path, logger)
		require.NoError(t, err)
		defer s.Close()

		ids, err := s.Lookup(name.WaveID)
		require.NoError(t, err)
		assert.Equal(t, []string{name.WaveletID}, ids)

		a, err := s.Open(name)
		require.NoError(t, err)
		got, err := a.Read("b+2")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), got["b+2"].Content)
	})
}

func TestBlockStore_DeleteAndLookup(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()

	first := wavelet.Name{WaveID: "w", WaveletID: "a"}
	second := wavelet.Name{WaveID: "w", WaveletID: "b"}
	for _, name := range []wavelet.Name{first, second} {
		a, err := s.Open(name)
		require.NoError(t, err)
		require.NoError(t, a.Write(&Block{ID: "x", Content: []byte(name.WaveletID)}))
	}

	ids, err := s.Lookup("w")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, s.Delete(first))
	require.NoError(t, s.Delete(first))
	ids, err = s.Lookup("w")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)

	require.NoError(t, s.Delete(second))
	ids, err = s.Lookup("w")
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, s.Delete(wavelet.Name{WaveID: "never", WaveletID: "opened"}))

	_, err = s.Open(wavelet.Name{WaveID: "w"})
	assert.True(t, enterrors.IsPrecondition(err))
}

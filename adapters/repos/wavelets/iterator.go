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
	"github.com/weaviate/wavestore/adapters/repos/wavelets/paths"
)

// WaveIDIterator yields the ids of waves that hold at least one stream, most
// recently modified first. It is single-pass and lists the wave directories
// once on creation; the emptiness of each wave is checked only when the
// iteration reaches it.
//
//	it, err := store.WaveIDIterator()
//	for it.Next() {
//		waveID := it.WaveID()
//	}
//	err = it.Err()
type WaveIDIterator struct {
	dirs        []paths.WaveDirEntry
	pos         int
	current     string
	err         error
	hasChildren func(waveID string) (bool, error)
}

func (it *WaveIDIterator) Next() bool {
	for it.err == nil && it.pos < len(it.dirs) {
		candidate := it.dirs[it.pos].WaveID
		it.pos++

		ok, err := it.hasChildren(candidate)
		if err != nil {
			it.err = err
			return false
		}
		if ok {
			it.current = candidate
			return true
		}
	}
	it.current = ""
	return false
}

func (it *WaveIDIterator) WaveID() string {
	return it.current
}

func (it *WaveIDIterator) Err() error {
	return it.err
}

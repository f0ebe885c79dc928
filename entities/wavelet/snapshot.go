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

package wavelet

import (
	"github.com/vmihailenco/msgpack/v5"

	enterrors "github.com/weaviate/wavestore/entities/errors"
)

// Snapshot is the serialized state of a wavelet at Version. Data is opaque
// to the stores.
type Snapshot struct {
	Version          int64  `msgpack:"version"`
	LastModifiedTime int64  `msgpack:"lastModified"`
	Data             []byte `msgpack:"data"`
}

func (s *Snapshot) Encode() ([]byte, error) {
	return msgpack.Marshal(s)
}

func DecodeSnapshot(data []byte) (*Snapshot, error) {
	s := &Snapshot{}
	if err := msgpack.Unmarshal(data, s); err != nil {
		return nil, enterrors.NewFormat("decode snapshot: %v", err)
	}
	return s, nil
}

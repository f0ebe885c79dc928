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

// Package wavelet holds the value types shared by every wavelet store: the
// stream identity, delta records and snapshots.
package wavelet

import (
	enterrors "github.com/weaviate/wavestore/entities/errors"
)

// Name identifies one wavelet stream. WaveID is the parent (the wave) and
// WaveletID the child within it. Names are comparable and used as cache keys.
type Name struct {
	WaveID    string
	WaveletID string
}

func NewName(waveID, waveletID string) (Name, error) {
	n := Name{WaveID: waveID, WaveletID: waveletID}
	if err := n.Validate(); err != nil {
		return Name{}, err
	}
	return n, nil
}

func (n Name) Validate() error {
	if n.WaveID == "" {
		return enterrors.NewPrecondition("wave id must not be empty")
	}
	if n.WaveletID == "" {
		return enterrors.NewPrecondition("wavelet id must not be empty")
	}
	return nil
}

func (n Name) String() string {
	return n.WaveID + "/" + n.WaveletID
}

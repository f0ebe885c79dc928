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

// Package paths maps wavelet names onto the on-disk layout
// <root>/<enc(waveID)>/<enc(waveletID)><suffix>. The encoding spells every
// byte as two letters in a..p, which is safe on case-insensitive
// filesystems and round-trips arbitrary UTF-8.
package paths

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	enterrors "github.com/weaviate/wavestore/entities/errors"
	"github.com/weaviate/wavestore/entities/wavelet"
)

const (
	DeltasSuffix       = ".deltas"
	DeltaIndexSuffix   = ".index"
	SnapshotSuffix     = ".snapshot"
	HistorySuffix      = ".history"
	HistoryIndexSuffix = ".hindex"
)

func Encode(id string) string {
	var sb strings.Builder
	sb.Grow(2 * len(id))
	for i := 0; i < len(id); i++ {
		b := id[i]
		sb.WriteByte('a' + b>>4)
		sb.WriteByte('a' + b&0x0f)
	}
	return sb.String()
}

func Decode(segment string) (string, error) {
	if segment == "" || len(segment)%2 != 0 {
		return "", enterrors.NewFormat("invalid path segment %q", segment)
	}
	out := make([]byte, len(segment)/2)
	for i := 0; i < len(segment); i += 2 {
		hi, lo := segment[i], segment[i+1]
		if hi < 'a' || hi > 'p' || lo < 'a' || lo > 'p' {
			return "", enterrors.NewFormat("invalid path segment %q", segment)
		}
		out[i/2] = (hi-'a')<<4 | (lo - 'a')
	}
	return string(out), nil
}

// Mapper derives file locations for one store root.
type Mapper struct {
	root string
}

func NewMapper(root string) *Mapper {
	return &Mapper{root: root}
}

func (m *Mapper) Root() string {
	return m.root
}

func (m *Mapper) WaveDir(waveID string) string {
	return filepath.Join(m.root, Encode(waveID))
}

// Segment is the file name stem shared by all files of one wavelet.
func (m *Mapper) Segment(name wavelet.Name) string {
	return Encode(name.WaveletID)
}

func (m *Mapper) File(name wavelet.Name, suffix string) string {
	return filepath.Join(m.WaveDir(name.WaveID), m.Segment(name)+suffix)
}

// WaveletIDs lists the wavelets of waveID that own a file with the given
// suffix. Names that do not decode are skipped. A missing wave directory
// yields an empty result.
func (m *Mapper) WaveletIDs(waveID, suffix string) ([]string, error) {
	entries, err := os.ReadDir(m.WaveDir(waveID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read wave dir for %q", waveID)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		id, err := Decode(strings.TrimSuffix(entry.Name(), suffix))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type WaveDirEntry struct {
	WaveID  string
	ModTime time.Time
}

// WaveDirs lists every decodable wave directory under the root, most
// recently modified first.
func (m *Mapper) WaveDirs() ([]WaveDirEntry, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read store root %q", m.root)
	}

	dirs := make([]WaveDirEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		waveID, err := Decode(entry.Name())
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed concurrently
			continue
		}
		dirs = append(dirs, WaveDirEntry{WaveID: waveID, ModTime: info.ModTime()})
	}

	sort.SliceStable(dirs, func(i, j int) bool {
		if dirs[i].ModTime.Equal(dirs[j].ModTime) {
			return dirs[i].WaveID < dirs[j].WaveID
		}
		return dirs[i].ModTime.After(dirs[j].ModTime)
	})
	return dirs, nil
}

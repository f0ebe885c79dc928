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

// Package blocks persists the content blocks of wavelets in a single bbolt
// database, one nested bucket per wavelet below a bucket per wave. It
// mirrors the open, delete and lookup surface of the delta and snapshot
// stores.
package blocks

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	enterrors "github.com/weaviate/wavestore/entities/errors"
	"github.com/weaviate/wavestore/entities/lifecycle"
	"github.com/weaviate/wavestore/entities/wavelet"
)

type Block struct {
	ID                  string   `msgpack:"id"`
	Author              string   `msgpack:"author"`
	Contributors        []string `msgpack:"contributors"`
	LastModifiedVersion int64    `msgpack:"lastModifiedVersion"`
	Content             []byte   `msgpack:"content"`
}

type Store struct {
	path   string
	db     *bolt.DB
	logger logrus.FieldLogger
}

func NewStore(path string, logger logrus.FieldLogger) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open %q", path)
	}
	return &Store{path: path, db: db, logger: logger.WithField("path", path)}, nil
}

// Open returns the block access object of name, creating its bucket.
func (s *Store) Open(name wavelet.Name) (*Access, error) {
	if err := name.Validate(); err != nil {
		return nil, err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		wave, err := tx.CreateBucketIfNotExists([]byte(name.WaveID))
		if err != nil {
			return errors.Wrap(err, "create wave bucket")
		}
		if _, err := wave.CreateBucketIfNotExists([]byte(name.WaveletID)); err != nil {
			return errors.Wrap(err, "create wavelet bucket")
		}
		return nil
	})
	if err != nil {
		return nil, enterrors.NewPersistence("open blocks", name.String(), err)
	}

	a := &Access{guard: lifecycle.NewGuard(), db: s.db, name: name}
	a.guard.MarkOpen()
	return a, nil
}

// Delete drops every block of name. Unknown names are ignored.
func (s *Store) Delete(name wavelet.Name) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		wave := tx.Bucket([]byte(name.WaveID))
		if wave == nil {
			return nil
		}
		if err := wave.DeleteBucket([]byte(name.WaveletID)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return errors.Wrap(err, "delete wavelet bucket")
		}

		if k, _ := wave.Cursor().First(); k == nil {
			return tx.DeleteBucket([]byte(name.WaveID))
		}
		return nil
	})
	return enterrors.NewPersistence("delete blocks", name.String(), err)
}

// Lookup lists the wavelets of waveID that have a block bucket.
func (s *Store) Lookup(waveID string) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		wave := tx.Bucket([]byte(waveID))
		if wave == nil {
			return nil
		}
		return wave.ForEach(func(k, v []byte) error {
			// nested buckets have a nil value
			if v == nil {
				ids = append(ids, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return nil, enterrors.NewPersistence("lookup blocks", waveID, err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrapf(err, "close %q", s.path)
	}
	return nil
}

// Access reads and writes the blocks of one wavelet.
type Access struct {
	guard *lifecycle.Guard
	db    *bolt.DB
	name  wavelet.Name
}

// Read returns the requested blocks keyed by id. Missing ids are absent from
// the result.
func (a *Access) Read(ids ...string) (map[string]*Block, error) {
	return lifecycle.Call(a.guard, func() (map[string]*Block, error) {
		out := make(map[string]*Block, len(ids))
		err := a.db.View(func(tx *bolt.Tx) error {
			b := a.bucket(tx)
			if b == nil {
				return nil
			}
			for _, id := range ids {
				raw := b.Get([]byte(id))
				if raw == nil {
					continue
				}
				block := &Block{}
				if err := msgpack.Unmarshal(raw, block); err != nil {
					return enterrors.NewFormat("decode block %q: %v", id, err)
				}
				out[id] = block
			}
			return nil
		})
		if err != nil {
			return nil, enterrors.NewPersistence("read blocks", a.name.String(), err)
		}
		return out, nil
	})
}

// Write stores blocks in a single transaction, replacing blocks with the
// same id.
func (a *Access) Write(blocks ...*Block) error {
	return a.guard.Run(func() error {
		err := a.db.Update(func(tx *bolt.Tx) error {
			b := a.bucket(tx)
			if b == nil {
				return errors.Errorf("bucket of %s was deleted", a.name)
			}
			for _, block := range blocks {
				if block.ID == "" {
					return enterrors.NewPrecondition("block without id")
				}
				raw, err := msgpack.Marshal(block)
				if err != nil {
					return errors.Wrapf(err, "encode block %q", block.ID)
				}
				if err := b.Put([]byte(block.ID), raw); err != nil {
					return errors.Wrapf(err, "put block %q", block.ID)
				}
			}
			return nil
		})
		return enterrors.NewPersistence("write blocks", a.name.String(), err)
	})
}

func (a *Access) Close() error {
	return a.guard.Close(nil)
}

func (a *Access) bucket(tx *bolt.Tx) *bolt.Bucket {
	wave := tx.Bucket([]byte(a.name.WaveID))
	if wave == nil {
		return nil
	}
	return wave.Bucket([]byte(a.name.WaveletID))
}

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
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/weaviate/wavestore/entities/wavelet"
	"github.com/weaviate/wavestore/usecases/monitoring"
)

type closer interface {
	Close() error
}

// streamCache holds at most size open access objects and closes the least
// recently used one when a new one does not fit. Concurrent first opens of
// the same name share one open call, and an open waits until a previous
// access object of the same name has finished closing.
type streamCache[T closer] struct {
	store   string
	logger  logrus.FieldLogger
	metrics *monitoring.PrometheusMetrics
	open    func(name wavelet.Name) (T, error)

	// held shared by opens and exclusively by removals, so a removal never
	// races with an open of the same files
	mu    sync.RWMutex
	lru   *lru.Cache[wavelet.Name, T]
	group singleflight.Group

	// evictMu is held around every call that can evict from lru. Victims are
	// collected under it and closed after it is released.
	evictMu sync.Mutex
	victims []victim[T]
	closing map[wavelet.Name]chan struct{}

	closeErrsMu sync.Mutex
	closeErrs   *multierror.Error
}

type victim[T closer] struct {
	name  wavelet.Name
	value T
	done  chan struct{}
}

func newStreamCache[T closer](store string, size int, open func(wavelet.Name) (T, error),
	logger logrus.FieldLogger, metrics *monitoring.PrometheusMetrics,
) (*streamCache[T], error) {
	c := &streamCache[T]{
		store:   store,
		logger:  logger,
		metrics: metrics,
		open:    open,
		closing: map[wavelet.Name]chan struct{}{},
	}

	l, err := lru.NewWithEvict[wavelet.Name, T](size, c.onEvict)
	if err != nil {
		return nil, errors.Wrap(err, "create stream cache")
	}
	c.lru = l
	return c, nil
}

// onEvict runs inside lru calls made through mutate, so evictMu is held.
func (c *streamCache[T]) onEvict(name wavelet.Name, value T) {
	done := make(chan struct{})
	c.closing[name] = done
	c.victims = append(c.victims, victim[T]{name: name, value: value, done: done})
}

// mutate runs fn against lru and then closes whatever fn evicted.
func (c *streamCache[T]) mutate(fn func()) {
	c.evictMu.Lock()
	fn()
	victims := c.victims
	c.victims = nil
	c.evictMu.Unlock()

	for _, v := range victims {
		c.closeVictim(v)
	}
}

func (c *streamCache[T]) closeVictim(v victim[T]) {
	defer func() {
		c.evictMu.Lock()
		if c.closing[v.name] == v.done {
			delete(c.closing, v.name)
		}
		c.evictMu.Unlock()
		close(v.done)
	}()

	c.metrics.StreamClosed(c.store)
	if err := v.value.Close(); err != nil {
		c.logger.WithField("action", "stream_cache_close").
			WithField("wavelet", v.name.String()).
			WithError(err).
			Error("close access object")
		c.closeErrsMu.Lock()
		c.closeErrs = multierror.Append(c.closeErrs, err)
		c.closeErrsMu.Unlock()
	}
}

// awaitClose blocks until an evicted access object of name, if any, is
// closed.
func (c *streamCache[T]) awaitClose(name wavelet.Name) {
	c.evictMu.Lock()
	done, ok := c.closing[name]
	c.evictMu.Unlock()
	if ok {
		<-done
	}
}

func (c *streamCache[T]) get(name wavelet.Name) (T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if v, ok := c.lru.Get(name); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(cacheKey(name), func() (interface{}, error) {
		if v, ok := c.lru.Get(name); ok {
			return v, nil
		}

		c.awaitClose(name)
		opened, err := c.open(name)
		if err != nil {
			return nil, err
		}
		c.metrics.StreamOpened(c.store)
		c.mutate(func() {
			if evicted := c.lru.Add(name, opened); evicted {
				c.metrics.StreamEvicted(c.store)
			}
		})
		return opened, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// remove closes and forgets the access object of name, if any, and runs fn
// before any new open of a stream can start.
func (c *streamCache[T]) remove(name wavelet.Name, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mutate(func() { c.lru.Remove(name) })
	if fn == nil {
		return nil
	}
	return fn()
}

// shutdown closes every cached access object. It stops early if ctx is done.
func (c *streamCache[T]) shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeErrsMu.Lock()
	c.closeErrs = nil
	c.closeErrsMu.Unlock()

	for _, name := range c.lru.Keys() {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "shutdown stream cache")
		}
		c.mutate(func() { c.lru.Remove(name) })
	}

	c.closeErrsMu.Lock()
	defer c.closeErrsMu.Unlock()
	return c.closeErrs.ErrorOrNil()
}

func (c *streamCache[T]) len() int {
	return c.lru.Len()
}

func cacheKey(name wavelet.Name) string {
	return name.WaveID + "\x00" + name.WaveletID
}

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

// Package lifecycle provides the guard every per-stream access object sits
// behind: it serializes calls and rejects everything after close.
package lifecycle

import (
	"sync"

	enterrors "github.com/weaviate/wavestore/entities/errors"
)

type State int

const (
	Created State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Guard admits one call at a time. Calls made before MarkOpen or after
// Close fail without running.
type Guard struct {
	mu    sync.Mutex
	state State
}

func NewGuard() *Guard {
	return &Guard{state: Created}
}

func (g *Guard) MarkOpen() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == Created {
		g.state = Open
	}
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Guard) Run(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(); err != nil {
		return err
	}
	return fn()
}

// Call is Run for operations that produce a value.
func Call[T any](g *Guard, fn func() (T, error)) (T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(); err != nil {
		var zero T
		return zero, err
	}
	return fn()
}

// Close waits for the call in flight, marks the guard closed and runs
// release once. Subsequent calls to Close return nil.
func (g *Guard) Close(release func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == Closed {
		return nil
	}
	g.state = Closed
	if release == nil {
		return nil
	}
	return release()
}

func (g *Guard) check() error {
	switch g.state {
	case Open:
		return nil
	case Closed:
		return enterrors.ErrClosed
	default:
		return enterrors.NewPrecondition("access object is not open yet")
	}
}

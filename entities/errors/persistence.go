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

package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat marks on-disk data that cannot be parsed: a bad magic
	// number, an unknown format version, a malformed record header or a
	// payload shorter than its header claims.
	ErrFormat = errors.New("malformed on-disk data")

	// ErrPrecondition marks a call whose arguments violate the contract of
	// the operation, e.g. a negative version or a non-increasing checkpoint.
	ErrPrecondition = errors.New("precondition failed")

	// ErrClosed is returned by every operation on an access object after it
	// has been closed, including by eviction from a store cache.
	ErrClosed = errors.New("access object is closed")
)

func NewFormat(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrFormat)
}

func NewPrecondition(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrPrecondition)
}

func IsFormat(err error) bool {
	return errors.Is(err, ErrFormat)
}

func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition)
}

func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// PersistenceError is the single error type that crosses the store façades.
// The underlying cause stays reachable through errors.Is and errors.As.
type PersistenceError struct {
	Op     string
	Stream string
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.Stream == "" {
		return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence: %s %s: %v", e.Op, e.Stream, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistence wraps err unless it is nil or already a PersistenceError.
func NewPersistence(op, stream string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Stream: stream, Err: err}
}

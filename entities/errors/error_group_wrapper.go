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
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrorGroupWrapper is an errgroup.Group that turns a panic in one of its
// goroutines into an error returned from Wait.
type ErrorGroupWrapper struct {
	*errgroup.Group
	logger    logrus.FieldLogger
	variables []interface{}

	mu          sync.Mutex
	returnError error
}

// NewErrorGroupWrapper creates a new ErrorGroupWrapper. vars are logged
// alongside any recovered panic.
func NewErrorGroupWrapper(logger logrus.FieldLogger, vars ...interface{}) *ErrorGroupWrapper {
	return &ErrorGroupWrapper{
		Group:     new(errgroup.Group),
		logger:    logger,
		variables: vars,
	}
}

// Go overrides the Go method to add panic recovery logic.
func (egw *ErrorGroupWrapper) Go(f func() error, localVars ...interface{}) {
	egw.Group.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				egw.logger.WithField("action", "error_group_panic").
					Errorf("Recovered from panic: %v, local variables %v, additional localVars %v",
						r, localVars, egw.variables)
				debug.PrintStack()

				egw.mu.Lock()
				egw.returnError = fmt.Errorf("panic occurred: %v", r)
				egw.mu.Unlock()
			}
		}()
		return f()
	})
}

// Wait waits for all goroutines to finish and returns the first non-nil error.
func (egw *ErrorGroupWrapper) Wait() error {
	if err := egw.Group.Wait(); err != nil {
		return err
	}
	egw.mu.Lock()
	defer egw.mu.Unlock()
	return egw.returnError
}

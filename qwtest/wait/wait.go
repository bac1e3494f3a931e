// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wait provides polling helpers for tests that need to observe
// asynchronous state, such as backend health transitions or height updates.
package wait

import (
	"errors"
	"time"
)

var (
	// ErrNoResponse is returned when f does not return within the timeout.
	ErrNoResponse = errors.New("method did not return within the timeout")

	// ErrPredicateFalse is returned when the predicate never held within
	// the timeout.
	ErrPredicateFalse = errors.New("predicate not satisfied within the " +
		"timeout")
)

// PollInterval is the default polling interval used by NoError and
// Predicate.
const PollInterval = 20 * time.Millisecond

// NoError polls f until it returns nil or the timeout is reached.
//
// If the timeout is reached, the last error returned by f is returned.
func NoError(f func() error, timeout time.Duration) error {
	// f is expected to be cheap and non-blocking. This helper is intended
	// for polling state (e.g. "has the monitor seen the new tip?") rather
	// than performing a long operation.
	//
	// NOTE: NoError does not interrupt f. If f blocks, NoError may block
	// longer than the provided timeout.

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var lastErr error

	// Call f() immediately to avoid the initial ticker delay.
	if err := f(); err == nil {
		return nil
	} else {
		lastErr = err
	}

	for {
		select {
		case <-deadline.C:
			if lastErr == nil {
				return ErrNoResponse
			}

			return lastErr

		case <-ticker.C:
			err := f()
			if err == nil {
				return nil
			}

			lastErr = err
		}
	}
}

// Predicate polls pred until it returns true or the timeout is reached.
func Predicate(pred func() bool, timeout time.Duration) error {
	err := NoError(func() error {
		if pred() {
			return nil
		}

		return ErrPredicateFalse
	}, timeout)

	return err
}

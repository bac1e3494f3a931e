// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInsufficientFunds is returned when the node rejects a
	// transaction because the sender cannot cover it. This is a property
	// of the request, not of any one backend.
	ErrInsufficientFunds = errors.New("insufficient funds on chain")

	// ErrInvalidArgument is returned when the node rejects the request's
	// parameters.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTxRejected is returned when the node deems a submitted
	// transaction permanently invalid (bad signature, spent outpoint,
	// malformed encoding).
	ErrTxRejected = errors.New("transaction rejected")

	// ErrTxAlreadyKnown is returned when a backend reports that it has
	// already seen the submitted transaction. For a broadcast this is
	// evidence of success, not failure.
	ErrTxAlreadyKnown = errors.New("transaction already known")

	// ErrMethodNotSupported is returned when a backend does not serve the
	// requested method.
	ErrMethodNotSupported = errors.New("method not supported")

	// ErrRateLimited is returned when a backend throttles the client.
	ErrRateLimited = errors.New("backend rate limited")

	// ErrBackendStalled is returned for a backend whose view of the chain
	// is too far behind the best observed height to be trusted for reads.
	ErrBackendStalled = errors.New("backend is stalled behind chain tip")

	// ErrQuorumUnreachable is returned when backend responses are too
	// inconsistent for any single result to accumulate quorum weight.
	ErrQuorumUnreachable = errors.New("no consistent result from backends")

	// ErrNoBackends is returned when a request is performed against a
	// client with no usable backends.
	ErrNoBackends = errors.New("no usable backends")
)

// ErrorClass partitions backend errors by how the quorum engine must treat
// them.
type ErrorClass int

const (
	// ClassBackendLocal marks errors that belong to one backend alone:
	// timeouts, connection resets, rate limits. They remove the backend
	// from the current decision and never fail the request by themselves.
	ClassBackendLocal ErrorClass = iota

	// ClassFatal marks errors that are a property of the request itself.
	// Enough weight agreeing on a fatal error settles the request as that
	// error without waiting for slower backends.
	ClassFatal

	// ClassDuplicate marks the already-known duplicate-broadcast report,
	// which counts as agreement with a successful broadcast rather than
	// as a failure.
	ClassDuplicate
)

// String returns a human-readable class name for logging.
func (c ErrorClass) String() string {
	switch c {
	case ClassBackendLocal:
		return "backend-local"
	case ClassFatal:
		return "fatal"
	case ClassDuplicate:
		return "duplicate"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Classify maps an error from a backend to its quorum-accounting class.
// Errors should have been passed through MapNodeErr first so that node
// strings are already folded onto the package sentinels.
func Classify(err error) ErrorClass {
	switch {
	case errors.Is(err, ErrTxAlreadyKnown):
		return ClassDuplicate

	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrTxRejected):

		return ClassFatal

	default:
		return ClassBackendLocal
	}
}

// nodeErrPatterns maps substrings of node error messages to the package's
// sentinel errors. Nodes return bare strings over JSON-RPC, so substring
// matching is the only portable classification.
var nodeErrPatterns = []struct {
	match    string
	sentinel error
}{
	{"insufficient funds", ErrInsufficientFunds},
	{"insufficient balance", ErrInsufficientFunds},
	{"already known", ErrTxAlreadyKnown},
	{"alreadyhaveblock", ErrTxAlreadyKnown},
	{"duplicate transaction", ErrTxAlreadyKnown},
	{"transaction is already in the mempool", ErrTxAlreadyKnown},
	{"invalid argument", ErrInvalidArgument},
	{"invalid sender", ErrTxRejected},
	{"invalid signature", ErrTxRejected},
	{"utxo not found", ErrTxRejected},
	{"double spend", ErrTxRejected},
	{"replacement transaction underpriced", ErrTxRejected},
	{"method not found", ErrMethodNotSupported},
	{"does not exist/is not available", ErrMethodNotSupported},
	{"too many requests", ErrRateLimited},
	{"request rate exceeded", ErrRateLimited},
	{"429", ErrRateLimited},
}

// MapNodeErr folds a raw node or transport error onto the package's typed
// errors, retaining the original message as context. Unrecognized errors are
// returned unchanged and classify as backend-local.
func MapNodeErr(err error) error {
	if err == nil {
		return nil
	}

	// Context errors pass through untouched so callers can match on them.
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {

		return err
	}

	msg := strings.ToLower(err.Error())
	for _, p := range nodeErrPatterns {
		if strings.Contains(msg, p.match) {
			return fmt.Errorf("%w: %s", p.sentinel, err.Error())
		}
	}

	return err
}

// AggregateError is the single coherent error a settled-failed request
// surfaces. Cause is the most specific classified error observed; the
// per-backend errors are retained for debugging.
type AggregateError struct {
	// Method is the JSON-RPC method of the failed request.
	Method string

	// Cause is the error the request settles as. Fatal-class causes are
	// preferred over the generic ErrQuorumUnreachable.
	Cause error

	// BackendErrs holds each backend's individual error, keyed by
	// backend name.
	BackendErrs map[string]error
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	return fmt.Sprintf("%s: %v (%d backend errors)", e.Method, e.Cause,
		len(e.BackendErrs))
}

// Unwrap exposes the settled cause so errors.Is matching works on the
// aggregate.
func (e *AggregateError) Unwrap() error {
	return e.Cause
}

// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// A compile-time check to ensure mockBackend satisfies the Backend interface.
var _ Backend = (*mockBackend)(nil)

// mockBackend is a scripted Backend for driving the quorum engine in tests.
// Each field configures one behavior; the zero value answers every request
// with a null result at height zero.
type mockBackend struct {
	name string

	// height is the value BlockHeight reports.
	height uint64

	// delay is how long Perform sleeps before answering, to simulate a
	// slow backend.
	delay time.Duration

	// result and err are what Perform returns. respond, when set, takes
	// precedence and computes the answer per call.
	result  json.RawMessage
	err     error
	respond func(req *Request) (json.RawMessage, error)

	// calls counts Perform invocations.
	calls atomic.Int64

	destroyed atomic.Bool
}

func (m *mockBackend) Name() string {
	return m.name
}

func (m *mockBackend) Perform(ctx context.Context, req *Request) (
	json.RawMessage, error) {

	m.calls.Add(1)

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.respond != nil {
		return m.respond(req)
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return json.RawMessage("null"), nil
	}

	return m.result, nil
}

func (m *mockBackend) BlockHeight() uint64 {
	return m.height
}

func (m *mockBackend) Destroy() {
	m.destroyed.Store(true)
}

// newTestClient builds a FallbackClient over the given backends, all at
// priority 0 and weight 1 unless cfgs overrides them. The client's background
// poller is slowed down so it never interferes with the test.
func newTestClient(t *testing.T, cfg *Config) *FallbackClient {
	t.Helper()

	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Hour
	}

	c, err := NewFallbackClient(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Destroy)

	return c
}

// backendConfigs wraps plain backends in default BackendConfigs.
func backendConfigs(backends ...*mockBackend) []*BackendConfig {
	cfgs := make([]*BackendConfig, 0, len(backends))
	for _, b := range backends {
		cfgs = append(cfgs, &BackendConfig{Backend: b})
	}

	return cfgs
}

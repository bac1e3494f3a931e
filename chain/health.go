// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"sync"
	"time"
)

// backendHealth is the mutable runtime record for one backend. All fields
// are guarded by the owning healthTracker's mutex; concurrent request
// completions only ever replace whole fields under the lock, never
// read-modify-write across an await.
type backendHealth struct {
	// failures is the rolling count of consecutive errors.
	failures int

	// quarantinedUntil is set when failures crosses the threshold; the
	// backend is skipped for new requests until this time passes.
	quarantinedUntil time.Time

	// probing marks a half-open backend: its cooldown has expired and
	// exactly one in-flight request is allowed to test it before it is
	// readmitted.
	probing bool

	// height is the best block height the backend has reported.
	height uint64

	// heightStamp records when height was last updated.
	heightStamp time.Time
}

// healthTracker owns the per-backend health records for one FallbackClient.
// Its lifetime matches the client's; no state is shared across clients or
// processes.
type healthTracker struct {
	mu sync.Mutex

	// maxFailures is the consecutive-failure count that triggers
	// quarantine.
	maxFailures int

	// cooldown is how long a quarantined backend sits out before its
	// half-open probe.
	cooldown time.Duration

	backends map[string]*backendHealth

	// bestHeight is the maximum height observed across all backends,
	// used as the lag reference.
	bestHeight uint64
}

func newHealthTracker(maxFailures int, cooldown time.Duration) *healthTracker {
	return &healthTracker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		backends:    make(map[string]*backendHealth),
	}
}

func (h *healthTracker) record(name string) *backendHealth {
	b, ok := h.backends[name]
	if !ok {
		b = &backendHealth{}
		h.backends[name] = b
	}
	return b
}

// noteSuccess clears the backend's failure streak and records its reported
// height.
func (h *healthTracker) noteSuccess(name string, height uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.record(name)
	b.failures = 0
	b.probing = false
	b.quarantinedUntil = time.Time{}
	h.observeHeight(b, height)
}

// noteFailure bumps the backend's failure streak, quarantining it once the
// streak reaches the threshold.
func (h *healthTracker) noteFailure(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.record(name)
	b.failures++
	b.probing = false
	if b.failures >= h.maxFailures {
		b.quarantinedUntil = time.Now().Add(h.cooldown)
		log.Debugf("Backend %s quarantined for %v after %d "+
			"consecutive failures", name, h.cooldown, b.failures)
	}
}

// noteHeight records a height observation without touching the failure
// streak, e.g. from a subscription feed.
func (h *healthTracker) noteHeight(name string, height uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.observeHeight(h.record(name), height)
}

func (h *healthTracker) observeHeight(b *backendHealth, height uint64) {
	if height == 0 {
		return
	}
	if height > b.height {
		b.height = height
		b.heightStamp = time.Now()
	}
	if height > h.bestHeight {
		h.bestHeight = height
	}
}

// usable reports whether the backend should be raced for a new request. A
// quarantined backend becomes usable again exactly once after its cooldown
// expires (the half-open probe); it is readmitted fully only when that probe
// succeeds.
func (h *healthTracker) usable(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.record(name)
	if b.quarantinedUntil.IsZero() {
		return true
	}
	if time.Now().Before(b.quarantinedUntil) {
		return false
	}
	if b.probing {
		// A probe is already in flight; keep others away.
		return false
	}
	b.probing = true

	return true
}

// lag returns how many blocks the backend trails the best height observed
// across all backends.
func (h *healthTracker) lag(name string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.record(name)
	if b.height >= h.bestHeight {
		return 0
	}
	return h.bestHeight - b.height
}

// snapshotBestHeight returns the highest block height seen so far.
func (h *healthTracker) snapshotBestHeight() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.bestHeight
}

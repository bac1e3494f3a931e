// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultStallTimeout is how long a priority group gets to reach
	// quorum before the next group is added to the race.
	DefaultStallTimeout = 400 * time.Millisecond

	// DefaultLagAllowance is the number of blocks a backend may trail
	// the best observed height before its reads stop counting toward
	// quorum.
	DefaultLagAllowance = 2

	// DefaultMaxFailures is the consecutive-failure count that
	// quarantines a backend.
	DefaultMaxFailures = 3

	// DefaultHealthCooldown is how long a quarantined backend sits out
	// before its half-open probe.
	DefaultHealthCooldown = 30 * time.Second

	// DefaultPollInterval is how often backend heights are refreshed in
	// the background. Tuned to the network's block cadence.
	DefaultPollInterval = 10 * time.Second
)

var (
	// ErrNoBackendConfigs is returned when a client is constructed with
	// an empty backend set.
	ErrNoBackendConfigs = errors.New("at least one backend is required")

	// ErrQuorumTooLow is returned when the configured quorum does not
	// exceed half the total backend weight. Such a quorum would let two
	// different values settle simultaneously.
	ErrQuorumTooLow = errors.New("quorum must exceed half the total weight")

	// ErrQuorumTooHigh is returned when the configured quorum exceeds
	// the total backend weight and so could never be reached.
	ErrQuorumTooHigh = errors.New("quorum exceeds total backend weight")
)

// BackendConfig attaches racing policy to one backend.
type BackendConfig struct {
	// Backend executes requests against the underlying node.
	Backend Backend

	// Priority ranks the backend; lower priorities are raced first.
	// Backends sharing a priority form one group and are always
	// dispatched together.
	Priority int

	// Weight is the backend's contribution to quorum counting. Defaults
	// to 1.
	Weight int

	// StallTimeout is how long this backend's group may run without a
	// decision before the next group joins the race. A group's effective
	// stall is the largest of its members'. Defaults to
	// DefaultStallTimeout.
	StallTimeout time.Duration
}

// Config collects the aggregation policy for a FallbackClient.
type Config struct {
	// Backends is the full backend set, in any order.
	Backends []*BackendConfig

	// Quorum is the accumulated weight a single result needs to settle a
	// request. It must exceed half the total weight; zero selects the
	// smallest such value.
	Quorum int

	// LagAllowance is the eventual-consistency allowance: how many
	// blocks behind the best observed height a backend may be before its
	// read responses are excluded from quorum counting. Broadcasts are
	// exempt. Defaults to DefaultLagAllowance.
	LagAllowance uint64

	// MaxFailures and HealthCooldown govern quarantine: a backend
	// erroring MaxFailures times in a row is skipped for new requests
	// until HealthCooldown passes, then given one half-open probe.
	MaxFailures    int
	HealthCooldown time.Duration

	// PollInterval is the cadence of the background height refresh.
	PollInterval time.Duration
}

// validate applies defaults and rejects configurations whose quorum could
// settle two different values at once.
func (cfg *Config) validate() error {
	if len(cfg.Backends) == 0 {
		return ErrNoBackendConfigs
	}

	total := 0
	for _, bc := range cfg.Backends {
		if bc.Weight <= 0 {
			bc.Weight = 1
		}
		if bc.StallTimeout <= 0 {
			bc.StallTimeout = DefaultStallTimeout
		}
		total += bc.Weight
	}

	if cfg.Quorum == 0 {
		cfg.Quorum = total/2 + 1
	}
	if cfg.Quorum <= total/2 {
		return ErrQuorumTooLow
	}
	if cfg.Quorum > total {
		return ErrQuorumTooHigh
	}

	if cfg.LagAllowance == 0 {
		cfg.LagAllowance = DefaultLagAllowance
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.HealthCooldown <= 0 {
		cfg.HealthCooldown = DefaultHealthCooldown
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	return nil
}

// FallbackClient aggregates several untrusted backends into one provider.
// Each logical request is dispatched to the lowest-priority group of
// backends concurrently, escalating to further groups on stall, and settles
// on the first normalized result to accumulate Quorum weight. The client
// owns all backend health state; destroy it with Destroy.
type FallbackClient struct {
	cfg    *Config
	groups [][]*BackendConfig

	health     *healthTracker
	heightTick ticker.Ticker

	started sync.Once
	stopped sync.Once
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewFallbackClient validates the config and returns a running client. The
// background height monitor starts immediately.
func NewFallbackClient(cfg *Config) (*FallbackClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Group backends by ascending priority.
	byPriority := make(map[int][]*BackendConfig)
	var priorities []int
	for _, bc := range cfg.Backends {
		if _, ok := byPriority[bc.Priority]; !ok {
			priorities = append(priorities, bc.Priority)
		}
		byPriority[bc.Priority] = append(byPriority[bc.Priority], bc)
	}
	sort.Ints(priorities)

	groups := make([][]*BackendConfig, 0, len(priorities))
	for _, p := range priorities {
		groups = append(groups, byPriority[p])
	}

	c := &FallbackClient{
		cfg:        cfg,
		groups:     groups,
		health:     newHealthTracker(cfg.MaxFailures, cfg.HealthCooldown),
		heightTick: ticker.New(cfg.PollInterval),
		quit:       make(chan struct{}),
	}

	c.started.Do(func() {
		c.heightTick.Resume()
		c.wg.Add(1)
		go c.heightMonitor()
	})

	return c, nil
}

// heightMonitor periodically folds each backend's self-reported height into
// the health tracker so lag estimates stay current even for idle backends.
func (c *FallbackClient) heightMonitor() {
	defer c.wg.Done()

	for {
		select {
		case <-c.heightTick.Ticks():
			for _, bc := range c.cfg.Backends {
				h := bc.Backend.BlockHeight()
				c.health.noteHeight(bc.Backend.Name(), h)
			}

		case <-c.quit:
			return
		}
	}
}

// Destroy stops the background monitor and releases every backend's
// connections.
func (c *FallbackClient) Destroy() {
	c.stopped.Do(func() {
		close(c.quit)
		c.heightTick.Stop()
		c.wg.Wait()

		var eg errgroup.Group
		for _, bc := range c.cfg.Backends {
			eg.Go(func() error {
				bc.Backend.Destroy()
				return nil
			})
		}
		_ = eg.Wait()
	})
}

// BestHeight returns the highest block height observed across all backends.
func (c *FallbackClient) BestHeight() uint64 {
	return c.health.snapshotBestHeight()
}

// usableGroups returns the priority groups with quarantined backends
// filtered out. If quarantine empties every group, the full set is returned:
// a fully-quarantined client should still try, not refuse.
func (c *FallbackClient) usableGroups() [][]*BackendConfig {
	var groups [][]*BackendConfig
	for _, g := range c.groups {
		var usable []*BackendConfig
		for _, bc := range g {
			if c.health.usable(bc.Backend.Name()) {
				usable = append(usable, bc)
			}
		}
		if len(usable) > 0 {
			groups = append(groups, usable)
		}
	}
	if len(groups) == 0 {
		log.Debug("All backends quarantined, racing the full set")
		groups = c.groups
	}

	return groups
}

// attemptResult is one backend's contribution to a logical request. The
// backend's observed height is folded into the health tracker at completion
// time rather than carried here.
type attemptResult struct {
	cfg  *BackendConfig
	name string
	raw  json.RawMessage
	err  error
}

// vote accumulates agreement weight for one normalized result, or for one
// fatal error class.
type vote struct {
	weight int
	raw    json.RawMessage
	err    error
}

// Perform runs one logical request across the backend set and settles it by
// quorum. It returns the winning raw result, or a single coherent error:
// a fatal request error once enough weight reports it, or an AggregateError
// wrapping ErrQuorumUnreachable when no result can mathematically reach
// quorum anymore.
//
// Late responses from outraced backends are not awaited, but their attempt
// goroutines run to completion in the background and keep feeding the
// health tracker.
func (c *FallbackClient) Perform(ctx context.Context, req *Request) (
	json.RawMessage, error) {

	groups := c.usableGroups()

	backendCount, pending := 0, 0
	for _, g := range groups {
		for _, bc := range g {
			backendCount++
			pending += bc.Weight
		}
	}
	if backendCount == 0 {
		return nil, ErrNoBackends
	}

	// The channel is buffered for every possible attempt so that late
	// completions never block after the request has settled.
	results := make(chan *attemptResult, backendCount)

	dispatch := func(g []*BackendConfig) {
		for _, bc := range g {
			go c.attempt(ctx, bc, req, results)
		}
	}

	var (
		tally       = make(map[string]*vote)
		backendErrs = make(map[string]error)
		fatalCause  error

		// dupWeight holds duplicate-broadcast agreement that arrived
		// before any successful broadcast result to attach it to.
		dupWeight  int
		successKey string

		outstanding = len(groups[0])
	)

	fail := func(cause error) (json.RawMessage, error) {
		return nil, &AggregateError{
			Method:      req.Method,
			Cause:       cause,
			BackendErrs: backendErrs,
		}
	}

	dispatch(groups[0])
	next := 1

	stall := time.NewTimer(groupStall(groups[0]))
	defer stall.Stop()

	admit := func() {
		dispatch(groups[next])
		outstanding += len(groups[next])
		stall.Reset(groupStall(groups[next]))
		next++
	}

	for {
		select {
		case res := <-results:
			outstanding--
			pending -= res.cfg.Weight
			if res.err != nil {
				backendErrs[res.name] = res.err
			}

			switch {
			case res.err == nil:
				// Reads from a backend trailing the pack by
				// more than the allowance do not count.
				lag := c.health.lag(res.name)
				if !req.Broadcast() && lag > c.cfg.LagAllowance {
					log.Debugf("Excluding stale read from "+
						"%s (lag=%d blocks)", res.name,
						lag)
					backendErrs[res.name] = ErrBackendStalled
					break
				}

				key, err := canonicalKey(res.raw)
				if err != nil {
					backendErrs[res.name] = err
					break
				}

				v := addVote(tally, key, res.cfg.Weight, res.raw, nil)
				if req.Broadcast() && successKey == "" {
					successKey = key
					v.weight += dupWeight
					dupWeight = 0
				}
				if v.weight >= c.cfg.Quorum {
					return v.raw, nil
				}

			case Classify(res.err) == ClassFatal:
				if fatalCause == nil {
					fatalCause = res.err
				}
				key := "!" + sentinelOf(res.err).Error()
				v := addVote(tally, key, res.cfg.Weight, nil, res.err)
				if v.weight >= c.cfg.Quorum {
					// The error is a property of the
					// request; waiting out slower backends
					// cannot change the outcome.
					return fail(v.err)
				}

			case Classify(res.err) == ClassDuplicate && req.Broadcast():
				// Another mempool already holds this exact
				// transaction: evidence the broadcast worked.
				if successKey != "" {
					v := tally[successKey]
					v.weight += res.cfg.Weight
					if v.weight >= c.cfg.Quorum {
						return v.raw, nil
					}
				} else {
					dupWeight += res.cfg.Weight
				}

			default:
				// Backend-local failure: the backend simply
				// drops out of this request.
			}

			// If every admitted backend has answered without a
			// decision, pull the next group in early rather than
			// waiting out the stall timer.
			if outstanding == 0 && next < len(groups) {
				admit()
			}

			// Settle as unreachable once no result, present or
			// future, can accumulate quorum weight. Held
			// duplicate-broadcast weight only counts while a
			// success it could fold into can still arrive.
			best := 0
			for _, v := range tally {
				if v.weight > best {
					best = v.weight
				}
			}
			reachable := best + pending
			if pending > 0 {
				reachable += dupWeight
			}
			if reachable < c.cfg.Quorum {
				cause := fatalCause
				if cause == nil {
					cause = ErrQuorumUnreachable
				}
				return fail(cause)
			}

		case <-stall.C:
			if next < len(groups) {
				log.Debugf("Request %s stalled, admitting "+
					"priority group %d", req.Method, next)
				admit()
			}

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// attempt performs the request against one backend and reports the outcome.
// It runs to completion regardless of whether the logical request has
// already settled, so health and height tracking see every response.
func (c *FallbackClient) attempt(ctx context.Context, bc *BackendConfig,
	req *Request, results chan<- *attemptResult) {

	name := bc.Backend.Name()
	raw, err := bc.Backend.Perform(ctx, req)
	err = MapNodeErr(err)
	height := bc.Backend.BlockHeight()

	switch {
	case err == nil:
		c.health.noteSuccess(name, height)

	case Classify(err) != ClassBackendLocal:
		// Fatal and duplicate reports mean the backend itself is
		// healthy; it answered, we just did not like the answer.
		c.health.noteSuccess(name, height)

	case ctx.Err() != nil:
		// The caller went away; do not punish the backend for it.

	default:
		c.health.noteFailure(name)
	}

	results <- &attemptResult{
		cfg:  bc,
		name: name,
		raw:  raw,
		err:  err,
	}
}

// addVote folds weight into the tally for key, keeping the first
// representative raw result or error seen for it.
func addVote(tally map[string]*vote, key string, weight int,
	raw json.RawMessage, err error) *vote {

	v, ok := tally[key]
	if !ok {
		v = &vote{raw: raw, err: err}
		tally[key] = v
	}
	v.weight += weight

	return v
}

// sentinelOf maps a classified error back to its package sentinel so that
// fatal reports from different backends tally together even when their
// message texts differ.
func sentinelOf(err error) error {
	sentinels := []error{
		ErrInsufficientFunds,
		ErrInvalidArgument,
		ErrTxRejected,
		ErrTxAlreadyKnown,
		ErrMethodNotSupported,
		ErrRateLimited,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s
		}
	}

	return err
}

// groupStall returns the effective stall timeout of a priority group, the
// largest of its members'.
func groupStall(g []*BackendConfig) time.Duration {
	stall := time.Duration(0)
	for _, bc := range g {
		if bc.StallTimeout > stall {
			stall = bc.StallTimeout
		}
	}

	return stall
}

// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// RPCBackendConfig defines the options used when initializing an RPCBackend.
type RPCBackendConfig struct {
	// Name identifies the backend in logs and health tracking. Defaults
	// to the endpoint URL.
	Name string

	// URL is the node endpoint. http(s), ws(s) and IPC socket paths are
	// accepted; websocket endpoints additionally get a newHeads
	// subscription for tip tracking.
	URL string

	// PollInterval is the tip-polling cadence for endpoints without a
	// subscription feed. Defaults to DefaultPollInterval.
	PollInterval time.Duration
}

// validate checks the required config options are set.
func (cfg *RPCBackendConfig) validate() error {
	if cfg == nil {
		return errors.New("missing rpc backend config")
	}
	if cfg.URL == "" {
		return errors.New("missing backend url")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.URL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	return nil
}

// RPCBackend executes requests against a single node over go-ethereum's
// JSON-RPC client, which covers HTTP, WebSocket and IPC endpoints with one
// dial path.
type RPCBackend struct {
	cfg    *RPCBackendConfig
	client *rpc.Client

	height atomic.Uint64

	quit    chan struct{}
	wg      sync.WaitGroup
	stopped sync.Once
}

// A compile-time check to ensure that RPCBackend satisfies the Backend
// interface.
var _ Backend = (*RPCBackend)(nil)

// NewRPCBackend dials the endpoint and starts tip tracking. Websocket
// endpoints are tracked through a newHeads subscription, everything else by
// polling.
func NewRPCBackend(ctx context.Context, cfg *RPCBackendConfig) (*RPCBackend,
	error) {

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}

	b := &RPCBackend{
		cfg:    cfg,
		client: client,
		quit:   make(chan struct{}),
	}

	// Seed the height so staleness screening has a baseline before the
	// first poll fires.
	if h, err := b.fetchHeight(ctx); err == nil {
		b.height.Store(h)
	}

	b.wg.Add(1)
	if b.subscribable() {
		go b.subscribeHeads()
	} else {
		go b.pollHeads()
	}

	return b, nil
}

// subscribable reports whether the endpoint supports server push.
func (b *RPCBackend) subscribable() bool {
	u := b.cfg.URL
	return strings.HasPrefix(u, "ws://") || strings.HasPrefix(u, "wss://") ||
		strings.HasSuffix(u, ".ipc")
}

// Name returns the backend's identifier.
func (b *RPCBackend) Name() string {
	return b.cfg.Name
}

// Perform executes the request and returns the raw JSON result, with node
// errors folded onto the package sentinels.
func (b *RPCBackend) Perform(ctx context.Context, req *Request) (
	json.RawMessage, error) {

	var raw json.RawMessage
	err := b.client.CallContext(ctx, &raw, req.Method, req.Params...)
	if err != nil {
		return nil, MapNodeErr(err)
	}

	return raw, nil
}

// BlockHeight returns the backend's best-known height.
func (b *RPCBackend) BlockHeight() uint64 {
	return b.height.Load()
}

// Destroy stops tip tracking and closes the underlying connection.
func (b *RPCBackend) Destroy() {
	b.stopped.Do(func() {
		close(b.quit)
		b.client.Close()
		b.wg.Wait()
	})
}

func (b *RPCBackend) fetchHeight(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	err := b.client.CallContext(ctx, &n, MethodBlockNumber)
	if err != nil {
		return 0, err
	}

	return uint64(n), nil
}

// pollHeads refreshes the tip on a fixed cadence.
func (b *RPCBackend) pollHeads() {
	defer b.wg.Done()

	t := time.NewTicker(b.cfg.PollInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			ctx, cancel := context.WithTimeout(
				context.Background(), b.cfg.PollInterval,
			)
			h, err := b.fetchHeight(ctx)
			cancel()
			if err != nil {
				log.Debugf("Backend %s tip poll failed: %v",
					b.Name(), err)
				continue
			}
			b.storeHeight(h)

		case <-b.quit:
			return
		}
	}
}

// subscribeHeads tracks the tip through a newHeads subscription,
// resubscribing with backoff if the feed drops. Poll tracking is the
// fallback if the node refuses the subscription outright.
func (b *RPCBackend) subscribeHeads() {
	heads := make(chan *Header, 8)

	sub, err := b.client.Subscribe(
		context.Background(), MethodSubscribeNamespace, heads,
		SubscriptionNewHeads,
	)
	if err != nil {
		log.Infof("Backend %s does not serve head subscriptions, "+
			"falling back to polling: %v", b.Name(), err)
		b.pollHeads()
		return
	}
	defer b.wg.Done()
	defer func() {
		sub.Unsubscribe()
	}()

	for {
		select {
		case hdr := <-heads:
			if hdr != nil && hdr.Number != nil {
				b.storeHeight(hdr.Number.ToInt().Uint64())
			}

		case err, ok := <-sub.Err():
			if !ok {
				return
			}
			log.Warnf("Backend %s head subscription error: %v",
				b.Name(), err)

			select {
			case <-time.After(time.Second):
			case <-b.quit:
				return
			}

			sub, err = b.client.Subscribe(
				context.Background(), MethodSubscribeNamespace,
				heads, SubscriptionNewHeads,
			)
			if err != nil {
				log.Warnf("Backend %s resubscribe failed: %v",
					b.Name(), err)
				return
			}

		case <-b.quit:
			return
		}
	}
}

// storeHeight advances the cached tip, never moving it backwards.
func (b *RPCBackend) storeHeight(h uint64) {
	for {
		cur := b.height.Load()
		if h <= cur || b.height.CompareAndSwap(cur, h) {
			return
		}
	}
}

// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
)

// ErrBackendClosed is returned for requests performed against a destroyed
// or disconnected backend.
var ErrBackendClosed = errors.New("backend connection closed")

// wsHandshakeTimeout bounds the opening handshake.
const wsHandshakeTimeout = 10 * time.Second

// jsonrpcMessage is the JSON-RPC 2.0 envelope exchanged over the socket.
type jsonrpcMessage struct {
	Version string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

// jsonrpcError is the error member of a JSON-RPC response.
type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *jsonrpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// subscriptionNotice is the params payload of a push notification.
type subscriptionNotice struct {
	Subscription string `json:"subscription"`
	Result       struct {
		Number *hexutil.Big `json:"number"`
	} `json:"result"`
}

// WSBackendConfig defines the options used when initializing a WSBackend.
type WSBackendConfig struct {
	// Name identifies the backend in logs and health tracking. Defaults
	// to the endpoint URL.
	Name string

	// URL is the ws:// or wss:// endpoint.
	URL string
}

// validate checks the required config options are set.
func (cfg *WSBackendConfig) validate() error {
	if cfg == nil {
		return errors.New("missing ws backend config")
	}
	if cfg.URL == "" {
		return errors.New("missing backend url")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.URL
	}

	return nil
}

// WSBackend speaks JSON-RPC directly over a websocket. It exists for
// deployments that terminate on bare websocket gateways; feature-wise it is
// interchangeable with RPCBackend, and the FallbackClient treats both
// identically. Responses are correlated to requests by id, and a newHeads
// subscription keeps the tip current without polling.
type WSBackend struct {
	cfg  *WSBackendConfig
	conn *websocket.Conn

	// writeMtx serializes writes; the websocket protocol allows only one
	// concurrent writer.
	writeMtx sync.Mutex

	pendingMtx sync.Mutex
	pending    map[uint64]chan *jsonrpcMessage

	nextID atomic.Uint64
	height atomic.Uint64

	quit    chan struct{}
	wg      sync.WaitGroup
	stopped sync.Once
}

// A compile-time check to ensure that WSBackend satisfies the Backend
// interface.
var _ Backend = (*WSBackend)(nil)

// NewWSBackend dials the endpoint, starts the read pump, and requests a
// newHeads subscription for tip tracking.
func NewWSBackend(ctx context.Context, cfg *WSBackendConfig) (*WSBackend,
	error) {

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", cfg.URL, err)
	}

	b := &WSBackend{
		cfg:     cfg,
		conn:    conn,
		pending: make(map[uint64]chan *jsonrpcMessage),
		quit:    make(chan struct{}),
	}

	b.wg.Add(1)
	go b.readPump()

	// Tip tracking is best-effort; a gateway without subscription
	// support still serves requests, it just never screens as stale.
	var subID string
	err = b.call(ctx, "quai_subscribe", &subID, SubscriptionNewHeads)
	if err != nil {
		log.Infof("Backend %s does not serve head subscriptions: %v",
			b.Name(), err)
	}

	return b, nil
}

// Name returns the backend's identifier.
func (b *WSBackend) Name() string {
	return b.cfg.Name
}

// Perform executes the request and returns the raw JSON result.
func (b *WSBackend) Perform(ctx context.Context, req *Request) (
	json.RawMessage, error) {

	var raw json.RawMessage
	if err := b.call(ctx, req.Method, &raw, req.Params...); err != nil {
		return nil, MapNodeErr(err)
	}

	return raw, nil
}

// BlockHeight returns the backend's best-known height.
func (b *WSBackend) BlockHeight() uint64 {
	return b.height.Load()
}

// Destroy tears down the connection and fails any in-flight calls.
func (b *WSBackend) Destroy() {
	b.stopped.Do(func() {
		close(b.quit)
		b.conn.Close()
		b.wg.Wait()
	})
}

// call performs one JSON-RPC exchange and decodes the result into out.
func (b *WSBackend) call(ctx context.Context, method string, out any,
	params ...any) error {

	id := b.nextID.Add(1)

	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}
	payload, err := json.Marshal(&jsonrpcMessage{
		Version: "2.0",
		ID:      &id,
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	ch := make(chan *jsonrpcMessage, 1)
	b.pendingMtx.Lock()
	b.pending[id] = ch
	b.pendingMtx.Unlock()
	defer func() {
		b.pendingMtx.Lock()
		delete(b.pending, id)
		b.pendingMtx.Unlock()
	}()

	b.writeMtx.Lock()
	err = b.conn.WriteMessage(websocket.TextMessage, payload)
	b.writeMtx.Unlock()
	if err != nil {
		return fmt.Errorf("writing request: %w", err)
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return msg.Error
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(msg.Result, out)

	case <-ctx.Done():
		return ctx.Err()

	case <-b.quit:
		return ErrBackendClosed
	}
}

// readPump routes incoming frames: responses to their pending caller,
// subscription notices to the tip tracker. It exits when the connection
// drops, failing all pending calls.
func (b *WSBackend) readPump() {
	defer b.wg.Done()
	defer b.failPending()

	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			select {
			case <-b.quit:
			default:
				log.Warnf("Backend %s read failed: %v",
					b.Name(), err)
			}
			return
		}

		var msg jsonrpcMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warnf("Backend %s sent malformed frame: %v",
				b.Name(), err)
			continue
		}

		switch {
		case msg.ID != nil:
			b.pendingMtx.Lock()
			ch, ok := b.pending[*msg.ID]
			b.pendingMtx.Unlock()
			if ok {
				ch <- &msg
			}

		case msg.Method == "quai_subscription":
			var notice subscriptionNotice
			if err := json.Unmarshal(msg.Params, &notice); err != nil {
				continue
			}
			if notice.Result.Number != nil {
				b.storeHeight(notice.Result.Number.ToInt().Uint64())
			}
		}
	}
}

// failPending unblocks every caller still waiting on a response.
func (b *WSBackend) failPending() {
	b.pendingMtx.Lock()
	defer b.pendingMtx.Unlock()

	for id, ch := range b.pending {
		ch <- &jsonrpcMessage{
			ID: &id,
			Error: &jsonrpcError{
				Code:    -32000,
				Message: ErrBackendClosed.Error(),
			},
		}
		delete(b.pending, id)
	}
}

// storeHeight advances the cached tip, never moving it backwards.
func (b *WSBackend) storeHeight(h uint64) {
	for {
		cur := b.height.Load()
		if h <= cur || b.height.CompareAndSwap(cur, h) {
			return
		}
	}
}

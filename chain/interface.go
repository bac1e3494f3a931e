// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain provides access to Quai network state through one or more
// untrusted JSON-RPC backends. Its centerpiece is the FallbackClient, which
// races a configured set of backends against each other and settles each
// logical request on the first result to accumulate a quorum of backend
// weight.
package chain

import (
	"context"
	"encoding/json"
)

// RPC method names spoken by go-quai nodes.
const (
	MethodBlockNumber        = "quai_blockNumber"
	MethodGetBalance         = "quai_getBalance"
	MethodGetBlockByNumber   = "quai_getBlockByNumber"
	MethodGasPrice           = "quai_gasPrice"
	MethodCall               = "quai_call"
	MethodSendRawTransaction = "quai_sendRawTransaction"
	MethodOutpointsByAddress = "quai_getOutpointsByAddress"
	MethodQiRateAtBlock      = "quai_qiToQuai"
	MethodSubscribeNamespace = "quai"
	SubscriptionNewHeads     = "newHeads"
)

// Request is one logical chain action: a method plus its parameters,
// optionally scoped to a shard. The same Request value is handed to every
// backend racing the action, so it must be treated as read-only.
type Request struct {
	// Method is the JSON-RPC method name.
	Method string

	// Params are the positional JSON-RPC parameters.
	Params []any

	// Shard optionally names the zone the call is scoped to. It is used
	// for log correlation only; shard routing is a deployment concern,
	// with each backend pointed at a node in the right zone.
	Shard string
}

// Broadcast reports whether the request submits a transaction. Broadcasts
// are exempt from staleness screening, since a lagging backend can still
// relay a transaction, and they get the duplicate-submission tolerance
// described on FallbackClient.
func (r *Request) Broadcast() bool {
	return r.Method == MethodSendRawTransaction
}

// Backend executes logical chain actions against a single underlying node.
// Implementations exist for HTTP/IPC JSON-RPC (RPCBackend) and raw
// WebSocket (WSBackend); the FallbackClient depends only on this interface.
type Backend interface {
	// Name returns a stable identifier for the backend, used in logs and
	// health tracking.
	Name() string

	// Perform executes the request and returns the raw JSON result.
	// Errors should be passed through MapNodeErr so the caller can
	// classify them.
	Perform(ctx context.Context, req *Request) (json.RawMessage, error)

	// BlockHeight returns the backend's best-known block height at this
	// moment. It must be cheap; implementations track the tip in the
	// background rather than issuing a fresh call.
	BlockHeight() uint64

	// Destroy releases the backend's underlying connections. The backend
	// is unusable afterwards.
	Destroy()
}

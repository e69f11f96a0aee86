// Package dispatch implements the distributed-request dispatcher of spec
// §4.H: function registry, request-type routing, solver-node resolution,
// fan-out, and response merging.
package dispatch

import (
	"sync"

	"github.com/clusterd/clusterd/cmn"
)

// RequestType classifies how a function_id is routed (spec §4.H step 2).
type RequestType string

const (
	LocalAny           RequestType = "local_any"
	LocalMaster        RequestType = "local_master"
	DistributedMaster  RequestType = "distributed_master"
	Remote             RequestType = "remote"
)

// Func is a registered dispatcher function: args carries the decoded
// request body; for distributed_master routing its "agent_id" entry holds
// the target agents of this call.
type Func func(args map[string]any) (map[string]any, error)

type entry struct {
	reqType RequestType
	fn      Func
}

// Registry is the function_id -> (request_type, handler) table.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

func (r *Registry) Register(functionID string, reqType RequestType, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[functionID] = entry{reqType: reqType, fn: fn}
}

func (r *Registry) Lookup(functionID string) (RequestType, Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[functionID]
	if !ok {
		return "", nil, cmn.NewError(cmn.DispatchUnknownFunction, "unknown function_id %q", functionID)
	}
	return e.reqType, e.fn, nil
}

package dispatch

import (
	"golang.org/x/sync/errgroup"

	"github.com/clusterd/clusterd/cmn"
)

// Forwarder hands a dispatch call to another node and returns its reply.
// SessionForwarder implements it over the live transport session to that
// node.
type Forwarder func(node, functionID string, args map[string]any, fromCluster bool) (map[string]any, error)

// Dispatcher implements spec §4.H's routing procedure.
type Dispatcher struct {
	Registry   *Registry
	Overview   AgentOverview
	SelfName   string
	MasterName string
	IsMaster   bool
	Forward    Forwarder
}

// Dispatch routes one (function_id, args) request per spec §4.H.
func (d *Dispatcher) Dispatch(functionID string, args map[string]any, fromCluster bool) (map[string]any, error) {
	reqType, fn, err := d.Registry.Lookup(functionID)
	if err != nil {
		return nil, err
	}

	switch reqType {
	case LocalAny:
		return fn(args)

	case LocalMaster:
		if d.IsMaster {
			return fn(args)
		}
		return d.Forward(d.MasterName, functionID, args, false)

	case DistributedMaster:
		return d.dispatchDistributed(functionID, fn, args, fromCluster)

	case Remote:
		return d.Forward(d.MasterName, functionID, args, false)

	default:
		return nil, cmn.NewError(cmn.DispatchUnknownFunction, "unrecognized request_type for %q", functionID)
	}
}

func (d *Dispatcher) dispatchDistributed(functionID string, fn Func, args map[string]any, fromCluster bool) (map[string]any, error) {
	if !d.IsMaster {
		return d.Forward(d.MasterName, functionID, args, true)
	}
	if fromCluster {
		return fn(args)
	}

	agentIDs := extractAgentIDs(args)
	if len(agentIDs) == 0 {
		return fn(args)
	}

	solved, unresolved := SolverMap(d.Overview, agentIDs, d.SelfName)
	if len(unresolved) > 0 {
		if em, ok := args["error_agents"].([]string); ok {
			args["error_agents"] = append(em, unresolved...)
		} else {
			args["error_agents"] = unresolved
		}
	}

	var g errgroup.Group
	responses := make([]map[string]any, len(solved))
	nodes := make([]string, 0, len(solved))
	for node := range solved {
		nodes = append(nodes, node)
	}
	for i, node := range nodes {
		i, node := i, node
		ids := solved[node]
		g.Go(func() error {
			nodeArgs := withAgentIDs(args, ids)
			var resp map[string]any
			var rerr error
			if node == d.SelfName {
				resp, rerr = fn(nodeArgs)
			} else if d.Forward != nil {
				resp, rerr = d.Forward(node, functionID, nodeArgs, true)
			} else {
				rerr = cmn.NewError(cmn.DispatchNoSolverNode, "no forwarder configured for node %q", node)
			}
			if rerr != nil {
				return rerr
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	offset, limit := paginationOf(args)
	return Merge(responses, offset, limit), nil
}

func extractAgentIDs(args map[string]any) []string {
	raw, ok := args["agent_id"].([]any)
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids
}

func withAgentIDs(args map[string]any, ids []string) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	idsAny := make([]any, len(ids))
	for i, id := range ids {
		idsAny[i] = id
	}
	out["agent_id"] = idsAny
	return out
}

func paginationOf(args map[string]any) (offset, limit int) {
	if v, ok := args["offset"].(float64); ok {
		offset = int(v)
	}
	if v, ok := args["limit"].(float64); ok {
		limit = int(v)
	}
	return offset, limit
}

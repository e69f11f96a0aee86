package localsocket

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/clusterd/clusterd/cluster"
	"github.com/clusterd/clusterd/dispatch"
)

// NewHandlers wires dapi/dapi_forward/get_nodes/get_health onto a
// dispatcher and the connected-node registry (spec §4.I).
func NewHandlers(d *dispatch.Dispatcher, reg *cluster.Registry) map[string]Handler {
	return map[string]Handler{
		"dapi": func(_ string, rest string) Reply {
			var req struct {
				Function string         `json:"function"`
				Args     map[string]any `json:"args"`
			}
			if err := jsoniter.UnmarshalFromString(rest, &req); err != nil {
				return Reply{Error: "malformed dapi request: " + err.Error()}
			}
			data, err := d.Dispatch(req.Function, req.Args, false)
			if err != nil {
				return Reply{Error: err.Error()}
			}
			return Reply{Data: data}
		},

		"dapi_forward": func(_ string, rest string) Reply {
			var node, body string
			for i, r := range rest {
				if r == ' ' {
					node, body = rest[:i], rest[i+1:]
					break
				}
			}
			var req struct {
				Function string         `json:"function"`
				Args     map[string]any `json:"args"`
			}
			if err := jsoniter.UnmarshalFromString(body, &req); err != nil {
				return Reply{Error: "malformed dapi_forward request: " + err.Error()}
			}
			data, err := d.Forward(node, req.Function, req.Args, false)
			if err != nil {
				return Reply{Error: err.Error()}
			}
			return Reply{Data: data}
		},

		"get_nodes": func(_ string, _ string) Reply {
			return Reply{Data: reg.List()}
		},

		"get_health": func(_ string, _ string) Reply {
			nodes := reg.List()
			health := make(map[string]any, len(nodes))
			for _, n := range nodes {
				health[n.Name] = map[string]any{
					"info":   n,
					"status": "connected",
				}
			}
			return Reply{Data: health}
		},
	}
}

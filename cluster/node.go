// Package cluster implements node identity, the worker↔master handshake,
// and the connected-client registry of spec §4.E.
package cluster

import (
	"time"

	"github.com/clusterd/clusterd/cmn"
)

// Snode ("storage node" in the teacher, "cluster node" here) is the
// identity record spec §3 describes: (node_name, node_type, cluster_name,
// version), plus bookkeeping the registry needs.
type Snode struct {
	Name        string      `json:"name"`
	ClusterName string      `json:"cluster_name"`
	Type        cmn.NodeType `json:"type"`
	Version     string      `json:"version"`
	Addr        string      `json:"addr"`
	ConnectedAt time.Time   `json:"connected_at"`
}

func (n *Snode) IsMaster() bool { return n.Type == cmn.Master }
func (n *Snode) IsWorker() bool { return n.Type == cmn.Worker }

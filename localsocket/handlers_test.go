package localsocket

import (
	"testing"

	"github.com/clusterd/clusterd/cluster"
	"github.com/clusterd/clusterd/cmn"
	"github.com/clusterd/clusterd/dispatch"
)

func newTestDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	reg := dispatch.NewRegistry()
	reg.Register("echo", dispatch.LocalAny, func(args map[string]any) (map[string]any, error) {
		return map[string]any{"args": args}, nil
	})
	return &dispatch.Dispatcher{Registry: reg, SelfName: "master-1", MasterName: "master-1", IsMaster: true}
}

func TestHandlersDapi(t *testing.T) {
	d := newTestDispatcher(t)
	reg, err := cluster.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer reg.Close()

	handlers := NewHandlers(d, reg)
	h, ok := handlers["dapi"]
	if !ok {
		t.Fatal("dapi handler missing")
	}
	reply := h("dapi", `{"function":"echo","args":{"a":1}}`)
	if reply.Error != "" {
		t.Fatalf("unexpected error: %s", reply.Error)
	}
	if reply.Data == nil {
		t.Fatal("expected data in reply")
	}
}

func TestHandlersDapiMalformed(t *testing.T) {
	d := newTestDispatcher(t)
	reg, err := cluster.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer reg.Close()

	handlers := NewHandlers(d, reg)
	reply := handlers["dapi"]("dapi", "not json")
	if reply.Error == "" {
		t.Fatal("expected error for malformed request")
	}
}

func TestHandlersGetNodesAndHealth(t *testing.T) {
	d := newTestDispatcher(t)
	reg, err := cluster.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer reg.Close()

	if err := reg.Add(&cluster.Snode{Name: "worker-1", ClusterName: "prod", Type: cmn.Worker, Version: "4.2.0"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	handlers := NewHandlers(d, reg)
	nodesReply := handlers["get_nodes"]("get_nodes", "")
	nodes, ok := nodesReply.Data.([]*cluster.Snode)
	if !ok || len(nodes) != 1 {
		t.Fatalf("expected one node, got %#v", nodesReply.Data)
	}

	healthReply := handlers["get_health"]("get_health", "")
	m, ok := healthReply.Data.(map[string]any)
	if !ok || len(m) != 1 {
		t.Fatalf("expected one per-node health entry, got %#v", healthReply.Data)
	}
	entry, ok := m["worker-1"].(map[string]any)
	if !ok {
		t.Fatalf("expected a worker-1 entry, got %#v", m)
	}
	if entry["status"] != "connected" {
		t.Fatalf("expected status=connected, got %#v", entry["status"])
	}
	info, ok := entry["info"].(*cluster.Snode)
	if !ok || info.Name != "worker-1" {
		t.Fatalf("expected info to carry the Snode record, got %#v", entry["info"])
	}
}

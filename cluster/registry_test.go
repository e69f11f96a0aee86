package cluster

import (
	"testing"
	"time"

	"github.com/clusterd/clusterd/cmn"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRegistryAddGetRemove(t *testing.T) {
	r := newTestRegistry(t)
	node := &Snode{Name: "worker1", ClusterName: "prod", Type: cmn.Worker, Version: "4.2.0", ConnectedAt: time.Now()}
	if err := r.Add(node); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, ok := r.Get("worker1")
	if !ok {
		t.Fatal("expected worker1 to be present")
	}
	if got.ClusterName != "prod" || !got.IsWorker() {
		t.Fatalf("unexpected node: %+v", got)
	}
	if r.Count() != 1 {
		t.Fatalf("expected count 1, got %d", r.Count())
	}
	r.Remove("worker1")
	if _, ok := r.Get("worker1"); ok {
		t.Fatal("expected worker1 to be removed")
	}
	if r.Count() != 0 {
		t.Fatalf("expected count 0, got %d", r.Count())
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := newTestRegistry(t)
	node := &Snode{Name: "worker1", ClusterName: "prod", Type: cmn.Worker, Version: "4.2.0"}
	if err := r.Add(node); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(node); err == nil {
		t.Fatal("expected duplicate Add to fail")
	}
}

func TestRegistryList(t *testing.T) {
	r := newTestRegistry(t)
	_ = r.Add(&Snode{Name: "worker1", ClusterName: "prod", Type: cmn.Worker, Version: "4.2.0"})
	_ = r.Add(&Snode{Name: "worker2", ClusterName: "prod", Type: cmn.Worker, Version: "4.2.0"})
	nodes := r.List()
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
}

func TestRegistryRemoveMissingIsNoop(t *testing.T) {
	r := newTestRegistry(t)
	r.Remove("nonexistent")
}

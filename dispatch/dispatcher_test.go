package dispatch

import (
	"sort"
	"testing"
)

// TestDispatchDistributedMasterFansOut drives spec's S6 scenario through
// Dispatcher.Dispatch: a distributed_master function carrying agent_id
// ["001","002"], where 001 belongs to worker-1 and 002 to worker-2, must
// be forwarded to each owning node and the two partial responses merged.
func TestDispatchDistributedMasterFansOut(t *testing.T) {
	overview := NewStaticOverview()
	overview.Assign("001", "worker-1")
	overview.Assign("002", "worker-2")

	reg := NewRegistry()
	reg.Register("get_agents", DistributedMaster, func(args map[string]any) (map[string]any, error) {
		ids, _ := args["agent_id"].([]any)
		return map[string]any{"items": ids, "totalItems": float64(len(ids))}, nil
	})

	var forwarded []string
	d := &Dispatcher{
		Registry:   reg,
		Overview:   overview,
		SelfName:   "master",
		MasterName: "master",
		IsMaster:   true,
		Forward: func(node, functionID string, args map[string]any, fromCluster bool) (map[string]any, error) {
			forwarded = append(forwarded, node)
			if !fromCluster {
				t.Fatalf("expected fan-out forward to set fromCluster=true for node %s", node)
			}
			ids, _ := args["agent_id"].([]any)
			return map[string]any{"items": ids, "totalItems": float64(len(ids))}, nil
		},
	}

	out, err := d.Dispatch("get_agents", map[string]any{"agent_id": []any{"001", "002"}}, false)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	sort.Strings(forwarded)
	if len(forwarded) != 2 || forwarded[0] != "worker-1" || forwarded[1] != "worker-2" {
		t.Fatalf("expected forwards to worker-1 and worker-2, got %v", forwarded)
	}
	if got := out["totalItems"]; got != float64(2) {
		t.Fatalf("totalItems = %v, want 2", got)
	}
	items, ok := out["items"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("items = %v, want 2 entries", out["items"])
	}
}

// TestDispatchDistributedMasterFromClusterExecutesLocally covers the
// already-forwarded-once case (spec §4.H step 2): a distributed_master
// request arriving with from_cluster=true on the master runs locally
// without re-resolving or re-forwarding.
func TestDispatchDistributedMasterFromClusterExecutesLocally(t *testing.T) {
	reg := NewRegistry()
	called := false
	reg.Register("get_agents", DistributedMaster, func(args map[string]any) (map[string]any, error) {
		called = true
		return map[string]any{"ok": true}, nil
	})

	d := &Dispatcher{
		Registry:   reg,
		Overview:   NewStaticOverview(),
		SelfName:   "master",
		MasterName: "master",
		IsMaster:   true,
		Forward: func(node, functionID string, args map[string]any, fromCluster bool) (map[string]any, error) {
			t.Fatalf("unexpected forward to %s", node)
			return nil, nil
		},
	}

	_, err := d.Dispatch("get_agents", map[string]any{"agent_id": []any{"001"}}, true)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !called {
		t.Fatal("expected local execution when from_cluster=true")
	}
}

// TestDispatchDistributedMasterOnWorkerForwards covers the non-master
// branch: a worker always forwards to the master with from_cluster=true.
func TestDispatchDistributedMasterOnWorkerForwards(t *testing.T) {
	reg := NewRegistry()
	reg.Register("get_agents", DistributedMaster, func(args map[string]any) (map[string]any, error) {
		t.Fatal("worker should never execute a distributed_master function locally")
		return nil, nil
	})

	var gotNode string
	var gotFromCluster bool
	d := &Dispatcher{
		Registry:   reg,
		Overview:   NewStaticOverview(),
		SelfName:   "worker-1",
		MasterName: "master",
		IsMaster:   false,
		Forward: func(node, functionID string, args map[string]any, fromCluster bool) (map[string]any, error) {
			gotNode, gotFromCluster = node, fromCluster
			return map[string]any{}, nil
		},
	}

	if _, err := d.Dispatch("get_agents", map[string]any{"agent_id": []any{"001"}}, false); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if gotNode != "master" || !gotFromCluster {
		t.Fatalf("expected forward to master with fromCluster=true, got node=%q fromCluster=%v", gotNode, gotFromCluster)
	}
}

package dispatch

import "testing"

func TestStaticOverviewAssignAndNodeOf(t *testing.T) {
	o := NewStaticOverview()
	if _, ok := o.NodeOf("agent1"); ok {
		t.Fatal("expected unknown agent to report not-known")
	}
	o.Assign("agent1", "worker1")
	node, ok := o.NodeOf("agent1")
	if !ok || node != "worker1" {
		t.Fatalf("expected agent1 on worker1, got %q %v", node, ok)
	}
}

func TestStaticOverviewForget(t *testing.T) {
	o := NewStaticOverview()
	o.Assign("agent1", "worker1")
	o.Assign("agent2", "worker1")
	o.Assign("agent3", "worker2")
	o.Forget("worker1")
	if _, ok := o.NodeOf("agent1"); ok {
		t.Fatal("expected agent1 to be forgotten")
	}
	if _, ok := o.NodeOf("agent2"); ok {
		t.Fatal("expected agent2 to be forgotten")
	}
	if node, ok := o.NodeOf("agent3"); !ok || node != "worker2" {
		t.Fatal("expected agent3 on worker2 to survive Forget(worker1)")
	}
}

package cluster

import (
	"testing"

	"github.com/clusterd/clusterd/cmn"
)

func TestEncodeParseHelloRoundTrip(t *testing.T) {
	payload := EncodeHello("worker1", "prod", "4.2.0")
	name, clusterName, nodeType, version, err := ParseHello(payload)
	if err != nil {
		t.Fatalf("ParseHello: %v", err)
	}
	if name != "worker1" || clusterName != "prod" || nodeType != string(cmn.Worker) || version != "4.2.0" {
		t.Fatalf("unexpected parse result: %q %q %q %q", name, clusterName, nodeType, version)
	}
}

func TestParseHelloMalformed(t *testing.T) {
	if _, _, _, _, err := ParseHello([]byte("too few fields")); err == nil {
		t.Fatal("expected error for malformed hello")
	}
}

func TestRegistryValidate(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Validate("master1", "prod", "4.2.0", "worker1", "prod", string(cmn.Worker), "4.2.1"); err != nil {
		t.Fatalf("expected compatible minor version to validate, got %v", err)
	}
	if err := r.Validate("master1", "prod", "4.2.0", "worker1", "prod", "master", "4.2.0"); err == nil {
		t.Fatal("expected wrong node_type to be rejected")
	}
	if err := r.Validate("master1", "prod", "4.2.0", "worker1", "staging", string(cmn.Worker), "4.2.0"); err == nil {
		t.Fatal("expected cluster mismatch to be rejected")
	}
	if err := r.Validate("master1", "prod", "4.2.0", "master1", "prod", string(cmn.Worker), "4.2.0"); err == nil {
		t.Fatal("expected name collision with master to be rejected")
	}
	if err := r.Validate("master1", "prod", "4.2.0", "worker1", "prod", string(cmn.Worker), "5.0.0"); err == nil {
		t.Fatal("expected incompatible major version to be rejected")
	}

	_ = r.Add(&Snode{Name: "worker1", ClusterName: "prod", Type: cmn.Worker, Version: "4.2.0"})
	if err := r.Validate("master1", "prod", "4.2.0", "worker1", "prod", string(cmn.Worker), "4.2.0"); err == nil {
		t.Fatal("expected already-connected worker to be rejected")
	}
}

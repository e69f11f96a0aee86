package integrity

import (
	"testing"

	"github.com/clusterd/clusterd/manifest"
	"github.com/clusterd/clusterd/transport"
)

func digestOf(b byte) transport.Digest128 {
	var d transport.Digest128
	d[0] = b
	return d
}

func TestClassifyCoverageNoDuplicates(t *testing.T) {
	man := &manifest.Manifest{
		Items: map[string]manifest.Entry{
			"/etc/": {Source: manifest.SourceMaster},
		},
	}
	master := []FileRecord{
		{RelPath: "a", Digest: digestOf(1), ClusterItemKey: "/etc/"},
		{RelPath: "b", Digest: digestOf(2), ClusterItemKey: "/etc/"},
		{RelPath: "c", Digest: digestOf(3), ClusterItemKey: "/etc/"},
	}
	worker := []FileRecord{
		{RelPath: "a", Digest: digestOf(1), ClusterItemKey: "/etc/"},
		{RelPath: "b", Digest: digestOf(99), ClusterItemKey: "/etc/"},
		{RelPath: "d", Digest: digestOf(4), ClusterItemKey: "/etc/"},
	}

	d := Classify(master, worker, man)

	if len(d.Missing) != 1 || d.Missing[0] != "c" {
		t.Fatalf("missing = %v, want [c]", d.Missing)
	}
	if len(d.Shared) != 1 || d.Shared[0] != "b" {
		t.Fatalf("shared = %v, want [b]", d.Shared)
	}
	if len(d.Extra) != 1 || d.Extra[0] != "d" {
		t.Fatalf("extra = %v, want [d]", d.Extra)
	}
	if len(d.ExtraValid) != 0 {
		t.Fatalf("extra_valid = %v, want none", d.ExtraValid)
	}

	seen := map[string]int{}
	for _, p := range append(append(append(append([]string{}, d.Missing...), d.Shared...), d.Extra...), d.ExtraValid...) {
		seen[p]++
	}
	for p, n := range seen {
		if n > 1 {
			t.Fatalf("path %q classified %d times", p, n)
		}
	}
	for _, p := range []string{"a", "b", "c", "d"} {
		if _, ok := seen[p]; !ok && p != "a" {
			t.Fatalf("path %q missing from classification", p)
		}
	}
}

func TestClassifyWorkerOwnedMerged(t *testing.T) {
	man := &manifest.Manifest{
		Items: map[string]manifest.Entry{
			"/queue/agent-groups/": {Source: manifest.SourceWorker},
		},
	}
	worker := []FileRecord{
		{RelPath: "default", Digest: digestOf(1), ClusterItemKey: "/queue/agent-groups/"},
	}
	d := Classify(nil, worker, man)
	if len(d.ExtraValid) != 1 || d.ExtraValid[0] != "default" {
		t.Fatalf("extra_valid = %v, want [default]", d.ExtraValid)
	}
	if len(d.Missing) != 0 {
		t.Fatalf("missing = %v, want none", d.Missing)
	}
}

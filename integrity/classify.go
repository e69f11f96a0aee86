package integrity

import "github.com/clusterd/clusterd/manifest"

// Diff is the four-way classification between a master's scan and a
// worker's scan, always computed from the master's point of view: what it
// must send down, what it must delete, and what it must merge instead of
// overwrite.
type Diff struct {
	Missing    []string // present on master, absent on worker: master must send it down
	Shared     []string // present on both, digests differ: authoritative copy wins
	Extra      []string // present on worker, absent on master: worker must remove it
	ExtraValid []string // cluster-item key is worker-owned: master must merge, not overwrite
}

func toMap(recs []FileRecord) map[string]FileRecord {
	m := make(map[string]FileRecord, len(recs))
	for _, r := range recs {
		m[r.RelPath] = r
	}
	return m
}

// Classify builds a Diff of what master must do to reconcile with one
// worker's scan, given the manifest that assigns ownership to cluster-item
// keys. A key whose manifest entry has source "worker" is merged rather
// than overwritten whenever it is present on the worker, whether or not
// master already has a copy: this is how files like agent-group
// definitions — naturally writable by any worker — end up reconciled
// instead of clobbered by single-writer semantics.
func Classify(master, worker []FileRecord, man *manifest.Manifest) Diff {
	masterByPath := toMap(master)
	workerByPath := toMap(worker)

	var d Diff
	for path, wf := range workerByPath {
		if man.Owner(wf.ClusterItemKey) == manifest.SourceWorker {
			d.ExtraValid = append(d.ExtraValid, path)
			continue
		}
		mf, ok := masterByPath[path]
		if !ok {
			d.Extra = append(d.Extra, path)
			continue
		}
		if mf.Digest != wf.Digest {
			d.Shared = append(d.Shared, path)
		}
	}
	for path, mf := range masterByPath {
		if _, ok := workerByPath[path]; ok {
			continue
		}
		if man.Owner(mf.ClusterItemKey) == manifest.SourceWorker {
			continue
		}
		d.Missing = append(d.Missing, path)
	}
	return d
}

// Package clustersync implements the sync engine: three
// periodic loops per worker session, the bundle format they exchange, and
// the atomic apply step on the receiving side.
package clustersync

import (
	"sync"

	"github.com/clusterd/clusterd/metrics"
)

// Category names one of the three independent sync loops.
type Category string

const (
	Integrity Category = "sync_integrity"
	AgentInfo Category = "sync_files"
	ExtraValid Category = "sync_extra_valid"
)

// Gate is the master-side permission table: one "*_free" flag per
// (worker, category), so at most one cycle of each category is ever in
// flight for a given worker.
type Gate struct {
	mu   sync.Mutex
	free map[string]bool

	// Metrics is optional; when set, every flag transition is mirrored
	// onto the sync_free gauge so an operator can see a stuck gate from
	// the outside without reading logs.
	Metrics *metrics.Metrics
}

func NewGate() *Gate {
	return &Gate{free: make(map[string]bool)}
}

func (g *Gate) observe(worker string, cat Category, free bool) {
	if g.Metrics == nil {
		return
	}
	v := 0.0
	if free {
		v = 1.0
	}
	g.Metrics.SyncFree.WithLabelValues(worker, string(cat)).Set(v)
}

func key(worker string, cat Category) string { return worker + "/" + string(cat) }

// Register marks worker/cat as free for a newly connected session. Sync
// loops otherwise default to not-free (a worker must never start a cycle
// that races a master that hasn't registered it yet).
func (g *Gate) Register(worker string, cat Category) {
	g.mu.Lock()
	g.free[key(worker, cat)] = true
	g.mu.Unlock()
	g.observe(worker, cat, true)
}

func (g *Gate) Forget(worker string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, cat := range []Category{Integrity, AgentInfo, ExtraValid} {
		delete(g.free, key(worker, cat))
	}
}

// Acquire atomically clears the flag and reports whether it had been set —
// this is what backs the "sync_i_w_m_p"-style permission-request replies.
func (g *Gate) Acquire(worker string, cat Category) bool {
	g.mu.Lock()
	k := key(worker, cat)
	ok := g.free[k]
	g.free[k] = false
	g.mu.Unlock()
	g.observe(worker, cat, false)
	return ok
}

// Release restores the flag at cycle end regardless of outcome.
func (g *Gate) Release(worker string, cat Category) {
	g.mu.Lock()
	g.free[key(worker, cat)] = true
	g.mu.Unlock()
	g.observe(worker, cat, true)
}

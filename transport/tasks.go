package transport

import (
	"bytes"
	"sync"
	"time"

	"github.com/teris-io/shortid"

	"github.com/clusterd/clusterd/cmn"
	"github.com/clusterd/clusterd/cmn/nlog"
)

// Worker is the receiver-side interface a chunked-transfer consumer (or any
// other long-lived, task-id-addressed handler) must implement so the task
// registry can feed it incoming frames and tear it down on session close.
type Worker interface {
	// Feed delivers one incoming (command, data) item addressed to this
	// task. It returns the reply command/payload to send back on the same
	// counter, or ("", nil, nil) for no reply.
	Feed(cmd string, data []byte) (replyCmd string, replyPayload []byte, err error)
	// Done reports whether the worker has reached a terminal state and can
	// be removed from the registry.
	Done() bool
	// Abort is called on session teardown or watchdog expiry.
	Abort(err error)
}

// Registry is the per-session map of in-flight receiver tasks keyed by
// task-id.
type Registry struct {
	mu      sync.Mutex
	workers map[string]Worker
}

func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]Worker)}
}

// SetWorker registers w under a freshly minted task-id of the form
// "<cmd>-<shortid>[-<basename>]" and returns that id.
func (r *Registry) SetWorker(cmd string, w Worker, basename string) string {
	id := newTaskID(cmd, basename)
	r.mu.Lock()
	r.workers[id] = w
	r.mu.Unlock()
	return id
}

// RegisterWithID registers w under a caller-chosen task-id instead of
// minting one, for protocols where the receiving side must know the id
// before the opening exchange is even sent (e.g. the dispatcher's
// dapi_res push, see dispatch/wire.go).
func (r *Registry) RegisterWithID(id string, w Worker) {
	r.mu.Lock()
	r.workers[id] = w
	r.mu.Unlock()
}

func newTaskID(cmd, basename string) string {
	sid := shortid.MustGenerate()
	id := cmd + "-" + sid
	if basename != "" {
		id += "-" + basename
	}
	return id
}

// GetWorker splits the first whitespace-delimited token of data as the
// task-id and looks it up; the remainder is returned for the caller to feed
// to the worker. Lookup failure is ProtocolTaskNotFound.
func (r *Registry) GetWorker(data []byte) (id string, rest []byte, w Worker, err error) {
	i := bytes.IndexByte(data, ' ')
	if i < 0 {
		id, rest = string(data), nil
	} else {
		id, rest = string(data[:i]), data[i+1:]
	}
	r.mu.Lock()
	w = r.workers[id]
	r.mu.Unlock()
	if w == nil {
		return id, rest, nil, cmn.NewError(cmn.ProtocolTaskNotFound, "Worker %s not found", id)
	}
	return id, rest, w, nil
}

// Remove drops a completed or errored worker from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.workers, id)
	r.mu.Unlock()
}

// Teardown aborts every still-registered worker and waits up to timeout per
// worker for it to self-report done, logging stragglers.
func (r *Registry) Teardown(cause error, timeout time.Duration) {
	r.mu.Lock()
	workers := make(map[string]Worker, len(r.workers))
	for id, w := range r.workers {
		workers[id] = w
	}
	r.workers = make(map[string]Worker)
	r.mu.Unlock()

	for id, w := range workers {
		w.Abort(cause)
		deadline := time.Now().Add(timeout)
		for !w.Done() && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		if !w.Done() {
			nlog.Warningf("transport: task %s did not finish within %s of teardown", id, timeout)
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

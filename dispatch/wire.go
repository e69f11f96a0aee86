package dispatch

import (
	"bytes"
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/teris-io/shortid"

	"github.com/clusterd/clusterd/cmn"
	"github.com/clusterd/clusterd/cmn/nlog"
	"github.com/clusterd/clusterd/transport"
)

// wireRequest is what crosses the wire for one forwarded dispatch call:
// the task-id the caller has already registered a receiver under, so the
// callee can push its reply back without a separate negotiation round
// trip (spec §4.H step 3, §6 "dapi_res <task_id>").
type wireRequest struct {
	TaskID      string         `json:"task_id"`
	Function    string         `json:"function"`
	Args        map[string]any `json:"args"`
	FromCluster bool           `json:"from_cluster"`
}

// SessionForwarder implements Forwarder by relaying a dispatch call over
// the already-established transport.Session to node, the same session the
// sync engine drives (spec §4.H: "forwarding uses the local control socket
// to reach this node's cluster process, which then uses H on the wire via
// B/C").
type SessionForwarder struct {
	// Session resolves a node name to its live session; ok is false once
	// the peer has disconnected.
	Session func(node string) (s *transport.Session, ok bool)
	// Local executes a dispatch call against this node's own registry,
	// used to answer a dapi_forward request received from a peer.
	Local   func(functionID string, args map[string]any, fromCluster bool) (map[string]any, error)
	Timeout time.Duration
}

func (f *SessionForwarder) timeout() time.Duration {
	if f.Timeout <= 0 {
		return 30 * time.Second
	}
	return f.Timeout
}

// Forward sends one forwarded call to node and blocks for its reply,
// matching the Forwarder signature the Dispatcher expects.
func (f *SessionForwarder) Forward(node, functionID string, args map[string]any, fromCluster bool) (map[string]any, error) {
	s, ok := f.Session(node)
	if !ok {
		return nil, cmn.NewError(cmn.DispatchNoSolverNode, "no live session to node %q", node)
	}

	taskID := "dapi_res-" + shortid.MustGenerate()
	resultCh := make(chan []byte, 1)
	dest := transport.NewBufferDestination(taskID)
	task := transport.NewReceiverTask(dest, f.timeout(), func(d transport.Destination, _ transport.Digest128, _ int64) error {
		resultCh <- d.(*transport.BufferDestination).Bytes()
		return nil
	})
	s.Tasks().RegisterWithID(taskID, task)

	req := wireRequest{TaskID: taskID, Function: functionID, Args: args, FromCluster: fromCluster}
	payload, err := jsoniter.Marshal(req)
	if err != nil {
		return nil, cmn.WrapError(cmn.DispatchUnknownFunction, err, "failed to encode forwarded request")
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout())
	defer cancel()

	replyCmd, replyPayload, err := s.Execute(ctx, transport.CmdDapiFwd, payload)
	if err != nil {
		return nil, err
	}
	if replyCmd == transport.CmdErr {
		return nil, cmn.NewError(cmn.DispatchUnknownFunction, "remote dispatch rejected: %s", string(replyPayload))
	}

	select {
	case body := <-resultCh:
		var out wireReply
		if err := jsoniter.Unmarshal(body, &out); err != nil {
			return nil, cmn.WrapError(cmn.DispatchUnknownFunction, err, "failed to decode forwarded reply")
		}
		if out.Error != "" {
			return nil, cmn.NewError(cmn.DispatchUnknownFunction, "%s", out.Error)
		}
		return out.Data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type wireReply struct {
	Data  map[string]any `json:"data,omitempty"`
	Error string         `json:"error,omitempty"`
}

// Handler returns the dapi_forward handler to register on a session so
// this node can answer forwarded calls from its peer.
func (f *SessionForwarder) Handler() transport.Handler {
	return func(s *transport.Session, _ uint32, payload []byte) (string, []byte, error) {
		var req wireRequest
		if err := jsoniter.Unmarshal(payload, &req); err != nil {
			return transport.CmdErr, []byte(err.Error()), nil
		}
		go f.serve(s, req)
		return transport.CmdAck, nil, nil
	}
}

// serve runs the local dispatch call and pushes the result back over the
// pre-registered task-id; this runs off the session's single reader
// goroutine so a slow fan-out never blocks frame delivery.
func (f *SessionForwarder) serve(s *transport.Session, req wireRequest) {
	data, err := f.Local(req.Function, req.Args, req.FromCluster)
	reply := wireReply{Data: data}
	if err != nil {
		reply.Error = err.Error()
	}
	body, merr := jsoniter.Marshal(reply)
	if merr != nil {
		nlog.Errorf("dispatch: failed to encode dapi_res for task %s: %v", req.TaskID, merr)
		return
	}
	if _, serr := transport.SendChunkedWithID(context.Background(), s, req.TaskID, bytes.NewReader(body), 0); serr != nil {
		nlog.Warningf("dispatch: failed to push dapi_res for task %s: %v", req.TaskID, serr)
	}
}

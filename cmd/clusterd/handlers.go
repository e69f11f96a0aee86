package main

import (
	"context"
	"time"

	"github.com/clusterd/clusterd/cmn/nlog"
	"github.com/clusterd/clusterd/transport"
)

// masterNodeName is the identity a worker registers its upstream master
// under in its own cluster.Registry and routes dispatcher forwards to;
// the hello handshake never tells a worker its master's node_name (spec
// §4.E's hello payload only names the dialing worker), and a worker has
// exactly one upstream link regardless, so the name only needs to be
// self-consistent between the registry entry and the dispatcher's
// MasterName field.
const masterNodeName = "master"

const (
	reconnectDelay   = 5 * time.Second
	handshakeTimeout = 10 * time.Second
	forwardTimeout   = 30 * time.Second
)

// readyHandler answers the "ready" probe with a bare ack and logs it at
// verbosity 4 (debug); spec §4.F
// treats it as a no-op liveness check, nothing to report back.
func readyHandler(_ *transport.Session, _ uint32, _ []byte) (string, []byte, error) {
	if nlog.FastV(4, "") {
		nlog.Infof("clusterd: ready received")
	}
	return transport.CmdOK, nil, nil
}

func echoHandler(_ *transport.Session, _ uint32, payload []byte) (string, []byte, error) {
	return transport.CmdOK, payload, nil
}

func mergeHandlers(maps ...map[string]transport.Handler) map[string]transport.Handler {
	out := make(map[string]transport.Handler)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

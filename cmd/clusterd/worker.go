package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/clusterd/clusterd/cluster"
	"github.com/clusterd/clusterd/clustersync"
	"github.com/clusterd/clusterd/cmn"
	"github.com/clusterd/clusterd/cmn/nlog"
	"github.com/clusterd/clusterd/dispatch"
	"github.com/clusterd/clusterd/integrity"
	"github.com/clusterd/clusterd/localsocket"
	"github.com/clusterd/clusterd/manifest"
	"github.com/clusterd/clusterd/metrics"
	"github.com/clusterd/clusterd/transport"
)

func runWorker(
	ctx context.Context,
	cfg *cmn.Config,
	man *manifest.Manifest,
	scanner *integrity.Scanner,
	overview *dispatch.StaticOverview,
	dreg *dispatch.Registry,
	met *metrics.Metrics,
	cipher transport.Cipher,
	root, socketPath string,
) {
	if len(cfg.Nodes) == 0 {
		nlog.Errorf("clusterd: worker requires at least one entry in nodes")
		os.Exit(cmn.ExitBadConfig)
	}
	masterAddr := fmt.Sprintf("%s:%d", cfg.Nodes[0], cfg.Port)

	applier := &clustersync.Applier{Root: root, NodeType: cfg.NodeType, Man: man}

	reg, err := cluster.NewRegistry()
	if err != nil {
		nlog.Errorf("clusterd: %v", err)
		os.Exit(cmn.ExitFSError)
	}
	defer reg.Close()

	// current is the live session to the master, or nil while
	// disconnected; the forwarder ignores the node argument it receives
	// since a worker only ever has this one upstream link.
	var mu sync.RWMutex
	var current *transport.Session
	getSession := func(_ string) (*transport.Session, bool) {
		mu.RLock()
		defer mu.RUnlock()
		if current == nil {
			return nil, false
		}
		return current, true
	}

	dispatcher := &dispatch.Dispatcher{
		Registry:   dreg,
		Overview:   overview,
		SelfName:   cfg.NodeName,
		MasterName: masterNodeName,
		IsMaster:   false,
	}
	forwarder := &dispatch.SessionForwarder{Session: getSession, Local: dispatcher.Dispatch, Timeout: forwardTimeout}
	dispatcher.Forward = forwarder.Forward

	sock := localsocket.NewServer(socketPath, localsocket.NewHandlers(dispatcher, reg))
	if err := sock.Listen(); err != nil {
		nlog.Errorf("clusterd: %v", err)
		os.Exit(cmn.ExitBindFailed)
	}
	defer sock.Close()
	go func() {
		if err := sock.Serve(); err != nil {
			nlog.Warningf("clusterd: local socket server stopped: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := net.Dial("tcp", masterAddr)
		if err != nil {
			nlog.Warningf("clusterd: dial %s failed, retrying: %v", masterAddr, err)
			sleepOrDone(ctx, reconnectDelay)
			continue
		}

		s := transport.NewSession(conn, cipher, nil)
		ws := clustersync.NewWorkerSide(s, scanner, applier, man, cfg.Interval)
		ws.MaxTime = cfg.MaxTimeReceivingFile.Duration()
		ws.Metrics = met
		s.SetHandlers(mergeHandlers(
			transport.ChunkHandlers(s.Tasks()),
			ws.ReplyHandlers(),
			map[string]transport.Handler{
				transport.CmdDapiFwd: forwarder.Handler(),
				transport.CmdReady:   readyHandler,
				transport.CmdEcho:    echoHandler,
			},
		))

		serveErrCh := make(chan error, 1)
		go func() { serveErrCh <- s.Serve() }()

		hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
		replyCmd, ackPayload, herr := s.Execute(hctx, transport.CmdHello, cluster.EncodeHello(cfg.NodeName, cfg.Name, clusterdVersion))
		cancel()
		if herr != nil || replyCmd != transport.CmdOK {
			nlog.Warningf("clusterd: hello to %s rejected: %v", masterAddr, herr)
			s.Close(herr)
			sleepOrDone(ctx, reconnectDelay)
			continue
		}
		ack, _ := transport.DecodeHelloAck(ackPayload)
		nlog.Infof("clusterd: connected to master at %s (cluster %s, version %s)", masterAddr, ack.ClusterName, ack.Version)

		reg.Remove(masterNodeName)
		_ = reg.Add(&cluster.Snode{
			Name: masterNodeName, ClusterName: ack.ClusterName, Type: cmn.Master,
			Version: ack.Version, Addr: masterAddr, ConnectedAt: time.Now(),
		})

		mu.Lock()
		current = s
		mu.Unlock()

		runCtx, runCancel := context.WithCancel(ctx)
		runDone := make(chan struct{})
		go func() {
			if err := ws.Run(runCtx); err != nil {
				nlog.Warningf("clusterd: sync loops stopped: %v", err)
			}
			close(runDone)
		}()

		select {
		case <-ctx.Done():
			runCancel()
			s.Close(ctx.Err())
			<-serveErrCh
			<-runDone
			return
		case err := <-serveErrCh:
			runCancel()
			<-runDone
			nlog.Warningf("clusterd: session to %s lost: %v", masterAddr, err)
		}

		mu.Lock()
		current = nil
		mu.Unlock()
		reg.Remove(masterNodeName)
		sleepOrDone(ctx, reconnectDelay)
	}
}

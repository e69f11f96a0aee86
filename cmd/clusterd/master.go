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

// sessionTable is the master's node-name -> live-session map: populated
// as workers pass their handshake, read by the dispatcher's forwarder to
// reach a specific worker (spec §4.H step 3).
type sessionTable struct {
	mu     sync.RWMutex
	byName map[string]*transport.Session
}

func newSessionTable() *sessionTable {
	return &sessionTable{byName: make(map[string]*transport.Session)}
}

func (t *sessionTable) get(name string) (*transport.Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byName[name]
	return s, ok
}

func (t *sessionTable) set(name string, s *transport.Session) {
	t.mu.Lock()
	t.byName[name] = s
	t.mu.Unlock()
}

func (t *sessionTable) remove(name string) {
	t.mu.Lock()
	delete(t.byName, name)
	t.mu.Unlock()
}

// master bundles the state every accepted worker connection draws on.
type master struct {
	cfg       *cmn.Config
	man       *manifest.Manifest
	applier   *clustersync.Applier
	cipher    transport.Cipher
	reg       *cluster.Registry
	gate      *clustersync.Gate
	states    *clustersync.StateStore
	sessions  *sessionTable
	forwarder *dispatch.SessionForwarder
}

func runMaster(
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
	reg, err := cluster.NewRegistry()
	if err != nil {
		nlog.Errorf("clusterd: %v", err)
		os.Exit(cmn.ExitFSError)
	}
	defer reg.Close()

	gate := clustersync.NewGate()
	gate.Metrics = met

	m := &master{
		cfg:      cfg,
		man:      man,
		applier:  &clustersync.Applier{Root: root, NodeType: cfg.NodeType, Man: man},
		cipher:   cipher,
		reg:      reg,
		gate:     gate,
		states:   clustersync.NewStateStore(),
		sessions: newSessionTable(),
	}

	dispatcher := &dispatch.Dispatcher{
		Registry:   dreg,
		Overview:   overview,
		SelfName:   cfg.NodeName,
		MasterName: cfg.NodeName,
		IsMaster:   true,
	}
	m.forwarder = &dispatch.SessionForwarder{Session: m.sessions.get, Local: dispatcher.Dispatch, Timeout: forwardTimeout}
	dispatcher.Forward = m.forwarder.Forward

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

	addr := fmt.Sprintf(":%d", cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		nlog.Errorf("clusterd: failed to bind %s: %v", addr, err)
		os.Exit(cmn.ExitBindFailed)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	nlog.Infof("clusterd: master %s listening on %s", cfg.NodeName, addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				nlog.Errorf("clusterd: accept failed: %v", err)
				return
			}
		}
		go m.handleConn(conn, scanner)
	}
}

// handleConn owns one accepted connection end to end: it validates the
// hello handshake, wires the per-worker sync/dispatch handlers onto the
// session only once the worker is known, and cleans up the worker's
// registry/gate/state entries once the session ends.
func (m *master) handleConn(conn net.Conn, scanner *integrity.Scanner) {
	var worker string

	helloHandler := func(s *transport.Session, _ uint32, payload []byte) (string, []byte, error) {
		name, clusterName, nodeType, version, err := cluster.ParseHello(payload)
		if err != nil {
			nlog.Warningf("clusterd: malformed hello from %s: %v", conn.RemoteAddr(), err)
			s.Close(err)
			return "", nil, nil
		}
		if verr := m.reg.Validate(m.cfg.NodeName, m.cfg.Name, clusterdVersion, name, clusterName, nodeType, version); verr != nil {
			nlog.Warningf("clusterd: rejecting hello from %s: %v", name, verr)
			s.Close(verr)
			return "", nil, nil
		}

		node := &cluster.Snode{
			Name: name, ClusterName: clusterName, Type: cmn.Worker,
			Version: version, Addr: conn.RemoteAddr().String(), ConnectedAt: time.Now(),
		}
		if err := m.reg.Add(node); err != nil {
			nlog.Warningf("clusterd: rejecting hello from %s: %v", name, err)
			s.Close(err)
			return "", nil, nil
		}

		state := m.states.Allocate(name)
		m.gate.Register(name, clustersync.Integrity)
		m.gate.Register(name, clustersync.AgentInfo)
		m.gate.Register(name, clustersync.ExtraValid)

		ms := &clustersync.MasterSide{
			Worker:   name,
			Man:      m.man,
			Scanner:  scanner,
			Gate:     m.gate,
			State:    state,
			Applier:  m.applier,
			Tasks:    s.Tasks(),
			Session:  s,
			Interval: m.cfg.MaxTimeReceivingFile.Duration(),
		}
		s.SetHandlers(mergeHandlers(
			transport.ChunkHandlers(s.Tasks()),
			ms.Handlers(),
			map[string]transport.Handler{
				transport.CmdDapiFwd: m.forwarder.Handler(),
				transport.CmdReady:   readyHandler,
				transport.CmdEcho:    echoHandler,
			},
		))

		m.sessions.set(name, s)
		worker = name
		nlog.Infof("clusterd: worker %s connected from %s", name, conn.RemoteAddr())

		ack, aerr := transport.EncodeHelloAck(transport.HelloAck{ClusterName: m.cfg.Name, Version: clusterdVersion, Accepted: true})
		if aerr != nil {
			return transport.CmdErr, []byte(aerr.Error()), nil
		}
		return transport.CmdOK, ack, nil
	}

	s := transport.NewSession(conn, m.cipher, map[string]transport.Handler{transport.CmdHello: helloHandler})
	s.Serve()

	if worker != "" {
		nlog.Infof("clusterd: worker %s disconnected", worker)
		m.sessions.remove(worker)
		m.reg.Remove(worker)
		m.gate.Forget(worker)
		m.states.Remove(worker)
	}
}

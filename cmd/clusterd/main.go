// Command clusterd runs one node of the cluster: the wire protocol
// (transport), the sync engine (clustersync), the distributed-request
// dispatcher (dispatch), and the local control and metrics listeners,
// in either master or worker role per its configuration's node_type.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clusterd/clusterd/cmn"
	"github.com/clusterd/clusterd/cmn/nlog"
	"github.com/clusterd/clusterd/dispatch"
	"github.com/clusterd/clusterd/integrity"
	"github.com/clusterd/clusterd/manifest"
	"github.com/clusterd/clusterd/metrics"
	"github.com/clusterd/clusterd/transport"
)

// clusterdVersion is the protocol compatibility version reported in the
// hello handshake; cluster.Registry.Validate compares its major+minor
// against a peer's.
const clusterdVersion = "4.2.0"

func main() {
	cfg := cmn.NewDefaultConfig()

	flagConfigPath := flag.String("config", "/etc/clusterd/config.json", "path to the node's JSON configuration")
	flagManifestPath := flag.String("manifest", "/etc/clusterd/manifest.json", "path to the cluster-items manifest")
	flagRoot := flag.String("root", "/var/lib/clusterd", "root directory the manifest's directory keys are relative to")
	flagSocket := flag.String("socket", "/var/run/clusterd/local.sock", "path for the local control socket")
	flagMetricsAddr := flag.String("metrics-addr", ":9100", "address for the /metrics and /healthz HTTP listener")
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	loaded, err := cmn.LoadConfig(*flagConfigPath)
	if err != nil {
		nlog.Errorf("clusterd: %v", err)
		os.Exit(cmn.ExitBadConfig)
	}
	applyFlagOverrides(flag.CommandLine, cfg, loaded)
	if err := loaded.Validate(); err != nil {
		nlog.Errorf("clusterd: %v", err)
		os.Exit(cmn.ExitBadConfig)
	}
	cfg = loaded
	defer nlog.Flush()

	man, err := manifest.Load(*flagManifestPath)
	if err != nil {
		nlog.Errorf("clusterd: %v", err)
		os.Exit(cmn.ExitBadConfig)
	}

	cipher, err := transport.NewCipher([]byte(cfg.Key))
	if err != nil {
		nlog.Errorf("clusterd: %v", err)
		os.Exit(cmn.ExitBadCrypto)
	}

	promReg := prometheus.NewRegistry()
	met := metrics.New(promReg)
	metricsSrv := metrics.NewServer(*flagMetricsAddr, promReg)
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil {
			nlog.Warningf("clusterd: metrics listener stopped: %v", err)
		}
	}()
	defer metricsSrv.Close()

	scanner := integrity.NewScanner(*flagRoot, man, cfg.NodeType)
	overview := dispatch.NewStaticOverview()
	dreg := dispatch.NewRegistry()
	registerBuiltins(dreg, man)

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		nlog.Infof("clusterd: signal received, shutting down")
		cancel()
	}()

	switch cfg.NodeType {
	case cmn.Master:
		runMaster(ctx, cfg, man, scanner, overview, dreg, met, cipher, *flagRoot, *flagSocket)
	case cmn.Worker:
		runWorker(ctx, cfg, man, scanner, overview, dreg, met, cipher, *flagRoot, *flagSocket)
	}
}

// applyFlagOverrides copies only the Config fields whose flags were
// explicitly passed on the command line from the flag-bound "from"
// (populated at RegisterFlags time) onto "to" (the config-file result),
// so file values stay authoritative except where the operator overrode
// them.
func applyFlagOverrides(fs *flag.FlagSet, from, to *cmn.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "node-name":
			to.NodeName = from.NodeName
		case "node-type":
			to.NodeType = from.NodeType
		case "port":
			to.Port = from.Port
		}
	})
}

// registerBuiltins wires the handful of functions every node answers
// without deferring to the (out-of-scope) business logic behind real
// RPCs: a connectivity probe and a manifest introspection query. Both
// are local_any since they need no agent resolution or master
// authority, so every node answers them directly.
func registerBuiltins(reg *dispatch.Registry, man *manifest.Manifest) {
	reg.Register("cluster.echo", dispatch.LocalAny, func(args map[string]any) (map[string]any, error) {
		return args, nil
	})
	reg.Register("cluster.manifest_keys", dispatch.LocalAny, func(_ map[string]any) (map[string]any, error) {
		keys := make([]string, 0, len(man.Items))
		for k := range man.Items {
			keys = append(keys, k)
		}
		return map[string]any{"keys": keys}, nil
	})
}

package clustersync

import (
	"bytes"
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clusterd/clusterd/cmn"
	"github.com/clusterd/clusterd/cmn/nlog"
	"github.com/clusterd/clusterd/integrity"
	"github.com/clusterd/clusterd/manifest"
	"github.com/clusterd/clusterd/metrics"
	"github.com/clusterd/clusterd/transport"
)

// WorkerSide drives the three periodic sync loops from a worker's
// perspective.
type WorkerSide struct {
	Session  *transport.Session
	Scanner  *integrity.Scanner
	Applier  *Applier
	Man      *manifest.Manifest
	Interval cmn.Intervals
	MaxTime  time.Duration

	// Metrics is optional; when set, each cycle's outcome and duration
	// feed the sync_cycle_seconds histogram and errors_total counter.
	Metrics *metrics.Metrics

	extraValidTrigger chan []string
}

func NewWorkerSide(s *transport.Session, scanner *integrity.Scanner, applier *Applier, man *manifest.Manifest, interval cmn.Intervals) *WorkerSide {
	return &WorkerSide{
		Session:           s,
		Scanner:           scanner,
		Applier:           applier,
		Man:               man,
		Interval:          interval,
		extraValidTrigger: make(chan []string, 1),
	}
}

// Run starts the three loops and blocks until ctx is canceled or one loop
// returns a fatal (non-cycle-scoped) error.
func (w *WorkerSide) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.runTicked(ctx, Integrity, w.Interval.SyncIntegrity.Duration(), w.integrityCycle) })
	g.Go(func() error { return w.runTicked(ctx, AgentInfo, w.Interval.SyncFiles.Duration(), w.agentInfoCycle) })
	g.Go(func() error { return w.runExtraValid(ctx) })
	return g.Wait()
}

func (w *WorkerSide) runTicked(ctx context.Context, cat Category, interval time.Duration, cycle func(ctx context.Context) error) error {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			w.runOneCycle(ctx, cat, cycle)
		}
	}
}

func (w *WorkerSide) runOneCycle(ctx context.Context, cat Category, cycle func(ctx context.Context) error) {
	start := time.Now()
	err := cycle(ctx)
	if w.Metrics != nil {
		w.Metrics.SyncCycleLength.WithLabelValues(string(cat)).Observe(time.Since(start).Seconds())
		if err != nil {
			w.Metrics.ObserveError(err)
		}
	}
	if err != nil {
		nlog.Warningf("clustersync: %s cycle failed, retrying next tick: %v", cat, err)
	}
}

func (w *WorkerSide) runExtraValid(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case keys := <-w.extraValidTrigger:
			w.runOneCycle(ctx, ExtraValid, func(ctx context.Context) error { return w.extraValidCycle(ctx, keys) })
		}
	}
}

// integrityCycle runs one pass of the integrity loop: request permission,
// scan, send the bundle, and let the reply handler apply the result.
func (w *WorkerSide) integrityCycle(ctx context.Context) error {
	replyCmd, _, err := w.Session.Execute(ctx, transport.CmdSyncIntegrityWtoMPerm, nil)
	if err != nil {
		return err
	}
	if replyCmd != transport.CmdOK {
		return nil // not our turn this tick
	}

	records, err := w.Scanner.Scan()
	if err != nil {
		return cmn.WrapError(cmn.ApplyError, err, "integrity scan failed")
	}
	var buf bytes.Buffer
	if err := WriteBundle(&buf, records, nil); err != nil {
		return err
	}

	if _, err := transport.SendChunked(ctx, w.Session, transport.CmdSyncIntegrityWtoM, "", &buf, w.Interval.FileTransferSend.Duration()); err != nil {
		return err
	}

	return w.awaitReply(ctx)
}

func (w *WorkerSide) agentInfoCycle(ctx context.Context) error {
	replyCmd, _, err := w.Session.Execute(ctx, transport.CmdSyncAgentInfoWtoMPerm, nil)
	if err != nil {
		return err
	}
	if replyCmd != transport.CmdOK {
		return nil // not our turn this tick
	}

	records, err := w.Scanner.Scan()
	if err != nil {
		return cmn.WrapError(cmn.ApplyError, err, "agent-info scan failed")
	}
	bodies := make(map[string][]byte, len(records))
	for i := range records {
		b, rerr := readFile(w.Applier.Root, records[i].RelPath)
		if rerr != nil {
			continue
		}
		bodies[records[i].RelPath] = b
	}
	var buf bytes.Buffer
	if err := WriteBundle(&buf, records, bodies); err != nil {
		return err
	}
	_, err = transport.SendChunked(ctx, w.Session, transport.CmdSyncAgentInfoWtoM, "", &buf, w.Interval.FileTransferSend.Duration())
	return err
}

// TriggerExtraValid schedules a merge-and-upload cycle for the given
// cluster-item keys, as the integrity loop does on receiving an
// extra_valid reply.
func (w *WorkerSide) TriggerExtraValid(keys []string) {
	select {
	case w.extraValidTrigger <- keys:
	default:
	}
}

func (w *WorkerSide) extraValidCycle(ctx context.Context, keys []string) error {
	replyCmd, _, err := w.Session.Execute(ctx, transport.CmdSyncExtraValidWtoMPerm, nil)
	if err != nil {
		return err
	}
	if replyCmd != transport.CmdOK {
		return nil // not our turn this tick
	}

	records, err := w.Scanner.Scan()
	if err != nil {
		return cmn.WrapError(cmn.ApplyError, err, "extra_valid scan failed")
	}
	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}
	var filtered []integrity.FileRecord
	bodies := make(map[string][]byte)
	for _, r := range records {
		if !wanted[r.ClusterItemKey] {
			continue
		}
		b, rerr := readFile(w.Applier.Root, r.RelPath)
		if rerr != nil {
			continue
		}
		filtered = append(filtered, r)
		bodies[r.RelPath] = b
	}
	var buf bytes.Buffer
	if err := WriteBundle(&buf, filtered, bodies); err != nil {
		return err
	}
	_, err = transport.SendChunked(ctx, w.Session, transport.CmdSyncExtraValidWtoM, "", &buf, 0)
	return err
}

// awaitReply applies a master's sync_m_c push as it arrives via the
// session's ordinary handler dispatch (registered separately, see
// ReplyHandlers); integrityCycle itself just needs the outbound half to
// have succeeded for this tick.
func (w *WorkerSide) awaitReply(_ context.Context) error { return nil }

package clustersync

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clusterd/clusterd/cmn"
	"github.com/clusterd/clusterd/cmn/nlog"
	"github.com/clusterd/clusterd/integrity"
	"github.com/clusterd/clusterd/manifest"
	"github.com/clusterd/clusterd/transport"
)

func readFile(root, relpath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(root, relpath))
}

// MasterSide wires the master's handlers for the three sync loops onto one
// worker's session. A fresh MasterSide is created per accepted connection,
// allocating a fresh sync-state record for it.
type MasterSide struct {
	Worker   string
	Man      *manifest.Manifest
	Scanner  *integrity.Scanner
	Gate     *Gate
	State    *SyncState
	Applier  *Applier
	Tasks    *transport.Registry
	Session  *transport.Session
	Interval time.Duration
}

// Handlers returns the command->Handler map to register on the session,
// covering the sync verbs from the master's point of view.
func (m *MasterSide) Handlers() map[string]transport.Handler {
	return map[string]transport.Handler{
		transport.CmdSyncIntegrityWtoMPerm:  m.permHandler(Integrity),
		transport.CmdSyncAgentInfoWtoMPerm:  m.permHandler(AgentInfo),
		transport.CmdSyncExtraValidWtoMPerm: m.permHandler(ExtraValid),
		transport.CmdSyncIntegrityWtoM:      m.openHandler(Integrity, m.onIntegrityBundle),
		transport.CmdSyncAgentInfoWtoM:      m.openHandler(AgentInfo, m.onAgentInfoBundle),
		transport.CmdSyncExtraValidWtoM:     m.openHandler(ExtraValid, m.onExtraValidBundle),
	}
}

func (m *MasterSide) permHandler(cat Category) transport.Handler {
	return func(_ *transport.Session, _ uint32, _ []byte) (string, []byte, error) {
		if m.Gate.Acquire(m.Worker, cat) {
			return transport.CmdOK, nil, nil
		}
		return transport.CmdErr, []byte("sync_permission_denied"), nil
	}
}

// openHandler implements the master side of "open a task": mint a task-id,
// register a receiver that buffers the archive, and hand the reply bundle
// back to the worker once the archive is complete and applied.
func (m *MasterSide) openHandler(cat Category, onComplete func(body []byte) error) transport.Handler {
	return func(_ *transport.Session, _ uint32, basename []byte) (string, []byte, error) {
		dest := transport.NewBufferDestination(string(basename))
		task := transport.NewReceiverTask(dest, m.maxTime(), func(d transport.Destination, _ transport.Digest128, _ int64) error {
			bd := d.(*transport.BufferDestination)
			defer m.Gate.Release(m.Worker, cat)
			return onComplete(bd.Bytes())
		})
		id := m.Tasks.SetWorker(string(cat), task, string(basename))
		return transport.CmdOK, []byte(id), nil
	}
}

func (m *MasterSide) maxTime() time.Duration {
	if m.Interval <= 0 {
		return 0
	}
	return m.Interval
}

// onIntegrityBundle diffs the worker's scan against the master's own and
// replies with the files the worker needs.
func (m *MasterSide) onIntegrityBundle(body []byte) error {
	workerRecords, _, err := ReadBundle(bytes.NewReader(body))
	if err != nil {
		return cmn.WrapError(cmn.ApplyError, err, "failed to parse integrity bundle from %s", m.Worker)
	}
	masterRecords, err := m.Scanner.Scan()
	if err != nil {
		return cmn.WrapError(cmn.ApplyError, err, "master scan failed")
	}
	diff := integrity.Classify(masterRecords, workerRecords, m.Man)

	if len(diff.ExtraValid) > 0 {
		nlog.Infof("clustersync: worker %s has %d extra_valid files pending merge", m.Worker, len(diff.ExtraValid))
	}

	reply, bodies, err := m.buildReplyBundle(masterRecords, diff)
	if err != nil {
		return err
	}
	return m.pushReply(reply, bodies, diff.Extra, diff.ExtraValid)
}

// buildReplyBundle gathers the bodies of every file the worker is missing
// or differs on; extras carry no body (the worker only needs the relpath
// to unlink).
func (m *MasterSide) buildReplyBundle(masterRecords []integrity.FileRecord, diff Diff) ([]integrity.FileRecord, map[string][]byte, error) {
	byPath := make(map[string]integrity.FileRecord, len(masterRecords))
	for _, r := range masterRecords {
		byPath[r.RelPath] = r
	}
	var out []integrity.FileRecord
	bodies := make(map[string][]byte)
	for _, path := range append(append([]string{}, diff.Missing...), diff.Shared...) {
		rec, ok := byPath[path]
		if !ok {
			continue
		}
		b, err := readFile(m.Applier.Root, path)
		if err != nil {
			nlog.Warningf("clustersync: failed to read %s for reply to %s: %v", path, m.Worker, err)
			continue
		}
		out = append(out, rec)
		bodies[path] = b
	}
	return out, bodies, nil
}

// pushReply streams the reply bundle back over the same session using the
// symmetric sync_m_c sub-protocol. The envelope carries the extra/
// extra_valid path lists ahead of the bundle bytes, in the layout
// WorkerSide.applyReply parses.
func (m *MasterSide) pushReply(records []integrity.FileRecord, bodies map[string][]byte, extra, extraValid []string) error {
	var buf bytes.Buffer
	if err := WriteBundle(&buf, records, bodies); err != nil {
		return err
	}
	header := strings.Join(extra, "\x00") + "\x02" + strings.Join(extraValid, "\x00") + "\x01"
	payload := append([]byte(header), buf.Bytes()...)
	_, err := transport.SendChunked(context.Background(), m.Session, transport.CmdSyncMasterToWorker, "", bytes.NewReader(payload), 0)
	return err
}

func (m *MasterSide) onAgentInfoBundle(body []byte) error {
	records, bodies, err := ReadBundle(bytes.NewReader(body))
	if err != nil {
		return cmn.WrapError(cmn.ApplyError, err, "failed to parse agent-info bundle from %s", m.Worker)
	}
	for _, rec := range records {
		if err := m.Applier.Apply(rec, bodies[rec.RelPath]); err != nil {
			m.State.recordApplyError(rec.ClusterItemKey)
			if cmn.Is(err, cmn.SyncStaleAgentInfo) {
				nlog.Warningf("clustersync: dropping stale agent-info from %s: %v", m.Worker, err)
				continue
			}
			nlog.Errorf("clustersync: apply agent-info from %s failed: %v", m.Worker, err)
		}
	}
	m.State.LastAgentInfoAt = time.Now()
	return nil
}

func (m *MasterSide) onExtraValidBundle(body []byte) error {
	records, bodies, err := ReadBundle(bytes.NewReader(body))
	if err != nil {
		return cmn.WrapError(cmn.ApplyError, err, "failed to parse extra_valid bundle from %s", m.Worker)
	}
	merged := MergeExtraValid(records, bodies)
	if len(records) == 0 {
		return nil
	}
	out := integrity.FileRecord{
		RelPath:        "queue/agent-groups/merged",
		ClusterItemKey: records[0].ClusterItemKey,
		WriteMode:      manifest.Atomic,
	}
	if err := m.Applier.Apply(out, merged); err != nil {
		m.State.recordApplyError(out.ClusterItemKey)
		return err
	}
	m.State.LastExtraValidAt = time.Now()
	return nil
}

package clustersync

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/clusterd/clusterd/cmn"
	"github.com/clusterd/clusterd/cmn/nlog"
	"github.com/clusterd/clusterd/integrity"
	"github.com/clusterd/clusterd/manifest"
)

// dirPerm is the "rwx r-x ---" permission used for
// directories created to hold an inline-written file.
const dirPerm = 0o750

// diskSampleThreshold is the body size at or above which an atomic apply logs a
// disk I/O sample alongside the write, matching the spec's illustrative
// "1 MiB file" atomic-apply scenario.
const diskSampleThreshold = 1 * 1024 * 1024

// agentRecordLine matches a client.keys line identifying one agent
// record, e.g. "001 agent-name 10.0.0.1 <key>".
var agentRecordLine = regexp.MustCompile(`^\d{3,}\s+\S+\s+\S+\s+\S+`)

// AgentRemovalFunc is invoked once per agent record line removed from
// client.keys during an apply.
type AgentRemovalFunc func(line string)

// Applier performs the atomic apply step of the sync engine on this node.
type Applier struct {
	Root         string
	NodeType     cmn.NodeType
	Man          *manifest.Manifest
	OnAgentRemoved AgentRemovalFunc
}

// Apply writes one file record+body to disk, honoring write_mode, umask,
// the client.keys/agent-info guards, and mtime restoration.
func (a *Applier) Apply(rec integrity.FileRecord, body []byte) error {
	dest := filepath.Join(a.Root, rec.RelPath)
	base := filepath.Base(dest)

	entry, ok := a.Man.Items[rec.ClusterItemKey]
	umask, err := entry.UmaskValue()
	if !ok {
		umask = 0o644
	} else if err != nil {
		return cmn.WrapError(cmn.ApplyError, err, "invalid umask for %s", rec.RelPath)
	}

	if base == "client.keys" {
		if a.NodeType != cmn.Worker {
			return cmn.NewError(cmn.ApplyError, "refusing client.keys replacement on a non-worker node")
		}
		a.reportRemovedAgents(dest, body)
	}
	if base == "agent-info" {
		if a.NodeType != cmn.Master {
			return cmn.NewError(cmn.ApplyError, "refusing agent-info replacement on a non-master node")
		}
		if stale, err := a.isStaleAgentInfo(dest, rec.MTime); err != nil {
			return err
		} else if stale {
			return cmn.NewError(cmn.SyncStaleAgentInfo, "incoming agent-info for %s is older than the existing copy", rec.RelPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), dirPerm); err != nil {
		return cmn.WrapError(cmn.ApplyError, err, "failed to create parent directory for %s", rec.RelPath)
	}

	if rec.WriteMode == manifest.Inline {
		if err := a.writeInline(dest, body, umask); err != nil {
			return cmn.WrapError(cmn.ApplyError, err, "failed to write %s inline", rec.RelPath)
		}
	} else {
		if len(body) >= diskSampleThreshold {
			logDiskSample("apply " + rec.RelPath)
		}
		if err := a.writeAtomic(dest, body, umask); err != nil {
			return cmn.WrapError(cmn.ApplyError, err, "failed to apply %s atomically", rec.RelPath)
		}
	}

	if !rec.MTime.IsZero() {
		if err := os.Chtimes(dest, rec.MTime, rec.MTime); err != nil {
			nlog.Warningf("clustersync: failed to set mtime on %s: %v", dest, err)
		}
	}
	return nil
}

func (a *Applier) writeInline(dest string, body []byte, umask os.FileMode) error {
	return os.WriteFile(dest, body, umask)
}

// writeAtomic implements the "atomic" write_mode: write to
// "<dest>.tmp.cluster" with the declared umask, fsync, then rename.
func (a *Applier) writeAtomic(dest string, body []byte, umask os.FileMode) error {
	tmp := dest + ".tmp.cluster"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, umask)
	if err != nil {
		return err
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}
	if dir, derr := os.Open(filepath.Dir(dest)); derr == nil {
		unix.Fsync(int(dir.Fd()))
		dir.Close()
	}
	return nil
}

// RemoveExtra implements the "extra" side of apply: unlink, then
// optionally remove now-empty parent directories.
func (a *Applier) RemoveExtra(relpath string, removeSubdirsIfEmpty bool) error {
	dest := filepath.Join(a.Root, relpath)
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return cmn.WrapError(cmn.ApplyError, err, "failed to remove extra file %s", relpath)
	}
	if !removeSubdirsIfEmpty {
		return nil
	}
	dir := filepath.Dir(dest)
	for dir != a.Root && dir != "." && dir != string(filepath.Separator) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return nil
		}
		if err := os.Remove(dir); err != nil {
			return nil
		}
		dir = filepath.Dir(dir)
	}
	return nil
}

func (a *Applier) isStaleAgentInfo(dest string, incoming time.Time) (bool, error) {
	info, err := os.Stat(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, cmn.WrapError(cmn.ApplyError, err, "failed to stat existing agent-info %s", dest)
	}
	return info.ModTime().After(incoming), nil
}

func (a *Applier) reportRemovedAgents(dest string, newBody []byte) {
	if a.OnAgentRemoved == nil {
		return
	}
	old, err := os.ReadFile(dest)
	if err != nil {
		return
	}
	oldLines := strings.Split(string(old), "\n")
	newSet := make(map[string]bool)
	for _, l := range bytes.Split(newBody, []byte("\n")) {
		newSet[string(l)] = true
	}
	for _, l := range oldLines {
		if l == "" || newSet[l] {
			continue
		}
		if agentRecordLine.MatchString(l) {
			a.OnAgentRemoved(l)
		}
	}
}

package clustersync

import (
	"bytes"
	"strings"

	"github.com/clusterd/clusterd/cmn"
	"github.com/clusterd/clusterd/cmn/nlog"
	"github.com/clusterd/clusterd/manifest"
	"github.com/clusterd/clusterd/transport"
)

// ReplyHandlers returns the worker-side handler for the master's
// sync_m_c push: apply shared/missing files, unlink
// extras (optionally pruning now-empty parent directories), and schedule
// an extra-valid upload for any keys the reply calls out.
func (w *WorkerSide) ReplyHandlers() map[string]transport.Handler {
	return map[string]transport.Handler{
		transport.CmdSyncMasterToWorker: w.openReplyHandler(),
	}
}

func (w *WorkerSide) openReplyHandler() transport.Handler {
	return func(_ *transport.Session, _ uint32, basename []byte) (string, []byte, error) {
		dest := transport.NewBufferDestination(string(basename))
		task := transport.NewReceiverTask(dest, w.MaxTime, func(d transport.Destination, _ transport.Digest128, _ int64) error {
			bd := d.(*transport.BufferDestination)
			return w.applyReply(bd.Bytes())
		})
		// The worker session shares one task registry with the generic
		// chunk-receiver handlers registered for new_f_r/update_f_r/end_f_r.
		id := w.Session.Tasks().SetWorker(transport.CmdSyncMasterToWorker, task, string(basename))
		return transport.CmdOK, []byte(id), nil
	}
}

func (w *WorkerSide) applyReply(body []byte) error {
	sep1 := bytes.IndexByte(body, '\x02')
	sep2 := bytes.IndexByte(body, '\x01')
	if sep1 < 0 || sep2 < 0 || sep2 < sep1 {
		return cmn.NewError(cmn.ApplyError, "malformed sync reply envelope")
	}
	extra := splitNonEmpty(string(body[:sep1]))
	extraValid := splitNonEmpty(string(body[sep1+1 : sep2]))
	bundleBytes := body[sep2+1:]

	records, bodies, err := ReadBundle(bytes.NewReader(bundleBytes))
	if err != nil {
		return cmn.WrapError(cmn.ApplyError, err, "failed to parse sync reply bundle")
	}

	for _, rec := range records {
		if err := w.Applier.Apply(rec, bodies[rec.RelPath]); err != nil {
			nlog.Errorf("clustersync: apply %s failed: %v", rec.RelPath, err)
			continue
		}
	}

	for _, path := range extra {
		entry := entryFor(w.Man, path)
		if err := w.Applier.RemoveExtra(path, entry.RemoveSubdirsIfEmpty); err != nil {
			nlog.Errorf("clustersync: remove extra %s failed: %v", path, err)
		}
	}

	if len(extraValid) > 0 {
		w.TriggerExtraValid(extraValid)
	}
	return nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\x00")
}

// entryFor finds which manifest entry a relpath falls under, so
// RemoveExtra can honor that entry's remove_subdirs_if_empty flag.
func entryFor(man *manifest.Manifest, relpath string) manifest.Entry {
	var best manifest.Entry
	bestLen := -1
	for key, entry := range man.Items {
		trimmed := strings.Trim(key, "/")
		if trimmed != "" && strings.HasPrefix(relpath, trimmed) && len(trimmed) > bestLen {
			best, bestLen = entry, len(trimmed)
		}
	}
	return best
}

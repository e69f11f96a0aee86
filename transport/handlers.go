package transport

// ChunkHandlers returns the three generic receiver-side handlers
// (new_f_r/update_f_r/end_f_r) that every session must register so that
// incoming chunks reach the ReceiverTask registered under their task-id.
// The negotiating verb itself (e.g. "sync_i_w_m") is
// domain-specific and registered separately by the sync engine.
func ChunkHandlers(tasks *Registry) map[string]Handler {
	feed := func(cmd string) Handler {
		return func(_ *Session, _ uint32, payload []byte) (string, []byte, error) {
			id, rest, w, err := tasks.GetWorker(payload)
			if err != nil {
				return CmdErr, []byte(err.Error()), nil
			}
			replyCmd, replyPayload, ferr := w.Feed(cmd, rest)
			if ferr != nil {
				return CmdErr, []byte(ferr.Error()), nil
			}
			if w.Done() {
				tasks.Remove(id)
			}
			return replyCmd, replyPayload, nil
		}
	}
	return map[string]Handler{
		CmdNewFileRx:  feed(CmdNewFileRx),
		CmdUpdateFile: feed(CmdUpdateFile),
		CmdEndFile:    feed(CmdEndFile),
	}
}

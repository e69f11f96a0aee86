// chunk.go implements the chunked-transfer sub-protocol:
// open/update*/close+checksum triplets layered on top of the session
// multiplexer, used whenever a payload would exceed MaxPayload.
package transport

import (
	"context"
	"io"
	"time"

	"github.com/clusterd/clusterd/cmn"
	"github.com/clusterd/clusterd/cmn/nlog"
)

// SendChunked streams r to the peer under a freshly negotiated task-id.
// reason is the initiating verb (e.g. "sync_i_w_m"); basename is an
// optional hint forwarded into the task-id. interval throttles successive
// chunks to yield the link to other RPCs.
func SendChunked(ctx context.Context, s *Session, reason, basename string, r io.Reader, interval time.Duration) (Digest128, error) {
	var zero Digest128

	_, idPayload, err := s.Execute(ctx, reason, []byte(basename))
	if err != nil {
		return zero, err
	}
	return sendChunkedWithID(ctx, s, string(idPayload), r, interval)
}

// SendChunkedWithID streams r under a task-id the receiver already knows
// about (registered via Registry.RegisterWithID), skipping the initial
// reason/basename negotiation round trip SendChunked performs. Used by the
// distributed-request dispatcher's dapi_res push, where the caller picks
// the id up front so it can pre-register its own receiver before the
// forwarded request is even sent.
func SendChunkedWithID(ctx context.Context, s *Session, taskID string, r io.Reader, interval time.Duration) (Digest128, error) {
	return sendChunkedWithID(ctx, s, taskID, r, interval)
}

func sendChunkedWithID(ctx context.Context, s *Session, taskID string, r io.Reader, interval time.Duration) (Digest128, error) {
	var zero Digest128

	if replyCmd, replyPayload, err := s.Execute(ctx, CmdNewFileRx, []byte(taskID)); err != nil {
		return zero, err
	} else if replyCmd == CmdErr {
		return zero, cmn.NewError(cmn.ProtocolTaskNotFound, "new_f_r rejected: %s", string(replyPayload))
	}

	chunkSize := MaxPayload - len(taskID) - 1
	if chunkSize <= 0 {
		return zero, cmn.NewError(cmn.TransportOversize, "task-id %q leaves no room for chunk data", taskID)
	}

	dw := newDigestWriter()
	buf := make([]byte, chunkSize)
	for {
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			dw.Write(buf[:n]) //nolint:errcheck
			payload := make([]byte, 0, len(taskID)+1+n)
			payload = append(payload, taskID...)
			payload = append(payload, ' ')
			payload = append(payload, buf[:n]...)

			replyCmd, replyPayload, err := s.Execute(ctx, CmdUpdateFile, payload)
			if err != nil {
				return zero, err
			}
			if replyCmd == CmdErr {
				return zero, cmn.NewError(cmn.ApplyError, "update_f_r: %s", string(replyPayload))
			}
			if interval > 0 {
				time.Sleep(interval)
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return zero, rerr
		}
	}

	digest := dw.Sum()
	endPayload := append([]byte(taskID+" "), digest[:]...)
	replyCmd, replyPayload, err := s.Execute(ctx, CmdEndFile, endPayload)
	if err != nil {
		return zero, err
	}
	if replyCmd == CmdErr {
		return zero, cmn.NewError(cmn.ApplyError, "end_f_r: %s", string(replyPayload))
	}
	return digest, nil
}

// --- receiver side: a small FSM, one per in-flight transfer ---

type rxState int

const (
	rxIdle rxState = iota
	rxOpen
	rxUpdating
	rxClosed
	rxFailed
)

// Destination abstracts where received bytes land: a temp file on disk
// ("queue/cluster/<name>/<task-id>.tmp") or an in-memory buffer for
// string transfers.
type Destination interface {
	io.Writer
	Finalize() error // fsync/close on success
	Abort()          // discard on failure, matching "a crashed transfer discards the temp destination"
	Path() string
}

// ReceiverTask owns chunked-transfer reception state for one task-id: the
// Idle→Open→Updating→Closed/Failed FSM, a watchdog, and the completion
// callback.
type ReceiverTask struct {
	dest       Destination
	dw         *digestWriter
	maxTime    time.Duration
	onComplete func(dest Destination, digest Digest128, size int64) error

	state    rxState
	size     int64
	watchdog *time.Timer
	doneCh   chan struct{}
	err      error
}

func NewReceiverTask(dest Destination, maxTime time.Duration, onComplete func(Destination, Digest128, int64) error) *ReceiverTask {
	return &ReceiverTask{
		dest:       dest,
		dw:         newDigestWriter(),
		maxTime:    maxTime,
		onComplete: onComplete,
		state:      rxIdle,
		doneCh:     make(chan struct{}),
	}
}

func (t *ReceiverTask) Done() bool {
	select {
	case <-t.doneCh:
		return true
	default:
		return false
	}
}

func (t *ReceiverTask) finish(err error) {
	if t.Done() {
		return
	}
	t.err = err
	if t.watchdog != nil {
		t.watchdog.Stop()
	}
	if err != nil {
		t.state = rxFailed
		t.dest.Abort()
	} else {
		t.state = rxClosed
	}
	close(t.doneCh)
}

func (t *ReceiverTask) resetWatchdog() {
	if t.maxTime <= 0 {
		return
	}
	if t.watchdog == nil {
		t.watchdog = time.AfterFunc(t.maxTime, func() {
			nlog.Warningf("transport: receiver %s: watchdog expired after %s", t.dest.Path(), t.maxTime)
			t.finish(cmn.NewError(cmn.ApplyError, "max_time_receiving exceeded"))
		})
		return
	}
	t.watchdog.Reset(t.maxTime)
}

// Feed implements Worker: cmd has already had its task-id prefix stripped
// by the Registry.
func (t *ReceiverTask) Feed(cmd string, data []byte) (string, []byte, error) {
	switch cmd {
	case CmdNewFileRx:
		if t.state != rxIdle {
			return CmdErr, []byte("already open"), nil
		}
		t.state = rxOpen
		t.resetWatchdog()
		return CmdAck, []byte("opened"), nil

	case CmdUpdateFile:
		if t.state != rxOpen && t.state != rxUpdating {
			return CmdErr, []byte("not open"), nil
		}
		t.state = rxUpdating
		if _, err := t.dest.Write(data); err != nil {
			t.finish(cmn.WrapError(cmn.ApplyError, err, "write failed"))
			return CmdErr, []byte(err.Error()), nil
		}
		t.dw.Write(data) //nolint:errcheck
		t.size += int64(len(data))
		t.resetWatchdog()
		return CmdAck, nil, nil

	case CmdEndFile:
		if t.state != rxOpen && t.state != rxUpdating {
			return CmdErr, []byte("not open"), nil
		}
		var want Digest128
		copy(want[:], data)
		got := t.dw.Sum()
		if got != want {
			t.finish(cmn.NewError(cmn.ApplyError, "checksum mismatch"))
			return CmdErr, []byte("checksum mismatch"), nil
		}
		if err := t.dest.Finalize(); err != nil {
			t.finish(cmn.WrapError(cmn.ApplyError, err, "finalize failed"))
			return CmdErr, []byte(err.Error()), nil
		}
		if t.onComplete != nil {
			if err := t.onComplete(t.dest, got, t.size); err != nil {
				t.finish(err)
				return CmdErr, []byte(err.Error()), nil
			}
		}
		t.finish(nil)
		return CmdAck, []byte("ok"), nil

	default:
		return CmdErr, []byte("unexpected command"), nil
	}
}

func (t *ReceiverTask) Abort(cause error) {
	t.finish(cmn.WrapError(cmn.TransportClosed, cause, "aborted"))
}

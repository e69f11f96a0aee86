package transport

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clusterd/clusterd/cmn"
	"github.com/clusterd/clusterd/cmn/cos"
	"github.com/clusterd/clusterd/cmn/debug"
	"github.com/clusterd/clusterd/cmn/nlog"
)

// defaultTeardownTimeout bounds how long Close waits for in-flight chunked
// receivers to self-report done before logging them as stragglers.
const defaultTeardownTimeout = 2 * time.Second

// Handler answers an incoming request frame that isn't a response to a
// pending Execute call. A non-empty replyCmd causes the session to reply on
// the same counter.
type Handler func(s *Session, counter uint32, payload []byte) (replyCmd string, replyPayload []byte, err error)

type response struct {
	command string
	payload []byte
	err     error
}

// Session wraps one accepted/dialed TCP connection: a reusable counter, a
// pending-response table, a task table, a cipher context, and the
// read/write mutexes a full-duplex multiplexed connection requires. One
// goroutine per Session reads frames continuously; handlers and Execute
// callers run concurrently.
type Session struct {
	conn     net.Conn
	cipher   Cipher
	handlers map[string]Handler
	tasks    *Registry

	counter uint32 // atomic, incremented mod 2^32 by Execute

	respMu  sync.Mutex
	pending map[uint32]chan response

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    atomic.Bool
	doneCh    chan struct{}
	closeErr  error

	// ID identifies the peer for logging once the handshake completes.
	ID string
}

func NewSession(conn net.Conn, cipher Cipher, handlers map[string]Handler) *Session {
	return &Session{
		conn:     conn,
		cipher:   cipher,
		handlers: handlers,
		tasks:    NewRegistry(),
		pending:  make(map[uint32]chan response),
		doneCh:   make(chan struct{}),
	}
}

func (s *Session) Tasks() *Registry { return s.tasks }
func (s *Session) IsClosed() bool   { return s.closed.Load() }
func (s *Session) Done() <-chan struct{} { return s.doneCh }

// SetHandlers installs the full handler table. Meant to be called before
// Serve starts reading, or from within a handler Serve is itself
// currently invoking (the single-reader discipline makes both safe
// without a lock); never call it from another goroutine once Serve is
// already running.
func (s *Session) SetHandlers(m map[string]Handler) { s.handlers = m }

// RegisterHandler adds or replaces one command handler, under the same
// safety rules as SetHandlers. (The master's accept loop installs its
// per-worker table with SetHandlers, not with this method.)
func (s *Session) RegisterHandler(cmd string, h Handler) { s.handlers[cmd] = h }

// Serve runs the single-reader loop until the connection fails or Close is
// called. Handlers and chunk workers are invoked synchronously from this
// goroutine, so a handler must hand anything slow, and anything that calls
// Execute on this session, off to another goroutine: responses are only
// read here.
func (s *Session) Serve() error {
	defer s.Close(io.EOF)
	header := make([]byte, HeaderLen)
	for {
		if _, err := io.ReadFull(s.conn, header); err != nil {
			return err
		}
		counter, command, payloadLen, err := ParseHeader(header)
		if err != nil {
			return err
		}
		body := make([]byte, payloadLen)
		if payloadLen > 0 {
			if _, err := io.ReadFull(s.conn, body); err != nil {
				return err
			}
		}
		debug.Assertf(len(body) == int(payloadLen), "short read: got %d bytes, header declared %d", len(body), payloadLen)
		var payload []byte
		if s.cipher == nil {
			payload = body
		} else {
			payload, err = s.cipher.Open(body)
			if err != nil {
				return cmn.WrapError(cmn.TransportBadAuth, err, "decrypt failed")
			}
		}
		s.dispatch(counter, command, payload)
	}
}

func (s *Session) dispatch(counter uint32, command string, payload []byte) {
	s.respMu.Lock()
	ch, isResponse := s.pending[counter]
	if isResponse {
		delete(s.pending, counter)
	}
	s.respMu.Unlock()

	if isResponse {
		ch <- response{command: command, payload: payload}
		return
	}

	h, ok := s.handlers[command]
	if !ok {
		nlog.Warningf("transport: %s: unknown command %q", s.ID, command)
		_ = s.Send(counter, CmdErr, []byte(cmn.NewError(cmn.ProtocolUnknownCommand, "unknown command %q", command).Error()))
		return
	}
	replyCmd, replyPayload, err := h(s, counter, payload)
	if err != nil {
		_ = s.Send(counter, CmdErr, []byte(err.Error()))
		return
	}
	if replyCmd != "" {
		_ = s.Send(counter, replyCmd, replyPayload)
	}
}

// Send serializes and writes one frame under the write mutex.
func (s *Session) Send(counter uint32, command string, payload []byte) error {
	frame, err := Encode(counter, command, payload, s.cipher)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.conn.Write(frame)
	return err
}

// Execute allocates a fresh counter, registers a pending response, sends the
// frame, and blocks until the paired response arrives, ctx is done, or the
// session closes. Safe to call from many goroutines concurrently.
func (s *Session) Execute(ctx context.Context, command string, payload []byte) (replyCmd string, replyPayload []byte, err error) {
	counter := atomic.AddUint32(&s.counter, 1)
	ch := make(chan response, 1)

	s.respMu.Lock()
	s.pending[counter] = ch
	s.respMu.Unlock()

	cleanup := func() {
		s.respMu.Lock()
		delete(s.pending, counter)
		s.respMu.Unlock()
	}

	if err := s.Send(counter, command, payload); err != nil {
		cleanup()
		return "", nil, err
	}

	select {
	case r := <-ch:
		return r.command, r.payload, r.err
	case <-s.doneCh:
		cleanup()
		return "", nil, cmn.WrapError(cmn.TransportClosed, s.closeErr, "session closed while executing %q", command)
	case <-ctx.Done():
		cleanup()
		return "", nil, ctx.Err()
	}
}

// Close tears down the session: every pending Execute wakes with
// TransportClosed, every registered task is aborted, and the underlying
// connection is closed. Safe to call multiple times and concurrently.
func (s *Session) Close(cause error) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = cause
		close(s.doneCh)
		cos.Close(s.conn)

		s.respMu.Lock()
		pending := s.pending
		s.pending = make(map[uint32]chan response)
		s.respMu.Unlock()
		for _, ch := range pending {
			ch <- response{err: cmn.WrapError(cmn.TransportClosed, cause, "session closed")}
		}

		s.tasks.Teardown(cmn.WrapError(cmn.TransportClosed, cause, "session closed"), defaultTeardownTimeout)
	})
}


package transport

import (
	"bytes"
	"context"
	"crypto/rand"
	"net"
	"testing"
	"time"
)

// newChunkTestSessions wires a client/server session pair where the server
// accepts one reason verb ("xfer") by opening a ReceiverTask into a
// BufferDestination, then answers via the generic new_f_r/update_f_r/end_f_r
// handlers shared with the production chunk sub-protocol.
func newChunkTestSessions(t *testing.T, onComplete func([]byte)) (*Session, *Session, func()) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	tasks := NewRegistry()

	var dest *BufferDestination
	handlers := ChunkHandlers(tasks)
	handlers["xfer"] = func(_ *Session, _ uint32, basename []byte) (string, []byte, error) {
		dest = NewBufferDestination(string(basename))
		task := NewReceiverTask(dest, 5*time.Second, func(d Destination, _ Digest128, _ int64) error {
			onComplete(d.(*BufferDestination).Bytes())
			return nil
		})
		id := tasks.SetWorker("xfer", task, string(basename))
		return CmdOK, []byte(id), nil
	}

	server := NewSession(serverConn, nil, handlers)
	client := NewSession(clientConn, nil, nil)
	go server.Serve()
	go client.Serve()

	cleanup := func() {
		client.Close(nil)
		server.Close(nil)
	}
	return client, server, cleanup
}

func TestSendChunkedLargeBlob(t *testing.T) {
	blob := make([]byte, 5*1024*1024)
	if _, err := rand.Read(blob); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	received := make(chan []byte, 1)
	client, _, cleanup := newChunkTestSessions(t, func(b []byte) { received <- b })
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	digest, err := SendChunked(ctx, client, "xfer", "blob", bytes.NewReader(blob), 0)
	if err != nil {
		t.Fatalf("SendChunked: %v", err)
	}
	if digest != DigestBytes(blob) {
		t.Fatalf("sender-computed digest does not match an independent digest of the source")
	}

	select {
	case got := <-received:
		if !bytes.Equal(got, blob) {
			t.Fatalf("received %d bytes, want %d bytes, and they differ", len(got), len(blob))
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for receiver to complete")
	}
}

func TestSendChunkedChecksumMismatchFails(t *testing.T) {
	blob := []byte("the quick brown fox jumps over the lazy dog, sent as a single update_f_r chunk\n")

	clientConn, serverConn := net.Pipe()
	tasks := NewRegistry()
	handlers := ChunkHandlers(tasks)
	var task *ReceiverTask
	handlers["xfer"] = func(_ *Session, _ uint32, basename []byte) (string, []byte, error) {
		dest := NewBufferDestination(string(basename))
		task = NewReceiverTask(dest, 5*time.Second, func(Destination, Digest128, int64) error { return nil })
		id := tasks.SetWorker("xfer", task, string(basename))
		return CmdOK, []byte(id), nil
	}
	server := NewSession(serverConn, nil, handlers)
	client := NewSession(clientConn, nil, nil)
	go server.Serve()
	go client.Serve()
	defer client.Close(nil)
	defer server.Close(nil)

	// Corrupt the stream by feeding a mismatched declared checksum directly
	// through end_f_r after a normal open+update, bypassing SendChunked's
	// own (correct) digest computation.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, idPayload, err := client.Execute(ctx, "xfer", []byte("corrupt"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	taskID := string(idPayload)

	if replyCmd, _, err := client.Execute(ctx, CmdNewFileRx, []byte(taskID)); err != nil || replyCmd != CmdAck {
		t.Fatalf("new_f_r: replyCmd=%q err=%v", replyCmd, err)
	}
	payload := append([]byte(taskID+" "), blob...)
	if replyCmd, _, err := client.Execute(ctx, CmdUpdateFile, payload); err != nil || replyCmd != CmdAck {
		t.Fatalf("update_f_r: replyCmd=%q err=%v", replyCmd, err)
	}

	var badDigest Digest128
	badDigest[0] = 0xFF
	endPayload := append([]byte(taskID+" "), badDigest[:]...)
	replyCmd, _, err := client.Execute(ctx, CmdEndFile, endPayload)
	if err != nil {
		t.Fatalf("end_f_r: %v", err)
	}
	if replyCmd != CmdErr {
		t.Fatalf("end_f_r with a bad checksum should fail, got replyCmd=%q", replyCmd)
	}
}

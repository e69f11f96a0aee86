// Package transport implements the framed, multiplexed, optionally
// encrypted wire protocol that every worker↔master session runs over.
package transport

import (
	"encoding/binary"

	"github.com/clusterd/clusterd/cmn"
)

const (
	// CmdLen is the fixed, space-padded width of the command field.
	CmdLen = 12
	// HeaderLen is sizeof(counter) + sizeof(payload_len) + CmdLen.
	HeaderLen = 4 + 4 + CmdLen
	// MaxPayload is the hard per-frame payload ceiling.
	MaxPayload = 1_000_000
)

// Known command verbs.
const (
	CmdHello      = "hello"
	CmdEcho       = "echo"
	CmdDapi       = "dapi"
	CmdDapiFwd    = "dapi_forward"
	CmdDapiRes    = "dapi_res"
	CmdGetNodes   = "get_nodes"
	CmdGetHealth  = "get_health"
	CmdReady      = "ready"
	CmdOK         = "ok"
	CmdAck        = "ack"
	CmdErr        = "err"
	CmdJSON       = "json"
	CmdNewFileRx  = "new_f_r"
	CmdUpdateFile = "update_f_r"
	CmdEndFile    = "end_f_r"

	CmdSyncIntegrityWtoM      = "sync_i_w_m"
	CmdSyncIntegrityWtoMPerm  = "sync_i_w_m_p"
	CmdSyncIntegrityWtoMEnd   = "sync_i_w_m_e"
	CmdSyncAgentInfoWtoM      = "sync_a_w_m"
	CmdSyncAgentInfoWtoMPerm  = "sync_a_w_m_p"
	CmdSyncExtraValidWtoM     = "sync_e_w_m"
	CmdSyncExtraValidWtoMPerm = "sync_e_w_m_p"
	CmdSyncMasterToWorker     = "sync_m_c"
	CmdSyncMasterToWorkerOK   = "sync_m_c_ok"
)

// Cipher authenticated-encrypts/decrypts a payload in place of the
// plaintext; the header is always sent in the clear.
type Cipher interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// Encode serializes (counter, command, payload) as header‖maybe-encrypted-payload.
// command is padded with spaces to CmdLen; it must not exceed CmdLen bytes.
func Encode(counter uint32, command string, payload []byte, cipher Cipher) ([]byte, error) {
	if len(command) > CmdLen {
		return nil, cmn.NewError(cmn.TransportOversize, "command %q exceeds %d bytes", command, CmdLen)
	}
	if len(payload) > MaxPayload {
		return nil, cmn.NewError(cmn.TransportOversize, "payload %d exceeds max %d", len(payload), MaxPayload)
	}

	body := payload
	if cipher != nil {
		sealed, err := cipher.Seal(payload)
		if err != nil {
			return nil, cmn.WrapError(cmn.TransportBadAuth, err, "seal failed")
		}
		body = sealed
	}
	if len(body) > MaxPayload {
		return nil, cmn.NewError(cmn.TransportOversize, "encrypted payload %d exceeds max %d", len(body), MaxPayload)
	}

	out := make([]byte, HeaderLen+len(body))
	binary.BigEndian.PutUint32(out[0:4], counter)
	binary.BigEndian.PutUint32(out[4:8], uint32(len(body)))
	copy(out[8:8+CmdLen], padCommand(command))
	copy(out[HeaderLen:], body)
	return out, nil
}

func padCommand(command string) []byte {
	buf := make([]byte, CmdLen)
	for i := range buf {
		buf[i] = ' '
	}
	copy(buf, command)
	return buf
}

// trimCommand returns the first whitespace-delimited token of the
// space-padded 12-byte command field.
func trimCommand(raw []byte) string {
	for i, b := range raw {
		if b == ' ' {
			return string(raw[:i])
		}
	}
	return string(raw)
}

// ParseHeader reads the fixed HeaderLen-byte header: counter, command, and
// the declared payload length. It does not look at or require the payload
// bytes to be present.
func ParseHeader(header []byte) (counter uint32, command string, payloadLen uint32, err error) {
	if len(header) < HeaderLen {
		return 0, "", 0, cmn.NewError(cmn.TransportOversize, "short header: %d bytes", len(header))
	}
	counter = binary.BigEndian.Uint32(header[0:4])
	payloadLen = binary.BigEndian.Uint32(header[4:8])
	command = trimCommand(header[8 : 8+CmdLen])
	if payloadLen > MaxPayload {
		return counter, command, payloadLen, cmn.NewError(cmn.TransportOversize,
			"payload_len %d exceeds max %d", payloadLen, MaxPayload)
	}
	return counter, command, payloadLen, nil
}

// Decode is a pure function over buf: it never mutates buf. It returns
// (consumed, counter, command, payload, err, ok); err is set for an
// oversize header or a failed decrypt. ok is false when buf does not
// yet hold a complete frame (short read) — the caller should wait for more
// bytes and retry, not treat this as an error.
func Decode(buf []byte, cipher Cipher) (consumed int, counter uint32, command string, payload []byte, err error, ok bool) {
	if len(buf) < HeaderLen {
		return 0, 0, "", nil, nil, false
	}
	counter, command, payloadLen, herr := ParseHeader(buf[:HeaderLen])
	if herr != nil {
		return 0, counter, command, nil, herr, true
	}
	if uint32(len(buf)-HeaderLen) < payloadLen {
		return 0, 0, "", nil, nil, false
	}

	body := buf[HeaderLen : HeaderLen+int(payloadLen)]
	consumed = HeaderLen + int(payloadLen)

	if cipher == nil {
		// payload must be copied out: buf is caller-owned and may be reused
		payload = append([]byte(nil), body...)
		return consumed, counter, command, payload, nil, true
	}
	plain, derr := cipher.Open(body)
	if derr != nil {
		return consumed, counter, command, nil, cmn.WrapError(cmn.TransportBadAuth, derr, "decrypt failed"), true
	}
	return consumed, counter, command, plain, nil, true
}

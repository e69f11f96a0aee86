package transport

import (
	"bytes"

	"github.com/tinylib/msgp/msgp"

	"github.com/clusterd/clusterd/cmn"
)

// HelloAck is the small fixed-shape acknowledgement the master sends a
// worker once a hello handshake has been validated. It is
// encoded with msgp's raw Writer/Reader rather than JSON: unlike the
// variable-shape dapi/get_nodes bodies, its three fields never change
// shape, so a hand-rolled msgp encoding avoids a JSON parse on the
// session's hottest control-plane round trip.
type HelloAck struct {
	ClusterName string
	Version     string
	Accepted    bool
}

func EncodeHelloAck(ack HelloAck) ([]byte, error) {
	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)
	if err := w.WriteMapHeader(3); err != nil {
		return nil, cmn.WrapError(cmn.ProtocolUnknownCommand, err, "failed to encode hello ack")
	}
	if err := w.WriteString("cluster_name"); err != nil {
		return nil, err
	}
	if err := w.WriteString(ack.ClusterName); err != nil {
		return nil, err
	}
	if err := w.WriteString("version"); err != nil {
		return nil, err
	}
	if err := w.WriteString(ack.Version); err != nil {
		return nil, err
	}
	if err := w.WriteString("accepted"); err != nil {
		return nil, err
	}
	if err := w.WriteBool(ack.Accepted); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, cmn.WrapError(cmn.ProtocolUnknownCommand, err, "failed to flush hello ack")
	}
	return buf.Bytes(), nil
}

func DecodeHelloAck(b []byte) (HelloAck, error) {
	var ack HelloAck
	r := msgp.NewReader(bytes.NewReader(b))
	n, err := r.ReadMapHeader()
	if err != nil {
		return ack, cmn.WrapError(cmn.ProtocolUnknownCommand, err, "failed to decode hello ack")
	}
	for i := uint32(0); i < n; i++ {
		key, err := r.ReadString()
		if err != nil {
			return ack, err
		}
		switch key {
		case "cluster_name":
			if ack.ClusterName, err = r.ReadString(); err != nil {
				return ack, err
			}
		case "version":
			if ack.Version, err = r.ReadString(); err != nil {
				return ack, err
			}
		case "accepted":
			if ack.Accepted, err = r.ReadBool(); err != nil {
				return ack, err
			}
		default:
			if err := r.Skip(); err != nil {
				return ack, err
			}
		}
	}
	return ack, nil
}

package cluster

import (
	"strings"

	"github.com/clusterd/clusterd/cmn"
)

// ParseHello decodes the "hello" payload: "<name> <cluster> worker <semver>".
func ParseHello(payload []byte) (name, clusterName, nodeType, version string, err error) {
	fields := strings.Fields(string(payload))
	if len(fields) != 4 {
		return "", "", "", "", cmn.NewError(cmn.ProtocolUnknownCommand, "malformed hello payload %q", payload)
	}
	return fields[0], fields[1], fields[2], fields[3], nil
}

// EncodeHello is the worker-side counterpart used when dialing the master.
func EncodeHello(name, clusterName string, version string) []byte {
	return []byte(name + " " + clusterName + " " + string(cmn.Worker) + " " + version)
}

// Validate implements the handshake checks: major+minor of
// version must match the master's, name must differ from the master's,
// name must not already be connected, and cluster must equal the master's.
func (r *Registry) Validate(masterName, masterCluster, masterVersion string, name, clusterName, nodeType, version string) error {
	if nodeType != string(cmn.Worker) {
		return cmn.NewError(cmn.ProtocolUnknownCommand, "unexpected node_type %q in hello", nodeType)
	}
	if clusterName != masterCluster {
		return cmn.NewError(cmn.ProtocolUnknownCommand, "cluster mismatch: %q != %q", clusterName, masterCluster)
	}
	if name == masterName {
		return cmn.NewError(cmn.ProtocolUnknownCommand, "worker name %q collides with master", name)
	}
	mine, err := cmn.ParseSemVer(version)
	if err != nil {
		return err
	}
	master, err := cmn.ParseSemVer(masterVersion)
	if err != nil {
		return err
	}
	if !mine.CompatibleMajorMinor(master) {
		return cmn.NewError(cmn.ProtocolUnknownCommand,
			"version mismatch: worker %s vs master %s", version, masterVersion)
	}
	if _, ok := r.Get(name); ok {
		return cmn.NewError(cmn.ProtocolUnknownCommand, "worker %q already connected", name)
	}
	return nil
}

package clustersync

import (
	"testing"

	"github.com/clusterd/clusterd/transport"
)

// TestMasterSideHandlersGateAllThreeCategories locks in that each of the
// three sync categories has a *_p permission handler registered, not just
// integrity: all three share the same at-most-one-in-flight gate.
func TestMasterSideHandlersGateAllThreeCategories(t *testing.T) {
	m := &MasterSide{Worker: "worker1", Gate: NewGate()}
	m.Gate.Register("worker1", Integrity)
	m.Gate.Register("worker1", AgentInfo)
	m.Gate.Register("worker1", ExtraValid)

	handlers := m.Handlers()
	for _, cmd := range []string{
		transport.CmdSyncIntegrityWtoMPerm,
		transport.CmdSyncAgentInfoWtoMPerm,
		transport.CmdSyncExtraValidWtoMPerm,
	} {
		if _, ok := handlers[cmd]; !ok {
			t.Fatalf("expected a permission handler registered for %q", cmd)
		}
	}

	// Each permission handler must consume its own category's gate flag,
	// independent of the other two.
	replyCmd, _, err := handlers[transport.CmdSyncExtraValidWtoMPerm](nil, 0, nil)
	if err != nil {
		t.Fatalf("extra_valid perm handler: %v", err)
	}
	if replyCmd != transport.CmdOK {
		t.Fatalf("expected first extra_valid permission request to succeed, got %q", replyCmd)
	}
	if m.Gate.Acquire("worker1", Integrity) != true {
		t.Fatal("expected integrity gate to be untouched by the extra_valid grant")
	}
	replyCmd, _, err = handlers[transport.CmdSyncExtraValidWtoMPerm](nil, 0, nil)
	if err != nil {
		t.Fatalf("extra_valid perm handler: %v", err)
	}
	if replyCmd != transport.CmdErr {
		t.Fatalf("expected overlapping extra_valid permission request to be denied, got %q", replyCmd)
	}
}

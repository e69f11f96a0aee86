package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/clusterd/clusterd/cmn"
)

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	body := `{
		"items": {
			"etc/shared": {"recursive": true, "files": ["all"], "source": "master", "write_mode": "atomic"},
			"queue/agent-info": {"recursive": false, "files": ["client.keys"], "source": "worker", "write_mode": "inline"}
		},
		"excluded_files": ["ar.conf", ".gitkeep"]
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(m.Items))
	}
	if !m.Items["etc/shared"].AllFiles() {
		t.Fatal("expected etc/shared to be an all-files entry")
	}
	if m.Items["queue/agent-info"].AllFiles() {
		t.Fatal("expected queue/agent-info to not be an all-files entry")
	}
}

func TestEntryAppliesTo(t *testing.T) {
	e := Entry{Source: SourceMaster}
	if !e.AppliesTo(cmn.Master) {
		t.Fatal("expected master entry to apply to master")
	}
	if e.AppliesTo(cmn.Worker) {
		t.Fatal("expected master entry to not apply to worker")
	}

	all := Entry{Source: SourceAll}
	if !all.AppliesTo(cmn.Master) || !all.AppliesTo(cmn.Worker) {
		t.Fatal("expected SourceAll entry to apply to both node types")
	}
}

func TestEntryUmaskValue(t *testing.T) {
	e := Entry{Umask: "0640"}
	mode, err := e.UmaskValue()
	if err != nil {
		t.Fatalf("UmaskValue: %v", err)
	}
	if mode != 0o640 {
		t.Fatalf("unexpected mode: %o", mode)
	}

	def := Entry{}
	mode, err = def.UmaskValue()
	if err != nil || mode != 0o644 {
		t.Fatalf("unexpected default mode: %o %v", mode, err)
	}

	bad := Entry{Umask: "notoctal"}
	if _, err := bad.UmaskValue(); err == nil {
		t.Fatal("expected invalid umask to fail")
	}
}

func TestManifestExcluded(t *testing.T) {
	m := &Manifest{ExcludedFiles: []string{"ar.conf"}}
	if !m.Excluded("ar.conf") {
		t.Fatal("expected ar.conf to be excluded by name")
	}
	if !m.Excluded("backup~") {
		t.Fatal("expected trailing-tilde file to be excluded")
	}
	if m.Excluded("ossec.conf") {
		t.Fatal("expected unrelated file to not be excluded")
	}
}

func TestManifestOwner(t *testing.T) {
	m := &Manifest{Items: map[string]Entry{
		"queue/agent-info": {Source: SourceWorker},
	}}
	if m.Owner("queue/agent-info") != SourceWorker {
		t.Fatalf("expected SourceWorker, got %v", m.Owner("queue/agent-info"))
	}
	if m.Owner("unknown/key") != SourceMaster {
		t.Fatalf("expected unknown key to default to SourceMaster, got %v", m.Owner("unknown/key"))
	}
}

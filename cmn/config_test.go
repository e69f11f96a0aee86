package cmn

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"name":"prod","node_name":"master1","node_type":"master","port":5000}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.NodeName != "master1" || cfg.NodeType != Master || cfg.Port != 5000 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Interval.SyncIntegrity.Duration() == 0 {
		t.Fatal("expected default sync_integrity interval to survive overlay")
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"name":"prod","node_name":"","node_type":"master","port":5000}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected missing node_name to fail validation")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.NodeName = "n1"
	cfg.NodeType = Worker
	cfg.Port = 5000
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cfg.Key = "short"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected short key to fail validation")
	}
	cfg.Key = ""
	cfg.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected invalid port to fail validation")
	}
}

func TestNewDefaultConfigMatchesLoadConfigDefaults(t *testing.T) {
	def := NewDefaultConfig()
	if def.MaxTimeReceivingFile.Duration() == 0 {
		t.Fatal("expected NewDefaultConfig to carry non-zero defaults")
	}
}

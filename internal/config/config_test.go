package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oliver.yaml")
	data := []byte(`
server:
  addr: ":9000"
deliberation:
  max_rounds: 5
  stagnation_delta: 0.1
capabilities:
  call_timeout: 10s
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("addr = %q, want :9000", cfg.Server.Addr)
	}
	if cfg.Deliberation.MaxRounds != 5 {
		t.Errorf("max_rounds = %d, want 5", cfg.Deliberation.MaxRounds)
	}
	if cfg.Capabilities.CallTimeout != 10*time.Second {
		t.Errorf("call_timeout = %v, want 10s", cfg.Capabilities.CallTimeout)
	}
	// Untouched fields keep defaults
	if cfg.Deliberation.RetrievalK != Default().Deliberation.RetrievalK {
		t.Errorf("retrieval_k = %d, want default", cfg.Deliberation.RetrievalK)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/oliver.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OLIVER_ADDR", ":7777")
	t.Setenv("OLIVER_MAX_ROUNDS", "4")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7777" {
		t.Errorf("addr = %q, want :7777", cfg.Server.Addr)
	}
	if cfg.Deliberation.MaxRounds != 4 {
		t.Errorf("max_rounds = %d, want 4", cfg.Deliberation.MaxRounds)
	}
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	cfg := Default()
	cfg.Deliberation.AcceptThreshold = 0.2
	cfg.Deliberation.RejectThreshold = 0.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected threshold ordering error")
	}

	cfg = Default()
	cfg.Deliberation.MaxRounds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected max_rounds error")
	}
}

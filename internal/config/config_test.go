package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agenda.Strategy = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown agenda strategy")
	}
}

func TestValidateRejectsInvertedSalienceRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agenda.SalienceMin = 100
	cfg.Agenda.SalienceMax = -100
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for inverted salience range")
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rulecore.yaml")
	yaml := "agenda:\n  strategy: breadth\n  default_salience: 5\ncore_limits:\n  max_facts: 42\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agenda.Strategy != "breadth" {
		t.Fatalf("expected strategy breadth, got %q", cfg.Agenda.Strategy)
	}
	if cfg.Agenda.DefaultSalience != 5 {
		t.Fatalf("expected default_salience 5, got %d", cfg.Agenda.DefaultSalience)
	}
	if cfg.CoreLimits.MaxFacts != 42 {
		t.Fatalf("expected max_facts 42, got %d", cfg.CoreLimits.MaxFacts)
	}
	// fields not present in the YAML should keep their defaults
	if cfg.AtomTable.SymbolBuckets != 65521 {
		t.Fatalf("expected default symbol_buckets to survive merge, got %d", cfg.AtomTable.SymbolBuckets)
	}
}

func TestLoadRejectsInvalidMerge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("agenda:\n  strategy: nonsense\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject an invalid merged config")
	}
}

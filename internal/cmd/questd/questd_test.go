package questd

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("questd", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.Addr != "" {
		t.Fatalf("expected empty addr, got %q", cfg.Addr)
	}
	if cfg.DBPath != "questd.db" {
		t.Fatalf("expected default db path, got %q", cfg.DBPath)
	}
	if cfg.CatalogPath != "catalog.lua" {
		t.Fatalf("expected default catalog path, got %q", cfg.CatalogPath)
	}
	if cfg.ReadyTimeout != 5*time.Second {
		t.Fatalf("expected default ready timeout 5s, got %v", cfg.ReadyTimeout)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	fs := flag.NewFlagSet("questd", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{
		"-port", "9001",
		"-addr", "127.0.0.1:9999",
		"-db", "/tmp/quests.db",
		"-catalog", "/tmp/quests.lua",
		"-ready-timeout", "250ms",
	})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", cfg.Port)
	}
	if cfg.Addr != "127.0.0.1:9999" {
		t.Fatalf("expected addr override, got %q", cfg.Addr)
	}
	if cfg.DBPath != "/tmp/quests.db" {
		t.Fatalf("expected db override, got %q", cfg.DBPath)
	}
	if cfg.CatalogPath != "/tmp/quests.lua" {
		t.Fatalf("expected catalog override, got %q", cfg.CatalogPath)
	}
	if cfg.ReadyTimeout != 250*time.Millisecond {
		t.Fatalf("expected ready timeout 250ms, got %v", cfg.ReadyTimeout)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.TableName != "workitems" || cfg.QueueName != "workitems" {
		t.Fatalf("store names: %+v", cfg)
	}
	if cfg.Pipeline.TickInterval != time.Minute {
		t.Fatalf("tick interval: %v", cfg.Pipeline.TickInterval)
	}
	if cfg.Pipeline.ItemsPerTick != 5 {
		t.Fatalf("items per tick: %d", cfg.Pipeline.ItemsPerTick)
	}
	if cfg.Orchestration.ActivityWorkers <= 0 {
		t.Fatalf("activity workers: %d", cfg.Orchestration.ActivityWorkers)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orbiter.json")
	body := `{"tableName":"items","pipeline":{"itemsPerTick":9}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TableName != "items" {
		t.Fatalf("tableName not overridden: %q", cfg.TableName)
	}
	if cfg.Pipeline.ItemsPerTick != 9 {
		t.Fatalf("itemsPerTick not overridden: %d", cfg.Pipeline.ItemsPerTick)
	}
	// untouched fields keep defaults
	if cfg.QueueName != "workitems" {
		t.Fatalf("queueName default lost: %q", cfg.QueueName)
	}
}

func TestFromEnvOverlay(t *testing.T) {
	t.Setenv("ORBITER_ITEMS_PER_TICK", "12")
	t.Setenv("ORBITER_TICK_INTERVAL", "30s")
	t.Setenv("ORBITER_GENAI_ENDPOINT", "https://example.invalid")
	t.Setenv("ORBITER_ENRICH", "false")

	cfg := Default()
	FromEnv(&cfg)
	if cfg.Pipeline.ItemsPerTick != 12 {
		t.Fatalf("env int overlay: %d", cfg.Pipeline.ItemsPerTick)
	}
	if cfg.Pipeline.TickInterval != 30*time.Second {
		t.Fatalf("env duration overlay: %v", cfg.Pipeline.TickInterval)
	}
	if cfg.GenAI.Endpoint != "https://example.invalid" {
		t.Fatalf("env string overlay: %q", cfg.GenAI.Endpoint)
	}
	if cfg.Pipeline.Enrich {
		t.Fatalf("env bool overlay failed")
	}
}

func TestFromEnvIgnoresMalformed(t *testing.T) {
	t.Setenv("ORBITER_ITEMS_PER_TICK", "not-a-number")
	cfg := Default()
	FromEnv(&cfg)
	if cfg.Pipeline.ItemsPerTick != 5 {
		t.Fatalf("malformed env should keep default: %d", cfg.Pipeline.ItemsPerTick)
	}
}

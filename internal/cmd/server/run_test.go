package serverrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/orbiter/internal/config"
	pebblestore "github.com/rzbill/orbiter/internal/storage/pebble"
)

func TestGetenvDefault(t *testing.T) {
	_ = os.Setenv("ORBITER_TEST_VAR", "env_value")
	t.Cleanup(func() { _ = os.Unsetenv("ORBITER_TEST_VAR") })
	if got := getenvDefault("ORBITER_TEST_VAR", "default"); got != "env_value" {
		t.Fatalf("set var: %q", got)
	}
	if got := getenvDefault("ORBITER_TEST_VAR_MISSING", "default"); got != "default" {
		t.Fatalf("unset var: %q", got)
	}
}

func TestDataDirFallback(t *testing.T) {
	opts := Options{}
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.DataDir == "" {
		t.Fatal("DataDir empty after fallback")
	}
	storeDir := filepath.Join(opts.DataDir, "store")
	if filepath.Dir(storeDir) != filepath.Clean(opts.DataDir) {
		t.Fatalf("store dir %q not under data dir %q", storeDir, opts.DataDir)
	}
}

// TestRunIntegration verifies Run starts and shuts down cleanly. It is a
// minimal test since Run starts a real HTTP listener.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	opts := Options{
		DataDir:  t.TempDir(),
		HTTPAddr: "127.0.0.1:0",
		Fsync:    pebblestore.FsyncModeNever,
		Config:   cfgpkg.Default(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := Run(ctx, opts); err != nil && err != context.DeadlineExceeded && err != context.Canceled {
		t.Errorf("expected clean shutdown, got %v", err)
	}
}

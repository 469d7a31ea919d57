package runtime

import (
	"context"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/orbiter/internal/config"
	pebblestore "github.com/rzbill/orbiter/internal/storage/pebble"
)

func openRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := Open(Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestOpenCloseHealth(t *testing.T) {
	rt := openRuntime(t)
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if rt.Store() == nil || rt.Queue() == nil || rt.History() == nil || rt.Engine() == nil {
		t.Fatal("facade not wired")
	}
	if rt.Gen() != nil {
		t.Fatal("genai client built without an api key")
	}
}

func TestBuiltinWorkflowsRegistered(t *testing.T) {
	rt := openRuntime(t)
	for _, name := range []string{WorkflowFanOutFanIn, WorkflowHelloCities} {
		if !rt.Engine().HasWorkflow(name) {
			t.Fatalf("workflow %q not registered", name)
		}
	}
	id, err := rt.Engine().Start(context.Background(), WorkflowHelloCities, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rt.Engine().Wait(ctx, id); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestResumeOnFreshStoreIsZero(t *testing.T) {
	rt := openRuntime(t)
	n, err := rt.Resume(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("resume: n=%d err=%v", n, err)
	}
}

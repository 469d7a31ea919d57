package workload

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/rzbill/orbiter/internal/errdefs"
	"github.com/rzbill/orbiter/internal/genai"
	pebblestore "github.com/rzbill/orbiter/internal/storage/pebble"
	"github.com/rzbill/orbiter/internal/table"
)

func openStore(t *testing.T) *table.Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return table.Open(db, "workitems")
}

func TestRunOnceInsertsFullBatch(t *testing.T) {
	store := openStore(t)
	var calls int
	gen := genai.Func(func(context.Context, string) (string, error) {
		calls++
		return "synthetic payload " + strconv.Itoa(calls), nil
	})
	g := New(store, gen, Options{ItemsPerTick: 4})

	pk, err := g.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	items, err := store.ListPartition(context.Background(), pk)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("want 4 items, got %d", len(items))
	}
	seen := map[string]bool{}
	for _, w := range items {
		if w.Status != table.StatusNew {
			t.Fatalf("item not New: %+v", w)
		}
		if w.Payload == "" || w.BugID == "" {
			t.Fatalf("incomplete item: %+v", w)
		}
		if seen[w.RowKey] {
			t.Fatalf("duplicate row key %q", w.RowKey)
		}
		seen[w.RowKey] = true
	}
	if calls != 4 {
		t.Fatalf("genai calls: %d", calls)
	}
}

func TestRunOnceBatchesAreDisjoint(t *testing.T) {
	store := openStore(t)
	gen := genai.Func(func(context.Context, string) (string, error) {
		return "payload", nil
	})
	g := New(store, gen, Options{ItemsPerTick: 2})

	pk1, err := g.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	pk2, err := g.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if pk1 == pk2 {
		t.Fatalf("ticks share a partition key: %q", pk1)
	}
	all, _ := store.QueryByStatus(context.Background(), table.StatusNew)
	if len(all) != 4 {
		t.Fatalf("want 4 records across two ticks, got %d", len(all))
	}
}

func TestRunOnceFailedPayloadWritesNothing(t *testing.T) {
	store := openStore(t)
	var calls int
	gen := genai.Func(func(context.Context, string) (string, error) {
		calls++
		if calls == 3 {
			return "", errdefs.RemoteDependency("model unavailable", errors.New("503"))
		}
		return "payload", nil
	})
	g := New(store, gen, Options{ItemsPerTick: 5})

	if _, err := g.RunOnce(context.Background()); err == nil {
		t.Fatal("want error from failed payload call")
	}
	all, err := store.QueryByStatus(context.Background(), table.StatusNew)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("partial batch persisted: %d records", len(all))
	}
}

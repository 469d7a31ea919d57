package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rzbill/orbiter/internal/activity"
	"github.com/rzbill/orbiter/internal/history"
	pebblestore "github.com/rzbill/orbiter/internal/storage/pebble"
)

func openTestHistory(t *testing.T) *history.Log {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return history.OpenLog(db)
}

func newTestEngine(t *testing.T, hist *history.Log, reg *activity.Registry) *Engine {
	t.Helper()
	e := NewEngine(hist, reg, Options{ActivityWorkers: 4})
	t.Cleanup(e.Close)
	return e
}

// countingActivity returns the input slot doubled and counts executions.
func countingActivity(calls *atomic.Int64) activity.Func {
	return func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		calls.Add(1)
		var n int
		if err := json.Unmarshal(input, &n); err != nil {
			return nil, err
		}
		return json.Marshal(n * 2)
	}
}

func fanOutWorkflow(activityName string, n int) WorkflowFunc {
	return func(c *Context) error {
		futures := make([]*Future, 0, n)
		for i := 0; i < n; i++ {
			futures = append(futures, c.CallActivity(activityName, i))
		}
		c.AwaitAll(futures...)
		return nil
	}
}

func waitTerminal(t *testing.T, e *Engine, id string) InstanceStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Wait(ctx, id); err != nil {
		t.Fatalf("wait: %v", err)
	}
	st, err := e.Status(ctx, id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	return st
}

func TestFanOutFanInReturnsAllResults(t *testing.T) {
	hist := openTestHistory(t)
	reg := activity.NewRegistry()
	var calls atomic.Int64
	reg.Register("double", countingActivity(&calls))

	e := newTestEngine(t, hist, reg)
	e.RegisterWorkflow("doubler", fanOutWorkflow("double", 20))

	id, err := e.Start(context.Background(), "doubler", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	st := waitTerminal(t, e, id)
	if st.Status != StatusCompleted {
		t.Fatalf("status: %+v", st)
	}
	if len(st.Results) != 20 {
		t.Fatalf("fan-in must return exactly 20 results, got %d", len(st.Results))
	}
	if calls.Load() != 20 {
		t.Fatalf("want 20 executions, got %d", calls.Load())
	}
	for i, res := range st.Results {
		var v int
		_ = json.Unmarshal(res.Value, &v)
		if res.Slot != i || v != i*2 {
			t.Fatalf("result %d: %+v", i, res)
		}
	}
}

func TestFailedTaskAggregatedNotShortCircuited(t *testing.T) {
	hist := openTestHistory(t)
	reg := activity.NewRegistry()
	var calls atomic.Int64
	reg.Register("flaky", func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		calls.Add(1)
		var n int
		_ = json.Unmarshal(input, &n)
		if n == 2 {
			return nil, errors.New("slot 2 boom")
		}
		return json.Marshal(n)
	})

	e := newTestEngine(t, hist, reg)
	e.RegisterWorkflow("flaky", fanOutWorkflow("flaky", 5))

	id, _ := e.Start(context.Background(), "flaky", nil)
	st := waitTerminal(t, e, id)
	if st.Status != StatusFailed {
		t.Fatalf("one failed task must fail the instance: %+v", st)
	}
	if len(st.Results) != 5 {
		t.Fatalf("wait-for-all: want 5 results, got %d", len(st.Results))
	}
	if calls.Load() != 5 {
		t.Fatalf("all 5 tasks must execute, got %d", calls.Load())
	}
	failures := 0
	for _, res := range st.Results {
		if res.Failed() {
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("exactly one failure expected, got %d", failures)
	}
}

func TestPanickingActivityBecomesTaskFailure(t *testing.T) {
	hist := openTestHistory(t)
	reg := activity.NewRegistry()
	reg.Register("boom", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		panic("kaboom")
	})

	e := newTestEngine(t, hist, reg)
	e.RegisterWorkflow("boom", fanOutWorkflow("boom", 1))
	id, _ := e.Start(context.Background(), "boom", nil)
	st := waitTerminal(t, e, id)
	if st.Status != StatusFailed || len(st.Results) != 1 || !st.Results[0].Failed() {
		t.Fatalf("panic not converted to task failure: %+v", st)
	}
}

func TestResumeReplaysWithoutRedispatchingCompleted(t *testing.T) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	hist := history.OpenLog(db)
	ctx := context.Background()

	// Simulate a crash mid-instance: 3 slots scheduled, slot 0 completed,
	// slots 1 and 2 in flight when the process died.
	const id = "inst-crash"
	nowMs := time.Now().UnixMilli()
	events := []history.Event{
		{Type: history.EventInstanceStarted, Workflow: "doubler", TimeMs: nowMs},
		{Type: history.EventTaskScheduled, Slot: 0, Activity: "double", Input: json.RawMessage(`0`)},
		{Type: history.EventTaskScheduled, Slot: 1, Activity: "double", Input: json.RawMessage(`1`)},
		{Type: history.EventTaskScheduled, Slot: 2, Activity: "double", Input: json.RawMessage(`2`)},
		{Type: history.EventTaskCompleted, Slot: 0, Result: json.RawMessage(`0`)},
	}
	if err := hist.Append(ctx, id, events...); err != nil {
		t.Fatalf("seed history: %v", err)
	}
	if err := hist.PutInstance(ctx, history.InstanceMeta{ID: id, Workflow: "doubler", Status: StatusRunning, StartedAtMs: nowMs}); err != nil {
		t.Fatalf("seed registry: %v", err)
	}

	reg := activity.NewRegistry()
	var calls atomic.Int64
	reg.Register("double", countingActivity(&calls))
	e := newTestEngine(t, hist, reg)
	e.RegisterWorkflow("doubler", fanOutWorkflow("double", 3))

	n, err := e.Resume(ctx)
	if err != nil || n != 1 {
		t.Fatalf("resume: n=%d err=%v", n, err)
	}
	st := waitTerminal(t, e, id)
	if st.Status != StatusCompleted || len(st.Results) != 3 {
		t.Fatalf("resumed instance: %+v", st)
	}
	// only the two unfinished slots re-execute
	if calls.Load() != 2 {
		t.Fatalf("want 2 re-executions, got %d", calls.Load())
	}
	// no duplicate dispatch decisions were logged
	got, _ := hist.Read(ctx, id)
	scheduled := 0
	for _, ev := range got {
		if ev.Type == history.EventTaskScheduled {
			scheduled++
		}
	}
	if scheduled != 3 {
		t.Fatalf("replay must not re-log dispatches: %d scheduled events", scheduled)
	}
}

func TestResumeWithCompleteHistoryDispatchesNothing(t *testing.T) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	hist := history.OpenLog(db)
	ctx := context.Background()

	const id = "inst-full"
	nowMs := time.Now().UnixMilli()
	events := []history.Event{
		{Type: history.EventInstanceStarted, Workflow: "doubler", TimeMs: nowMs},
	}
	for i := 0; i < 3; i++ {
		in, _ := json.Marshal(i)
		out, _ := json.Marshal(i * 2)
		events = append(events,
			history.Event{Type: history.EventTaskScheduled, Slot: i, Activity: "double", Input: in},
			history.Event{Type: history.EventTaskCompleted, Slot: i, Result: out},
		)
	}
	if err := hist.Append(ctx, id, events...); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_ = hist.PutInstance(ctx, history.InstanceMeta{ID: id, Workflow: "doubler", Status: StatusRunning, StartedAtMs: nowMs})

	reg := activity.NewRegistry()
	var calls atomic.Int64
	reg.Register("double", countingActivity(&calls))
	e := newTestEngine(t, hist, reg)
	e.RegisterWorkflow("doubler", fanOutWorkflow("double", 3))

	if _, err := e.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	st := waitTerminal(t, e, id)
	if st.Status != StatusCompleted || len(st.Results) != 3 {
		t.Fatalf("replayed instance: %+v", st)
	}
	if calls.Load() != 0 {
		t.Fatalf("complete history must dispatch nothing, got %d executions", calls.Load())
	}
}

func TestNondeterministicReplayFailsInstance(t *testing.T) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	hist := history.OpenLog(db)
	ctx := context.Background()

	const id = "inst-nondet"
	nowMs := time.Now().UnixMilli()
	_ = hist.Append(ctx, id,
		history.Event{Type: history.EventInstanceStarted, Workflow: "w", TimeMs: nowMs},
		history.Event{Type: history.EventTaskScheduled, Slot: 0, Activity: "original", Input: json.RawMessage(`0`)},
	)
	_ = hist.PutInstance(ctx, history.InstanceMeta{ID: id, Workflow: "w", Status: StatusRunning, StartedAtMs: nowMs})

	reg := activity.NewRegistry()
	reg.Register("different", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`1`), nil
	})
	e := newTestEngine(t, hist, reg)
	// the "same" workflow now calls a different activity: nondeterministic
	e.RegisterWorkflow("w", fanOutWorkflow("different", 1))

	if _, err := e.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	st := waitTerminal(t, e, id)
	if st.Status != StatusFailed {
		t.Fatalf("nondeterministic replay must fail: %+v", st)
	}
}

func TestStartUnknownWorkflow(t *testing.T) {
	hist := openTestHistory(t)
	e := newTestEngine(t, hist, activity.NewRegistry())
	if _, err := e.Start(context.Background(), "missing", nil); err == nil {
		t.Fatalf("want error for unknown workflow")
	}
}

func TestStatusRunningIncludesPartialResults(t *testing.T) {
	hist := openTestHistory(t)
	reg := activity.NewRegistry()
	release := make(chan struct{})
	reg.Register("gated", func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		var n int
		_ = json.Unmarshal(input, &n)
		if n > 0 {
			<-release
		}
		return input, nil
	})

	e := newTestEngine(t, hist, reg)
	e.RegisterWorkflow("gated", fanOutWorkflow("gated", 2))
	id, _ := e.Start(context.Background(), "gated", nil)

	// wait for slot 0 to land, then check status while slot 1 is blocked
	deadline := time.Now().Add(5 * time.Second)
	for {
		st, err := e.Status(context.Background(), id)
		if err == nil && len(st.Results) >= 1 {
			if st.Status != StatusRunning {
				t.Fatalf("instance should still be running: %+v", st)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for partial result")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(release)
	st := waitTerminal(t, e, id)
	if st.Status != StatusCompleted || len(st.Results) != 2 {
		t.Fatalf("final: %+v", st)
	}
}

func TestHelloCitiesWorkflow(t *testing.T) {
	hist := openTestHistory(t)
	reg := activity.NewRegistry()
	activity.RegisterBuiltins(reg)
	e := newTestEngine(t, hist, reg)
	e.RegisterWorkflow("hello_cities", HelloCitiesWorkflow(3))

	id, err := e.Start(context.Background(), "hello_cities", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	st := waitTerminal(t, e, id)
	if st.Status != StatusCompleted || len(st.Results) != 3 {
		t.Fatalf("hello cities: %+v", st)
	}
	var first string
	_ = json.Unmarshal(st.Results[0].Value, &first)
	if first != "Hello City 1" {
		t.Fatalf("greeting: %q", first)
	}
}

func TestComputationWorkflowOverridesFanOut(t *testing.T) {
	hist := openTestHistory(t)
	reg := activity.NewRegistry()
	reg.Register("heavy_computation", func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		return input, nil
	})
	e := newTestEngine(t, hist, reg)
	e.RegisterWorkflow("compute", ComputationWorkflow(50))

	id, _ := e.Start(context.Background(), "compute", json.RawMessage(`4`))
	st := waitTerminal(t, e, id)
	if st.Status != StatusCompleted || len(st.Results) != 4 {
		t.Fatalf("override fan-out: %+v", st)
	}
}

package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rzbill/orbiter/internal/activity"
	"github.com/rzbill/orbiter/internal/history"
	"github.com/rzbill/orbiter/internal/telemetry"
	logpkg "github.com/rzbill/orbiter/pkg/log"
)

// Instance status values.
const (
	StatusRunning   = "Running"
	StatusCompleted = "Completed"
	StatusFailed    = "Failed"
)

// WorkflowFunc is a deterministic orchestration function.
type WorkflowFunc func(c *Context) error

// InstanceStatus is the externally visible state of one instance.
type InstanceStatus struct {
	ID          string       `json:"id"`
	Workflow    string       `json:"workflow"`
	Status      string       `json:"status"`
	StartedAtMs int64        `json:"startedAtMs"`
	Results     []TaskResult `json:"results,omitempty"`
}

// Options configures an Engine.
type Options struct {
	ActivityWorkers int
	Logger          logpkg.Logger
	Tracer          *telemetry.Tracer
}

// Engine runs workflow instances against the history log.
type Engine struct {
	hist       *history.Log
	activities *activity.Registry
	workflows  map[string]WorkflowFunc
	pool       *workerPool
	logger     logpkg.Logger
	tracer     *telemetry.Tracer

	mu      sync.Mutex
	running map[string]*instanceState
}

// NewEngine creates an Engine.
func NewEngine(hist *history.Log, activities *activity.Registry, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Noop()
	}
	return &Engine{
		hist:       hist,
		activities: activities,
		workflows:  make(map[string]WorkflowFunc),
		pool:       newWorkerPool(opts.ActivityWorkers),
		logger:     logger.With(logpkg.Str("component", "orchestration")),
		tracer:     tracer,
		running:    make(map[string]*instanceState),
	}
}

// RegisterWorkflow adds a workflow under name.
func (e *Engine) RegisterWorkflow(name string, fn WorkflowFunc) {
	e.workflows[name] = fn
}

// HasWorkflow reports whether name is registered.
func (e *Engine) HasWorkflow(name string) bool {
	_, ok := e.workflows[name]
	return ok
}

// Close stops the activity worker pool. Running instances are abandoned
// in place; Resume picks them up on the next start.
func (e *Engine) Close() {
	e.pool.close()
}

// Start creates and runs a new workflow instance, returning its id.
func (e *Engine) Start(ctx context.Context, workflow string, input json.RawMessage) (string, error) {
	fn, ok := e.workflows[workflow]
	if !ok {
		return "", fmt.Errorf("workflow %q not registered", workflow)
	}
	id := uuid.NewString()
	nowMs := time.Now().UnixMilli()
	if err := e.hist.Append(ctx, id, history.Event{
		Type:     history.EventInstanceStarted,
		Workflow: workflow,
		Input:    input,
		TimeMs:   nowMs,
	}); err != nil {
		return "", fmt.Errorf("open instance log: %w", err)
	}
	if err := e.hist.PutInstance(ctx, history.InstanceMeta{
		ID: id, Workflow: workflow, Status: StatusRunning, StartedAtMs: nowMs,
	}); err != nil {
		return "", fmt.Errorf("register instance: %w", err)
	}

	st := e.track(id)
	go e.runInstance(st, id, workflow, fn, input, nil)
	e.logger.Info("instance started",
		logpkg.Str("instance", id), logpkg.Str("workflow", workflow))
	return id, nil
}

// Resume re-runs every non-terminal instance found in the registry,
// re-deriving dispatch decisions from each instance's history. Terminal
// instances are untouched.
func (e *Engine) Resume(ctx context.Context) (int, error) {
	metas, err := e.hist.ListInstances(ctx)
	if err != nil {
		return 0, err
	}
	resumed := 0
	for _, meta := range metas {
		if meta.Status != StatusRunning {
			continue
		}
		fn, ok := e.workflows[meta.Workflow]
		if !ok {
			e.logger.Warn("cannot resume instance: workflow unregistered",
				logpkg.Str("instance", meta.ID), logpkg.Str("workflow", meta.Workflow))
			continue
		}
		events, err := e.hist.Read(ctx, meta.ID)
		if err != nil {
			return resumed, fmt.Errorf("read history for %s: %w", meta.ID, err)
		}
		replay := replayState(events)
		if replay.finished {
			// history already terminal but registry stale; repair it
			_ = e.hist.PutInstance(ctx, history.InstanceMeta{
				ID: meta.ID, Workflow: meta.Workflow, Status: replay.status, StartedAtMs: meta.StartedAtMs,
			})
			continue
		}
		st := e.track(meta.ID)
		for slot, res := range replay.completed {
			st.completed[slot] = res
		}
		go e.runInstance(st, meta.ID, meta.Workflow, fn, replay.input, replay.scheduled)
		resumed++
		e.logger.Info("instance resumed",
			logpkg.Str("instance", meta.ID),
			logpkg.Int("scheduled", len(replay.scheduled)),
			logpkg.Int("completed", len(replay.completed)))
	}
	return resumed, nil
}

// Status reports the instance state, including any results recorded so far.
func (e *Engine) Status(ctx context.Context, id string) (InstanceStatus, error) {
	meta, err := e.hist.GetInstance(ctx, id)
	if err != nil {
		return InstanceStatus{}, err
	}
	events, err := e.hist.Read(ctx, id)
	if err != nil {
		return InstanceStatus{}, err
	}
	replay := replayState(events)
	slots := make([]int, 0, len(replay.completed))
	for slot := range replay.completed {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	results := make([]TaskResult, 0, len(slots))
	for _, slot := range slots {
		results = append(results, replay.completed[slot])
	}
	return InstanceStatus{
		ID:          meta.ID,
		Workflow:    meta.Workflow,
		Status:      meta.Status,
		StartedAtMs: meta.StartedAtMs,
		Results:     results,
	}, nil
}

// Wait blocks until the instance reaches a terminal status or ctx ends.
func (e *Engine) Wait(ctx context.Context, id string) error {
	e.mu.Lock()
	st, live := e.running[id]
	e.mu.Unlock()
	if live {
		select {
		case <-st.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	meta, err := e.hist.GetInstance(ctx, id)
	if err != nil {
		return err
	}
	if meta.Status == StatusRunning {
		return fmt.Errorf("instance %s running but not tracked", id)
	}
	return nil
}

func (e *Engine) track(id string) *instanceState {
	st := newInstanceState()
	e.mu.Lock()
	e.running[id] = st
	e.mu.Unlock()
	return st
}

func (e *Engine) untrack(id string) {
	e.mu.Lock()
	delete(e.running, id)
	e.mu.Unlock()
}

// runInstance executes the orchestration function to completion, then seals
// the instance. scheduled is non-nil when resuming from history.
func (e *Engine) runInstance(st *instanceState, id, workflow string, fn WorkflowFunc, input json.RawMessage, scheduled map[int]scheduledTask) {
	ctx := context.Background()
	sctx, span := e.tracer.Start(ctx, "orchestration.run",
		attribute.String("orchestration.instance_id", id),
		attribute.String("orchestration.workflow", workflow),
	)
	_ = sctx

	if scheduled == nil {
		scheduled = make(map[int]scheduledTask)
	}
	oc := &Context{
		engine:    e,
		state:     st,
		instance:  id,
		input:     input,
		scheduled: scheduled,
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("workflow panic: %v", r)
			}
		}()
		runErr = fn(oc)
	}()

	status := StatusCompleted
	if runErr != nil || oc.faulted || st.anyFailed() {
		status = StatusFailed
	}
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := e.hist.Append(ctx, id, history.Event{
		Type:   history.EventInstanceFinished,
		Status: status,
		Error:  errMsg,
		TimeMs: time.Now().UnixMilli(),
	}); err != nil {
		e.logger.Error("seal instance log", logpkg.Str("instance", id), logpkg.Err(err))
	}
	meta, err := e.hist.GetInstance(ctx, id)
	if err == nil {
		meta.Status = status
		if err := e.hist.PutInstance(ctx, meta); err != nil {
			e.logger.Error("update instance registry", logpkg.Str("instance", id), logpkg.Err(err))
		}
	}

	span.SetAttributes(
		attribute.String("orchestration.status", status),
		attribute.Int("orchestration.tasks", st.count()),
	)
	telemetry.End(span, runErr)

	st.finish()
	e.untrack(id)
	e.logger.Info("instance finished",
		logpkg.Str("instance", id),
		logpkg.Str("status", status),
		logpkg.Int("tasks", st.count()))
}

// logScheduled appends the dispatch decision before any execution happens.
func (e *Engine) logScheduled(instance string, slot int, name string, input json.RawMessage) error {
	return e.hist.Append(context.Background(), instance, history.Event{
		Type:     history.EventTaskScheduled,
		Slot:     slot,
		Activity: name,
		Input:    input,
		TimeMs:   time.Now().UnixMilli(),
	})
}

// dispatch hands one task slot to the worker pool.
func (e *Engine) dispatch(st *instanceState, instance string, slot int, name string, input json.RawMessage) {
	task := func() {
		ctx := context.Background()
		actx, span := e.tracer.Start(ctx, "orchestration.activity",
			attribute.String("orchestration.instance_id", instance),
			attribute.Int("orchestration.slot", slot),
			attribute.String("orchestration.activity", name),
		)

		var value json.RawMessage
		err := guard(func() error {
			fn, lookupErr := e.activities.Lookup(name)
			if lookupErr != nil {
				return lookupErr
			}
			out, execErr := fn(actx, input)
			if execErr != nil {
				return execErr
			}
			value = out
			return nil
		})

		res := TaskResult{Slot: slot, Value: value}
		ev := history.Event{Type: history.EventTaskCompleted, Slot: slot, Result: value, TimeMs: time.Now().UnixMilli()}
		if err != nil {
			res = TaskResult{Slot: slot, Error: err.Error()}
			ev = history.Event{Type: history.EventTaskFailed, Slot: slot, Error: err.Error(), TimeMs: ev.TimeMs}
		}
		// the log write is the commit point; deliver only after it lands
		if appendErr := e.hist.Append(ctx, instance, ev); appendErr != nil {
			res = TaskResult{Slot: slot, Error: fmt.Sprintf("record task outcome: %v", appendErr)}
		}
		telemetry.End(span, err)
		st.deliver(res)
	}
	if err := e.pool.submit(task); err != nil {
		st.deliver(TaskResult{Slot: slot, Error: fmt.Sprintf("dispatch slot %d: %v", slot, err)})
	}
}

// replay is the state reconstructed from one instance's history.
type replay struct {
	input     json.RawMessage
	scheduled map[int]scheduledTask
	completed map[int]TaskResult
	finished  bool
	status    string
}

// replayState folds an event sequence into replay state.
func replayState(events []history.Event) replay {
	r := replay{
		scheduled: make(map[int]scheduledTask),
		completed: make(map[int]TaskResult),
	}
	for _, e := range events {
		switch e.Type {
		case history.EventInstanceStarted:
			r.input = e.Input
		case history.EventTaskScheduled:
			r.scheduled[e.Slot] = scheduledTask{activity: e.Activity, input: e.Input}
		case history.EventTaskCompleted:
			r.completed[e.Slot] = TaskResult{Slot: e.Slot, Value: e.Result}
		case history.EventTaskFailed:
			r.completed[e.Slot] = TaskResult{Slot: e.Slot, Error: e.Error}
		case history.EventInstanceFinished:
			r.finished = true
			r.status = e.Status
		}
	}
	return r
}

// instanceState tracks live completions for one running instance.
type instanceState struct {
	mu        sync.Mutex
	cond      *sync.Cond
	completed map[int]TaskResult
	done      chan struct{}
}

func newInstanceState() *instanceState {
	st := &instanceState{
		completed: make(map[int]TaskResult),
		done:      make(chan struct{}),
	}
	st.cond = sync.NewCond(&st.mu)
	return st
}

func (st *instanceState) deliver(res TaskResult) {
	st.mu.Lock()
	// first write wins: a replayed result never clobbers a live one
	if _, ok := st.completed[res.Slot]; !ok {
		st.completed[res.Slot] = res
	}
	st.mu.Unlock()
	st.cond.Broadcast()
}

func (st *instanceState) has(slot int) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.completed[slot]
	return ok
}

func (st *instanceState) get(slot int) TaskResult {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.completed[slot]
}

func (st *instanceState) count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.completed)
}

func (st *instanceState) anyFailed() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, res := range st.completed {
		if res.Failed() {
			return true
		}
	}
	return false
}

// waitFor blocks until every listed slot has a result.
func (st *instanceState) waitFor(slots []int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for {
		missing := false
		for _, slot := range slots {
			if _, ok := st.completed[slot]; !ok {
				missing = true
				break
			}
		}
		if !missing {
			return
		}
		st.cond.Wait()
	}
}

func (st *instanceState) finish() {
	close(st.done)
}

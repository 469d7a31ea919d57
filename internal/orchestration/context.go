package orchestration

import (
	"encoding/json"
	"fmt"
)

// TaskResult is the immutable outcome of one dispatched task slot.
type TaskResult struct {
	Slot  int             `json:"slot"`
	Value json.RawMessage `json:"value,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Failed reports whether the task ended in failure.
func (r TaskResult) Failed() bool { return r.Error != "" }

// Future is a handle to one dispatched task slot.
type Future struct {
	slot int
}

// Slot returns the task slot index.
func (f *Future) Slot() int { return f.slot }

// scheduledTask is a dispatch decision replayed from history.
type scheduledTask struct {
	activity string
	input    json.RawMessage
}

// Context is the deterministic execution surface handed to an orchestration
// function. All task dispatch and synchronization goes through it; the
// function itself must not reach for I/O, clocks, or randomness.
type Context struct {
	engine   *Engine
	state    *instanceState
	instance string
	input    json.RawMessage

	nextSlot  int
	scheduled map[int]scheduledTask // replayed dispatch decisions
	faulted   bool
}

// InstanceID returns the workflow instance id.
func (c *Context) InstanceID() string { return c.instance }

// Input returns the raw start input.
func (c *Context) Input() json.RawMessage { return c.input }

// CallActivity schedules one activity task and returns its Future (fan-out).
// The dispatch decision is logged before the activity executes. On replay,
// a slot already in the log is not re-logged; a slot already completed
// resolves immediately from history.
func (c *Context) CallActivity(name string, input interface{}) *Future {
	slot := c.nextSlot
	c.nextSlot++
	f := &Future{slot: slot}

	raw, err := json.Marshal(input)
	if err != nil {
		c.fault(slot, fmt.Sprintf("marshal input for %q: %v", name, err))
		return f
	}

	if prev, ok := c.scheduled[slot]; ok {
		// replayed decision: verify the function walked the same path
		if prev.activity != name {
			c.fault(slot, fmt.Sprintf(
				"nondeterministic replay: slot %d scheduled %q, replay called %q", slot, prev.activity, name))
			return f
		}
		if c.state.has(slot) {
			return f // already completed, nothing to run
		}
		// scheduled but unfinished: re-execute without re-logging
		c.engine.dispatch(c.state, c.instance, slot, prev.activity, prev.input)
		return f
	}

	if c.faulted {
		// after a fault the schedule is unreliable; park the slot as failed
		c.state.deliver(TaskResult{Slot: slot, Error: "instance faulted before dispatch"})
		return f
	}

	if err := c.engine.logScheduled(c.instance, slot, name, raw); err != nil {
		c.fault(slot, fmt.Sprintf("log dispatch for slot %d: %v", slot, err))
		return f
	}
	c.engine.dispatch(c.state, c.instance, slot, name, raw)
	return f
}

// AwaitAll blocks until every future has a result, success or failure, and
// returns them in argument order (fan-in). It never returns fewer than
// len(futures) results.
func (c *Context) AwaitAll(futures ...*Future) []TaskResult {
	slots := make([]int, len(futures))
	for i, f := range futures {
		slots[i] = f.slot
	}
	c.state.waitFor(slots)

	out := make([]TaskResult, len(futures))
	for i, f := range futures {
		out[i] = c.state.get(f.slot)
	}
	return out
}

// fault records a local decision failure and resolves the slot so AwaitAll
// cannot deadlock on it.
func (c *Context) fault(slot int, msg string) {
	c.faulted = true
	c.state.deliver(TaskResult{Slot: slot, Error: msg})
}

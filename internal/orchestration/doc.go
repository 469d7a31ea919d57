// Package orchestration implements the durable fan-out/fan-in engine.
//
// An orchestration function drives one workflow instance. It dispatches
// activity tasks through its Context (fan-out), then blocks at AwaitAll
// until every task has reported success or failure (fan-in). The barrier
// never short-circuits: a failed task is aggregated, not fatal mid-wait.
//
// # Determinism and replay
//
// Every dispatch decision is appended to the instance's history log before
// the activity runs. Orchestration functions must be deterministic (no I/O,
// no clock reads, no randomness outside activities), so re-running one
// against its log visits the same CallActivity sequence. On resume after a
// restart, a slot already recorded as scheduled is not re-recorded, a slot
// already completed resolves from the log, and only scheduled-but-unfinished
// slots are re-executed. A replayed CallActivity whose activity name or
// order diverges from the log fails the instance as nondeterministic.
package orchestration

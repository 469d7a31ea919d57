// Package history implements the append-only decision log behind the
// orchestration engine.
//
// Every dispatch decision and every task outcome is appended as a typed
// event before it takes effect, so re-running an orchestration function
// against its log reconstructs the exact schedule without re-issuing work.
//
// Keys are lexicographically ordered for range scans:
//   - hist/{instance}/m          (instance log metadata: lastSeq)
//   - hist/{instance}/e/{seq_be8} (events, CRC-framed JSON)
//   - inst/{instance}            (instance registry: workflow, status)
package history

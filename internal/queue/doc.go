// Package queue implements the durable work-item queue with lease-based,
// at-least-once delivery.
//
// Each message is delivered to one consumer in a group at a time, but a
// message can be delivered again: a consumer that crashes before Complete
// loses its lease, and the expiry sweep returns the message to availability.
// Consumers must therefore be idempotent.
//
// # Keyspace
//
// All keys are prefixed with q/{name}/:
//
//	m                          - queue metadata (lastSeq)
//	msg/{seq}                  - message frame
//	avail/{seq}                - availability index (FIFO), value = deliveries
//	delay/{fire_ms}/{seq}      - delayed/retry index, value = deliveries
//	lease/{group}/{seq}        - active lease (expires_ms, deliveries)
//	lidx/{group}/{exp_ms}/{seq}- lease expiry index for the sweep
//	dlq/{group}/{seq}          - dead-letter queue
//
// # Message lifecycle
//
//  1. Enqueue: frame written, indexed under avail (or delay)
//  2. Dequeue: frame leased to a group, deliveries incremented
//  3. Complete: frame and lease deleted
//  4. Fail: rescheduled under delay, or moved to the DLQ with a reason
//  5. Lease expiry: ReclaimExpired returns the message to avail
package queue

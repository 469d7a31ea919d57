package queue

import (
	"context"
	"testing"

	pebblestore "github.com/rzbill/orbiter/internal/storage/pebble"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	q, err := Open(db, "q")
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	return q
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()
	s1, err := q.Enqueue(ctx, nil, []byte("a"), 0, 1000)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	s2, _ := q.Enqueue(ctx, nil, []byte("b"), 0, 1000)

	msgs, err := q.Dequeue(ctx, "g", 2, 1000, 1100)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Seq != s1 || msgs[1].Seq != s2 {
		t.Fatalf("fifo order broken: %+v", msgs)
	}
	if string(msgs[0].Payload) != "a" || string(msgs[1].Payload) != "b" {
		t.Fatalf("payload mismatch: %+v", msgs)
	}
	if msgs[0].Deliveries != 1 {
		t.Fatalf("first delivery should count 1, got %d", msgs[0].Deliveries)
	}
}

func TestDelayedMessageNotVisibleUntilDue(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()
	s, _ := q.Enqueue(ctx, nil, []byte("x"), 500, 1000)

	msgs, _ := q.Dequeue(ctx, "g", 1, 1000, 1200)
	if len(msgs) != 0 {
		t.Fatalf("message visible before due")
	}
	msgs, _ = q.Dequeue(ctx, "g", 1, 1000, 1600)
	if len(msgs) != 1 || msgs[0].Seq != s {
		t.Fatalf("message not promoted after due: %+v", msgs)
	}
}

func TestCompleteRemovesMessage(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()
	s, _ := q.Enqueue(ctx, nil, []byte("x"), 0, 1000)
	msgs, _ := q.Dequeue(ctx, "g", 1, 1000, 1100)
	if len(msgs) != 1 {
		t.Fatalf("dequeue")
	}
	if err := q.Complete(ctx, "g", s); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// not redelivered even after lease would have expired
	if n, _ := q.ReclaimExpired(ctx, "g", 10_000, 0); n != 0 {
		t.Fatalf("completed message reclaimed: %d", n)
	}
	if msgs, _ := q.Dequeue(ctx, "g", 1, 1000, 10_000); len(msgs) != 0 {
		t.Fatalf("completed message redelivered")
	}
}

func TestLeaseExpiryRedelivers(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()
	s, _ := q.Enqueue(ctx, nil, []byte("x"), 0, 1000)
	msgs, _ := q.Dequeue(ctx, "g", 1, 500, 1100)
	if len(msgs) != 1 || msgs[0].Deliveries != 1 {
		t.Fatalf("first delivery: %+v", msgs)
	}
	// lease expires at 1600; sweep at 2000
	n, err := q.ReclaimExpired(ctx, "g", 2000, 0)
	if err != nil || n != 1 {
		t.Fatalf("reclaim: n=%d err=%v", n, err)
	}
	msgs, _ = q.Dequeue(ctx, "g", 1, 500, 2100)
	if len(msgs) != 1 || msgs[0].Seq != s {
		t.Fatalf("redelivery missing: %+v", msgs)
	}
	if msgs[0].Deliveries != 2 {
		t.Fatalf("delivery count should survive reclaim, got %d", msgs[0].Deliveries)
	}
}

func TestFailRetrySchedulesRedelivery(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()
	s, _ := q.Enqueue(ctx, nil, []byte("x"), 0, 1000)
	_, _ = q.Dequeue(ctx, "g", 1, 1000, 1100)

	if err := q.Fail(ctx, "g", s, 300, false, "", 1100); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if msgs, _ := q.Dequeue(ctx, "g", 1, 1000, 1200); len(msgs) != 0 {
		t.Fatalf("retried message visible before backoff")
	}
	msgs, _ := q.Dequeue(ctx, "g", 1, 1000, 1500)
	if len(msgs) != 1 || msgs[0].Seq != s || msgs[0].Deliveries != 2 {
		t.Fatalf("retry redelivery: %+v", msgs)
	}
}

func TestFailToDLQ(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()
	s, _ := q.Enqueue(ctx, nil, []byte("poison"), 0, 1000)
	_, _ = q.Dequeue(ctx, "g", 1, 1000, 1100)

	if err := q.Fail(ctx, "g", s, 0, true, "record not found", 1100); err != nil {
		t.Fatalf("fail: %v", err)
	}
	// gone from the live queue
	if msgs, _ := q.Dequeue(ctx, "g", 1, 1000, 9000); len(msgs) != 0 {
		t.Fatalf("dead-lettered message still live")
	}
	dead, err := q.ReadDLQ(ctx, "g", 10)
	if err != nil || len(dead) != 1 {
		t.Fatalf("dlq read: %+v %v", dead, err)
	}
	if dead[0].Seq != s || dead[0].Reason != "record not found" || string(dead[0].Payload) != "poison" {
		t.Fatalf("dlq entry: %+v", dead[0])
	}
}

func TestFrameRoundTripAndCorruption(t *testing.T) {
	enc := EncodeFrame([]byte("h"), []byte("p"))
	frame, ok := DecodeFrame(enc)
	if !ok || string(frame.Header) != "h" || string(frame.Payload) != "p" {
		t.Fatalf("round trip: %+v %v", frame, ok)
	}
	enc[len(enc)-1] ^= 0xFF
	if _, ok := DecodeFrame(enc); ok {
		t.Fatalf("corrupt frame decoded")
	}
}

func TestLastSeqSurvivesReopen(t *testing.T) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()

	q1, _ := Open(db, "q")
	s1, _ := q1.Enqueue(ctx, nil, []byte("a"), 0, 1000)

	q2, _ := Open(db, "q")
	s2, _ := q2.Enqueue(ctx, nil, []byte("b"), 0, 1000)
	if s2 <= s1 {
		t.Fatalf("sequence regressed after reopen: %d <= %d", s2, s1)
	}
}

package queue

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/rzbill/orbiter/internal/errdefs"
	pebblestore "github.com/rzbill/orbiter/internal/storage/pebble"
)

// Queue provides durable FIFO enqueue/dequeue with leases.
type Queue struct {
	db   *pebblestore.DB
	name string

	mu      sync.Mutex
	lastSeq uint64
}

// Open initializes a Queue and restores lastSeq from metadata if present.
func Open(db *pebblestore.DB, name string) (*Queue, error) {
	q := &Queue{db: db, name: name}
	if meta, err := db.Get(metaKey(name)); err == nil && len(meta) >= 8 {
		q.lastSeq = binary.BigEndian.Uint64(meta[:8])
	}
	return q, nil
}

// Message is a dequeued message under a lease.
type Message struct {
	Seq        uint64
	Header     []byte
	Payload    []byte
	ExpiryMs   int64
	Deliveries uint32
}

// DeadLetter is an entry read back from the DLQ.
type DeadLetter struct {
	Seq     uint64
	Reason  string
	Payload []byte
}

func deliveriesVal(n uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	return b[:]
}

func readDeliveries(v []byte) uint32 {
	if len(v) >= 4 {
		return binary.BigEndian.Uint32(v[:4])
	}
	return 0
}

// Enqueue inserts a message, optionally delayed. If nowMs <= 0 the wall
// clock is used. Returns the assigned sequence number.
func (q *Queue) Enqueue(ctx context.Context, header, payload []byte, delayMs, nowMs int64) (uint64, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	b := q.db.NewBatch()
	defer b.Close()

	q.lastSeq++
	seq := q.lastSeq
	if err := b.Set(msgKey(q.name, seq), EncodeFrame(header, payload), nil); err != nil {
		return 0, errdefs.Transient("queue enqueue", err)
	}
	if delayMs > 0 {
		fire := uint64(nowMs + delayMs)
		if err := b.Set(delayKey(q.name, fire, seq), deliveriesVal(0), nil); err != nil {
			return 0, errdefs.Transient("queue enqueue", err)
		}
	} else {
		if err := b.Set(availKey(q.name, seq), deliveriesVal(0), nil); err != nil {
			return 0, errdefs.Transient("queue enqueue", err)
		}
	}

	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], q.lastSeq)
	if err := b.Set(metaKey(q.name), meta[:], nil); err != nil {
		return 0, errdefs.Transient("queue enqueue", err)
	}
	if err := q.db.CommitBatch(ctx, b); err != nil {
		return 0, errdefs.Transient("queue enqueue commit", err)
	}
	return seq, nil
}

// promoteDue moves delayed messages whose fire time has passed into avail.
func (q *Queue) promoteDue(ctx context.Context, nowMs int64, max int) error {
	prefix := delayPrefix(q.name)
	it, err := q.db.NewIter(pebblestore.PrefixIterOptions(prefix))
	if err != nil {
		return nil
	}
	defer it.Close()

	b := q.db.NewBatch()
	defer b.Close()
	promoted := 0
	for ok := it.First(); ok; ok = it.Next() {
		k := it.Key()
		if len(k) < len(prefix)+8+1+8 {
			continue
		}
		fire := int64(binary.BigEndian.Uint64(k[len(prefix) : len(prefix)+8]))
		if fire > nowMs {
			break
		}
		seq := binary.BigEndian.Uint64(k[len(k)-8:])
		deliveries := readDeliveries(it.Value())
		if err := b.Delete(k, nil); err != nil {
			return err
		}
		if err := b.Set(availKey(q.name, seq), deliveriesVal(deliveries), nil); err != nil {
			return err
		}
		promoted++
		if max > 0 && promoted >= max {
			break
		}
	}
	if promoted > 0 {
		return q.db.CommitBatch(ctx, b)
	}
	return nil
}

// Dequeue leases up to count messages in FIFO order for the group.
// Each delivery increments the message's delivery counter.
func (q *Queue) Dequeue(ctx context.Context, group string, count int, leaseMs, nowMs int64) ([]Message, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	if count <= 0 {
		count = 1
	}
	if leaseMs <= 0 {
		leaseMs = 30_000
	}
	_ = q.promoteDue(ctx, nowMs, count*4)

	it, err := q.db.NewIter(pebblestore.PrefixIterOptions(availPrefix(q.name)))
	if err != nil {
		return nil, nil
	}
	defer it.Close()

	b := q.db.NewBatch()
	defer b.Close()
	var msgs []Message
	for ok := it.First(); ok && len(msgs) < count; ok = it.Next() {
		k := it.Key()
		seq := binary.BigEndian.Uint64(k[len(k)-8:])
		val, errGet := q.db.Get(msgKey(q.name, seq))
		if errGet != nil {
			// orphaned index entry
			_ = b.Delete(k, nil)
			continue
		}
		frame, okDec := DecodeFrame(val)
		if !okDec {
			_ = b.Delete(k, nil)
			continue
		}
		deliveries := readDeliveries(it.Value()) + 1
		exp := nowMs + leaseMs
		var lbuf [12]byte
		binary.BigEndian.PutUint64(lbuf[0:8], uint64(exp))
		binary.BigEndian.PutUint32(lbuf[8:12], deliveries)
		if err := b.Set(leaseKey(q.name, group, seq), lbuf[:], nil); err != nil {
			return nil, errdefs.Transient("queue dequeue", err)
		}
		if err := b.Set(leaseIdxKey(q.name, group, uint64(exp), seq), nil, nil); err != nil {
			return nil, errdefs.Transient("queue dequeue", err)
		}
		if err := b.Delete(k, nil); err != nil {
			return nil, errdefs.Transient("queue dequeue", err)
		}
		msgs = append(msgs, Message{
			Seq:        seq,
			Header:     frame.Header,
			Payload:    frame.Payload,
			ExpiryMs:   exp,
			Deliveries: deliveries,
		})
	}
	if len(msgs) > 0 {
		if err := q.db.CommitBatch(ctx, b); err != nil {
			return nil, errdefs.Transient("queue dequeue commit", err)
		}
	}
	return msgs, nil
}

// Complete removes leased messages and their payloads.
func (q *Queue) Complete(ctx context.Context, group string, seqs ...uint64) error {
	b := q.db.NewBatch()
	defer b.Close()
	for _, seq := range seqs {
		exp := q.leaseExpiry(group, seq)
		if err := b.Delete(leaseKey(q.name, group, seq), nil); err != nil {
			return errdefs.Transient("queue complete", err)
		}
		if exp > 0 {
			_ = b.Delete(leaseIdxKey(q.name, group, uint64(exp), seq), nil)
		}
		if err := b.Delete(msgKey(q.name, seq), nil); err != nil {
			return errdefs.Transient("queue complete", err)
		}
	}
	if err := q.db.CommitBatch(ctx, b); err != nil {
		return errdefs.Transient("queue complete commit", err)
	}
	return nil
}

// Fail releases a lease: either reschedules the message after retryAfterMs,
// or moves it to the group's DLQ with a reason so the failure stays
// observable.
func (q *Queue) Fail(ctx context.Context, group string, seq uint64, retryAfterMs int64, toDLQ bool, reason string, nowMs int64) error {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	deliveries := uint32(0)
	exp := q.leaseExpiry(group, seq)
	if existing, err := q.db.Get(leaseKey(q.name, group, seq)); err == nil && len(existing) >= 12 {
		deliveries = binary.BigEndian.Uint32(existing[8:12])
	}

	b := q.db.NewBatch()
	defer b.Close()
	_ = b.Delete(leaseKey(q.name, group, seq), nil)
	if exp > 0 {
		_ = b.Delete(leaseIdxKey(q.name, group, uint64(exp), seq), nil)
	}
	if toDLQ {
		val, err := q.db.Get(msgKey(q.name, seq))
		if err == nil {
			if frame, ok := DecodeFrame(val); ok {
				dead := EncodeFrame([]byte(reason), frame.Payload)
				if err := b.Set(dlqKey(q.name, group, seq), dead, nil); err != nil {
					return errdefs.Transient("queue fail", err)
				}
			}
		}
		if err := b.Delete(msgKey(q.name, seq), nil); err != nil {
			return errdefs.Transient("queue fail", err)
		}
	} else {
		if retryAfterMs <= 0 {
			retryAfterMs = 1
		}
		fire := uint64(nowMs + retryAfterMs)
		if err := b.Set(delayKey(q.name, fire, seq), deliveriesVal(deliveries), nil); err != nil {
			return errdefs.Transient("queue fail", err)
		}
	}
	if err := q.db.CommitBatch(ctx, b); err != nil {
		return errdefs.Transient("queue fail commit", err)
	}
	return nil
}

// ReclaimExpired scans the group's lease index and returns expired messages
// to availability, preserving their delivery counts. Returns the number
// reclaimed.
func (q *Queue) ReclaimExpired(ctx context.Context, group string, nowMs int64, max int) (int, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	prefix := leaseIdxPrefix(q.name, group)
	it, err := q.db.NewIter(pebblestore.PrefixIterOptions(prefix))
	if err != nil {
		return 0, nil
	}
	defer it.Close()

	b := q.db.NewBatch()
	defer b.Close()
	reclaimed := 0
	for ok := it.First(); ok; ok = it.Next() {
		k := it.Key()
		if len(k) < len(prefix)+8+1+8 {
			continue
		}
		exp := int64(binary.BigEndian.Uint64(k[len(prefix) : len(prefix)+8]))
		if exp > nowMs {
			break
		}
		seq := binary.BigEndian.Uint64(k[len(k)-8:])
		deliveries := uint32(0)
		if lease, err := q.db.Get(leaseKey(q.name, group, seq)); err == nil && len(lease) >= 12 {
			deliveries = binary.BigEndian.Uint32(lease[8:12])
		}
		_ = b.Delete(k, nil)
		_ = b.Delete(leaseKey(q.name, group, seq), nil)
		if err := b.Set(availKey(q.name, seq), deliveriesVal(deliveries), nil); err != nil {
			return reclaimed, errdefs.Transient("queue reclaim", err)
		}
		reclaimed++
		if max > 0 && reclaimed >= max {
			break
		}
	}
	if reclaimed > 0 {
		if err := q.db.CommitBatch(ctx, b); err != nil {
			return reclaimed, errdefs.Transient("queue reclaim commit", err)
		}
	}
	return reclaimed, nil
}

// ReadDLQ returns up to max dead letters for the group, oldest first.
func (q *Queue) ReadDLQ(ctx context.Context, group string, max int) ([]DeadLetter, error) {
	it, err := q.db.NewIter(pebblestore.PrefixIterOptions(dlqPrefix(q.name, group)))
	if err != nil {
		return nil, nil
	}
	defer it.Close()

	var out []DeadLetter
	for ok := it.First(); ok; ok = it.Next() {
		k := it.Key()
		seq := binary.BigEndian.Uint64(k[len(k)-8:])
		frame, okDec := DecodeFrame(it.Value())
		if !okDec {
			continue
		}
		out = append(out, DeadLetter{Seq: seq, Reason: string(frame.Header), Payload: frame.Payload})
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out, nil
}

// Depth counts currently available (unleased, undelayed) messages.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	it, err := q.db.NewIter(pebblestore.PrefixIterOptions(availPrefix(q.name)))
	if err != nil {
		return 0, nil
	}
	defer it.Close()
	n := 0
	for ok := it.First(); ok; ok = it.Next() {
		n++
	}
	return n, nil
}

func (q *Queue) leaseExpiry(group string, seq uint64) int64 {
	if lease, err := q.db.Get(leaseKey(q.name, group, seq)); err == nil && len(lease) >= 8 {
		return int64(binary.BigEndian.Uint64(lease[0:8]))
	}
	return 0
}

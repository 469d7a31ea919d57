package history

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	pebblestore "github.com/rzbill/orbiter/internal/storage/pebble"
)

var (
	histPrefix = []byte("hist/")
	instPrefix = []byte("inst/")
	metaSuffix = []byte("/m")
	entrySeg   = []byte("/e/")
)

func keyLogMeta(instance string) []byte {
	k := make([]byte, 0, len(histPrefix)+len(instance)+len(metaSuffix))
	k = append(k, histPrefix...)
	k = append(k, instance...)
	return append(k, metaSuffix...)
}

func keyLogEntry(instance string, seq uint64) []byte {
	k := make([]byte, 0, len(histPrefix)+len(instance)+len(entrySeg)+8)
	k = append(k, histPrefix...)
	k = append(k, instance...)
	k = append(k, entrySeg...)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return append(k, b[:]...)
}

func keyLogEntryPrefix(instance string) []byte {
	k := make([]byte, 0, len(histPrefix)+len(instance)+len(entrySeg))
	k = append(k, histPrefix...)
	k = append(k, instance...)
	return append(k, entrySeg...)
}

func keyInstance(instance string) []byte {
	k := make([]byte, 0, len(instPrefix)+len(instance))
	k = append(k, instPrefix...)
	return append(k, instance...)
}

// InstanceMeta is the registry entry for one orchestration instance.
type InstanceMeta struct {
	ID          string `json:"id"`
	Workflow    string `json:"workflow"`
	Status      string `json:"status"` // Running | Completed | Failed
	StartedAtMs int64  `json:"startedAtMs"`
}

// Log persists per-instance decision logs.
type Log struct {
	db *pebblestore.DB

	mu      sync.Mutex
	lastSeq map[string]uint64
}

// OpenLog binds a Log to the store.
func OpenLog(db *pebblestore.DB) *Log {
	return &Log{db: db, lastSeq: make(map[string]uint64)}
}

func (l *Log) loadLastSeq(instance string) uint64 {
	if seq, ok := l.lastSeq[instance]; ok {
		return seq
	}
	if meta, err := l.db.Get(keyLogMeta(instance)); err == nil && len(meta) >= 8 {
		seq := binary.BigEndian.Uint64(meta[:8])
		l.lastSeq[instance] = seq
		return seq
	}
	return 0
}

// Append writes events to the instance log as one atomic batch.
func (l *Log) Append(ctx context.Context, instance string, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.loadLastSeq(instance)
	b := l.db.NewBatch()
	defer b.Close()
	for _, e := range events {
		seq++
		val, err := encodeEvent(e)
		if err != nil {
			return fmt.Errorf("encode history event: %w", err)
		}
		if err := b.Set(keyLogEntry(instance, seq), val, nil); err != nil {
			return err
		}
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], seq)
	if err := b.Set(keyLogMeta(instance), meta[:], nil); err != nil {
		return err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return err
	}
	l.lastSeq[instance] = seq
	return nil
}

// Read returns the instance's events in append order.
func (l *Log) Read(ctx context.Context, instance string) ([]Event, error) {
	it, err := l.db.NewIter(pebblestore.PrefixIterOptions(keyLogEntryPrefix(instance)))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []Event
	for ok := it.First(); ok; ok = it.Next() {
		e, okDec := decodeEvent(it.Value())
		if !okDec {
			return nil, fmt.Errorf("history: corrupt event at %q", it.Key())
		}
		out = append(out, e)
	}
	return out, nil
}

// PutInstance upserts the registry entry.
func (l *Log) PutInstance(ctx context.Context, meta InstanceMeta) error {
	val, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return l.db.Set(keyInstance(meta.ID), val)
}

// ErrInstanceNotFound is returned for unknown instance ids.
var ErrInstanceNotFound = errors.New("history: instance not found")

// GetInstance fetches a registry entry.
func (l *Log) GetInstance(ctx context.Context, id string) (InstanceMeta, error) {
	val, err := l.db.Get(keyInstance(id))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return InstanceMeta{}, ErrInstanceNotFound
		}
		return InstanceMeta{}, err
	}
	var meta InstanceMeta
	if err := json.Unmarshal(val, &meta); err != nil {
		return InstanceMeta{}, err
	}
	return meta, nil
}

// Purge removes an instance's registry entry and its entire decision
// log in one atomic batch. Purging a running instance is the caller's
// mistake; the in-memory engine state is not touched here.
func (l *Log) Purge(ctx context.Context, id string) error {
	if _, err := l.GetInstance(ctx, id); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.db.NewBatch()
	defer b.Close()
	it, err := l.db.NewIter(pebblestore.PrefixIterOptions(keyLogEntryPrefix(id)))
	if err != nil {
		return err
	}
	for ok := it.First(); ok; ok = it.Next() {
		k := append([]byte(nil), it.Key()...)
		if err := b.Delete(k, nil); err != nil {
			it.Close()
			return err
		}
	}
	it.Close()
	if err := b.Delete(keyLogMeta(id), nil); err != nil {
		return err
	}
	if err := b.Delete(keyInstance(id), nil); err != nil {
		return err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return err
	}
	delete(l.lastSeq, id)
	return nil
}

// ListInstances returns every registry entry.
func (l *Log) ListInstances(ctx context.Context) ([]InstanceMeta, error) {
	it, err := l.db.NewIter(pebblestore.PrefixIterOptions(instPrefix))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []InstanceMeta
	for ok := it.First(); ok; ok = it.Next() {
		var meta InstanceMeta
		if err := json.Unmarshal(it.Value(), &meta); err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	return out, nil
}

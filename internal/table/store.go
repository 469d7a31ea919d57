package table

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rzbill/orbiter/internal/errdefs"
	pebblestore "github.com/rzbill/orbiter/internal/storage/pebble"
)

// Store provides work-item operations for one table.
type Store struct {
	db    *pebblestore.DB
	table string
}

// Open binds a Store to a table name.
func Open(db *pebblestore.DB, table string) *Store {
	return &Store{db: db, table: table}
}

// Insert writes a new record. Fails if the identity already exists.
func (s *Store) Insert(ctx context.Context, w *WorkItem) error {
	if err := w.Validate(); err != nil {
		return err
	}
	key := keyRow(s.table, w.PartitionKey, w.RowKey)
	if ok, err := s.db.Has(key); err != nil {
		return errdefs.Transient("table insert", err)
	} else if ok {
		return errdefs.Validationf("work item (%s,%s) already exists", w.PartitionKey, w.RowKey)
	}
	val, err := encodeWorkItem(w)
	if err != nil {
		return fmt.Errorf("encode work item: %w", err)
	}
	if err := s.db.Set(key, val); err != nil {
		return errdefs.Transient("table insert", err)
	}
	return nil
}

// InsertBatch writes all records in a single atomic Pebble batch.
// Every record must share one partition key; all-or-nothing.
func (s *Store) InsertBatch(ctx context.Context, items []*WorkItem) error {
	if len(items) == 0 {
		return nil
	}
	pk := items[0].PartitionKey
	b := s.db.NewBatch()
	defer b.Close()
	for _, w := range items {
		if err := w.Validate(); err != nil {
			return err
		}
		if w.PartitionKey != pk {
			return errdefs.Validationf("batch spans partitions %q and %q", pk, w.PartitionKey)
		}
		val, err := encodeWorkItem(w)
		if err != nil {
			return fmt.Errorf("encode work item: %w", err)
		}
		if err := b.Set(keyRow(s.table, w.PartitionKey, w.RowKey), val, nil); err != nil {
			return errdefs.Transient("table batch", err)
		}
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return errdefs.Transient("table batch commit", err)
	}
	return nil
}

// Get fetches a record by identity.
func (s *Store) Get(ctx context.Context, pk, rk string) (*WorkItem, error) {
	val, err := s.db.Get(keyRow(s.table, pk, rk))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return nil, errdefs.NotFound(fmt.Sprintf("work item (%s,%s) not found", pk, rk))
		}
		return nil, errdefs.Transient("table get", err)
	}
	return decodeWorkItem(val)
}

// Put replaces the record unconditionally (last-write-wins).
func (s *Store) Put(ctx context.Context, w *WorkItem) error {
	if err := w.Validate(); err != nil {
		return err
	}
	val, err := encodeWorkItem(w)
	if err != nil {
		return fmt.Errorf("encode work item: %w", err)
	}
	if err := s.db.Set(keyRow(s.table, w.PartitionKey, w.RowKey), val); err != nil {
		return errdefs.Transient("table put", err)
	}
	return nil
}

// QueryByStatus returns every record with the given status, scanning the
// whole table in key order. The result set is unbounded by design; the
// bridge must handle a full query's worth of records per tick.
func (s *Store) QueryByStatus(ctx context.Context, status Status) ([]*WorkItem, error) {
	prefix := keyTablePrefix(s.table)
	it, err := s.db.NewIter(pebblestore.PrefixIterOptions(prefix))
	if err != nil {
		return nil, errdefs.Transient("table scan", err)
	}
	defer it.Close()

	var out []*WorkItem
	for ok := it.First(); ok; ok = it.Next() {
		w, err := decodeWorkItem(it.Value())
		if err != nil {
			// a corrupt row fails the scan loudly rather than skipping silently
			return nil, fmt.Errorf("row %q: %w", it.Key(), err)
		}
		if w.Status == status {
			out = append(out, w)
		}
	}
	return out, nil
}

// ListPartition returns the rows of one partition in row-key order.
func (s *Store) ListPartition(ctx context.Context, pk string) ([]*WorkItem, error) {
	it, err := s.db.NewIter(pebblestore.PrefixIterOptions(keyPartitionPrefix(s.table, pk)))
	if err != nil {
		return nil, errdefs.Transient("table scan", err)
	}
	defer it.Close()

	var out []*WorkItem
	for ok := it.First(); ok; ok = it.Next() {
		w, err := decodeWorkItem(it.Value())
		if err != nil {
			return nil, fmt.Errorf("row %q: %w", it.Key(), err)
		}
		out = append(out, w)
	}
	return out, nil
}

// Touch stamps UpdatedAt, preserving CreatedAt.
func Touch(w *WorkItem, now time.Time) {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
}

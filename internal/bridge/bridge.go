// Package bridge moves newly created table records onto the durable
// queue. It scans for records still in the New state, applies an
// optional CEL expression, and enqueues one message per match. The
// bridge never mutates records; only the consumer flips their status,
// so an enqueue that duplicates an earlier one is harmless under
// at-least-once delivery.
package bridge

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rzbill/orbiter/internal/queue"
	"github.com/rzbill/orbiter/internal/table"
	"github.com/rzbill/orbiter/internal/telemetry"
	logpkg "github.com/rzbill/orbiter/pkg/log"
)

// Options configures a Bridge.
type Options struct {
	// Filter is an optional CEL expression over partition_key, row_key,
	// bug_id, payload and now_ms. Empty means forward everything.
	Filter string
	Logger logpkg.Logger
	Tracer *telemetry.Tracer
}

// Bridge forwards New records from the table store to the queue.
type Bridge struct {
	store  *table.Store
	queue  *queue.Queue
	filter recordFilter
	logger logpkg.Logger
	tracer *telemetry.Tracer
}

// New builds a Bridge. A malformed filter expression fails fast here
// rather than on the first tick.
func New(store *table.Store, q *queue.Queue, opts Options) (*Bridge, error) {
	filter, err := newRecordFilter(opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("compile record filter: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Noop()
	}
	return &Bridge{
		store:  store,
		queue:  q,
		filter: filter,
		logger: logger.With(logpkg.Str("component", "bridge")),
		tracer: tracer,
	}, nil
}

// RunOnce performs a single scan-and-forward pass and returns the number
// of messages enqueued. A failed enqueue aborts the pass; records not
// yet forwarded stay New and are picked up next tick.
func (b *Bridge) RunOnce(ctx context.Context) (int, error) {
	ctx, span := b.tracer.Start(ctx, "bridge.run_once")
	var err error
	defer func() { telemetry.End(span, err) }()

	items, err := b.store.QueryByStatus(ctx, table.StatusNew)
	if err != nil {
		return 0, fmt.Errorf("scan new records: %w", err)
	}
	nowMs := time.Now().UnixMilli()
	enqueued := 0
	for _, w := range items {
		if !b.filter.Eval(w) {
			continue
		}
		body, encErr := NewQueueMessage(w).Encode()
		if encErr != nil {
			err = fmt.Errorf("encode message for (%s,%s): %w", w.PartitionKey, w.RowKey, encErr)
			return enqueued, err
		}
		if _, qErr := b.queue.Enqueue(ctx, nil, body, 0, nowMs); qErr != nil {
			err = fmt.Errorf("enqueue (%s,%s): %w", w.PartitionKey, w.RowKey, qErr)
			return enqueued, err
		}
		enqueued++
	}
	span.SetAttributes(
		attribute.Int("records.scanned", len(items)),
		attribute.Int("records.enqueued", enqueued),
	)
	if enqueued > 0 {
		b.logger.Info("forwarded new records",
			logpkg.Int("scanned", len(items)), logpkg.Int("enqueued", enqueued))
	}
	return enqueued, nil
}

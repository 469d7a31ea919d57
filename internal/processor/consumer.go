package processor

import (
	"context"
	"sync"
	"time"

	"github.com/rzbill/orbiter/internal/errdefs"
	"github.com/rzbill/orbiter/internal/queue"
	logpkg "github.com/rzbill/orbiter/pkg/log"
)

// ConsumerOptions tunes the poll loop. Zero values pick the defaults.
type ConsumerOptions struct {
	Group         string
	BatchSize     int
	LeaseMs       int64
	RetryDelayMs  int64
	MaxDeliveries uint32
	PollInterval  time.Duration
	Logger        logpkg.Logger
}

// Consumer drains the queue through a Handler. Messages that fail with
// a terminal error, or that exhaust their delivery budget, move to the
// DLQ; everything else is retried after a delay.
type Consumer struct {
	queue   *queue.Queue
	handler *Handler

	group         string
	batchSize     int
	leaseMs       int64
	retryDelayMs  int64
	maxDeliveries uint32
	pollInterval  time.Duration
	logger        logpkg.Logger

	stopCh chan struct{}
	doneWg sync.WaitGroup
	once   sync.Once
}

// NewConsumer builds a Consumer over q and h.
func NewConsumer(q *queue.Queue, h *Handler, opts ConsumerOptions) *Consumer {
	c := &Consumer{
		queue:         q,
		handler:       h,
		group:         opts.Group,
		batchSize:     opts.BatchSize,
		leaseMs:       opts.LeaseMs,
		retryDelayMs:  opts.RetryDelayMs,
		maxDeliveries: opts.MaxDeliveries,
		pollInterval:  opts.PollInterval,
		logger:        h.logger,
		stopCh:        make(chan struct{}),
	}
	if opts.Logger != nil {
		c.logger = opts.Logger.With(logpkg.Str("component", "consumer"))
	}
	if c.group == "" {
		c.group = "processors"
	}
	if c.batchSize <= 0 {
		c.batchSize = 16
	}
	if c.leaseMs <= 0 {
		c.leaseMs = 30_000
	}
	if c.retryDelayMs <= 0 {
		c.retryDelayMs = 5_000
	}
	if c.maxDeliveries == 0 {
		c.maxDeliveries = 5
	}
	if c.pollInterval <= 0 {
		c.pollInterval = time.Second
	}
	return c
}

// Start launches the poll loop. Stop halts it.
func (c *Consumer) Start(ctx context.Context) {
	c.doneWg.Add(1)
	go func() {
		defer c.doneWg.Done()
		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.ProcessBatch(ctx); err != nil {
					c.logger.Error("poll failed", logpkg.Err(err))
				}
			}
		}
	}()
}

// Stop halts the poll loop and waits for the in-flight batch.
func (c *Consumer) Stop() {
	c.once.Do(func() { close(c.stopCh) })
	c.doneWg.Wait()
}

// ProcessBatch reclaims expired leases, dequeues up to the batch size
// and handles each message, acknowledging per the outcome. Returns the
// number of messages handled successfully.
func (c *Consumer) ProcessBatch(ctx context.Context) (int, error) {
	nowMs := time.Now().UnixMilli()
	if _, err := c.queue.ReclaimExpired(ctx, c.group, nowMs, c.batchSize); err != nil {
		return 0, err
	}
	msgs, err := c.queue.Dequeue(ctx, c.group, c.batchSize, c.leaseMs, nowMs)
	if err != nil {
		return 0, err
	}
	handled := 0
	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			return handled, err
		}
		hErr := c.handler.HandleRaw(ctx, m.Payload)
		if hErr == nil {
			if err := c.queue.Complete(ctx, c.group, m.Seq); err != nil {
				return handled, err
			}
			handled++
			continue
		}
		toDLQ := errdefs.IsTerminal(hErr) || m.Deliveries >= c.maxDeliveries
		if toDLQ {
			c.logger.Warn("message dead-lettered",
				logpkg.F("seq", m.Seq),
				logpkg.F("deliveries", m.Deliveries),
				logpkg.Err(hErr))
		} else {
			c.logger.Warn("message retried",
				logpkg.F("seq", m.Seq),
				logpkg.F("deliveries", m.Deliveries),
				logpkg.Err(hErr))
		}
		if err := c.queue.Fail(ctx, c.group, m.Seq, c.retryDelayMs, toDLQ, dlqReason(hErr), time.Now().UnixMilli()); err != nil {
			return handled, err
		}
	}
	return handled, nil
}

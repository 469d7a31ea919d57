// Package processor consumes queue messages and transitions the
// referenced work items from New to Processed. Handling is idempotent:
// redelivered messages for already-processed records succeed without
// touching the record again.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/rzbill/orbiter/internal/bridge"
	"github.com/rzbill/orbiter/internal/errdefs"
	"github.com/rzbill/orbiter/internal/genai"
	"github.com/rzbill/orbiter/internal/table"
	"github.com/rzbill/orbiter/internal/telemetry"
	logpkg "github.com/rzbill/orbiter/pkg/log"
)

const enrichPromptPrefix = "Summarize the following work item in one sentence: "

// Handler applies one queue message against the table store.
type Handler struct {
	store  *table.Store
	gen    genai.Client
	enrich bool
	logger logpkg.Logger
	tracer *telemetry.Tracer
}

// HandlerOptions configures a Handler. Enrich requires a genai client;
// with Enrich false the client may be nil.
type HandlerOptions struct {
	Enrich bool
	Logger logpkg.Logger
	Tracer *telemetry.Tracer
}

// NewHandler builds a Handler over the store.
func NewHandler(store *table.Store, gen genai.Client, opts HandlerOptions) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Noop()
	}
	return &Handler{
		store:  store,
		gen:    gen,
		enrich: opts.Enrich && gen != nil,
		logger: logger.With(logpkg.Str("component", "processor")),
		tracer: tracer,
	}
}

// Handle processes one decoded message. Enrichment happens before the
// status flip: if the enrichment call fails, the record stays New and
// the message is retried. A record that is already Processed is a
// successful no-op.
func (h *Handler) Handle(ctx context.Context, m bridge.QueueMessage) error {
	ctx, span := h.tracer.Start(ctx, "processor.handle")
	var err error
	defer func() { telemetry.End(span, err) }()

	w, err := h.store.Get(ctx, m.PartitionKey, m.RowKey)
	if err != nil {
		return fmt.Errorf("load work item (%s,%s): %w", m.PartitionKey, m.RowKey, err)
	}
	if w.Status == table.StatusProcessed {
		h.logger.Debug("work item already processed",
			logpkg.Str("partition", w.PartitionKey), logpkg.Str("row", w.RowKey))
		return nil
	}

	if h.enrich {
		enriched, genErr := h.gen.Complete(ctx, enrichPromptPrefix+w.Payload)
		if genErr != nil {
			err = fmt.Errorf("enrich (%s,%s): %w", w.PartitionKey, w.RowKey, genErr)
			return err
		}
		w.EnrichedPayload = enriched
	}
	w.Status = table.StatusProcessed
	table.Touch(w, time.Now().UTC())
	if err = h.store.Put(ctx, w); err != nil {
		return fmt.Errorf("persist work item (%s,%s): %w", w.PartitionKey, w.RowKey, err)
	}
	h.logger.Info("work item processed",
		logpkg.Str("partition", w.PartitionKey),
		logpkg.Str("row", w.RowKey),
		logpkg.Str("bug", w.BugID))
	return nil
}

// HandleRaw decodes a wire message body and dispatches it to Handle.
func (h *Handler) HandleRaw(ctx context.Context, body []byte) error {
	m, err := bridge.DecodeQueueMessage(body)
	if err != nil {
		return err
	}
	return h.Handle(ctx, m)
}

// dlqReason trims an error into a short dead-letter annotation.
func dlqReason(err error) string {
	msg := err.Error()
	if len(msg) > 256 {
		msg = msg[:256]
	}
	if errdefs.IsValidation(err) {
		return "validation: " + msg
	}
	if errdefs.IsNotFound(err) {
		return "not_found: " + msg
	}
	return msg
}

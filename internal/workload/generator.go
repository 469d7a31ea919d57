// Package workload synthesizes batches of work items. Each tick the
// generator asks the text backend for a batch of short payloads and
// inserts them into the table store as a single atomic batch, all
// sharing one partition key so a failed tick leaves no partial batch
// behind.
package workload

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rzbill/orbiter/internal/genai"
	"github.com/rzbill/orbiter/internal/table"
	"github.com/rzbill/orbiter/internal/telemetry"
	"github.com/rzbill/orbiter/pkg/id"
	logpkg "github.com/rzbill/orbiter/pkg/log"
)

const payloadPrompt = "Invent a one-sentence bug report for a fictional software product. Reply with the sentence only."

// Options configures a Generator.
type Options struct {
	ItemsPerTick int
	Logger       logpkg.Logger
	Tracer       *telemetry.Tracer
}

// Generator creates batches of New work items.
type Generator struct {
	store  *table.Store
	gen    genai.Client
	ids    *id.Generator
	count  int
	logger logpkg.Logger
	tracer *telemetry.Tracer
}

// New builds a Generator. The genai client is required: payload
// synthesis is the point of the component.
func New(store *table.Store, gen genai.Client, opts Options) *Generator {
	count := opts.ItemsPerTick
	if count <= 0 {
		count = 5
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Noop()
	}
	return &Generator{
		store:  store,
		gen:    gen,
		ids:    id.NewGenerator(),
		count:  count,
		logger: logger.With(logpkg.Str("component", "workload")),
		tracer: tracer,
	}
}

// RunOnce generates one batch and inserts it atomically, returning the
// shared partition key. Any failure, including a single payload call,
// aborts the whole batch: nothing is written.
func (g *Generator) RunOnce(ctx context.Context) (string, error) {
	ctx, span := g.tracer.Start(ctx, "workload.run_once",
		attribute.Int("batch.size", g.count))
	var err error
	defer func() { telemetry.End(span, err) }()

	now := time.Now().UTC()
	pk := "batch-" + g.ids.Next().String()
	items := make([]*table.WorkItem, 0, g.count)
	for i := 0; i < g.count; i++ {
		payload, genErr := g.gen.Complete(ctx, payloadPrompt)
		if genErr != nil {
			err = fmt.Errorf("synthesize payload %d/%d: %w", i+1, g.count, genErr)
			return "", err
		}
		items = append(items, &table.WorkItem{
			PartitionKey: pk,
			RowKey:       g.ids.Next().String(),
			BugID:        "bug-" + strconv.Itoa(i+1),
			Status:       table.StatusNew,
			Payload:      payload,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	if err = g.store.InsertBatch(ctx, items); err != nil {
		err = fmt.Errorf("insert batch %s: %w", pk, err)
		return "", err
	}
	g.logger.Info("generated work item batch",
		logpkg.Str("partition", pk), logpkg.Int("items", len(items)))
	return pk, nil
}

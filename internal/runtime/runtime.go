package runtime

import (
	"context"
	"errors"

	"github.com/rzbill/orbiter/internal/activity"
	cfgpkg "github.com/rzbill/orbiter/internal/config"
	"github.com/rzbill/orbiter/internal/genai"
	"github.com/rzbill/orbiter/internal/history"
	"github.com/rzbill/orbiter/internal/orchestration"
	"github.com/rzbill/orbiter/internal/queue"
	pebblestore "github.com/rzbill/orbiter/internal/storage/pebble"
	"github.com/rzbill/orbiter/internal/table"
	"github.com/rzbill/orbiter/internal/telemetry"
	logpkg "github.com/rzbill/orbiter/pkg/log"
)

// Workflow names served out of the box.
const (
	WorkflowFanOutFanIn = "fan_out_fan_in"
	WorkflowHelloCities = "hello_cities"
)

// Options for building the Runtime.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	Config  cfgpkg.Config
	Logger  logpkg.Logger
	Tracer  *telemetry.Tracer
}

// Runtime wires storage, config, and facades for a single-node instance.
type Runtime struct {
	db     *pebblestore.DB
	config cfgpkg.Config

	store  *table.Store
	queue  *queue.Queue
	hist   *history.Log
	engine *orchestration.Engine
	gen    genai.Client
}

// Open initializes storage and the domain facades. The genai client is
// built only when an API key is configured; Gen returns nil otherwise.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Noop()
	}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync})
	if err != nil {
		return nil, err
	}
	cfg := opts.Config
	q, err := queue.Open(db, cfg.QueueName)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	registry := activity.NewRegistry()
	activity.RegisterBuiltins(registry)
	hist := history.OpenLog(db)
	engine := orchestration.NewEngine(hist, registry, orchestration.Options{
		ActivityWorkers: cfg.Orchestration.ActivityWorkers,
		Logger:          logger,
		Tracer:          tracer,
	})
	engine.RegisterWorkflow(WorkflowFanOutFanIn, orchestration.ComputationWorkflow(cfg.Orchestration.FanOut))
	engine.RegisterWorkflow(WorkflowHelloCities, orchestration.HelloCitiesWorkflow(5))

	rt := &Runtime{
		db:     db,
		config: cfg,
		store:  table.Open(db, cfg.TableName),
		queue:  q,
		hist:   hist,
		engine: engine,
	}
	if cfg.GenAI.APIKey != "" {
		gen, err := genai.NewOpenAIClient(genai.OpenAIConfig{
			APIKey:     cfg.GenAI.APIKey,
			Endpoint:   cfg.GenAI.Endpoint,
			Deployment: cfg.GenAI.Deployment,
			APIVersion: cfg.GenAI.APIVersion,
			MaxRetries: cfg.GenAI.MaxRetries,
		})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		rt.gen = gen
	}
	return rt, nil
}

// Resume re-runs workflow instances left non-terminal by a previous
// process. Call once after Open, before serving traffic.
func (r *Runtime) Resume(ctx context.Context) (int, error) {
	return r.engine.Resume(ctx)
}

// Close stops the engine's workers and closes storage.
func (r *Runtime) Close() error {
	if r.engine != nil {
		r.engine.Close()
	}
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	it.Close()
	return nil
}

// Store returns the work-item table store.
func (r *Runtime) Store() *table.Store { return r.store }

// Queue returns the durable work-item queue.
func (r *Runtime) Queue() *queue.Queue { return r.queue }

// History returns the orchestration history log.
func (r *Runtime) History() *history.Log { return r.hist }

// Engine returns the orchestration engine.
func (r *Runtime) Engine() *orchestration.Engine { return r.engine }

// Gen returns the generative-text client, nil when unconfigured.
func (r *Runtime) Gen() genai.Client { return r.gen }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

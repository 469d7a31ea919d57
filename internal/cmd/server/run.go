package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rzbill/orbiter/internal/bridge"
	cfgpkg "github.com/rzbill/orbiter/internal/config"
	"github.com/rzbill/orbiter/internal/processor"
	"github.com/rzbill/orbiter/internal/runtime"
	"github.com/rzbill/orbiter/internal/scheduler"
	httpserver "github.com/rzbill/orbiter/internal/server/http"
	pebblestore "github.com/rzbill/orbiter/internal/storage/pebble"
	"github.com/rzbill/orbiter/internal/telemetry"
	"github.com/rzbill/orbiter/internal/workload"
	logpkg "github.com/rzbill/orbiter/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// small wrapper to allow testing; replaced by os.Getenv at build time
var getenv = func(key string) string { return os.Getenv(key) }

type Options struct {
	DataDir       string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
}

// Run starts the HTTP server, pipeline scheduler and queue consumer,
// and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Be robust to callers that don't pass a signal-aware context.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}

	// Build process-wide logger; defaults: level=info, format=text
	logCfg := &logpkg.Config{
		Level:  getenvDefault("ORBITER_LOG_LEVEL", opts.Config.LogLevel),
		Format: getenvDefault("ORBITER_LOG_FORMAT", opts.Config.LogFormat),
	}
	procLogger, err := logpkg.ApplyConfig(logCfg)
	if err != nil {
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(logCfg.Level); e == nil {
			lvl = l
		}
		procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(procLogger)

	tracer := telemetry.Noop()
	if opts.Config.OTLPEndpoint != "" {
		t, shutdown, err := telemetry.Setup(sctx, opts.Config.OTLPEndpoint, "orbiter")
		if err != nil {
			procLogger.Warn("trace export disabled", logpkg.Err(err))
		} else {
			tracer = t
			defer func() {
				cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(cctx)
			}()
		}
	}

	storeDir := filepath.Join(opts.DataDir, "store")
	rt, err := runtime.Open(runtime.Options{
		DataDir: storeDir,
		Fsync:   opts.Fsync,
		Config:  opts.Config,
		Logger:  procLogger,
		Tracer:  tracer,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("Starting Orbiter server",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("level", logCfg.Level),
		logpkg.Str("format", logCfg.Format),
	)

	// Pick up workflow instances a previous process left running.
	if n, err := rt.Resume(sctx); err != nil {
		procLogger.Error("resume failed", logpkg.Err(err))
	} else if n > 0 {
		procLogger.Info("resumed workflow instances", logpkg.Int("count", n))
	}

	pipeCfg := rt.Config().Pipeline
	handler := processor.NewHandler(rt.Store(), rt.Gen(), processor.HandlerOptions{
		Enrich: pipeCfg.Enrich,
		Logger: procLogger,
		Tracer: tracer,
	})
	consumer := processor.NewConsumer(rt.Queue(), handler, processor.ConsumerOptions{
		Group:         pipeCfg.ConsumerGroup,
		LeaseMs:       pipeCfg.LeaseMs,
		RetryDelayMs:  pipeCfg.RetryDelayMs,
		MaxDeliveries: uint32(pipeCfg.MaxDeliveries),
		Logger:        procLogger,
	})
	consumer.Start(sctx)

	var sched *scheduler.Scheduler
	if rt.Gen() != nil {
		b, err := bridge.New(rt.Store(), rt.Queue(), bridge.Options{
			Filter: pipeCfg.Filter,
			Logger: procLogger,
			Tracer: tracer,
		})
		if err != nil {
			return err
		}
		gen := workload.New(rt.Store(), rt.Gen(), workload.Options{
			ItemsPerTick: pipeCfg.ItemsPerTick,
			Logger:       procLogger,
			Tracer:       tracer,
		})
		sched = scheduler.New(gen, b, scheduler.Options{
			Interval: pipeCfg.TickInterval,
			Logger:   procLogger,
			Tracer:   tracer,
		})
		sched.Start()
	} else {
		procLogger.Warn("genai api key not configured; workload generation disabled")
	}

	hsrv := httpserver.New(rt)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("http error", logpkg.Err(err))
		}
	}()

	<-sctx.Done()
	// Stop producers and servers before closing the runtime/DB to avoid races.
	if sched != nil {
		sched.Stop()
	}
	consumer.Stop()
	hsrv.Close()
	wg.Wait()
	return nil
}

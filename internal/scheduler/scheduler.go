// Package scheduler drives the pipeline clock. Each tick it runs the
// workload generator and then the bridge, so freshly inserted records
// are forwarded on the same tick that created them.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rzbill/orbiter/internal/bridge"
	"github.com/rzbill/orbiter/internal/telemetry"
	"github.com/rzbill/orbiter/internal/workload"
	logpkg "github.com/rzbill/orbiter/pkg/log"
)

// Options configures a Scheduler.
type Options struct {
	Interval time.Duration
	Logger   logpkg.Logger
	Tracer   *telemetry.Tracer
}

// Scheduler runs the generator and bridge on a fixed interval.
type Scheduler struct {
	gen      *workload.Generator
	bridge   *bridge.Bridge
	interval time.Duration
	logger   logpkg.Logger
	tracer   *telemetry.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Scheduler.
func New(gen *workload.Generator, b *bridge.Bridge, opts Options) *Scheduler {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Noop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		gen:      gen,
		bridge:   b,
		interval: interval,
		logger:   logger.With(logpkg.Str("component", "scheduler")),
		tracer:   tracer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the tick loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		logpkg.Str("interval", s.interval.String()))

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(s.ctx)
		}
	}
}

// Tick runs one generate-then-forward pass. A generator failure skips
// the batch but the bridge still runs: records left over from earlier
// failed forwards get another chance.
func (s *Scheduler) Tick(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "scheduler.tick")
	defer telemetry.End(span, nil)

	start := time.Now()
	pk, err := s.gen.RunOnce(ctx)
	if err != nil {
		s.logger.Error("workload generation failed", logpkg.Err(err))
	}
	forwarded, err := s.bridge.RunOnce(ctx)
	if err != nil {
		s.logger.Error("bridge pass failed", logpkg.Err(err))
	}
	s.logger.Info("tick complete",
		logpkg.Str("batch", pk),
		logpkg.Int("forwarded", forwarded),
		logpkg.Dur("elapsed", time.Since(start)))
}

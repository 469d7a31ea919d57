package orchestration

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// workerPool executes activity tasks with bounded concurrency.
type workerPool struct {
	tasks chan func()
	wg    sync.WaitGroup

	closeOnce sync.Once
	quit      chan struct{}
}

func newWorkerPool(workers int) *workerPool {
	if workers <= 0 {
		workers = 1
	}
	p := &workerPool{
		tasks: make(chan func(), workers*4),
		quit:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			task()
		}
	}
}

// submit blocks when the pool is saturated; that backpressure is what keeps
// a 5000-task fan-out from spawning 5000 goroutines.
func (p *workerPool) submit(task func()) error {
	select {
	case p.tasks <- task:
		return nil
	case <-p.quit:
		return fmt.Errorf("worker pool stopped")
	}
}

func (p *workerPool) close() {
	p.closeOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
}

// guard wraps a task so a panicking activity reports an error instead of
// killing the worker.
func guard(task func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("activity panic: %v\n%s", r, debug.Stack())
		}
	}()
	return task()
}

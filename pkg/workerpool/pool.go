// Package workerpool provides a bounded goroutine pool for running event
// hooks and CVE correlations off the caller's goroutine. Based on patterns
// from cloudwego/netpoll gopool and panjf2000/ants.
package workerpool

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool manages a fixed pool of worker goroutines.
// Tasks may submit further tasks; Wait returns once the whole cascade has
// drained. Submit and Wait may run concurrently from any goroutine.
type Pool struct {
	workers int32
	running int32
	tasks   chan func()

	// pending counts submitted tasks that have not finished yet.
	pendMu  sync.Mutex
	drained *sync.Cond
	pending int64
	// workerWG tracks live worker goroutines for Close.
	workerWG sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	logger   *slog.Logger
	panics   atomic.Int64
	overflow atomic.Int64
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger used to report recovered task panics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// New creates a new worker pool with the specified number of workers.
// Workers are started lazily when tasks are submitted.
func New(workers int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		workers: int32(workers),
		tasks:   make(chan func(), workers*16), // Buffered for burst handling
		logger:  slog.Default(),
	}
	p.drained = sync.NewCond(&p.pendMu)
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Submit adds a task to the pool.
// It never blocks: when the queue is full the task runs on a dedicated
// goroutine so that tasks submitting tasks cannot deadlock the pool.
// Returns false if the pool is closed.
func (p *Pool) Submit(task func()) bool {
	if task == nil {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	p.pendMu.Lock()
	p.pending++
	p.pendMu.Unlock()
	p.spawn()

	select {
	case p.tasks <- task:
	default:
		p.overflow.Add(1)
		go p.run(task)
	}
	return true
}

// Go is an alias for Submit that matches common pool APIs.
func (p *Pool) Go(task func()) bool {
	return p.Submit(task)
}

// spawn starts a worker if below capacity. Caller holds p.mu.RLock.
func (p *Pool) spawn() {
	for {
		running := atomic.LoadInt32(&p.running)
		if running >= atomic.LoadInt32(&p.workers) {
			return
		}
		if atomic.CompareAndSwapInt32(&p.running, running, running+1) {
			p.workerWG.Add(1)
			go p.worker()
			return
		}
	}
}

func (p *Pool) worker() {
	defer func() {
		atomic.AddInt32(&p.running, -1)
		p.workerWG.Done()
	}()

	for task := range p.tasks {
		p.run(task)
	}
}

// run executes one task, recovering panics so a faulty hook cannot take
// down the worker.
func (p *Pool) run(task func()) {
	defer p.done()
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("workerpool: task panicked", slog.Any("panic", r))
		}
	}()
	task()
}

func (p *Pool) done() {
	p.pendMu.Lock()
	p.pending--
	if p.pending == 0 {
		p.drained.Broadcast()
	}
	p.pendMu.Unlock()
}

// Wait blocks until every submitted task, including tasks submitted by
// running tasks, has finished. Tasks submitted while Wait is blocked
// extend the wait.
func (p *Pool) Wait() {
	p.pendMu.Lock()
	for p.pending > 0 {
		p.drained.Wait()
	}
	p.pendMu.Unlock()
}

// Pending returns the number of submitted tasks that have not finished.
func (p *Pool) Pending() int {
	p.pendMu.Lock()
	defer p.pendMu.Unlock()
	return int(p.pending)
}

// Running returns the current number of running workers.
func (p *Pool) Running() int {
	return int(atomic.LoadInt32(&p.running))
}

// Cap returns the worker capacity.
func (p *Pool) Cap() int {
	return int(atomic.LoadInt32(&p.workers))
}

// Waiting returns the number of tasks waiting in the queue.
func (p *Pool) Waiting() int {
	return len(p.tasks)
}

// Panics returns how many tasks panicked since the pool was created.
func (p *Pool) Panics() int64 {
	return p.panics.Load()
}

// Overflowed returns how many tasks ran outside the workers because the
// queue was full.
func (p *Pool) Overflowed() int64 {
	return p.overflow.Load()
}

// Close shuts down the pool gracefully.
// All pending tasks are completed before returning.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.workerWG.Wait()
	p.Wait()
}

// IsClosed returns true if the pool is closed.
func (p *Pool) IsClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

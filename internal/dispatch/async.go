package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Async processes jobs on a bounded pool of goroutines. Jobs run detached
// from the dispatching request.
type Async struct {
	runner     Runner
	logger     *slog.Logger
	jobTimeout time.Duration
	slots      chan struct{}

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// AsyncOption customises an Async dispatcher.
type AsyncOption func(*Async)

// WithWorkers bounds the number of jobs processed concurrently.
func WithWorkers(n int) AsyncOption {
	return func(a *Async) {
		if n > 0 {
			a.slots = make(chan struct{}, n)
		}
	}
}

// WithJobTimeout cancels jobs that run longer than timeout.
func WithJobTimeout(timeout time.Duration) AsyncOption {
	return func(a *Async) {
		if timeout > 0 {
			a.jobTimeout = timeout
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) AsyncOption {
	return func(a *Async) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAsync starts an async dispatcher. Defaults to four workers.
func NewAsync(runner Runner, opts ...AsyncOption) *Async {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Async{
		runner:     runner,
		logger:     slog.Default(),
		slots:      make(chan struct{}, 4),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dispatch queues the job and returns immediately.
func (a *Async) Dispatch(_ context.Context, jobID uuid.UUID) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.wg.Add(1)
	a.mu.Unlock()

	go a.run(jobID)
	return nil
}

func (a *Async) run(jobID uuid.UUID) {
	defer a.wg.Done()

	select {
	case a.slots <- struct{}{}:
	case <-a.baseCtx.Done():
		a.logger.Warn("dispatcher stopped before job started", "job_id", jobID)
		return
	}
	defer func() { <-a.slots }()

	ctx := a.baseCtx
	cancel := func() {}
	if a.jobTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, a.jobTimeout)
	}
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("panic while processing import job", "job_id", jobID, "panic", fmt.Sprint(rec))
		}
	}()

	if err := a.runner.Process(ctx, jobID); err != nil {
		a.logger.Error("import job failed", "job_id", jobID, "error", err)
	}
}

// Wait blocks until every dispatched job has returned.
func (a *Async) Wait() {
	a.wg.Wait()
}

// Shutdown stops accepting jobs and waits for running ones. When ctx expires
// first, running jobs are cancelled and ctx's error is returned.
func (a *Async) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.baseCancel()
		return nil
	case <-ctx.Done():
		a.baseCancel()
		<-done
		return ctx.Err()
	}
}

// Package dispatch hands persisted import jobs to a processor, either inline,
// on a local goroutine pool or through a Redis list consumed by workers.
package dispatch

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrClosed is returned by dispatchers that no longer accept work.
var ErrClosed = errors.New("dispatcher is closed")

// Runner processes one job. ingestion.Processor satisfies it.
type Runner interface {
	Process(ctx context.Context, jobID uuid.UUID) error
}

// Sync runs jobs on the caller's goroutine.
type Sync struct {
	runner Runner
}

// NewSync returns a dispatcher that processes jobs inline.
func NewSync(runner Runner) *Sync {
	return &Sync{runner: runner}
}

func (s *Sync) Dispatch(ctx context.Context, jobID uuid.UUID) error {
	return s.runner.Process(ctx, jobID)
}

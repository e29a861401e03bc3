// Package stall finds import jobs that never reached a terminal state and
// marks them as failed.
package stall

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rpattn/bulkimport/internal/domain"
	"github.com/rpattn/bulkimport/internal/metrics"
	"github.com/rpattn/bulkimport/internal/repository"
)

// DefaultTimeout is how long a job may stay pending or processing.
const DefaultTimeout = 10 * time.Minute

// StalledResultMessage is stored on jobs failed by the detector.
const StalledResultMessage = "Import stalled: the job did not finish in time and was marked as failed"

const pageSize = 200

// IsStalled reports whether job is still active after timeout has elapsed
// since it was created.
func IsStalled(job domain.ImportJob, timeout time.Duration, now time.Time) bool {
	return job.IsStalled(timeout, now)
}

// Detector finds and fails stalled jobs.
type Detector struct {
	jobs    repository.ImportJobRepository
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// Option customises a Detector.
type Option func(*Detector)

func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithMetrics(recorder *metrics.Recorder) Option {
	return func(d *Detector) {
		d.metrics = recorder
	}
}

// NewDetector builds a detector. A non-positive timeout uses DefaultTimeout.
func NewDetector(jobs repository.ImportJobRepository, timeout time.Duration, opts ...Option) *Detector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := &Detector{
		jobs:    jobs,
		timeout: timeout,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Timeout returns the configured stall timeout.
func (d *Detector) Timeout() time.Duration {
	return d.timeout
}

// Now returns the detector's current time.
func (d *Detector) Now() time.Time {
	return d.now()
}

// FindStalled lists every active job older than the timeout.
func (d *Detector) FindStalled(ctx context.Context) ([]domain.ImportJob, error) {
	now := d.now()
	var stalled []domain.ImportJob
	for offset := 0; ; offset += pageSize {
		page, err := d.jobs.List(ctx, domain.ActiveImportJobStatuses, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list active import jobs: %w", err)
		}
		for _, job := range page {
			if job.IsStalled(d.timeout, now) {
				stalled = append(stalled, job)
			}
		}
		if len(page) < pageSize {
			return stalled, nil
		}
	}
}

// MarkAsFailedIfStalled fails job when it is still active and past the
// timeout. The check and the update are a single atomic store operation.
func (d *Detector) MarkAsFailedIfStalled(ctx context.Context, job domain.ImportJob) (bool, error) {
	now := d.now()
	if !job.IsStalled(d.timeout, now) {
		return false, nil
	}
	marked, err := d.jobs.MarkFailedIfStalled(ctx, job.ID, now.Add(-d.timeout), StalledResultMessage, now.UTC())
	if err != nil {
		return false, fmt.Errorf("mark import job %s as stalled: %w", job.ID, err)
	}
	if marked {
		d.logger.Warn("import job marked as stalled", "job_id", job.ID, "importer", job.ImporterName, "status", job.Status)
	}
	return marked, nil
}

// Sweep fails every stalled job and returns how many were marked.
func (d *Detector) Sweep(ctx context.Context) (int, error) {
	stalled, err := d.FindStalled(ctx)
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, job := range stalled {
		ok, err := d.MarkAsFailedIfStalled(ctx, job)
		if err != nil {
			d.metrics.StalledMarked(marked)
			return marked, err
		}
		if ok {
			marked++
		}
	}
	d.metrics.StalledMarked(marked)
	return marked, nil
}

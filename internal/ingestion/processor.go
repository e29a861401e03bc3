package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rpattn/bulkimport/internal/domain"
	"github.com/rpattn/bulkimport/internal/metrics"
	"github.com/rpattn/bulkimport/internal/repository"
	"github.com/rpattn/bulkimport/internal/schema/validator"

	"github.com/google/uuid"
)

const importerNotFoundMessage = "Importer not found"

// JobStore is the subset of repository.ImportJobRepository the processor needs.
type JobStore interface {
	JobSaver
	GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error)
}

// SourceOpener opens a stored upload by reference.
type SourceOpener interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Processor runs import jobs end to end.
type Processor struct {
	jobs      JobStore
	importers ImporterLookup
	sources   SourceOpener
	logger    *slog.Logger
	metrics   *metrics.Recorder
	now       func() time.Time
}

// ProcessorOption customises a Processor.
type ProcessorOption func(*Processor)

// WithLogger sets the processor logger.
func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records row and job metrics.
func WithMetrics(recorder *metrics.Recorder) ProcessorOption {
	return func(p *Processor) {
		p.metrics = recorder
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProcessor wires a processor.
func NewProcessor(jobs JobStore, importers ImporterLookup, sources SourceOpener, opts ...ProcessorOption) *Processor {
	p := &Processor{
		jobs:      jobs,
		importers: importers,
		sources:   sources,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the job identified by jobID. Row level problems are recorded
// on the job; the returned error is reserved for failures to load or persist
// the job itself. A job that stops being active while it runs, for example
// because the stall detector failed it, ends the run without an error.
func (p *Processor) Process(ctx context.Context, jobID uuid.UUID) error {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load import job %s: %w", jobID, err)
	}
	if !job.Status.IsActive() {
		p.logger.Warn("import job is not active; skipping", "job_id", jobID, "status", job.Status)
		return nil
	}

	logger := p.logger.With("job_id", job.ID, "importer", job.ImporterName)
	tracker := NewTracker(p.jobs, job, p.now)

	importer, ok := p.importers.Get(job.ImporterName)
	if !ok {
		logger.Error("importer not registered")
		return p.handleRunErr(ctx, logger, tracker, tracker.Abort(ctx, importerNotFoundMessage, importerNotFoundMessage))
	}

	if err := tracker.Begin(ctx); err != nil {
		return p.handleRunErr(ctx, logger, tracker, err)
	}
	p.metrics.JobStarted()
	started := p.now()
	defer func() {
		p.metrics.JobFinished(job.ImporterName, tracker.Job().Status, p.now().Sub(started))
	}()
	logger.Info("import started", "file", job.FileName, "format", job.FileFormat)

	rows, err := p.loadRows(ctx, job, importer)
	if err != nil {
		logger.Error("import failed before processing rows", "error", err)
		return p.handleSaveErr(logger, tracker.Fail(context.WithoutCancel(ctx), err))
	}

	if err := tracker.SetTotal(ctx, len(rows)); err != nil {
		return p.handleRunErr(ctx, logger, tracker, err)
	}

	labels := labelIndex(importer.Schema)
	for _, row := range rows {
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Warn("import cancelled", "processed", tracker.Job().ProcessedRows, "error", ctxErr)
			return p.handleSaveErr(logger, tracker.Fail(context.WithoutCancel(ctx), ctxErr))
		}

		raw := normalizeKeys(row.Values, labels)
		validated, errs := validator.ValidateRow(importer.Schema, row)

		var outcome domain.RowOutcome
		if len(errs) > 0 {
			outcome = domain.Failed(errs...)
			err = tracker.RecordValidationErrors(ctx, row, errs, raw)
		} else {
			outcome = ExecuteRow(ctx, importer.Action, validated)
			err = tracker.RecordOutcome(ctx, row, outcome, raw)
		}
		p.metrics.RowProcessed(job.ImporterName, outcome.Kind)
		if err != nil {
			return p.handleRunErr(ctx, logger, tracker, err)
		}
	}

	// Every row is accounted for, so the summary is written even if ctx ended.
	if err := tracker.Finish(context.WithoutCancel(ctx)); err != nil {
		return p.handleSaveErr(logger, err)
	}

	final := tracker.Job()
	logger.Info("import finished",
		"status", final.Status,
		"total", final.TotalRows,
		"success", final.SuccessRows,
		"created", final.CreatedRows,
		"updated", final.UpdatedRows,
		"errors", final.ErrorRows,
	)
	return nil
}

func (p *Processor) loadRows(ctx context.Context, job domain.ImportJob, importer Importer) ([]domain.RawRow, error) {
	format, err := ParseFormat(job.FileFormat)
	if err != nil {
		return nil, err
	}

	source, err := p.sources.Open(ctx, job.SourceRef)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = source.Close() }()

	payload, err := io.ReadAll(source)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	return Extract(format, payload, ExtractOptions{HeaderRow: importer.HeaderRow})
}

// handleRunErr is handleSaveErr for saves made while the job is running. When
// the save failed because ctx ended, the job is failed on a detached context
// so it still reaches a terminal state.
func (p *Processor) handleRunErr(ctx context.Context, logger *slog.Logger, tracker *Tracker, err error) error {
	ctxErr := ctx.Err()
	if err == nil || ctxErr == nil || errors.Is(err, repository.ErrImportJobStatusConflict) {
		return p.handleSaveErr(logger, err)
	}
	logger.Warn("import interrupted", "processed", tracker.Job().ProcessedRows, "error", ctxErr)
	return p.handleSaveErr(logger, tracker.Fail(context.WithoutCancel(ctx), ctxErr))
}

func (p *Processor) handleSaveErr(logger *slog.Logger, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrImportJobStatusConflict) {
		logger.Warn("import job is no longer active; stopping", "error", err)
		return nil
	}
	return err
}

func labelIndex(schema domain.FieldSchema) map[string]string {
	index := make(map[string]string, schema.Len())
	for _, field := range schema.Fields() {
		if field.Label != field.Name {
			index[field.Label] = field.Name
		}
	}
	return index
}

// normalizeKeys renames label keys to field names so stored error data uses
// a single vocabulary.
func normalizeKeys(values map[string]any, labels map[string]string) map[string]any {
	out := make(map[string]any, len(values))
	for key, value := range values {
		if name, ok := labels[key]; ok {
			if _, taken := values[name]; taken {
				out[key] = value
				continue
			}
			key = name
		}
		out[key] = value
	}
	return out
}

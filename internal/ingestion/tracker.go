package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/bulkimport/internal/domain"
)

// progressEvery is the row cadence of progress log entries.
const progressEvery = 10

// JobSaver persists job state. repository.ImportJobRepository satisfies it.
type JobSaver interface {
	Save(ctx context.Context, job domain.ImportJob) error
}

// Tracker owns the in-flight state of one job. Every mutation is persisted
// before the method returns. A Tracker is not safe for concurrent use.
type Tracker struct {
	store JobSaver
	job   domain.ImportJob
	now   func() time.Time
}

// NewTracker wraps job. now defaults to time.Now.
func NewTracker(store JobSaver, job domain.ImportJob, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	job = job.Clone()
	if job.ErrorDetails == nil {
		job.ErrorDetails = []domain.ErrorDetail{}
	}
	if job.ProgressLog == nil {
		job.ProgressLog = []domain.ProgressEntry{}
	}
	return &Tracker{store: store, job: job, now: now}
}

// Job returns a snapshot of the tracked job.
func (t *Tracker) Job() domain.ImportJob {
	return t.job.Clone()
}

// Begin moves the job to processing.
func (t *Tracker) Begin(ctx context.Context) error {
	started := t.now().UTC()
	t.job.Status = domain.ImportJobStatusProcessing
	t.job.StartedAt = &started
	t.appendLog("Starting import...", domain.ProgressLevelInfo)
	return t.save(ctx)
}

// SetTotal records the number of rows found in the source.
func (t *Tracker) SetTotal(ctx context.Context, total int) error {
	t.job.TotalRows = total
	t.appendLog(fmt.Sprintf("Found %d rows to process", total), domain.ProgressLevelInfo)
	return t.save(ctx)
}

// RecordOutcome accounts for one processed row. raw is attached to the error
// details when the outcome is an error.
func (t *Tracker) RecordOutcome(ctx context.Context, row domain.RawRow, outcome domain.RowOutcome, raw map[string]any) error {
	t.job.ProcessedRows++

	switch outcome.Kind {
	case domain.OutcomeCreated:
		t.job.SuccessRows++
		t.job.CreatedRows++
	case domain.OutcomeUpdated:
		t.job.SuccessRows++
		t.job.UpdatedRows++
	case domain.OutcomeSkipped:
	default:
		messages := outcome.Messages
		if len(messages) == 0 {
			messages = []string{unknownErrorMessage}
		}
		t.job.ErrorRows++
		t.job.ErrorDetails = append(t.job.ErrorDetails, domain.ErrorDetail{
			RowNumber: row.Number,
			Messages:  append([]string(nil), messages...),
			RawData:   SerializableMap(raw),
		})
		t.appendLog(fmt.Sprintf("Row %d: %s", row.Number, strings.Join(messages, ", ")), domain.ProgressLevelError)
	}

	processed := t.job.ProcessedRows
	if processed%progressEvery == 0 || processed == t.job.TotalRows {
		t.appendLog(fmt.Sprintf("Processed %d of %d rows (%d created, %d updated)...",
			processed, t.job.TotalRows, t.job.CreatedRows, t.job.UpdatedRows), domain.ProgressLevelInfo)
	}

	return t.save(ctx)
}

// RecordValidationErrors accounts for a row rejected by schema validation.
func (t *Tracker) RecordValidationErrors(ctx context.Context, row domain.RawRow, messages []string, raw map[string]any) error {
	return t.RecordOutcome(ctx, row, domain.Failed(messages...), raw)
}

// Log appends a progress entry.
func (t *Tracker) Log(ctx context.Context, message string, level domain.ProgressLevel) error {
	t.appendLog(message, level)
	return t.save(ctx)
}

// Finish selects the terminal status from the counters and writes the
// result message.
func (t *Tracker) Finish(ctx context.Context) error {
	completed := t.now().UTC()
	t.job.CompletedAt = &completed
	t.job.Status = domain.DetermineStatus(t.job.SuccessRows, t.job.ErrorRows)
	t.job.ResultMessage = ResultMessage(t.job)

	level := domain.ProgressLevelWarning
	if t.job.Status == domain.ImportJobStatusSuccess {
		level = domain.ProgressLevelSuccess
	}
	t.appendLog(t.job.ResultMessage, level)
	return t.save(ctx)
}

// Fail terminates the job because of err, keeping the counters reached so far.
func (t *Tracker) Fail(ctx context.Context, err error) error {
	return t.Abort(ctx, "Import error: "+err.Error(), "Error: "+err.Error())
}

// Abort marks the job failed with resultMessage and logs logMessage at error level.
func (t *Tracker) Abort(ctx context.Context, resultMessage, logMessage string) error {
	completed := t.now().UTC()
	t.job.CompletedAt = &completed
	t.job.Status = domain.ImportJobStatusFailed
	t.job.ResultMessage = resultMessage
	t.appendLog(logMessage, domain.ProgressLevelError)
	return t.save(ctx)
}

// ResultMessage renders the summary of a finished job.
func ResultMessage(job domain.ImportJob) string {
	counts := ""
	if job.CreatedRows > 0 || job.UpdatedRows > 0 {
		counts = fmt.Sprintf(" (%d created, %d updated)", job.CreatedRows, job.UpdatedRows)
	}
	switch domain.DetermineStatus(job.SuccessRows, job.ErrorRows) {
	case domain.ImportJobStatusSuccess:
		return fmt.Sprintf("Import completed successfully. %d rows processed%s.", job.SuccessRows, counts)
	case domain.ImportJobStatusPartial:
		return fmt.Sprintf("Partial import. %d succeeded%s, %d with errors.", job.SuccessRows, counts, job.ErrorRows)
	default:
		return "Import failed. All rows had errors."
	}
}

func (t *Tracker) appendLog(message string, level domain.ProgressLevel) {
	t.job.ProgressLog = append(t.job.ProgressLog, domain.ProgressEntry{
		Timestamp: t.now().UTC(),
		Message:   message,
		Level:     level,
		Processed: t.job.ProcessedRows,
		Total:     t.job.TotalRows,
	})
}

func (t *Tracker) save(ctx context.Context) error {
	if err := t.store.Save(ctx, t.job); err != nil {
		return fmt.Errorf("save import job %s: %w", t.job.ID, err)
	}
	return nil
}

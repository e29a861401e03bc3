package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/rpattn/bulkimport/internal/domain"
	"github.com/rpattn/bulkimport/internal/repository"

	"github.com/google/uuid"
)

// ErrRerunNotAllowed is returned when a job cannot be run again.
var ErrRerunNotAllowed = errors.New("import job cannot be re-run")

// Dispatcher hands a persisted job to whatever will process it.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID uuid.UUID) error
}

// UploadStore keeps uploaded sources so jobs can be processed later and re-run.
type UploadStore interface {
	SourceOpener
	Save(ctx context.Context, name string, data io.Reader) (string, error)
}

// ImporterCatalog lists registered importers.
type ImporterCatalog interface {
	ImporterLookup
	All() []Importer
}

// Service is the entry point for starting and inspecting imports.
type Service struct {
	jobs       repository.ImportJobRepository
	importers  ImporterCatalog
	uploads    UploadStore
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServiceClock overrides time.Now.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the import service.
func NewService(
	jobs repository.ImportJobRepository,
	importers ImporterCatalog,
	uploads UploadStore,
	dispatcher Dispatcher,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		jobs:       jobs,
		importers:  importers,
		uploads:    uploads,
		dispatcher: dispatcher,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ImportRequest describes an upload to import. Format may be empty, in which
// case it is derived from the file name extension.
type ImportRequest struct {
	ImporterName string
	Format       string
	FileName     string
	Data         io.Reader
	CreatedBy    string
}

// ProgressReport is the polling view of a job.
type ProgressReport struct {
	ID                 uuid.UUID              `json:"id"`
	Status             domain.ImportJobStatus `json:"status"`
	TotalRows          int                    `json:"total_rows"`
	ProcessedRows      int                    `json:"processed_rows"`
	SuccessRows        int                    `json:"success_rows"`
	CreatedRows        int                    `json:"created_rows"`
	UpdatedRows        int                    `json:"updated_rows"`
	ErrorRows          int                    `json:"error_rows"`
	ProgressPercentage float64                `json:"progress_percentage"`
	ProgressLog        []domain.ProgressEntry `json:"progress_log"`
	ResultMessage      string                 `json:"result_message"`
	Finished           bool                   `json:"finished"`
}

// Importers returns the registered importers.
func (s *Service) Importers() []Importer {
	return s.importers.All()
}

// Importer resolves one importer by name.
func (s *Service) Importer(name string) (Importer, error) {
	importer, ok := s.importers.Get(name)
	if !ok {
		return Importer{}, fmt.Errorf("%w: %s", ErrImporterNotFound, name)
	}
	return importer, nil
}

// StartImport stores the upload, creates a pending job and dispatches it once.
func (s *Service) StartImport(ctx context.Context, req ImportRequest) (domain.ImportJob, error) {
	importer, err := s.Importer(strings.TrimSpace(req.ImporterName))
	if err != nil {
		return domain.ImportJob{}, err
	}
	if req.Data == nil {
		return domain.ImportJob{}, errors.New("import data is required")
	}

	formatTag := req.Format
	if strings.TrimSpace(formatTag) == "" {
		formatTag = filepath.Ext(req.FileName)
	}
	format, err := ParseFormat(formatTag)
	if err != nil {
		return domain.ImportJob{}, err
	}

	fileName := strings.TrimSpace(filepath.Base(req.FileName))
	if fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
		fileName = "upload" + format.Extension()
	}

	ref, err := s.uploads.Save(ctx, fileName, req.Data)
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("store upload: %w", err)
	}

	job, err := s.jobs.Create(ctx, domain.ImportJob{
		ImporterName:  importer.Name,
		ImporterLabel: importer.DisplayLabel(),
		FileFormat:    string(format),
		FileName:      fileName,
		SourceRef:     ref,
		Status:        domain.ImportJobStatusPending,
		CanRerun:      importer.CanRerun,
		CreatedBy:     req.CreatedBy,
		CreatedAt:     s.now().UTC(),
	})
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("create import job: %w", err)
	}

	return s.dispatch(ctx, job)
}

// Rerun creates a new job over the source of a finished job.
func (s *Service) Rerun(ctx context.Context, id uuid.UUID, createdBy string) (domain.ImportJob, error) {
	previous, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return domain.ImportJob{}, err
	}
	if !previous.CanRerun {
		return domain.ImportJob{}, fmt.Errorf("%w: importer %s does not allow re-runs", ErrRerunNotAllowed, previous.ImporterName)
	}
	if !previous.Status.IsTerminal() {
		return domain.ImportJob{}, fmt.Errorf("%w: job is still %s", ErrRerunNotAllowed, previous.Status)
	}

	rerunOf := previous.ID
	job, err := s.jobs.Create(ctx, domain.ImportJob{
		ImporterName:  previous.ImporterName,
		ImporterLabel: previous.ImporterLabel,
		FileFormat:    previous.FileFormat,
		FileName:      previous.FileName,
		SourceRef:     previous.SourceRef,
		Status:        domain.ImportJobStatusPending,
		CanRerun:      previous.CanRerun,
		RerunOf:       &rerunOf,
		CreatedBy:     createdBy,
		CreatedAt:     s.now().UTC(),
	})
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("create re-run job: %w", err)
	}

	s.logger.Info("import re-run created", "job_id", job.ID, "rerun_of", previous.ID)
	return s.dispatch(ctx, job)
}

// GetJob loads one job.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (domain.ImportJob, error) {
	return s.jobs.GetByID(ctx, id)
}

// ListJobs returns jobs newest first.
func (s *Service) ListJobs(ctx context.Context, statuses []domain.ImportJobStatus, limit, offset int) ([]domain.ImportJob, error) {
	return s.jobs.List(ctx, statuses, limit, offset)
}

// Progress returns the polling view of a job.
func (s *Service) Progress(ctx context.Context, id uuid.UUID) (ProgressReport, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return ProgressReport{}, err
	}
	log := job.ProgressLog
	if log == nil {
		log = []domain.ProgressEntry{}
	}
	return ProgressReport{
		ID:                 job.ID,
		Status:             job.Status,
		TotalRows:          job.TotalRows,
		ProcessedRows:      job.ProcessedRows,
		SuccessRows:        job.SuccessRows,
		CreatedRows:        job.CreatedRows,
		UpdatedRows:        job.UpdatedRows,
		ErrorRows:          job.ErrorRows,
		ProgressPercentage: job.ProgressPercentage(),
		ProgressLog:        log,
		ResultMessage:      job.ResultMessage,
		Finished:           job.Status.IsTerminal(),
	}, nil
}

func (s *Service) dispatch(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	if err := s.dispatcher.Dispatch(ctx, job.ID); err != nil {
		s.logger.Error("failed to dispatch import job", "job_id", job.ID, "error", err)
		s.markDispatchFailed(ctx, job, err)
		return domain.ImportJob{}, fmt.Errorf("dispatch import job %s: %w", job.ID, err)
	}

	// Synchronous dispatchers have already finished the job.
	refreshed, err := s.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return job, nil
	}
	return refreshed, nil
}

func (s *Service) markDispatchFailed(ctx context.Context, job domain.ImportJob, cause error) {
	tracker := NewTracker(s.jobs, job, s.now)
	if err := tracker.Abort(context.WithoutCancel(ctx), "Dispatch error: "+cause.Error(), "Error: "+cause.Error()); err != nil {
		s.logger.Warn("failed to mark undispatched job as failed", "job_id", job.ID, "error", err)
	}
}

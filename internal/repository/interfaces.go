package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rpattn/bulkimport/internal/domain"

	"github.com/google/uuid"
)

var (
	// ErrImportJobNotFound is returned when no job exists for an id.
	ErrImportJobNotFound = errors.New("import job not found")
	// ErrImportJobStatusConflict indicates the persisted job is no longer active
	// and cannot be overwritten.
	ErrImportJobStatusConflict = errors.New("import job status conflict")
)

// ImportJobRepository persists import jobs.
type ImportJobRepository interface {
	Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error)
	// List returns jobs newest first. An empty status list matches every job.
	List(ctx context.Context, statuses []domain.ImportJobStatus, limit int, offset int) ([]domain.ImportJob, error)
	// Save overwrites the mutable state of a job whose persisted status is
	// still pending or processing; otherwise it returns ErrImportJobStatusConflict.
	Save(ctx context.Context, job domain.ImportJob) error
	// MarkFailedIfStalled atomically fails the job when it is still active and
	// was created before createdBefore. It reports whether a row changed.
	MarkFailedIfStalled(ctx context.Context, id uuid.UUID, createdBefore time.Time, message string, completedAt time.Time) (bool, error)
}

// SaleRepository persists the example sales entity.
type SaleRepository interface {
	Create(ctx context.Context, sale domain.Sale) (domain.Sale, error)
	// UpsertByProducto updates the sale with the same producto or inserts a
	// new one. The boolean is true when a row was inserted.
	UpsertByProducto(ctx context.Context, sale domain.Sale) (domain.Sale, bool, error)
	List(ctx context.Context, limit int, offset int) ([]domain.Sale, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

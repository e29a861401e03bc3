package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/bulkimport/internal/db"
	"github.com/rpattn/bulkimport/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const importJobColumns = `id, importer_name, importer_label, file_format, file_name, source_ref, status,
	total_rows, processed_rows, success_rows, created_rows, updated_rows, error_rows,
	error_details, progress_log, result_message, can_rerun, rerun_of, created_by,
	created_at, started_at, completed_at`

type importJobRepository struct {
	pool *pgxpool.Pool
}

// NewImportJobRepository wires a repository backed by pgxpool.
func NewImportJobRepository(pool *pgxpool.Pool) ImportJobRepository {
	return &importJobRepository{pool: pool}
}

func (r *importJobRepository) Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	if r.pool == nil {
		return domain.ImportJob{}, fmt.Errorf("import job repository not initialized")
	}

	job = withCreateDefaults(job, time.Now)
	errorDetails, err := job.ErrorDetailsToJSON()
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to encode error details: %w", err)
	}
	progressLog, err := job.ProgressLogToJSON()
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to encode progress log: %w", err)
	}

	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO import_jobs (
			id, importer_name, importer_label, file_format, file_name, source_ref, status,
			total_rows, processed_rows, success_rows, created_rows, updated_rows, error_rows,
			error_details, progress_log, result_message, can_rerun, rerun_of, created_by,
			created_at, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING `+importJobColumns,
		job.ID,
		job.ImporterName,
		job.ImporterLabel,
		job.FileFormat,
		job.FileName,
		job.SourceRef,
		string(job.Status),
		job.TotalRows,
		job.ProcessedRows,
		job.SuccessRows,
		job.CreatedRows,
		job.UpdatedRows,
		job.ErrorRows,
		errorDetails,
		progressLog,
		job.ResultMessage,
		job.CanRerun,
		job.RerunOf,
		job.CreatedBy,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
	)

	created, err := scanPostgresImportJob(row)
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to create import job: %w", err)
	}
	return created, nil
}

func (r *importJobRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error) {
	if r.pool == nil {
		return domain.ImportJob{}, fmt.Errorf("import job repository not initialized")
	}

	row := r.pool.QueryRow(ctx, `SELECT `+importJobColumns+` FROM import_jobs WHERE id = $1`, id)
	job, err := scanPostgresImportJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ImportJob{}, ErrImportJobNotFound
		}
		return domain.ImportJob{}, fmt.Errorf("failed to get import job: %w", err)
	}
	return job, nil
}

func (r *importJobRepository) List(ctx context.Context, statuses []domain.ImportJobStatus, limit int, offset int) ([]domain.ImportJob, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("import job repository not initialized")
	}

	limit, offset = normalizePage(limit, offset)
	rows, err := r.pool.Query(
		ctx,
		`SELECT `+importJobColumns+`
		 FROM import_jobs
		 WHERE cardinality($1::text[]) = 0 OR status = ANY($1::text[])
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		statusStrings(statuses),
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	defer rows.Close()

	jobs := []domain.ImportJob{}
	for rows.Next() {
		job, scanErr := scanPostgresImportJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan import job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate import jobs: %w", rowsErr)
	}
	return jobs, nil
}

func (r *importJobRepository) Save(ctx context.Context, job domain.ImportJob) error {
	if r.pool == nil {
		return fmt.Errorf("import job repository not initialized")
	}

	errorDetails, err := job.ErrorDetailsToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode error details: %w", err)
	}
	progressLog, err := job.ProgressLogToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode progress log: %w", err)
	}

	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(
			ctx,
			`UPDATE import_jobs
			 SET importer_label = $2,
			     file_format = $3,
			     file_name = $4,
			     source_ref = $5,
			     status = $6,
			     total_rows = $7,
			     processed_rows = $8,
			     success_rows = $9,
			     created_rows = $10,
			     updated_rows = $11,
			     error_rows = $12,
			     error_details = $13,
			     progress_log = $14,
			     result_message = $15,
			     can_rerun = $16,
			     started_at = $17,
			     completed_at = $18
			 WHERE id = $1
			   AND status IN ('pending', 'processing')`,
			job.ID,
			job.ImporterLabel,
			job.FileFormat,
			job.FileName,
			job.SourceRef,
			string(job.Status),
			job.TotalRows,
			job.ProcessedRows,
			job.SuccessRows,
			job.CreatedRows,
			job.UpdatedRows,
			job.ErrorRows,
			errorDetails,
			progressLog,
			job.ResultMessage,
			job.CanRerun,
			job.StartedAt,
			job.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save import job: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}

		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM import_jobs WHERE id = $1)`, job.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check import job: %w", err)
		}
		if !exists {
			return ErrImportJobNotFound
		}
		return ErrImportJobStatusConflict
	})
}

func (r *importJobRepository) MarkFailedIfStalled(ctx context.Context, id uuid.UUID, createdBefore time.Time, message string, completedAt time.Time) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("import job repository not initialized")
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE import_jobs
		 SET status = 'failed',
		     result_message = $2,
		     completed_at = $3
		 WHERE id = $1
		   AND status IN ('pending', 'processing')
		   AND created_at < $4`,
		id,
		message,
		completedAt,
		createdBefore,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark import job as stalled: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanPostgresImportJob(row pgx.Row) (domain.ImportJob, error) {
	var (
		job          domain.ImportJob
		status       string
		errorDetails []byte
		progressLog  []byte
		rerunOf      pgtype.UUID
		createdAt    pgtype.Timestamptz
		startedAt    pgtype.Timestamptz
		completedAt  pgtype.Timestamptz
	)
	if err := row.Scan(
		&job.ID,
		&job.ImporterName,
		&job.ImporterLabel,
		&job.FileFormat,
		&job.FileName,
		&job.SourceRef,
		&status,
		&job.TotalRows,
		&job.ProcessedRows,
		&job.SuccessRows,
		&job.CreatedRows,
		&job.UpdatedRows,
		&job.ErrorRows,
		&errorDetails,
		&progressLog,
		&job.ResultMessage,
		&job.CanRerun,
		&rerunOf,
		&job.CreatedBy,
		&createdAt,
		&startedAt,
		&completedAt,
	); err != nil {
		return domain.ImportJob{}, err
	}

	job.Status = domain.ImportJobStatus(status)
	if rerunOf.Valid {
		id := uuid.UUID(rerunOf.Bytes)
		job.RerunOf = &id
	}
	if createdAt.Valid {
		job.CreatedAt = createdAt.Time.UTC()
	}
	job.StartedAt = timestamptzPtr(startedAt)
	job.CompletedAt = timestamptzPtr(completedAt)

	var err error
	if job.ErrorDetails, err = domain.ErrorDetailsFromJSON(errorDetails); err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to decode error details: %w", err)
	}
	if job.ProgressLog, err = domain.ProgressLogFromJSON(progressLog); err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to decode progress log: %w", err)
	}
	return job, nil
}

func timestamptzPtr(value pgtype.Timestamptz) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

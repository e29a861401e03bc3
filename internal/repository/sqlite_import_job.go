package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/bulkimport/internal/domain"

	"github.com/google/uuid"
)

// sqliteTimeLayout is fixed width so stored timestamps compare as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteImportJobRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteImportJobRepository stores jobs in a SQLite database migrated
// with db.RunSQLiteMigrations.
func NewSQLiteImportJobRepository(db *sql.DB) ImportJobRepository {
	return &sqliteImportJobRepository{db: db, now: time.Now}
}

func (r *sqliteImportJobRepository) Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	job = withCreateDefaults(job, r.now)
	errorDetails, err := job.ErrorDetailsToJSON()
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to encode error details: %w", err)
	}
	progressLog, err := job.ProgressLogToJSON()
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to encode progress log: %w", err)
	}

	var rerunOf any
	if job.RerunOf != nil {
		rerunOf = job.RerunOf.String()
	}

	_, err = r.db.ExecContext(
		ctx,
		`INSERT INTO import_jobs (
			id, importer_name, importer_label, file_format, file_name, source_ref, status,
			total_rows, processed_rows, success_rows, created_rows, updated_rows, error_rows,
			error_details, progress_log, result_message, can_rerun, rerun_of, created_by,
			created_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(),
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
		string(errorDetails),
		string(progressLog),
		job.ResultMessage,
		job.CanRerun,
		rerunOf,
		job.CreatedBy,
		formatSQLiteTime(job.CreatedAt),
		formatSQLiteTimePtr(job.StartedAt),
		formatSQLiteTimePtr(job.CompletedAt),
	)
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to create import job: %w", err)
	}
	return r.GetByID(ctx, job.ID)
}

func (r *sqliteImportJobRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+importJobColumns+` FROM import_jobs WHERE id = ?`, id.String())
	job, err := scanSQLiteImportJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ImportJob{}, ErrImportJobNotFound
		}
		return domain.ImportJob{}, fmt.Errorf("failed to get import job: %w", err)
	}
	return job, nil
}

func (r *sqliteImportJobRepository) List(ctx context.Context, statuses []domain.ImportJobStatus, limit int, offset int) ([]domain.ImportJob, error) {
	limit, offset = normalizePage(limit, offset)

	query := `SELECT ` + importJobColumns + ` FROM import_jobs`
	args := make([]any, 0, len(statuses)+2)
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	defer rows.Close()

	jobs := []domain.ImportJob{}
	for rows.Next() {
		job, scanErr := scanSQLiteImportJob(rows)
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

func (r *sqliteImportJobRepository) Save(ctx context.Context, job domain.ImportJob) error {
	errorDetails, err := job.ErrorDetailsToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode error details: %w", err)
	}
	progressLog, err := job.ProgressLogToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode progress log: %w", err)
	}

	result, err := r.db.ExecContext(
		ctx,
		`UPDATE import_jobs
		 SET importer_label = ?,
		     file_format = ?,
		     file_name = ?,
		     source_ref = ?,
		     status = ?,
		     total_rows = ?,
		     processed_rows = ?,
		     success_rows = ?,
		     created_rows = ?,
		     updated_rows = ?,
		     error_rows = ?,
		     error_details = ?,
		     progress_log = ?,
		     result_message = ?,
		     can_rerun = ?,
		     started_at = ?,
		     completed_at = ?
		 WHERE id = ?
		   AND status IN ('pending', 'processing')`,
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
		string(errorDetails),
		string(progressLog),
		job.ResultMessage,
		job.CanRerun,
		formatSQLiteTimePtr(job.StartedAt),
		formatSQLiteTimePtr(job.CompletedAt),
		job.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save import job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save import job: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM import_jobs WHERE id = ?`, job.ID.String()).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check import job: %w", err)
	}
	if exists == 0 {
		return ErrImportJobNotFound
	}
	return ErrImportJobStatusConflict
}

func (r *sqliteImportJobRepository) MarkFailedIfStalled(ctx context.Context, id uuid.UUID, createdBefore time.Time, message string, completedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE import_jobs
		 SET status = 'failed',
		     result_message = ?,
		     completed_at = ?
		 WHERE id = ?
		   AND status IN ('pending', 'processing')
		   AND created_at < ?`,
		message,
		formatSQLiteTime(completedAt),
		id.String(),
		formatSQLiteTime(createdBefore),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark import job as stalled: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark import job as stalled: %w", err)
	}
	return affected == 1, nil
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteImportJob(row sqlScanner) (domain.ImportJob, error) {
	var (
		job          domain.ImportJob
		id           string
		status       string
		errorDetails string
		progressLog  string
		rerunOf      sql.NullString
		createdAt    string
		startedAt    sql.NullString
		completedAt  sql.NullString
	)
	if err := row.Scan(
		&id,
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

	var err error
	if job.ID, err = uuid.Parse(id); err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to parse job id: %w", err)
	}
	job.Status = domain.ImportJobStatus(status)
	if rerunOf.Valid {
		previous, parseErr := uuid.Parse(rerunOf.String)
		if parseErr != nil {
			return domain.ImportJob{}, fmt.Errorf("failed to parse rerun_of: %w", parseErr)
		}
		job.RerunOf = &previous
	}
	if job.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return domain.ImportJob{}, err
	}
	if job.StartedAt, err = parseSQLiteTimePtr(startedAt); err != nil {
		return domain.ImportJob{}, err
	}
	if job.CompletedAt, err = parseSQLiteTimePtr(completedAt); err != nil {
		return domain.ImportJob{}, err
	}
	if job.ErrorDetails, err = domain.ErrorDetailsFromJSON([]byte(errorDetails)); err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to decode error details: %w", err)
	}
	if job.ProgressLog, err = domain.ProgressLogFromJSON([]byte(progressLog)); err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to decode progress log: %w", err)
	}
	return job, nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func formatSQLiteTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatSQLiteTime(*t)
}

func parseSQLiteTime(value string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, value)
	if err != nil {
		// Rows written by SQLite defaults use CURRENT_TIMESTAMP.
		if fallback, fbErr := time.Parse(time.DateTime, value); fbErr == nil {
			return fallback.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}

func parseSQLiteTimePtr(value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	t, err := parseSQLiteTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

package repository

import (
	"time"

	"github.com/rpattn/bulkimport/internal/domain"

	"github.com/google/uuid"
)

// withCreateDefaults fills the identity and bookkeeping fields of a new job.
func withCreateDefaults(job domain.ImportJob, now func() time.Time) domain.ImportJob {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = domain.ImportJobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now().UTC()
	}
	if job.ErrorDetails == nil {
		job.ErrorDetails = []domain.ErrorDetail{}
	}
	if job.ProgressLog == nil {
		job.ProgressLog = []domain.ProgressEntry{}
	}
	return job
}

func statusStrings(statuses []domain.ImportJobStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}

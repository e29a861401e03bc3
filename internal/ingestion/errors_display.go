package ingestion

import (
	"fmt"

	"github.com/rpattn/bulkimport/internal/domain"
)

// DefaultErrorDisplayLimit caps the error details rendered for a job.
const DefaultErrorDisplayLimit = 50

// ErrorDisplay is a capped view over a job's error details.
type ErrorDisplay struct {
	Errors  []domain.ErrorDetail `json:"errors"`
	Hidden  int                  `json:"hidden"`
	Summary string               `json:"summary,omitempty"`
}

// DisplayErrors keeps the first limit details; limit <= 0 uses the default.
func DisplayErrors(details []domain.ErrorDetail, limit int) ErrorDisplay {
	if limit <= 0 {
		limit = DefaultErrorDisplayLimit
	}
	if len(details) <= limit {
		shown := append([]domain.ErrorDetail{}, details...)
		return ErrorDisplay{Errors: shown}
	}
	hidden := len(details) - limit
	return ErrorDisplay{
		Errors:  append([]domain.ErrorDetail{}, details[:limit]...),
		Hidden:  hidden,
		Summary: fmt.Sprintf("... and %d more errors", hidden),
	}
}

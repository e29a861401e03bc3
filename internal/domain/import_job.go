package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ImportJobStatus captures lifecycle state for an import run.
type ImportJobStatus string

const (
	ImportJobStatusPending    ImportJobStatus = "pending"
	ImportJobStatusProcessing ImportJobStatus = "processing"
	ImportJobStatusSuccess    ImportJobStatus = "success"
	ImportJobStatusPartial    ImportJobStatus = "partial"
	ImportJobStatusFailed     ImportJobStatus = "failed"
)

// ActiveImportJobStatuses are the non-terminal states.
var ActiveImportJobStatuses = []ImportJobStatus{ImportJobStatusPending, ImportJobStatusProcessing}

// IsTerminal reports whether no further transition is allowed.
func (s ImportJobStatus) IsTerminal() bool {
	return s == ImportJobStatusSuccess || s == ImportJobStatusPartial || s == ImportJobStatusFailed
}

// IsActive reports whether the job is pending or processing.
func (s ImportJobStatus) IsActive() bool {
	return s == ImportJobStatusPending || s == ImportJobStatusProcessing
}

// ProgressLevel classifies a progress log entry.
type ProgressLevel string

const (
	ProgressLevelInfo    ProgressLevel = "info"
	ProgressLevelSuccess ProgressLevel = "success"
	ProgressLevelWarning ProgressLevel = "warning"
	ProgressLevelError   ProgressLevel = "error"
)

// ProgressEntry is one line of the human readable progress timeline.
type ProgressEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message"`
	Level     ProgressLevel `json:"level"`
	Processed int           `json:"processed"`
	Total     int           `json:"total"`
}

// ErrorDetail records why one source row was rejected. RawData only holds
// JSON-safe scalars.
type ErrorDetail struct {
	RowNumber int            `json:"row"`
	Messages  []string       `json:"errors"`
	RawData   map[string]any `json:"data"`
}

// ImportJob mirrors persisted import run state for dashboards and workers.
type ImportJob struct {
	ID            uuid.UUID       `json:"id"`
	ImporterName  string          `json:"importer_name"`
	ImporterLabel string          `json:"importer_label"`
	FileFormat    string          `json:"file_format"`
	FileName      string          `json:"file_name"`
	SourceRef     string          `json:"source_ref"`
	Status        ImportJobStatus `json:"status"`
	TotalRows     int             `json:"total_rows"`
	ProcessedRows int             `json:"processed_rows"`
	SuccessRows   int             `json:"success_rows"`
	CreatedRows   int             `json:"created_rows"`
	UpdatedRows   int             `json:"updated_rows"`
	ErrorRows     int             `json:"error_rows"`
	ErrorDetails  []ErrorDetail   `json:"error_details"`
	ProgressLog   []ProgressEntry `json:"progress_log"`
	ResultMessage string          `json:"result_message"`
	CanRerun      bool            `json:"can_rerun"`
	RerunOf       *uuid.UUID      `json:"rerun_of,omitempty"`
	CreatedBy     string          `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// IsStalled reports whether the job has sat in a non-terminal state for
// longer than timeout.
func (j ImportJob) IsStalled(timeout time.Duration, now time.Time) bool {
	if !j.Status.IsActive() {
		return false
	}
	return now.Sub(j.CreatedAt) > timeout
}

// Duration is the wall time between start and completion.
func (j ImportJob) Duration() (time.Duration, bool) {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0, false
	}
	return j.CompletedAt.Sub(*j.StartedAt), true
}

// SuccessRate is success_rows as a percentage of total_rows.
func (j ImportJob) SuccessRate() float64 {
	if j.TotalRows <= 0 {
		return 0
	}
	return float64(j.SuccessRows) / float64(j.TotalRows) * 100
}

// ProgressPercentage is processed_rows as a percentage of total_rows.
func (j ImportJob) ProgressPercentage() float64 {
	if j.TotalRows <= 0 {
		return 0
	}
	return float64(j.ProcessedRows) / float64(j.TotalRows) * 100
}

// DetermineStatus selects the terminal state for a run that finished
// processing its rows.
func DetermineStatus(successRows, errorRows int) ImportJobStatus {
	switch {
	case errorRows == 0:
		return ImportJobStatusSuccess
	case successRows > 0:
		return ImportJobStatusPartial
	default:
		return ImportJobStatusFailed
	}
}

// ErrorDetailsToJSON marshals error details into the JSON layout stored by repositories.
func (j ImportJob) ErrorDetailsToJSON() (json.RawMessage, error) {
	details := j.ErrorDetails
	if details == nil {
		details = []ErrorDetail{}
	}
	return json.Marshal(details)
}

// ProgressLogToJSON marshals the progress log for storage.
func (j ImportJob) ProgressLogToJSON() (json.RawMessage, error) {
	entries := j.ProgressLog
	if entries == nil {
		entries = []ProgressEntry{}
	}
	return json.Marshal(entries)
}

// ErrorDetailsFromJSON hydrates persisted error details.
func ErrorDetailsFromJSON(data []byte) ([]ErrorDetail, error) {
	if len(data) == 0 {
		return []ErrorDetail{}, nil
	}
	var details []ErrorDetail
	if err := json.Unmarshal(data, &details); err != nil {
		return nil, err
	}
	if details == nil {
		details = []ErrorDetail{}
	}
	return details, nil
}

// ProgressLogFromJSON hydrates a persisted progress log.
func ProgressLogFromJSON(data []byte) ([]ProgressEntry, error) {
	if len(data) == 0 {
		return []ProgressEntry{}, nil
	}
	var entries []ProgressEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []ProgressEntry{}
	}
	return entries, nil
}

// Clone returns a deep copy so callers can mutate without aliasing slices.
func (j ImportJob) Clone() ImportJob {
	clone := j
	if j.ErrorDetails != nil {
		clone.ErrorDetails = make([]ErrorDetail, len(j.ErrorDetails))
		for i, detail := range j.ErrorDetails {
			detail.Messages = append([]string(nil), detail.Messages...)
			if detail.RawData != nil {
				data := make(map[string]any, len(detail.RawData))
				for k, v := range detail.RawData {
					data[k] = v
				}
				detail.RawData = data
			}
			clone.ErrorDetails[i] = detail
		}
	}
	if j.ProgressLog != nil {
		clone.ProgressLog = append([]ProgressEntry(nil), j.ProgressLog...)
	}
	if j.RerunOf != nil {
		id := *j.RerunOf
		clone.RerunOf = &id
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		clone.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		clone.CompletedAt = &t
	}
	return clone
}

package ingestion

import (
	"context"
	"fmt"

	"github.com/rpattn/bulkimport/internal/domain"
)

const unknownErrorMessage = "Unknown error"

// ActionFunc applies one validated row to the destination. Returning an
// error is equivalent to returning domain.Failed with the error text.
type ActionFunc func(ctx context.Context, row domain.ValidatedRow) (domain.RowOutcome, error)

// ExecuteRow runs action for one row and classifies the result. Errors and
// panics raised by the action are converted into an error outcome so that a
// single bad row never aborts the job.
func ExecuteRow(ctx context.Context, action ActionFunc, row domain.ValidatedRow) (outcome domain.RowOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = domain.Failed(fmt.Sprintf("Exception: %v", r))
		}
	}()

	if action == nil {
		return domain.Created()
	}

	result, err := action(ctx, row)
	if err != nil {
		return domain.Failed("Exception: " + err.Error())
	}

	switch result.Kind {
	case domain.OutcomeCreated, domain.OutcomeUpdated, domain.OutcomeSkipped:
		return domain.RowOutcome{Kind: result.Kind}
	case domain.OutcomeError:
		if len(result.Messages) == 0 {
			return domain.Failed(unknownErrorMessage)
		}
		return domain.Failed(result.Messages...)
	default:
		return domain.Failed(result.String())
	}
}

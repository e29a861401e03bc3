package domain

import "fmt"

// RawRow is one source record before validation, keyed by column header.
type RawRow struct {
	Number int            `json:"row_number"`
	Values map[string]any `json:"values"`
}

// ValidatedRow maps field names to coerced values. Optional fields that were
// absent from the source are present with a nil value.
type ValidatedRow map[string]any

// OutcomeKind tags a RowOutcome.
type OutcomeKind int

const (
	// OutcomeCreated is the zero value: an action that reports nothing created the row.
	OutcomeCreated OutcomeKind = iota
	OutcomeUpdated
	OutcomeSkipped
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// RowOutcome is what an ingestion action did with one validated row.
type RowOutcome struct {
	Kind     OutcomeKind
	Messages []string
}

func Created() RowOutcome { return RowOutcome{Kind: OutcomeCreated} }
func Updated() RowOutcome { return RowOutcome{Kind: OutcomeUpdated} }
func Skipped() RowOutcome { return RowOutcome{Kind: OutcomeSkipped} }

// Failed builds an error outcome carrying the given reasons.
func Failed(messages ...string) RowOutcome {
	return RowOutcome{Kind: OutcomeError, Messages: append([]string(nil), messages...)}
}

// Succeeded reports whether the outcome counts towards success_rows.
func (o RowOutcome) Succeeded() bool {
	return o.Kind == OutcomeCreated || o.Kind == OutcomeUpdated
}

func (o RowOutcome) String() string {
	if len(o.Messages) == 0 {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s: %v", o.Kind, o.Messages)
}

package ingestion

import (
	"context"
	"fmt"

	"github.com/rpattn/bulkimport/internal/domain"
)

// UpsertFunc saves row under key and reports whether a new record was created.
type UpsertFunc func(ctx context.Context, key any, row domain.ValidatedRow) (created bool, err error)

// KeyedAction builds the action of an importer whose KeyField is keyField:
// rows whose key matches an existing record update it, the rest create one.
func KeyedAction(keyField string, upsert UpsertFunc) ActionFunc {
	return func(ctx context.Context, row domain.ValidatedRow) (domain.RowOutcome, error) {
		key, ok := row[keyField]
		if !ok || key == nil {
			return domain.Failed(fmt.Sprintf("Field '%s' is required to match existing records", keyField)), nil
		}
		created, err := upsert(ctx, key, row)
		if err != nil {
			return domain.Failed("Error saving record: " + err.Error()), nil
		}
		if created {
			return domain.Created(), nil
		}
		return domain.Updated(), nil
	}
}

// NewKeyedImporter fills KeyField and Action from keyField and upsert.
func NewKeyedImporter(base Importer, keyField string, upsert UpsertFunc) (Importer, error) {
	base.KeyField = keyField
	base.Action = KeyedAction(keyField, upsert)
	if err := base.Validate(); err != nil {
		return Importer{}, err
	}
	return base, nil
}

package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/rpattn/bulkimport/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedActionCreatesThenUpdates(t *testing.T) {
	seen := map[any]domain.ValidatedRow{}
	action := KeyedAction("producto", func(_ context.Context, key any, row domain.ValidatedRow) (bool, error) {
		_, exists := seen[key]
		seen[key] = row
		return !exists, nil
	})

	row := domain.ValidatedRow{"producto": int64(101), "cliente": "Ana"}
	outcome, err := action(context.Background(), row)
	require.NoError(t, err)
	assert.Equal(t, domain.Created(), outcome)

	outcome, err = action(context.Background(), domain.ValidatedRow{"producto": int64(101), "cliente": "Luis"})
	require.NoError(t, err)
	assert.Equal(t, domain.Updated(), outcome)
	assert.Equal(t, "Luis", seen[int64(101)]["cliente"])
}

func TestKeyedActionFailures(t *testing.T) {
	action := KeyedAction("producto", func(context.Context, any, domain.ValidatedRow) (bool, error) {
		return false, errors.New("unique violation")
	})

	outcome, _ := action(context.Background(), domain.ValidatedRow{"producto": nil})
	assert.Equal(t, domain.Failed("Field 'producto' is required to match existing records"), outcome)

	outcome, _ = action(context.Background(), domain.ValidatedRow{"producto": int64(1)})
	assert.Equal(t, domain.Failed("Error saving record: unique violation"), outcome)
}

func TestNewKeyedImporterValidatesKeyField(t *testing.T) {
	upsert := func(context.Context, any, domain.ValidatedRow) (bool, error) { return true, nil }
	base := Importer{Name: "sales", Schema: salesTestSchema(t)}

	importer, err := NewKeyedImporter(base, "producto", upsert)
	require.NoError(t, err)
	assert.Equal(t, "producto", importer.KeyField)
	require.NotNil(t, importer.Action)

	_, err = NewKeyedImporter(base, "sku", upsert)
	assert.Error(t, err)
}

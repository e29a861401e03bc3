package importers

import (
	"context"
	"fmt"

	"github.com/rpattn/bulkimport/internal/domain"
	"github.com/rpattn/bulkimport/internal/ingestion"
	"github.com/rpattn/bulkimport/internal/repository"
	"github.com/rpattn/bulkimport/internal/schema"
)

// NewSalesModel derives its schema from the sales descriptor and upserts by
// producto, so re-running a file updates the sales it created.
func NewSalesModel(sales repository.SaleRepository) (ingestion.Importer, error) {
	descriptors, err := Descriptors()
	if err != nil {
		return ingestion.Importer{}, err
	}
	desc, ok := schema.FindDescriptor(descriptors, "sales")
	if !ok {
		return ingestion.Importer{}, fmt.Errorf("sales descriptor not found")
	}
	fields, err := schema.FromDescriptor(desc, schema.Projection{})
	if err != nil {
		return ingestion.Importer{}, fmt.Errorf("derive sales schema: %w", err)
	}

	return ingestion.NewKeyedImporter(ingestion.Importer{
		Name:        "sales_model",
		Label:       "Importador de Ventas (desde Modelo)",
		Description: "Creates or updates sales keyed by producto.",
		Schema:      fields,
		CanRerun:    true,
	}, "producto", func(ctx context.Context, _ any, row domain.ValidatedRow) (bool, error) {
		sale, err := saleFromRow(row)
		if err != nil {
			return false, err
		}
		_, inserted, err := sales.UpsertByProducto(ctx, sale)
		return inserted, err
	})
}

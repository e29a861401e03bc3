package importers

import (
	"context"
	"log/slog"

	"github.com/rpattn/bulkimport/internal/domain"
	"github.com/rpattn/bulkimport/internal/ingestion"
)

func ProductsSchema() domain.FieldSchema {
	return domain.MustFieldSchema([]domain.FieldDef{
		{Name: "sku", Label: "SKU", Required: true, Kind: domain.FieldKindText},
		{Name: "nombre", Label: "Nombre del Producto", Required: true, Kind: domain.FieldKindText},
		{Name: "precio", Label: "Precio", Required: true, Kind: domain.FieldKindDecimal},
		{Name: "stock", Label: "Stock Inicial", Required: true, Kind: domain.FieldKindInteger},
	})
}

// NewProducts logs each product row without storing it.
func NewProducts(logger *slog.Logger) ingestion.Importer {
	return ingestion.Importer{
		Name:     "products",
		Label:    "Importador de Productos",
		Schema:   ProductsSchema(),
		CanRerun: true,
		Action: func(ctx context.Context, row domain.ValidatedRow) (domain.RowOutcome, error) {
			logger.InfoContext(ctx, "importing product",
				"sku", row["sku"],
				"nombre", row["nombre"],
				"precio", row["precio"],
				"stock", row["stock"],
			)
			return domain.Created(), nil
		},
	}
}

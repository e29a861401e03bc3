package importers

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/bulkimport/internal/domain"
	"github.com/rpattn/bulkimport/internal/ingestion"
	"github.com/rpattn/bulkimport/internal/repository"

	"github.com/shopspring/decimal"
)

const defaultCantidad int64 = 1

// SalesSchema is the hand-written schema of the sales importer.
func SalesSchema() domain.FieldSchema {
	return domain.MustFieldSchema([]domain.FieldDef{
		{Name: "date", Label: "Fecha", Required: true, Kind: domain.FieldKindDatetime},
		{Name: "cliente", Label: "Cliente", Required: true, Kind: domain.FieldKindText},
		{Name: "producto", Label: "Producto", Required: true, Kind: domain.FieldKindInteger},
		{Name: "cantidad", Label: "Cantidad", Kind: domain.FieldKindInteger},
		{Name: "precio", Label: "Precio", Required: true, Kind: domain.FieldKindDecimal},
	})
}

// NewSales creates one sale per row.
func NewSales(sales repository.SaleRepository) ingestion.Importer {
	return ingestion.Importer{
		Name:        "sales",
		Label:       "Importador de Ventas",
		Description: "Creates one sale per row.",
		Schema:      SalesSchema(),
		CanRerun:    true,
		Action: func(ctx context.Context, row domain.ValidatedRow) (domain.RowOutcome, error) {
			sale, err := saleFromRow(row)
			if err != nil {
				return domain.Failed(err.Error()), nil
			}
			if _, err := sales.Create(ctx, sale); err != nil {
				return domain.Failed("Error creating sale: " + err.Error()), nil
			}
			return domain.Created(), nil
		},
	}
}

// saleFromRow maps a validated sales row. A missing cantidad defaults to 1.
func saleFromRow(row domain.ValidatedRow) (domain.Sale, error) {
	var sale domain.Sale
	var ok bool

	if sale.Date, ok = row["date"].(time.Time); !ok {
		return domain.Sale{}, fmt.Errorf("unexpected date value %v", row["date"])
	}
	if sale.Cliente, ok = row["cliente"].(string); !ok {
		return domain.Sale{}, fmt.Errorf("unexpected cliente value %v", row["cliente"])
	}
	if sale.Producto, ok = row["producto"].(int64); !ok {
		return domain.Sale{}, fmt.Errorf("unexpected producto value %v", row["producto"])
	}
	if sale.Precio, ok = row["precio"].(decimal.Decimal); !ok {
		return domain.Sale{}, fmt.Errorf("unexpected precio value %v", row["precio"])
	}

	sale.Cantidad = defaultCantidad
	if raw := row["cantidad"]; raw != nil {
		if sale.Cantidad, ok = raw.(int64); !ok {
			return domain.Sale{}, fmt.Errorf("unexpected cantidad value %v", raw)
		}
	}
	return sale, nil
}

// Package importers holds the importers shipped with the service.
package importers

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/rpattn/bulkimport/internal/ingestion"
	"github.com/rpattn/bulkimport/internal/registry"
	"github.com/rpattn/bulkimport/internal/repository"
	"github.com/rpattn/bulkimport/internal/schema"
)

//go:embed descriptors.yaml
var descriptorsYAML []byte

// Descriptors returns the entity descriptors embedded in the binary.
func Descriptors() ([]schema.EntityDescriptor, error) {
	return schema.LoadDescriptors(bytes.NewReader(descriptorsYAML))
}

// Register adds every built-in importer to reg.
func Register(reg *registry.Registry, sales repository.SaleRepository, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	salesModel, err := NewSalesModel(sales)
	if err != nil {
		return err
	}

	for _, importer := range []ingestion.Importer{
		NewSales(sales),
		salesModel,
		NewProducts(logger),
	} {
		if err := reg.Register(importer); err != nil {
			return fmt.Errorf("register importer %s: %w", importer.Name, err)
		}
	}
	return nil
}

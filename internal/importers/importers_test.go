package importers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rpattn/bulkimport/internal/dispatch"
	"github.com/rpattn/bulkimport/internal/domain"
	"github.com/rpattn/bulkimport/internal/ingestion"
	"github.com/rpattn/bulkimport/internal/logging"
	"github.com/rpattn/bulkimport/internal/registry"
	"github.com/rpattn/bulkimport/internal/repository"
	"github.com/rpattn/bulkimport/internal/schema/validator"
	"github.com/rpattn/bulkimport/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	service *ingestion.Service
	sales   repository.SaleRepository
	jobs    repository.ImportJobRepository
}

func newHarness(t *testing.T) harness {
	t.Helper()
	jobs := repository.NewMemoryImportJobRepository()
	sales := repository.NewMemorySaleRepository()
	uploads, err := storage.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	reg := registry.New()
	require.NoError(t, Register(reg, sales, logging.Discard()))

	processor := ingestion.NewProcessor(jobs, reg, uploads, ingestion.WithLogger(logging.Discard()))
	service := ingestion.NewService(jobs, reg, uploads, dispatch.NewSync(processor), ingestion.WithServiceLogger(logging.Discard()))
	return harness{service: service, sales: sales, jobs: jobs}
}

func TestRegisterAddsBuiltIns(t *testing.T) {
	reg := registry.New()
	require.NoError(t, Register(reg, repository.NewMemorySaleRepository(), nil))

	names := make([]string, 0, reg.Len())
	for _, importer := range reg.All() {
		names = append(names, importer.Name)
	}
	assert.ElementsMatch(t, []string{"sales", "sales_model", "products"}, names)

	// Registering twice is rejected.
	assert.Error(t, Register(reg, repository.NewMemorySaleRepository(), nil))
}

func TestSpanishSalesRowValidates(t *testing.T) {
	row := domain.RawRow{Number: 2, Values: map[string]any{
		"Fecha":    "2024-01-15T10:30:00",
		"Cliente":  "Juan Pérez",
		"Producto": "101",
		"Cantidad": "5",
		"Precio":   "29.99",
	}}

	validated, errs := validator.ValidateRow(SalesSchema(), row)
	require.Empty(t, errs)
	assert.Equal(t, "Juan Pérez", validated["cliente"])
	assert.Equal(t, int64(101), validated["producto"])
	assert.Equal(t, int64(5), validated["cantidad"])
	assert.True(t, decimal.RequireFromString("29.99").Equal(validated["precio"].(decimal.Decimal)))

	delete(row.Values, "Cliente")
	_, errs = validator.ValidateRow(SalesSchema(), row)
	assert.Equal(t, []string{"Field 'Cliente' is required"}, errs)
}

func TestSalesImportEndToEnd(t *testing.T) {
	h := newHarness(t)
	csv := "Fecha *,Cliente *,Producto *,Cantidad,Precio *\n" +
		"2024-01-01,Ana,101,5,29.99\n" +
		"2024-01-02,,102,1,10.00\n" +
		"2024-01-03,Luis,103,,5.50\n"

	job, err := h.service.StartImport(context.Background(), ingestion.ImportRequest{
		ImporterName: "sales",
		FileName:     "ventas.csv",
		Data:         strings.NewReader(csv),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ImportJobStatusPartial, job.Status)
	assert.Equal(t, 3, job.TotalRows)
	assert.Equal(t, 3, job.ProcessedRows)
	assert.Equal(t, 2, job.SuccessRows)
	assert.Equal(t, 1, job.ErrorRows)
	require.Len(t, job.ErrorDetails, 1)
	assert.Equal(t, 3, job.ErrorDetails[0].RowNumber)
	assert.Equal(t, []string{"Field 'Cliente' is required"}, job.ErrorDetails[0].Messages)

	sales, err := h.sales.List(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, int64(5), sales[0].Cantidad)
	assert.Equal(t, int64(1), sales[1].Cantidad, "missing cantidad defaults to 1")
	assert.True(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC).Equal(sales[1].Date))
}

func TestSalesModelRerunUpdates(t *testing.T) {
	h := newHarness(t)
	payload := `[{"date": "2024-01-01T09:00:00", "cliente": "Ana", "producto": 7, "precio": "10.00"},
		{"date": "2024-01-02T09:00:00", "cliente": "Luis", "producto": 8, "cantidad": 2, "precio": "4.50"}]`

	first, err := h.service.StartImport(context.Background(), ingestion.ImportRequest{
		ImporterName: "sales_model",
		FileName:     "ventas.json",
		Data:         strings.NewReader(payload),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ImportJobStatusSuccess, first.Status)
	assert.Equal(t, 2, first.CreatedRows)
	assert.Zero(t, first.UpdatedRows)

	second, err := h.service.Rerun(context.Background(), first.ID, "ana")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	require.NotNil(t, second.RerunOf)
	assert.Equal(t, first.ID, *second.RerunOf)
	assert.Equal(t, domain.ImportJobStatusSuccess, second.Status)
	assert.Zero(t, second.CreatedRows)
	assert.Equal(t, 2, second.UpdatedRows)

	sales, err := h.sales.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, sales, 2)
}

func TestSalesModelSchemaComesFromDescriptor(t *testing.T) {
	importer, err := NewSalesModel(repository.NewMemorySaleRepository())
	require.NoError(t, err)

	names := make([]string, 0, importer.Schema.Len())
	for _, field := range importer.Schema.Fields() {
		names = append(names, field.Name)
	}
	assert.Equal(t, []string{"date", "cliente", "producto", "cantidad", "precio"}, names)

	cantidad, ok := importer.Schema.Lookup("cantidad")
	require.True(t, ok)
	assert.False(t, cantidad.Required)
	precio, ok := importer.Schema.Lookup("precio")
	require.True(t, ok)
	assert.Equal(t, domain.FieldKindDecimal, precio.Kind)
}

func TestProductsImporterLogsRows(t *testing.T) {
	importer := NewProducts(logging.Discard())
	outcome, err := importer.Action(context.Background(), domain.ValidatedRow{"sku": "A-1", "nombre": "Silla", "precio": decimal.NewFromInt(10), "stock": int64(3)})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCreated, outcome.Kind)
}

package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rpattn/bulkimport/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type stubCatalog map[string]Importer

var _ ImporterCatalog = stubCatalog{}

func (c stubCatalog) Get(name string) (Importer, bool) {
	importer, ok := c[name]
	return importer, ok
}

func (c stubCatalog) All() []Importer {
	out := make([]Importer, 0, len(c))
	for _, importer := range c {
		out = append(out, importer)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type memUploads struct {
	mu    sync.Mutex
	files map[string][]byte
}

var _ UploadStore = (*memUploads)(nil)

func newMemUploads() *memUploads {
	return &memUploads{files: make(map[string][]byte)}
}

func (u *memUploads) Save(_ context.Context, name string, data io.Reader) (string, error) {
	payload, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	ref := uuid.NewString() + "/" + name
	u.mu.Lock()
	defer u.mu.Unlock()
	u.files[ref] = payload
	return ref, nil
}

func (u *memUploads) put(ref string, payload []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.files[ref] = payload
}

func (u *memUploads) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	payload, ok := u.files[ref]
	if !ok {
		return nil, fmt.Errorf("source %s not found", ref)
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

type dispatchFunc func(ctx context.Context, id uuid.UUID) error

func (f dispatchFunc) Dispatch(ctx context.Context, id uuid.UUID) error { return f(ctx, id) }

func salesTestSchema(t *testing.T) domain.FieldSchema {
	t.Helper()
	schema, err := domain.NewFieldSchema([]domain.FieldDef{
		{Name: "date", Label: "Fecha", Required: true, Kind: domain.FieldKindDatetime},
		{Name: "cliente", Label: "Cliente", Required: true, Kind: domain.FieldKindText},
		{Name: "producto", Label: "Producto", Required: true, Kind: domain.FieldKindInteger},
		{Name: "cantidad", Label: "Cantidad", Kind: domain.FieldKindInteger},
		{Name: "precio", Label: "Precio", Required: true, Kind: domain.FieldKindDecimal},
	})
	require.NoError(t, err)
	return schema
}

// recordingAction stores every validated row it receives.
type recordingAction struct {
	mu   sync.Mutex
	rows []domain.ValidatedRow
}

func (a *recordingAction) run(_ context.Context, row domain.ValidatedRow) (domain.RowOutcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rows = append(a.rows, row)
	return domain.Created(), nil
}

func salesTestImporter(t *testing.T, action ActionFunc) Importer {
	t.Helper()
	return Importer{
		Name:     "sales",
		Label:    "Ventas",
		Schema:   salesTestSchema(t),
		Action:   action,
		CanRerun: true,
	}
}

const salesCSV = "Fecha *,Cliente *,Producto *,Cantidad,Precio *\n" +
	"2024-01-01,Ana,101,5,29.99\n" +
	"2024-01-02,,102,1,10.00\n" +
	"2024-01-03,Luis,103,,5.50\n"

package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rpattn/bulkimport/internal/app"
	"github.com/rpattn/bulkimport/internal/config"
	"github.com/rpattn/bulkimport/internal/domain"
	"github.com/rpattn/bulkimport/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestApp opens an in-memory application shared by every command run in
// a test.
func newTestApp(t *testing.T) (*app.App, Opener) {
	t.Helper()
	t.Chdir(t.TempDir())

	cfg := config.Defaults()
	cfg.Database.Driver = "memory"
	cfg.Dispatch.Mode = "sync"
	cfg.Storage.UploadDir = t.TempDir()

	a, err := app.Open(context.Background(), cfg, logging.Discard(), nil)
	require.NoError(t, err)

	opener := func(context.Context, config.Config, *slog.Logger) (*app.App, error) {
		return a, nil
	}
	return a, opener
}

func run(t *testing.T, opener Opener, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(opener)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestImportersCommand(t *testing.T) {
	_, opener := newTestApp(t)

	out, err := run(t, opener, "importers")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "sales_model")
	assert.Contains(t, out, "Importador de Ventas")
	assert.Contains(t, out, "producto")
}

func TestImportCommandPrintsSummary(t *testing.T) {
	a, opener := newTestApp(t)

	path := filepath.Join(t.TempDir(), "ventas.csv")
	csv := "Fecha *,Cliente *,Producto *,Cantidad,Precio *\n" +
		"2024-01-01,Ana,101,5,29.99\n" +
		"2024-01-02,,102,1,10.00\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o600))

	out, err := run(t, opener, "import", path, "--importer", "sales", "--created-by", "ana")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:    partial")
	assert.Contains(t, out, "2 processed, 1 succeeded (1 created, 0 updated), 1 failed")
	assert.Contains(t, out, "Row 3:")

	sales, err := a.Sales.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func TestImportCommandErrors(t *testing.T) {
	_, opener := newTestApp(t)

	_, err := run(t, opener, "import", "missing.csv", "--importer", "sales")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.csv")

	path := filepath.Join(t.TempDir(), "ventas.csv")
	require.NoError(t, os.WriteFile(path, []byte("Fecha\n"), 0o600))
	_, err = run(t, opener, "import", path, "--importer", "nope")
	require.Error(t, err)

	_, err = run(t, opener, "import", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "importer")
}

func TestImportCommandErrorLimit(t *testing.T) {
	_, opener := newTestApp(t)

	var b strings.Builder
	b.WriteString("Fecha,Cliente,Producto,Cantidad,Precio\n")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "2024-01-01,,%d,1,1.00\n", i+1)
	}
	path := filepath.Join(t.TempDir(), "ventas.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))

	out, err := run(t, opener, "import", path, "--importer", "sales")
	require.NoError(t, err)
	assert.Equal(t, 50, strings.Count(out, "  Row "))
	assert.Contains(t, out, "... and 10 more errors")

	out, err = run(t, opener, "import", path, "--importer", "sales", "--errors", "0")
	require.NoError(t, err)
	assert.Equal(t, 60, strings.Count(out, "  Row "))
	assert.NotContains(t, out, "more errors")

	out, err = run(t, opener, "import", path, "--importer", "sales", "--errors", "5")
	require.NoError(t, err)
	assert.Equal(t, 5, strings.Count(out, "  Row "))

	_, err = run(t, opener, "import", path, "--importer", "sales", "--errors=-1")
	require.Error(t, err)
}

func seedJob(t *testing.T, a *app.App, status domain.ImportJobStatus, age time.Duration) domain.ImportJob {
	t.Helper()
	job, err := a.Jobs.Create(context.Background(), domain.ImportJob{
		ImporterName:  "sales",
		ImporterLabel: "Importador de Ventas",
		FileFormat:    "csv",
		FileName:      "ventas.csv",
		Status:        status,
		CreatedAt:     time.Now().Add(-age).UTC(),
	})
	require.NoError(t, err)
	return job
}

func TestCleanupStalledDryRun(t *testing.T) {
	a, opener := newTestApp(t)
	stalled := seedJob(t, a, domain.ImportJobStatusProcessing, 90*time.Minute)
	seedJob(t, a, domain.ImportJobStatusPending, time.Minute)

	out, err := run(t, opener, "cleanup-stalled", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 stalled imports")
	assert.Contains(t, out, stalled.ID.String())
	assert.Contains(t, out, "Elapsed: 1h 30m")
	assert.Contains(t, out, "[DRY RUN]")

	job, err := a.Jobs.GetByID(context.Background(), stalled.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportJobStatusProcessing, job.Status)
}

func TestCleanupStalledMarksJobs(t *testing.T) {
	a, opener := newTestApp(t)
	first := seedJob(t, a, domain.ImportJobStatusProcessing, 20*time.Minute)
	second := seedJob(t, a, domain.ImportJobStatusPending, 40*time.Minute)
	fresh := seedJob(t, a, domain.ImportJobStatusPending, 5*time.Minute)

	out, err := run(t, opener, "cleanup-stalled", "--timeout", "15")
	require.NoError(t, err)
	assert.Contains(t, out, "Done: 2 jobs marked as failed")

	for _, id := range []domain.ImportJob{first, second} {
		job, err := a.Jobs.GetByID(context.Background(), id.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ImportJobStatusFailed, job.Status)
		require.NotNil(t, job.CompletedAt)
	}
	job, err := a.Jobs.GetByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportJobStatusPending, job.Status)

	out, err = run(t, opener, "cleanup-stalled", "--timeout", "15")
	require.NoError(t, err)
	assert.Contains(t, out, "No stalled imports found")
}

func TestCleanupStalledRejectsBadTimeout(t *testing.T) {
	_, opener := newTestApp(t)
	_, err := run(t, opener, "cleanup-stalled", "--timeout", "0")
	require.Error(t, err)
}

func TestWorkerRequiresRedisMode(t *testing.T) {
	_, opener := newTestApp(t)
	_, err := run(t, opener, "worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatch.mode=redis")
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0h 0m 0s", formatElapsed(-time.Second))
	assert.Equal(t, "1h 2m 3s", formatElapsed(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, "26h 0m 0s", formatElapsed(26*time.Hour))
}

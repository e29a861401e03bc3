package repository

import (
	"context"
	"testing"
	"time"

	"github.com/rpattn/bulkimport/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contractNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// runImportJobContract exercises behaviour every ImportJobRepository shares.
func runImportJobContract(t *testing.T, newRepo func(t *testing.T) ImportJobRepository) {
	t.Run("create fills defaults", func(t *testing.T) {
		repo := newRepo(t)
		job, err := repo.Create(context.Background(), domain.ImportJob{ImporterName: "sales"})
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, job.ID)
		assert.Equal(t, domain.ImportJobStatusPending, job.Status)
		assert.False(t, job.CreatedAt.IsZero())
		assert.Empty(t, job.ErrorDetails)
		assert.Empty(t, job.ProgressLog)
	})

	t.Run("get unknown job", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByID(context.Background(), uuid.New())
		assert.ErrorIs(t, err, ErrImportJobNotFound)
	})

	t.Run("save round trips state", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		job, err := repo.Create(ctx, domain.ImportJob{
			ImporterName:  "sales",
			ImporterLabel: "Ventas",
			FileFormat:    "delimited",
			FileName:      "ventas.csv",
			SourceRef:     "2024/03/01/abc-ventas.csv",
			CanRerun:      true,
			CreatedBy:     "ana",
			CreatedAt:     contractNow,
		})
		require.NoError(t, err)

		started := contractNow.Add(time.Second)
		completed := contractNow.Add(3 * time.Second)
		job.Status = domain.ImportJobStatusPartial
		job.TotalRows = 3
		job.ProcessedRows = 3
		job.SuccessRows = 2
		job.CreatedRows = 2
		job.ErrorRows = 1
		job.ErrorDetails = []domain.ErrorDetail{{
			RowNumber: 3,
			Messages:  []string{"Field 'Cliente' is required"},
			RawData:   map[string]any{"Producto": "102"},
		}}
		job.ProgressLog = []domain.ProgressEntry{{
			Timestamp: started,
			Message:   "Starting import...",
			Level:     domain.ProgressLevelInfo,
		}}
		job.ResultMessage = "Import completed with errors: 2 successful, 1 with errors"
		job.StartedAt = &started
		job.CompletedAt = &completed
		require.NoError(t, repo.Save(ctx, job))

		stored, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ImportJobStatusPartial, stored.Status)
		assert.Equal(t, 3, stored.ProcessedRows)
		assert.Equal(t, 2, stored.SuccessRows)
		assert.Equal(t, 1, stored.ErrorRows)
		assert.Equal(t, "Ventas", stored.ImporterLabel)
		assert.Equal(t, "ana", stored.CreatedBy)
		assert.True(t, stored.CanRerun)
		assert.True(t, contractNow.Equal(stored.CreatedAt))
		require.NotNil(t, stored.StartedAt)
		assert.True(t, started.Equal(*stored.StartedAt))
		require.NotNil(t, stored.CompletedAt)
		assert.True(t, completed.Equal(*stored.CompletedAt))
		require.Len(t, stored.ErrorDetails, 1)
		assert.Equal(t, 3, stored.ErrorDetails[0].RowNumber)
		assert.Equal(t, []string{"Field 'Cliente' is required"}, stored.ErrorDetails[0].Messages)
		assert.Equal(t, "102", stored.ErrorDetails[0].RawData["Producto"])
		require.Len(t, stored.ProgressLog, 1)
		assert.Equal(t, "Starting import...", stored.ProgressLog[0].Message)
	})

	t.Run("save rejects terminal jobs", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		job, err := repo.Create(ctx, domain.ImportJob{ImporterName: "sales"})
		require.NoError(t, err)

		job.Status = domain.ImportJobStatusSuccess
		require.NoError(t, repo.Save(ctx, job))

		job.Status = domain.ImportJobStatusFailed
		assert.ErrorIs(t, repo.Save(ctx, job), ErrImportJobStatusConflict)

		stored, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ImportJobStatusSuccess, stored.Status)
	})

	t.Run("save unknown job", func(t *testing.T) {
		repo := newRepo(t)
		err := repo.Save(context.Background(), domain.ImportJob{ID: uuid.New(), Status: domain.ImportJobStatusProcessing})
		assert.ErrorIs(t, err, ErrImportJobNotFound)
	})

	t.Run("list filters and orders newest first", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		oldest, err := repo.Create(ctx, domain.ImportJob{ImporterName: "sales", CreatedAt: contractNow.Add(-2 * time.Hour)})
		require.NoError(t, err)
		middle, err := repo.Create(ctx, domain.ImportJob{ImporterName: "sales", Status: domain.ImportJobStatusProcessing, CreatedAt: contractNow.Add(-time.Hour)})
		require.NoError(t, err)
		newest, err := repo.Create(ctx, domain.ImportJob{ImporterName: "sales", Status: domain.ImportJobStatusSuccess, CreatedAt: contractNow})
		require.NoError(t, err)

		all, err := repo.List(ctx, nil, 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []uuid.UUID{newest.ID, middle.ID, oldest.ID}, []uuid.UUID{all[0].ID, all[1].ID, all[2].ID})

		active, err := repo.List(ctx, domain.ActiveImportJobStatuses, 0, 0)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, middle.ID, active[0].ID)
		assert.Equal(t, oldest.ID, active[1].ID)

		page, err := repo.List(ctx, nil, 1, 1)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, middle.ID, page[0].ID)
	})

	t.Run("rerun reference persists", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		first, err := repo.Create(ctx, domain.ImportJob{ImporterName: "sales", Status: domain.ImportJobStatusSuccess})
		require.NoError(t, err)
		rerunOf := first.ID
		second, err := repo.Create(ctx, domain.ImportJob{ImporterName: "sales", RerunOf: &rerunOf})
		require.NoError(t, err)

		stored, err := repo.GetByID(ctx, second.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.RerunOf)
		assert.Equal(t, first.ID, *stored.RerunOf)
	})

	t.Run("mark failed if stalled is conditional", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		stale, err := repo.Create(ctx, domain.ImportJob{ImporterName: "sales", Status: domain.ImportJobStatusProcessing, CreatedAt: contractNow.Add(-15 * time.Minute)})
		require.NoError(t, err)
		fresh, err := repo.Create(ctx, domain.ImportJob{ImporterName: "sales", Status: domain.ImportJobStatusProcessing, CreatedAt: contractNow.Add(-time.Minute)})
		require.NoError(t, err)
		done, err := repo.Create(ctx, domain.ImportJob{ImporterName: "sales", Status: domain.ImportJobStatusSuccess, CreatedAt: contractNow.Add(-time.Hour)})
		require.NoError(t, err)

		cutoff := contractNow.Add(-10 * time.Minute)
		for _, tc := range []struct {
			id   uuid.UUID
			want bool
		}{{stale.ID, true}, {fresh.ID, false}, {done.ID, false}, {uuid.New(), false}} {
			marked, err := repo.MarkFailedIfStalled(ctx, tc.id, cutoff, "stalled", contractNow)
			require.NoError(t, err)
			assert.Equal(t, tc.want, marked)
		}

		// A second attempt on the same job is a no-op.
		marked, err := repo.MarkFailedIfStalled(ctx, stale.ID, cutoff, "stalled", contractNow)
		require.NoError(t, err)
		assert.False(t, marked)

		stored, err := repo.GetByID(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ImportJobStatusFailed, stored.Status)
		assert.Equal(t, "stalled", stored.ResultMessage)
		require.NotNil(t, stored.CompletedAt)
		assert.True(t, contractNow.Equal(*stored.CompletedAt))

		stored, err = repo.GetByID(ctx, done.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ImportJobStatusSuccess, stored.Status)
	})
}

// runSaleContract exercises behaviour every SaleRepository shares.
func runSaleContract(t *testing.T, newRepo func(t *testing.T) SaleRepository) {
	t.Run("create and list", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		created, err := repo.Create(ctx, domain.Sale{
			Date:     contractNow,
			Cliente:  "Ana",
			Producto: 101,
			Cantidad: 5,
			Precio:   decimal.RequireFromString("29.99"),
		})
		require.NoError(t, err)
		assert.NotZero(t, created.ID)

		sales, err := repo.List(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, sales, 1)
		assert.Equal(t, "Ana", sales[0].Cliente)
		assert.True(t, decimal.RequireFromString("29.99").Equal(sales[0].Precio))
		assert.True(t, contractNow.Equal(sales[0].Date))
	})

	t.Run("upsert by producto", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		first, inserted, err := repo.UpsertByProducto(ctx, domain.Sale{
			Date: contractNow, Cliente: "Ana", Producto: 7, Cantidad: 1, Precio: decimal.RequireFromString("10.00"),
		})
		require.NoError(t, err)
		assert.True(t, inserted)

		second, inserted, err := repo.UpsertByProducto(ctx, domain.Sale{
			Date: contractNow, Cliente: "Luis", Producto: 7, Cantidad: 3, Precio: decimal.RequireFromString("12.50"),
		})
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.Equal(t, first.ID, second.ID)

		sales, err := repo.List(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, sales, 1)
		assert.Equal(t, "Luis", sales[0].Cliente)
		assert.Equal(t, int64(3), sales[0].Cantidad)
		assert.True(t, decimal.RequireFromString("12.5").Equal(sales[0].Precio))
	})
}

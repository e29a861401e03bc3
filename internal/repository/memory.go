package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rpattn/bulkimport/internal/domain"

	"github.com/google/uuid"
)

type memoryImportJobRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]domain.ImportJob
	now  func() time.Time
}

// NewMemoryImportJobRepository keeps jobs in process memory. It is used by
// tests and by the CLI when no database is configured.
func NewMemoryImportJobRepository() ImportJobRepository {
	return &memoryImportJobRepository{
		jobs: make(map[uuid.UUID]domain.ImportJob),
		now:  time.Now,
	}
}

func (r *memoryImportJobRepository) Create(_ context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	job = withCreateDefaults(job, r.now)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job.Clone()
	return job.Clone(), nil
}

func (r *memoryImportJobRepository) GetByID(_ context.Context, id uuid.UUID) (domain.ImportJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ImportJob{}, ErrImportJobNotFound
	}
	return job.Clone(), nil
}

func (r *memoryImportJobRepository) List(_ context.Context, statuses []domain.ImportJobStatus, limit int, offset int) ([]domain.ImportJob, error) {
	limit, offset = normalizePage(limit, offset)
	wanted := make(map[domain.ImportJobStatus]struct{}, len(statuses))
	for _, status := range statuses {
		wanted[status] = struct{}{}
	}

	r.mu.RLock()
	matched := make([]domain.ImportJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		if len(wanted) > 0 {
			if _, ok := wanted[job.Status]; !ok {
				continue
			}
		}
		matched = append(matched, job.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() > matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return []domain.ImportJob{}, nil
	}
	end := min(offset+limit, len(matched))
	return matched[offset:end], nil
}

func (r *memoryImportJobRepository) Save(_ context.Context, job domain.ImportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.jobs[job.ID]
	if !ok {
		return ErrImportJobNotFound
	}
	if !current.Status.IsActive() {
		return ErrImportJobStatusConflict
	}
	// Identity and creation metadata are immutable.
	job.ImporterName = current.ImporterName
	job.CreatedAt = current.CreatedAt
	job.RerunOf = current.RerunOf
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *memoryImportJobRepository) MarkFailedIfStalled(_ context.Context, id uuid.UUID, createdBefore time.Time, message string, completedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return false, nil
	}
	if !job.Status.IsActive() || !job.CreatedAt.Before(createdBefore) {
		return false, nil
	}
	job.Status = domain.ImportJobStatusFailed
	job.ResultMessage = message
	completed := completedAt
	job.CompletedAt = &completed
	r.jobs[id] = job
	return true, nil
}

type memorySaleRepository struct {
	mu     sync.Mutex
	nextID int64
	sales  []domain.Sale
}

// NewMemorySaleRepository keeps sales in process memory.
func NewMemorySaleRepository() SaleRepository {
	return &memorySaleRepository{}
}

func (r *memorySaleRepository) Create(_ context.Context, sale domain.Sale) (domain.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sale.ID = r.nextID
	r.sales = append(r.sales, sale)
	return sale, nil
}

func (r *memorySaleRepository) UpsertByProducto(_ context.Context, sale domain.Sale) (domain.Sale, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.sales {
		if existing.Producto == sale.Producto {
			sale.ID = existing.ID
			r.sales[i] = sale
			return sale, false, nil
		}
	}
	r.nextID++
	sale.ID = r.nextID
	r.sales = append(r.sales, sale)
	return sale, true, nil
}

func (r *memorySaleRepository) List(_ context.Context, limit int, offset int) ([]domain.Sale, error) {
	limit, offset = normalizePage(limit, offset)
	r.mu.Lock()
	defer r.mu.Unlock()
	if offset >= len(r.sales) {
		return []domain.Sale{}, nil
	}
	end := min(offset+limit, len(r.sales))
	return append([]domain.Sale(nil), r.sales[offset:end]...), nil
}

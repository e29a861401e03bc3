package stall

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rpattn/bulkimport/internal/domain"
	"github.com/rpattn/bulkimport/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSchedulerSweepsOnStartAndStops(t *testing.T) {
	jobs := repository.NewMemoryImportJobRepository()
	stale := seedJob(t, jobs, domain.ImportJobStatusProcessing, time.Hour)

	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	detector := NewDetector(jobs, 10*time.Minute, WithClock(func() time.Time { return now }))
	scheduler := NewScheduler(detector, time.Hour, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		job, err := jobs.GetByID(context.Background(), stale.ID)
		return err == nil && job.Status == domain.ImportJobStatusFailed
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}

	out := logs.String()
	assert.Contains(t, out, "stall scheduler started")
	assert.Contains(t, out, "stalled import jobs marked as failed")
	assert.Contains(t, out, "stall scheduler stopped")
}

func TestNewSchedulerDefaultsInterval(t *testing.T) {
	scheduler := NewScheduler(NewDetector(repository.NewMemoryImportJobRepository(), 0), 0, nil)
	assert.Equal(t, DefaultInterval, scheduler.interval)
}

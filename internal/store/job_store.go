package store

import (
	"context"
	"errors"

	"github.com/dunamismax/pixelvault/internal/domain"
)

var ErrJobNotFound = errors.New("job not found")

type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Job, error)
	// SetResult records a terminal status together with the render outcome.
	SetResult(ctx context.Context, id, status string, result domain.JobResult) (domain.Job, error)
}

type UsageStore interface {
	RecordUsage(ctx context.Context, usage domain.UsageLog) error
	Usage(ctx context.Context, jobID string) ([]domain.UsageLog, error)
}

// Store is what the API and worker depend on.
type Store interface {
	JobStore
	UsageStore
}

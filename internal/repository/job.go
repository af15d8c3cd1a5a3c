package repository

import (
	"context"

	"tunefetch/internal/domain"
)

// JobRepository persists job records keyed by job id.
//
// Upsert merges: it creates the record on first use and afterwards overwrites
// only the fields the update carries (see domain.JobUpdate). CreatedAt is fixed
// by the first write; UpdatedAt advances on every write. Get returns an error
// wrapping domain.ErrNotFound for unknown ids.
type JobRepository interface {
	Init(ctx context.Context) error
	Upsert(ctx context.Context, id string, update domain.JobUpdate) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	ListByGroup(ctx context.Context, groupID, excludeID string) ([]domain.Job, error)
	ListByStatuses(ctx context.Context, statuses ...domain.JobStatus) ([]domain.Job, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Job, error)
}

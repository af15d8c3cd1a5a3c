package service

import (
	"context"
	"fmt"

	"tunefetch/internal/domain"
	"tunefetch/internal/repository"
)

// JobService coordinates job state transitions backed by the job repository.
type JobService interface {
	Queue(ctx context.Context, id, message string, groupID *string, payload *domain.GroupMeta) error
	Advance(ctx context.Context, id string, stage domain.Stage, message string) error
	AdvanceTo(ctx context.Context, id string, stage domain.Stage, progress int, message string) error
	RecordFile(ctx context.Context, id string, stage domain.Stage, progress int, message, filePath string) error
	Complete(ctx context.Context, id, message, filePath, resultURL string) error
	Fail(ctx context.Context, id, message string) error
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	GroupStatus(ctx context.Context, albumID string) (*GroupStatus, error)
	ListByStatuses(ctx context.Context, statuses ...domain.JobStatus) ([]domain.Job, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Job, error)
}

// GroupStatus is the read view of an album submission.
type GroupStatus struct {
	AlbumID   string
	Aggregate domain.AlbumAggregate
	Meta      *domain.GroupMeta
	MetaJob   *domain.Job
}

// TotalTracks prefers the track count recorded at submission time.
func (g GroupStatus) TotalTracks() int {
	if g.Meta != nil && g.Meta.TotalTracks > 0 {
		return g.Meta.TotalTracks
	}
	return g.Aggregate.Total
}

type jobService struct {
	jobs repository.JobRepository
}

func NewJobService(jobs repository.JobRepository) JobService {
	return &jobService{jobs: jobs}
}

// Queue (re)starts a job. Result fields from an earlier submission under the
// same id are cleared; group and payload are only written when given.
func (s *jobService) Queue(ctx context.Context, id, message string, groupID *string, payload *domain.GroupMeta) error {
	return s.jobs.Upsert(ctx, id, domain.JobUpdate{
		Status:    domain.JobStatusQueued,
		Message:   message,
		Stage:     domain.StageQueued,
		Progress:  domain.Ptr(0),
		FilePath:  domain.Ptr(""),
		ResultURL: domain.Ptr(""),
		Error:     domain.Ptr(""),
		GroupID:   groupID,
		Payload:   payload,
	})
}

func (s *jobService) Advance(ctx context.Context, id string, stage domain.Stage, message string) error {
	return s.AdvanceTo(ctx, id, stage, stage.Progress(), message)
}

func (s *jobService) AdvanceTo(ctx context.Context, id string, stage domain.Stage, progress int, message string) error {
	return s.jobs.Upsert(ctx, id, domain.JobUpdate{
		Status:   domain.JobStatusProcessing,
		Message:  message,
		Stage:    stage,
		Progress: domain.Ptr(progress),
	})
}

func (s *jobService) RecordFile(ctx context.Context, id string, stage domain.Stage, progress int, message, filePath string) error {
	return s.jobs.Upsert(ctx, id, domain.JobUpdate{
		Status:   domain.JobStatusProcessing,
		Message:  message,
		Stage:    stage,
		Progress: domain.Ptr(progress),
		FilePath: domain.Ptr(filePath),
	})
}

func (s *jobService) Complete(ctx context.Context, id, message, filePath, resultURL string) error {
	update := domain.JobUpdate{
		Status:   domain.JobStatusCompleted,
		Message:  message,
		Stage:    domain.StageCompleted,
		Progress: domain.Ptr(domain.StageCompleted.Progress()),
	}
	if filePath != "" {
		update.FilePath = domain.Ptr(filePath)
	}
	if resultURL != "" {
		update.ResultURL = domain.Ptr(resultURL)
	}
	return s.jobs.Upsert(ctx, id, update)
}

// Fail marks a job terminally failed. The stage is left at the last one reached
// so pollers can see where it stopped.
func (s *jobService) Fail(ctx context.Context, id, message string) error {
	return s.jobs.Upsert(ctx, id, domain.JobUpdate{
		Status:   domain.JobStatusError,
		Message:  message,
		Progress: domain.Ptr(0),
		Error:    domain.Ptr(message),
	})
}

func (s *jobService) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	return s.jobs.Get(ctx, id)
}

func (s *jobService) GroupStatus(ctx context.Context, albumID string) (*GroupStatus, error) {
	metaID := domain.AlbumMetaJobID(albumID)
	meta, err := s.jobs.Get(ctx, metaID)
	if err != nil {
		return nil, fmt.Errorf("album %s: %w", albumID, err)
	}

	members, err := s.jobs.ListByGroup(ctx, albumID, metaID)
	if err != nil {
		return nil, err
	}

	return &GroupStatus{
		AlbumID:   albumID,
		Aggregate: AggregateAlbum(members, metaID),
		Meta:      meta.Payload,
		MetaJob:   meta,
	}, nil
}

func (s *jobService) ListByStatuses(ctx context.Context, statuses ...domain.JobStatus) ([]domain.Job, error) {
	return s.jobs.ListByStatuses(ctx, statuses...)
}

func (s *jobService) ListRecent(ctx context.Context, limit int) ([]domain.Job, error) {
	return s.jobs.ListRecent(ctx, limit)
}

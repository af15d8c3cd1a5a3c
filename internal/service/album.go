package service

import "tunefetch/internal/domain"

// AggregateAlbum rolls up member jobs into an album status. Slice order does not
// matter: the current member is the most recently updated unfinished one.
// excludeID drops the album's own meta-job if it is in members.
func AggregateAlbum(members []domain.Job, excludeID string) domain.AlbumAggregate {
	agg := domain.AlbumAggregate{Status: domain.AlbumStatusDownloading}

	var current *domain.Job
	for i := range members {
		m := &members[i]
		if excludeID != "" && m.ID == excludeID {
			continue
		}
		agg.Total++
		switch m.Status {
		case domain.JobStatusCompleted:
			agg.Completed++
		case domain.JobStatusError:
			agg.Failed++
		default:
			if current == nil || m.UpdatedAt.After(current.UpdatedAt) {
				current = m
			}
		}
	}

	if current != nil {
		agg.CurrentJobID = current.ID
	}
	if agg.Total > 0 && agg.Completed+agg.Failed >= agg.Total {
		agg.Status = domain.AlbumStatusCompleted
	}
	return agg
}

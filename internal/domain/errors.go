package domain

import "errors"

var (
	// ErrNotFound reports a track, album or job id unknown upstream or locally.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable reports a collaborator that is missing, misconfigured or unreachable.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrNoMatch reports a media-source search that returned nothing.
	ErrNoMatch = errors.New("no matching source")

	// ErrLowConfidence reports a best candidate below the confidence threshold.
	ErrLowConfidence = errors.New("low-confidence match")

	// ErrJobInProgress reports a submission for a job id that is still running.
	ErrJobInProgress = errors.New("job already in progress")

	ErrDownloadFailed = errors.New("download failed")
	ErrInvalidInput   = errors.New("invalid input")
)

package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"tunefetch/internal/domain"
	"tunefetch/internal/library"
	"tunefetch/internal/matching"
	"tunefetch/internal/mediasource"
	"tunefetch/internal/storage"
)

const noResultsMessage = "No results found on YouTube or YouTube Music"

// process walks one job through fetching, preparing, downloading, tagging and
// publishing. Every exit path ends in exactly one terminal write.
func (m *manager) process(ctx context.Context, id string, req Request) {
	logger := m.cfg.Logger.WithFields(logrus.Fields{"job_id": id, "location": req.Location})
	logger.Info("job started")

	if err := m.deps.Jobs.Advance(ctx, id, domain.StageFetching, "Fetching track info..."); err != nil {
		logger.Errorf("update status failed: %v", err)
	}

	var info *domain.SourceInfo
	if req.SourceRef != "" {
		described, err := m.deps.Media.Describe(ctx, req.SourceRef)
		if err != nil {
			m.failJob(ctx, id, "Failed to read source URL: "+mediasource.ClassifyError(err))
			return
		}
		if described.SourceID == "" && described.CanonicalURL == "" {
			m.failJob(ctx, id, "Could not determine the source video id")
			return
		}
		info = &described
	}

	track, ok := m.resolveTrack(ctx, id, req, info)
	if !ok {
		return
	}

	if err := m.deps.Jobs.Advance(ctx, id, domain.StagePreparing, "Preparing download location..."); err != nil {
		logger.Warnf("update status: %v", err)
	}
	destBase, cleanup, err := m.prepareDestination(id, track, req.Location)
	if err != nil {
		m.failJob(ctx, id, "Error: "+err.Error())
		return
	}
	defer cleanup()

	path, note, ok := m.download(ctx, logger, id, track, req, info, destBase)
	if !ok {
		return
	}

	if err := m.deps.Jobs.RecordFile(ctx, id, domain.StageTagging, domain.StageTagging.Progress(), "Applying metadata...", path); err != nil {
		logger.Warnf("record file: %v", err)
	}
	if m.deps.Tagger != nil {
		if err := m.deps.Tagger.Apply(ctx, path, track); err != nil {
			logger.Warnf("tagging failed: %v", err)
			note += fmt.Sprintf(" (metadata could not be applied: %v)", err)
		}
	}

	switch req.Location {
	case LocationLibrary:
		m.publishToLibrary(ctx, logger, id, track, path, note)
	case LocationS3:
		m.publishToStore(ctx, logger, id, track, path, note)
	default:
		resultURL := fmt.Sprintf("api/download/file/%s?filename=%s", url.PathEscape(id), escapeFileName(filepath.Base(path)))
		if err := m.deps.Jobs.Complete(ctx, id, "Track ready for download"+note, path, resultURL); err != nil {
			logger.Errorf("mark completed: %v", err)
			return
		}
		logger.Infof("job completed: %s", path)
	}
}

func (m *manager) resolveTrack(ctx context.Context, id string, req Request, info *domain.SourceInfo) (domain.TrackDescriptor, bool) {
	if req.TrackID == "" {
		return req.Manual.descriptor(id, info), true
	}
	track, err := m.deps.Catalog.LookupTrack(ctx, req.TrackID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			m.failJob(ctx, id, "Could not fetch track information")
		} else {
			m.failJob(ctx, id, "Error: "+err.Error())
		}
		return domain.TrackDescriptor{}, false
	}
	return track, true
}

// prepareDestination returns the path stem yt-dlp writes to. Local deliveries
// land in the tracks folder; everything else goes through a per-job staging
// folder that cleanup removes.
func (m *manager) prepareDestination(id string, track domain.TrackDescriptor, loc Location) (string, func(), error) {
	if loc == LocationLocal {
		if err := os.MkdirAll(m.tracksDir(), 0o755); err != nil {
			return "", nil, fmt.Errorf("create tracks dir: %w", err)
		}
		return m.localBase(track), func() {}, nil
	}
	dir, err := os.MkdirTemp(m.stagingRoot(), "job-")
	if err != nil {
		return "", nil, fmt.Errorf("create staging dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			m.cfg.Logger.WithField("job_id", id).Warnf("cleanup staging dir: %v", err)
		}
	}
	return filepath.Join(dir, trackFileStem(track)), cleanup, nil
}

// download picks the media item, either the caller's choice or the best ranked
// candidate, and fetches it. The returned note qualifies the final message.
func (m *manager) download(ctx context.Context, logger *logrus.Entry, id string, track domain.TrackDescriptor, req Request, info *domain.SourceInfo, destBase string) (string, string, bool) {
	var ref, note string
	if info != nil {
		ref = info.CanonicalURL
		if ref == "" {
			ref = info.SourceID
		}
		if err := m.deps.Jobs.Advance(ctx, id, domain.StageDownloading, "Downloading selected source..."); err != nil {
			logger.Warnf("update status: %v", err)
		}
	} else {
		if err := m.deps.Jobs.Advance(ctx, id, domain.StageDownloading, "Searching for a source and downloading..."); err != nil {
			logger.Warnf("update status: %v", err)
		}
		cands, err := m.deps.Media.FindCandidates(ctx, track, m.cfg.SearchLimit)
		if err != nil {
			m.failJob(ctx, id, "Search failed: "+mediasource.ClassifyError(err))
			return "", "", false
		}
		result := m.deps.Engine.Rank(track, cands)
		best, err := m.selectCandidate(result)
		switch {
		case errors.Is(err, domain.ErrNoMatch):
			m.failJob(ctx, id, noResultsMessage)
			return "", "", false
		case errors.Is(err, domain.ErrLowConfidence):
			m.failJob(ctx, id, fmt.Sprintf("Low-confidence match (%.2f < %.2f); pick a candidate and resubmit", result.BestScore, result.Threshold))
			return "", "", false
		}
		if result.NeedsConfirmation {
			note = fmt.Sprintf(" (low-confidence match %.2f < %.2f)", result.BestScore, result.Threshold)
			logger.Warnf("downloading low-confidence match %q (score %.3f)", best.Title, best.Score)
		} else {
			logger.Infof("selected %q by %q (score %.3f)", best.Title, best.Uploader, best.Score)
		}
		ref = best.URL
		if ref == "" {
			ref = best.SourceID
		}
	}

	path, err := m.deps.Media.Fetch(ctx, ref, destBase)
	if err != nil {
		m.failJob(ctx, id, "Download failed: "+mediasource.ClassifyError(err))
		return "", "", false
	}
	return path, note, true
}

func (m *manager) publishToLibrary(ctx context.Context, logger *logrus.Entry, id string, track domain.TrackDescriptor, path, note string) {
	if err := m.deps.Jobs.Advance(ctx, id, domain.StageCopying, "Publishing to music library..."); err != nil {
		logger.Warnf("update status: %v", err)
	}
	target := m.deps.Publisher.TargetPath(track, strings.TrimPrefix(filepath.Ext(path), "."))
	if err := placeFile(path, target); err != nil {
		m.failJob(ctx, id, "Failed to publish to library: "+err.Error())
		return
	}

	msg := "Track successfully added to library"
	if err := m.deps.Publisher.Finalize(ctx, target); err != nil {
		if !errors.Is(err, library.ErrRescan) {
			m.failJob(ctx, id, "Failed to publish to library: "+err.Error())
			return
		}
		logger.Warnf("library rescan: %v", err)
		msg = "Track added to library (scan may need manual trigger): " + err.Error()
	}
	if err := m.deps.Jobs.Complete(ctx, id, msg+note, target, ""); err != nil {
		logger.Errorf("mark completed: %v", err)
		return
	}
	logger.Infof("job completed: %s", target)
}

func (m *manager) publishToStore(ctx context.Context, logger *logrus.Entry, id string, track domain.TrackDescriptor, path, note string) {
	if err := m.deps.Jobs.Advance(ctx, id, domain.StageCopying, "Publishing to object storage..."); err != nil {
		logger.Warnf("update status: %v", err)
	}
	artist := firstNonEmpty(track.AlbumArtist, track.Artist)
	key := m.deps.Store.ObjectKey(artist, track.Album, filepath.Base(path))
	logger.Infof("upload started from %s", path)
	location, err := m.deps.Store.UploadFile(ctx, path, key, storage.UploadOptions{
		Metadata:         objectMetadata(id, track),
		ProgressCallback: uploadProgress(logger),
	})
	if err != nil {
		m.failJob(ctx, id, "Upload failed: "+err.Error())
		return
	}

	resultURL, err := m.deps.Store.PresignGet(ctx, key, m.cfg.PresignTTL)
	if err != nil {
		logger.Warnf("presign: %v", err)
		resultURL = location
	}
	if err := m.deps.Jobs.Complete(ctx, id, "Track uploaded to object storage"+note, location, resultURL); err != nil {
		logger.Errorf("mark completed: %v", err)
		return
	}
	logger.Infof("job completed and uploaded to %s", location)
}

// failJob is the single failure funnel. Writes use a context detached from
// cancellation so a stopping manager still records the outcome.
// selectCandidate returns the candidate to download. A low-confidence best is
// only refused when confirmation is required.
func (m *manager) selectCandidate(result matching.Result) (matching.ScoredCandidate, error) {
	best, found := result.Best()
	if result.NoCandidates || !found {
		return matching.ScoredCandidate{}, domain.ErrNoMatch
	}
	if result.NeedsConfirmation && m.cfg.RequireConfirmation {
		return best, fmt.Errorf("%w: best %.3f below %.2f", domain.ErrLowConfidence, result.BestScore, result.Threshold)
	}
	return best, nil
}

func (m *manager) failJob(ctx context.Context, id, message string) {
	if m.ctx != nil && m.ctx.Err() != nil {
		message = interruptedMessage
	}
	logger := m.cfg.Logger.WithField("job_id", id)
	if err := m.deps.Jobs.Fail(context.WithoutCancel(ctx), id, message); err != nil {
		logger.Errorf("persist failure status: %v", err)
	}
	logger.Error(message)
}

func escapeFileName(name string) string {
	return strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
}

// objectMetadata is kept to ASCII-safe values; titles and artists may not be.
func objectMetadata(id string, track domain.TrackDescriptor) map[string]string {
	meta := map[string]string{"job-id": id}
	if track.ID != "" {
		meta["track-id"] = track.ID
	}
	if track.DurationMS > 0 {
		meta["duration-ms"] = strconv.Itoa(track.DurationMS)
	}
	return meta
}

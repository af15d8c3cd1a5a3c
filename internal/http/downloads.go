package http

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"tunefetch/internal/domain"
	"tunefetch/internal/downloader"
)

type downloadRequest struct {
	TrackID  string `json:"track_id" binding:"required"`
	VideoID  string `json:"video_id"`
	Location string `json:"location"`
}

type albumDownloadRequest struct {
	AlbumID  string `json:"album_id" binding:"required"`
	Location string `json:"location"`
}

// reverseMetadata accepts both "name" and "title" for the track title.
type reverseMetadata struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	AlbumArtist string `json:"album_artist"`
	AlbumArt    string `json:"album_art"`
	ReleaseDate string `json:"release_date"`
	TrackNumber int    `json:"track_number"`
}

type reverseDownloadRequest struct {
	URL            string           `json:"url"`
	YouTubeURL     string           `json:"youtube_url"`
	TrackID        string           `json:"track_id"`
	SpotifyTrackID string           `json:"spotify_track_id"`
	Metadata       *reverseMetadata `json:"metadata"`
	Location       string           `json:"location"`
}

func (m *reverseMetadata) manual() *downloader.ManualMetadata {
	if m == nil {
		return nil
	}
	name := m.Name
	if name == "" {
		name = m.Title
	}
	return &downloader.ManualMetadata{
		Name:        strings.TrimSpace(name),
		Artist:      strings.TrimSpace(m.Artist),
		Album:       m.Album,
		AlbumArtist: m.AlbumArtist,
		AlbumArt:    m.AlbumArt,
		ReleaseDate: m.ReleaseDate,
		TrackNumber: m.TrackNumber,
	}
}

func (h *Handler) submitDownload(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	loc := downloader.ParseLocation(req.Location)
	jobID, err := h.manager.Submit(c.Request.Context(), downloader.Request{
		TrackID:   strings.TrimSpace(req.TrackID),
		SourceRef: strings.TrimSpace(req.VideoID),
		Location:  loc,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":   string(domain.JobStatusQueued),
		"message":  "Download started to " + loc.Description(),
		"track_id": req.TrackID,
		"job_id":   jobID,
	})
}

func (h *Handler) submitAlbum(c *gin.Context) {
	var req albumDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.manager.SubmitGroup(c.Request.Context(), strings.TrimSpace(req.AlbumID), downloader.ParseLocation(req.Location))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":       string(domain.JobStatusQueued),
		"message":      fmt.Sprintf("Album '%s' download started to %s", sub.AlbumName, sub.Location.Description()),
		"album_id":     sub.GroupID,
		"total_tracks": len(sub.JobIDs),
		"job_ids":      sub.JobIDs,
	})
}

func (h *Handler) reverseDownload(c *gin.Context) {
	var req reverseDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ref := strings.TrimSpace(firstNonEmpty(req.YouTubeURL, req.URL))
	if ref == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	trackID := strings.TrimSpace(firstNonEmpty(req.SpotifyTrackID, req.TrackID))
	if trackID == "" && req.Metadata == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either track_id or metadata is required"})
		return
	}

	loc := downloader.ParseLocation(req.Location)
	jobID, err := h.manager.Submit(c.Request.Context(), downloader.Request{
		TrackID:   trackID,
		Manual:    req.Metadata.manual(),
		SourceRef: ref,
		Location:  loc,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  string(domain.JobStatusQueued),
		"message": "Download started to " + loc.Description(),
		"job_id":  jobID,
	})
}

func (h *Handler) getJobStatus(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newJobResponse(job))
}

func (h *Handler) getAlbumStatus(c *gin.Context) {
	albumID := c.Param("id")
	group, err := h.jobs.GroupStatus(c.Request.Context(), albumID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := albumStatusResponse{
		AlbumID:         albumID,
		Status:          group.Aggregate.Status,
		TotalTracks:     group.TotalTracks(),
		CompletedTracks: group.Aggregate.Completed,
		FailedTracks:    group.Aggregate.Failed,
		CurrentTrack:    group.Aggregate.CurrentJobID,
		TrackIDs:        []string{},
	}
	if group.Meta != nil {
		resp.AlbumName = group.Meta.AlbumName
		resp.Artist = group.Meta.Artist
		resp.TrackIDs = group.Meta.TrackIDs
	}
	c.JSON(http.StatusOK, resp)
}

// downloadFile serves a finished local track. The filename query must name the
// stored file so a job id alone cannot be used to probe the filesystem.
func (h *Handler) downloadFile(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if job.Status != domain.JobStatusCompleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "download is not completed"})
		return
	}
	if job.FilePath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	info, err := os.Stat(job.FilePath)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			h.opts.Logger.WithField("job_id", job.ID).Warnf("stat download file: %v", err)
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	name := filepath.Base(job.FilePath)
	if requested := c.Query("filename"); requested != "" && requested != name {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename does not match this download"})
		return
	}

	c.FileAttachment(job.FilePath, name)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

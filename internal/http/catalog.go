package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tunefetch/internal/downloader"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
	defaultTopLimit    = 5
	maxTopLimit        = 10
	reverseMatchLimit  = 5
)

type searchRequest struct {
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit"`
}

type reverseLookupRequest struct {
	URL string `json:"url" binding:"required"`
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func (h *Handler) searchTracks(c *gin.Context) {
	h.runTrackSearch(c, defaultSearchLimit, maxSearchLimit)
}

func (h *Handler) searchTracksTop(c *gin.Context) {
	h.runTrackSearch(c, defaultTopLimit, maxTopLimit)
}

func (h *Handler) runTrackSearch(c *gin.Context, def, max int) {
	if !h.requireCatalog(c) {
		return
	}
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tracks, err := h.catalog.SearchTracks(c.Request.Context(), strings.TrimSpace(req.Query), clampLimit(req.Limit, def, max))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracks": newTrackResponses(tracks)})
}

func (h *Handler) searchAlbums(c *gin.Context) {
	if !h.requireCatalog(c) {
		return
	}
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	albums, err := h.catalog.SearchAlbums(c.Request.Context(), strings.TrimSpace(req.Query), clampLimit(req.Limit, defaultSearchLimit, maxSearchLimit))
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]albumResponse, 0, len(albums))
	for _, a := range albums {
		out = append(out, newAlbumResponse(a, false))
	}
	c.JSON(http.StatusOK, gin.H{"albums": out})
}

func (h *Handler) getTrack(c *gin.Context) {
	if !h.requireCatalog(c) {
		return
	}
	track, err := h.catalog.LookupTrack(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTrackResponse(track))
}

func (h *Handler) trackExists(c *gin.Context) {
	loc := downloader.ParseLocation(c.Query("location"))
	path, exists, err := h.manager.ExistingFile(c.Request.Context(), c.Param("id"), loc)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"track_id":  c.Param("id"),
		"location":  string(loc),
		"exists":    exists,
		"file_path": path,
	})
}

func (h *Handler) getAlbum(c *gin.Context) {
	if !h.requireCatalog(c) {
		return
	}
	album, err := h.catalog.LookupAlbum(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAlbumResponse(album, true))
}

func (h *Handler) getCandidates(c *gin.Context) {
	report, err := h.manager.Candidates(c.Request.Context(), c.Param("trackId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCandidatesResponse(report.Track, report.Result))
}

// reverseLookup resolves a video URL and proposes catalog tracks with the
// same title, so the client can attach real metadata before downloading.
func (h *Handler) reverseLookup(c *gin.Context) {
	if h.sources == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "media source not configured"})
		return
	}
	var req reverseLookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := h.sources.Describe(c.Request.Context(), strings.TrimSpace(req.URL))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if strings.TrimSpace(info.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read a title from the source URL"})
		return
	}

	matches := []trackResponse{}
	if h.catalog != nil {
		tracks, err := h.catalog.SearchTracks(c.Request.Context(), info.Title, reverseMatchLimit)
		if err != nil {
			h.writeError(c, err)
			return
		}
		matches = newTrackResponses(tracks)
	}

	c.JSON(http.StatusOK, gin.H{
		"source":  newSourceResponse(info),
		"query":   info.Title,
		"matches": matches,
	})
}

package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tunefetch/internal/auth"
	"tunefetch/internal/domain"
	"tunefetch/internal/downloader"
	"tunefetch/internal/service"
)

// Catalog is the metadata lookup the API exposes directly.
type Catalog interface {
	LookupTrack(ctx context.Context, id string) (domain.TrackDescriptor, error)
	LookupAlbum(ctx context.Context, id string) (domain.Album, error)
	SearchTracks(ctx context.Context, query string, limit int) ([]domain.TrackDescriptor, error)
	SearchAlbums(ctx context.Context, query string, limit int) ([]domain.Album, error)
}

// SourceDescriber resolves a media-source URL to its metadata.
type SourceDescriber interface {
	Describe(ctx context.Context, ref string) (domain.SourceInfo, error)
}

type Options struct {
	CORSOrigins []string
	JWTSecret   string
	LibraryPath string
	Logger      *logrus.Logger
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	jobs    service.JobService
	manager downloader.Manager
	catalog Catalog
	sources SourceDescriber
	opts    Options
}

// NewHandler builds the API. catalog and sources may be nil when those
// collaborators are not configured; their routes then answer 503.
func NewHandler(jobs service.JobService, manager downloader.Manager, catalog Catalog, sources SourceDescriber, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Handler{
		jobs:    jobs,
		manager: manager,
		catalog: catalog,
		sources: sources,
		opts:    opts,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware(h.opts.CORSOrigins))

	api := router.Group("/api")
	api.GET("/health", h.health)

	protected := api.Group("")
	if h.opts.JWTSecret != "" {
		protected.Use(authMiddleware(h.opts.JWTSecret))
	}
	{
		protected.POST("/search", h.searchTracks)
		protected.POST("/search/tracks/top", h.searchTracksTop)
		protected.POST("/search/albums", h.searchAlbums)
		protected.GET("/track/:id", h.getTrack)
		protected.GET("/track/:id/exists", h.trackExists)
		protected.GET("/album/:id", h.getAlbum)
		protected.GET("/candidates/:trackId", h.getCandidates)
		protected.POST("/reverse/lookup", h.reverseLookup)

		protected.POST("/download", h.submitDownload)
		protected.POST("/download/album", h.submitAlbum)
		protected.POST("/reverse/download", h.reverseDownload)
		protected.GET("/download/status/:id", h.getJobStatus)
		protected.GET("/download/album/status/:id", h.getAlbumStatus)
		protected.GET("/download/file/:id", h.downloadFile)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "healthy",
		"catalog_configured": h.catalog != nil,
		"library_path":       h.opts.LibraryPath,
	})
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[strings.TrimRight(origin, "/")]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// authMiddleware accepts a bearer token, or a token query parameter so plain
// browser links to the file route keep working.
func authMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		subject, err := auth.VerifyToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set("subject", subject)
		c.Next()
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrJobInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.opts.Logger.WithField("path", c.FullPath()).Errorf("request failed: %v", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) requireCatalog(c *gin.Context) bool {
	if h.catalog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog service not configured"})
		return false
	}
	return true
}

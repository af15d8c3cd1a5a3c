// Package mediasource discovers and downloads audio for a target track. Search
// goes to a music-aware index first and falls back to a generic video search;
// downloads and URL lookups go through yt-dlp.
package mediasource

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"tunefetch/internal/domain"
)

// Searcher returns ranked candidates for a free-text query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.Candidate, error)
}

// Downloader fetches and inspects single media items.
type Downloader interface {
	Fetch(ctx context.Context, ref, destBase string) (string, error)
	Describe(ctx context.Context, ref string) (domain.SourceInfo, error)
}

// Service is the media-source provider used by the download manager.
type Service struct {
	structured Searcher
	fallback   Searcher
	downloader Downloader
	logger     *logrus.Logger
}

// NewService wires the searchers. structured may be nil when no music index is
// configured; fallback and downloader are required.
func NewService(structured, fallback Searcher, downloader Downloader, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		structured: structured,
		fallback:   fallback,
		downloader: downloader,
		logger:     logger,
	}
}

// FindCandidates searches the structured index and uses the fallback search only
// when the index is missing, failing, or empty. Every candidate is tagged with
// the source that produced it.
func (s *Service) FindCandidates(ctx context.Context, target domain.TrackDescriptor, limit int) ([]domain.Candidate, error) {
	if limit <= 0 {
		limit = 5
	}
	log := s.logger.WithFields(logrus.Fields{"track_id": target.ID, "title": target.Title})

	if s.structured != nil {
		cands, err := s.structured.Search(ctx, structuredQuery(target), limit)
		switch {
		case err != nil:
			log.Warnf("structured search failed, using fallback: %v", err)
		case len(cands) > 0:
			return tagCandidates(cands, domain.SourceStructured), nil
		default:
			log.Debug("structured search returned nothing, using fallback")
		}
	}

	cands, err := s.fallback.Search(ctx, fallbackQuery(target), limit)
	if err != nil {
		return nil, fmt.Errorf("fallback search: %w", err)
	}
	return tagCandidates(cands, domain.SourceFallback), nil
}

func (s *Service) Fetch(ctx context.Context, ref, destBase string) (string, error) {
	return s.downloader.Fetch(ctx, VideoURL(ref), destBase)
}

func (s *Service) Describe(ctx context.Context, ref string) (domain.SourceInfo, error) {
	return s.downloader.Describe(ctx, VideoURL(ref))
}

func tagCandidates(cands []domain.Candidate, source domain.SourceTag) []domain.Candidate {
	out := make([]domain.Candidate, len(cands))
	for i, c := range cands {
		c.Source = source
		if c.Rank <= 0 {
			c.Rank = i + 1
		}
		out[i] = c
	}
	return out
}

func structuredQuery(t domain.TrackDescriptor) string {
	return joinQuery(t.Artist, t.Title, t.Album)
}

func fallbackQuery(t domain.TrackDescriptor) string {
	if strings.TrimSpace(t.Album) != "" {
		return joinQuery(t.Artist, t.Title, t.Album, "official")
	}
	return joinQuery(t.Artist, t.Title, "official audio")
}

func joinQuery(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

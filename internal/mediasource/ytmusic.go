package mediasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tunefetch/internal/domain"
)

// MusicIndex searches a YouTube Music index exposed over HTTP. The endpoint is
// expected to answer GET /search?q=&filter=songs&limit= with the song records
// ytmusicapi produces.
type MusicIndex struct {
	baseURL string
	client  *http.Client
}

func NewMusicIndex(baseURL string, timeout time.Duration) *MusicIndex {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &MusicIndex{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type musicSong struct {
	VideoID         string   `json:"videoId"`
	Title           string   `json:"title"`
	Duration        string   `json:"duration"`
	DurationSeconds *float64 `json:"duration_seconds"`
	Artists         []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Thumbnails []struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
}

func (s musicSong) uploader() string {
	names := make([]string, 0, len(s.Artists))
	for _, a := range s.Artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, ", ")
}

func (m *MusicIndex) Search(ctx context.Context, query string, limit int) ([]domain.Candidate, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("filter", "songs")
	params.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: music index: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: music index returned status %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var songs []musicSong
	if err := json.NewDecoder(resp.Body).Decode(&songs); err != nil {
		return nil, fmt.Errorf("decode music index response: %w", err)
	}

	cands := make([]domain.Candidate, 0, len(songs))
	for _, s := range songs {
		if s.VideoID == "" {
			continue
		}
		c := domain.Candidate{
			SourceID:     s.VideoID,
			Title:        s.Title,
			Uploader:     s.uploader(),
			DurationSec:  s.DurationSeconds,
			DurationText: s.Duration,
			Rank:         len(cands) + 1,
			URL:          VideoURL(s.VideoID),
		}
		if n := len(s.Thumbnails); n > 0 {
			c.Thumbnail = s.Thumbnails[n-1].URL
		}
		cands = append(cands, c)
		if limit > 0 && len(cands) == limit {
			break
		}
	}
	return cands, nil
}

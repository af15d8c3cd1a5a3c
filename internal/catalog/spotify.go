// Package catalog looks up track and album facts in the Spotify Web API using the
// client-credentials flow.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"tunefetch/internal/domain"
)

const (
	defaultTokenURL = "https://accounts.spotify.com/api/token"
	defaultAPIURL   = "https://api.spotify.com/v1"
)

type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	APIURL       string
	Market       string
	Timeout      time.Duration
}

type spotifyImage struct {
	URL string `json:"url"`
}

type spotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []spotifyArtist `json:"artists"`
	ReleaseDate string          `json:"release_date"`
	TotalTracks int             `json:"total_tracks"`
	Images      []spotifyImage  `json:"images"`
	Tracks      *trackPage      `json:"tracks,omitempty"`
}

type spotifyTrack struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Artists      []spotifyArtist   `json:"artists"`
	Album        *spotifyAlbum     `json:"album,omitempty"`
	DurationMS   int               `json:"duration_ms"`
	TrackNumber  int               `json:"track_number"`
	PreviewURL   *string           `json:"preview_url"`
	ExternalURLs map[string]string `json:"external_urls"`
}

type trackPage struct {
	Items []spotifyTrack `json:"items"`
	Next  *string        `json:"next"`
}

type albumPage struct {
	Items []spotifyAlbum `json:"items"`
}

type searchResponse struct {
	Tracks *trackPage `json:"tracks"`
	Albums *albumPage `json:"albums"`
}

// SpotifyClient implements the metadata provider over the Spotify Web API.
type SpotifyClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewSpotifyClient returns an error wrapping domain.ErrUpstreamUnavailable when
// credentials are missing.
func NewSpotifyClient(cfg Config) (*SpotifyClient, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("%w: spotify client id and secret are required", domain.ErrUpstreamUnavailable)
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	base := &http.Client{Timeout: cfg.Timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	client := cc.Client(ctx)
	client.Timeout = cfg.Timeout

	return &SpotifyClient{cfg: cfg, httpClient: client}, nil
}

func (c *SpotifyClient) LookupTrack(ctx context.Context, id string) (domain.TrackDescriptor, error) {
	var track spotifyTrack
	if err := c.get(ctx, "/tracks/"+url.PathEscape(id), c.marketQuery(), &track); err != nil {
		return domain.TrackDescriptor{}, fmt.Errorf("lookup track %s: %w", id, err)
	}
	return toTrack(track, track.Album), nil
}

func (c *SpotifyClient) LookupAlbum(ctx context.Context, id string) (domain.Album, error) {
	var album spotifyAlbum
	if err := c.get(ctx, "/albums/"+url.PathEscape(id), c.marketQuery(), &album); err != nil {
		return domain.Album{}, fmt.Errorf("lookup album %s: %w", id, err)
	}

	out := toAlbum(album)
	page := album.Tracks
	for page != nil {
		for _, t := range page.Items {
			out.Tracks = append(out.Tracks, toTrack(t, &album))
		}
		if page.Next == nil || *page.Next == "" {
			break
		}
		next := &trackPage{}
		if err := c.getURL(ctx, *page.Next, next); err != nil {
			return domain.Album{}, fmt.Errorf("lookup album %s tracks: %w", id, err)
		}
		page = next
	}
	if out.TotalTracks == 0 {
		out.TotalTracks = len(out.Tracks)
	}
	return out, nil
}

func (c *SpotifyClient) SearchTracks(ctx context.Context, query string, limit int) ([]domain.TrackDescriptor, error) {
	var resp searchResponse
	if err := c.get(ctx, "/search", c.searchQuery(query, "track", limit), &resp); err != nil {
		return nil, fmt.Errorf("search tracks: %w", err)
	}
	if resp.Tracks == nil {
		return nil, nil
	}
	out := make([]domain.TrackDescriptor, 0, len(resp.Tracks.Items))
	for _, t := range resp.Tracks.Items {
		out = append(out, toTrack(t, t.Album))
	}
	return out, nil
}

func (c *SpotifyClient) SearchAlbums(ctx context.Context, query string, limit int) ([]domain.Album, error) {
	var resp searchResponse
	if err := c.get(ctx, "/search", c.searchQuery(query, "album", limit), &resp); err != nil {
		return nil, fmt.Errorf("search albums: %w", err)
	}
	if resp.Albums == nil {
		return nil, nil
	}
	out := make([]domain.Album, 0, len(resp.Albums.Items))
	for _, a := range resp.Albums.Items {
		out = append(out, toAlbum(a))
	}
	return out, nil
}

func (c *SpotifyClient) marketQuery() url.Values {
	q := url.Values{}
	if c.cfg.Market != "" {
		q.Set("market", c.cfg.Market)
	}
	return q
}

func (c *SpotifyClient) searchQuery(query, kind string, limit int) url.Values {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	q := c.marketQuery()
	q.Set("q", query)
	q.Set("type", kind)
	q.Set("limit", fmt.Sprint(limit))
	return q
}

func (c *SpotifyClient) get(ctx context.Context, endpoint string, query url.Values, result any) error {
	u := c.cfg.APIURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.getURL(ctx, u, result)
}

func (c *SpotifyClient) getURL(ctx context.Context, u string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: spotify token request rejected: %v", domain.ErrUpstreamUnavailable, err)
		}
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		return domain.ErrNotFound
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: spotify API status %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("spotify API error: status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func toTrack(t spotifyTrack, album *spotifyAlbum) domain.TrackDescriptor {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.Name != "" {
			artists = append(artists, a.Name)
		}
	}
	td := domain.TrackDescriptor{
		ID:          t.ID,
		Title:       t.Name,
		Artists:     artists,
		DurationMS:  t.DurationMS,
		TrackNumber: t.TrackNumber,
		ExternalURL: t.ExternalURLs["spotify"],
	}
	if len(artists) > 0 {
		td.Artist = artists[0]
	}
	if t.PreviewURL != nil {
		td.PreviewURL = *t.PreviewURL
	}
	if album != nil {
		td.Album = album.Name
		td.ReleaseDate = album.ReleaseDate
		td.ReleaseYear = releaseYear(album.ReleaseDate)
		if len(album.Images) > 0 {
			td.AlbumArtURL = album.Images[0].URL
		}
		if len(album.Artists) > 0 {
			td.AlbumArtist = album.Artists[0].Name
		}
	}
	if td.AlbumArtist == "" {
		td.AlbumArtist = td.Artist
	}
	return td
}

func toAlbum(a spotifyAlbum) domain.Album {
	out := domain.Album{
		ID:          a.ID,
		Name:        a.Name,
		ReleaseDate: a.ReleaseDate,
		TotalTracks: a.TotalTracks,
	}
	if len(a.Artists) > 0 {
		out.Artist = a.Artists[0].Name
	}
	if len(a.Images) > 0 {
		out.AlbumArtURL = a.Images[0].URL
	}
	return out
}

func releaseYear(date string) string {
	if len(date) >= 4 {
		return date[:4]
	}
	return date
}

package downloader

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"tunefetch/internal/domain"
)

// Location selects where a finished track is delivered.
type Location string

const (
	LocationLocal   Location = "local"
	LocationLibrary Location = "library"
	LocationS3      Location = "s3"
)

// ParseLocation maps user input to a Location. "navidrome" is accepted as an
// alias of library; anything unknown is local.
func ParseLocation(s string) Location {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "library", "navidrome":
		return LocationLibrary
	case "s3", "object", "storage":
		return LocationS3
	default:
		return LocationLocal
	}
}

// Description is the human-readable destination used in job messages.
func (l Location) Description() string {
	switch l {
	case LocationLibrary:
		return "music library"
	case LocationS3:
		return "object storage"
	default:
		return "local downloads folder"
	}
}

// ManualMetadata describes a track that is not in the catalog.
type ManualMetadata struct {
	Name        string `json:"name" validate:"required"`
	Artist      string `json:"artist" validate:"required"`
	Album       string `json:"album"`
	AlbumArtist string `json:"album_artist"`
	AlbumArt    string `json:"album_art" validate:"omitempty,url"`
	ReleaseDate string `json:"release_date"`
	TrackNumber int    `json:"track_number" validate:"gte=0"`
}

// Request is one submission. Either TrackID or Manual identifies the track;
// TrackID wins when both are set. SourceRef pins a specific media-source item
// (an id or URL) and skips candidate search.
type Request struct {
	TrackID   string
	Manual    *ManualMetadata
	SourceRef string
	Location  Location
}

const manualFallbackAlbum = "YouTube"

var (
	jobNamespace = uuid.MustParse("6f1c2a5e-3b7d-4e0a-9c58-2d4b8f7e1a93")

	artistSplitPattern = regexp.MustCompile(`[;,]`)
)

// JobID returns the deterministic job identifier for r. A catalog track is keyed
// by its own id so resubmitting the same track reuses the same record.
func (r Request) JobID() string {
	if r.TrackID != "" {
		return r.TrackID
	}
	parts := []string{strings.TrimSpace(r.SourceRef)}
	if r.Manual != nil {
		parts = append(parts,
			strings.ToLower(strings.TrimSpace(r.Manual.Artist)),
			strings.ToLower(strings.TrimSpace(r.Manual.Name)),
		)
	}
	loc := r.Location
	if loc == "" {
		loc = LocationLocal
	}
	parts = append(parts, string(loc))
	return "manual-" + uuid.NewSHA1(jobNamespace, []byte(strings.Join(parts, "\x00"))).String()
}

// descriptor builds the target track from manual metadata. Album and album
// artist default to the media-source name and the art falls back to the
// source thumbnail.
func (md ManualMetadata) descriptor(id string, info *domain.SourceInfo) domain.TrackDescriptor {
	artist := strings.TrimSpace(md.Artist)
	var artists []string
	for _, a := range artistSplitPattern.Split(artist, -1) {
		if a = strings.TrimSpace(a); a != "" {
			artists = append(artists, a)
		}
	}
	primary := artist
	if len(artists) > 0 {
		primary = artists[0]
	}

	track := domain.TrackDescriptor{
		ID:          id,
		Title:       strings.TrimSpace(md.Name),
		Artist:      primary,
		Artists:     artists,
		Album:       firstNonEmpty(md.Album, manualFallbackAlbum),
		AlbumArtist: firstNonEmpty(md.AlbumArtist, manualFallbackAlbum),
		ReleaseDate: strings.TrimSpace(md.ReleaseDate),
		AlbumArtURL: strings.TrimSpace(md.AlbumArt),
		TrackNumber: md.TrackNumber,
	}
	if track.TrackNumber == 0 {
		track.TrackNumber = 1
	}
	if len(track.ReleaseDate) >= 4 {
		track.ReleaseYear = track.ReleaseDate[:4]
	}
	if info != nil {
		if track.AlbumArtURL == "" {
			track.AlbumArtURL = info.ThumbnailURL
		}
		track.ExternalURL = info.CanonicalURL
		track.DurationMS = int(info.DurationSec * 1000)
	}
	return track
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, fmt.Sprintf(format, args...))
}

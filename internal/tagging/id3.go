// Package tagging writes catalog metadata into downloaded audio files.
package tagging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bogem/id3v2/v2"

	"tunefetch/internal/domain"
)

// ErrUnsupportedFormat is returned for containers the tagger cannot write.
var ErrUnsupportedFormat = errors.New("unsupported audio format for tagging")

const maxCoverBytes = 10 << 20

// ID3Tagger writes ID3v2.4 frames into mp3 files and embeds the album cover
// when the track carries an artwork URL.
type ID3Tagger struct {
	client *http.Client
}

func NewID3Tagger(timeout time.Duration) *ID3Tagger {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ID3Tagger{client: &http.Client{Timeout: timeout}}
}

// Apply tags path with the descriptor's title, artists, album, album artist,
// year and track number. A failed cover download does not fail the call.
func (t *ID3Tagger) Apply(ctx context.Context, path string, track domain.TrackDescriptor) error {
	if !strings.EqualFold(filepath.Ext(path), ".mp3") {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open tag: %w", err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetVersion(4)
	tag.SetTitle(track.Title)
	tag.SetArtist(artistField(track))
	tag.SetAlbum(track.Album)
	if track.AlbumArtist != "" {
		tag.AddTextFrame("TPE2", id3v2.EncodingUTF8, track.AlbumArtist)
	}
	if track.ReleaseYear != "" {
		tag.SetYear(track.ReleaseYear)
	}
	if track.TrackNumber > 0 {
		tag.AddTextFrame(tag.CommonID("Track number/Position in set"), id3v2.EncodingUTF8, strconv.Itoa(track.TrackNumber))
	}

	if track.AlbumArtURL != "" {
		if cover, mime, err := t.fetchCover(ctx, track.AlbumArtURL); err == nil {
			tag.AddAttachedPicture(id3v2.PictureFrame{
				Encoding:    id3v2.EncodingUTF8,
				MimeType:    mime,
				PictureType: id3v2.PTFrontCover,
				Description: "Cover",
				Picture:     cover,
			})
		}
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("save tag: %w", err)
	}
	return nil
}

func (t *ID3Tagger) fetchCover(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("cover returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes))
	if err != nil {
		return nil, "", err
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}

func artistField(track domain.TrackDescriptor) string {
	if len(track.Artists) > 0 {
		return strings.Join(track.Artists, "; ")
	}
	return track.Artist
}

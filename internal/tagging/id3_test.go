package tagging

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2/v2"

	"tunefetch/internal/domain"
)

func writeFakeAudio(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x00}, 64), 0o644); err != nil {
		t.Fatalf("write fake audio: %v", err)
	}
	return path
}

func TestApplyRejectsNonMP3(t *testing.T) {
	path := writeFakeAudio(t, "track.m4a")
	err := NewID3Tagger(0).Apply(context.Background(), path, domain.TrackDescriptor{Title: "x"})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestApplyWritesFrames(t *testing.T) {
	cover := []byte("\x89PNG\r\n\x1a\nfakecover")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(cover)
	}))
	defer srv.Close()

	path := writeFakeAudio(t, "track.mp3")
	track := domain.TrackDescriptor{
		Title:       "Hypnodancer",
		Artist:      "Little Big",
		Artists:     []string{"Little Big", "Guest"},
		Album:       "Antipositive",
		AlbumArtist: "Little Big",
		ReleaseYear: "2019",
		TrackNumber: 3,
		AlbumArtURL: srv.URL + "/cover.png",
	}
	if err := NewID3Tagger(0).Apply(context.Background(), path, track); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer tag.Close()

	if tag.Title() != "Hypnodancer" {
		t.Fatalf("title = %q", tag.Title())
	}
	if tag.Artist() != "Little Big; Guest" {
		t.Fatalf("artist = %q", tag.Artist())
	}
	if tag.Album() != "Antipositive" {
		t.Fatalf("album = %q", tag.Album())
	}
	if got := tag.GetTextFrame("TPE2").Text; got != "Little Big" {
		t.Fatalf("album artist = %q", got)
	}
	if got := tag.GetTextFrame(tag.CommonID("Track number/Position in set")).Text; got != "3" {
		t.Fatalf("track number = %q", got)
	}
	if pics := tag.GetFrames(tag.CommonID("Attached picture")); len(pics) != 1 {
		t.Fatalf("expected 1 attached picture, got %d", len(pics))
	}
}

// Package library publishes finished tracks into a Navidrome music folder and
// asks the server to rescan it through the Subsonic API.
package library

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tunefetch/internal/domain"
	"tunefetch/internal/textnorm"
)

// ErrRescan reports that the file was placed but the library scan could not be
// triggered.
var ErrRescan = errors.New("library rescan failed")

const subsonicClientName = "tunefetch"

type Config struct {
	MusicPath string
	APIURL    string
	Username  string
	Password  string
	Timeout   time.Duration
}

// Navidrome lays tracks out as <music>/<artist>/<album>/<title>.<ext>.
type Navidrome struct {
	cfg    Config
	client *http.Client
}

func NewNavidrome(cfg Config) *Navidrome {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Navidrome{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// MusicPath returns the configured library root.
func (n *Navidrome) MusicPath() string {
	return n.cfg.MusicPath
}

// TargetPath returns where a track belongs inside the library.
func (n *Navidrome) TargetPath(track domain.TrackDescriptor, ext string) string {
	artist := track.AlbumArtist
	if artist == "" {
		artist = track.Artist
	}
	ext = strings.TrimPrefix(ext, ".")
	return filepath.Join(
		n.cfg.MusicPath,
		textnorm.SanitizeFileName(artist, "Unknown Artist"),
		textnorm.SanitizeFileName(track.Album, "Unknown Album"),
		textnorm.SanitizeFileName(track.Title, "Unknown Track")+"."+ext,
	)
}

// Finalize checks that path landed inside the library and triggers a scan. The
// returned error wraps ErrRescan when only the scan failed.
func (n *Navidrome) Finalize(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("published file missing: %w", err)
	}
	if err := n.startScan(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRescan, err)
	}
	return nil
}

type subsonicEnvelope struct {
	Response struct {
		Status string `json:"status"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"subsonic-response"`
}

func (n *Navidrome) startScan(ctx context.Context) error {
	if n.cfg.APIURL == "" || n.cfg.Username == "" {
		return errors.New("library api not configured")
	}

	salt := randomSalt()
	sum := md5.Sum([]byte(n.cfg.Password + salt))
	params := url.Values{}
	params.Set("u", n.cfg.Username)
	params.Set("t", hex.EncodeToString(sum[:]))
	params.Set("s", salt)
	params.Set("v", "1.16.1")
	params.Set("c", subsonicClientName)
	params.Set("f", "json")

	endpoint := strings.TrimRight(n.cfg.APIURL, "/") + "/rest/startScan?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("startScan returned status %d", resp.StatusCode)
	}
	var env subsonicEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode startScan response: %w", err)
	}
	if env.Response.Status != "ok" {
		if env.Response.Error != nil {
			return fmt.Errorf("subsonic error %d: %s", env.Response.Error.Code, env.Response.Error.Message)
		}
		return fmt.Errorf("subsonic status %q", env.Response.Status)
	}
	return nil
}

func randomSalt() string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 12)
	for i := range b {
		b[i] = letters[rand.IntN(len(letters))]
	}
	return string(b)
}

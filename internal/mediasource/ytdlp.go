package mediasource

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tunefetch/internal/domain"
)

// Runner abstracts command execution for testability.
type Runner interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

type YTDLPOption func(*YTDLP)

// WithRunner injects a custom runner (primarily for tests).
func WithRunner(r Runner) YTDLPOption {
	return func(y *YTDLP) {
		if r != nil {
			y.runner = r
		}
	}
}

// YTDLPConfig configures the yt-dlp wrapper.
type YTDLPConfig struct {
	Binary       string
	AudioFormat  string
	Timeout      time.Duration
	RatePerSec   float64
	ExtraArgs    []string
	SearchPrefix string
}

// YTDLP drives the yt-dlp CLI for free-text search, metadata lookup, and audio
// extraction. Every invocation waits on a shared rate limiter.
type YTDLP struct {
	cfg     YTDLPConfig
	runner  Runner
	limiter *rate.Limiter
}

func NewYTDLP(cfg YTDLPConfig, opts ...YTDLPOption) (*YTDLP, error) {
	cfg.Binary = strings.TrimSpace(cfg.Binary)
	if cfg.Binary == "" {
		return nil, errors.New("yt-dlp binary required")
	}
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = "mp3"
	}
	if cfg.SearchPrefix == "" {
		cfg.SearchPrefix = "ytsearch"
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	y := &YTDLP{
		cfg:     cfg,
		runner:  commandRunner{},
		limiter: rate.NewLimiter(limit, 1),
	}
	for _, opt := range opts {
		opt(y)
	}
	return y, nil
}

type ytdlpEntry struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Uploader   string   `json:"uploader"`
	Channel    string   `json:"channel"`
	Duration   *float64 `json:"duration"`
	URL        string   `json:"url"`
	WebpageURL string   `json:"webpage_url"`
	Thumbnail  string   `json:"thumbnail"`
	Thumbnails []struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
}

func (e ytdlpEntry) uploader() string {
	if e.Uploader != "" {
		return e.Uploader
	}
	return e.Channel
}

func (e ytdlpEntry) thumbnail() string {
	if e.Thumbnail != "" {
		return e.Thumbnail
	}
	if n := len(e.Thumbnails); n > 0 {
		return e.Thumbnails[n-1].URL
	}
	return ""
}

func (e ytdlpEntry) canonicalURL() string {
	if e.WebpageURL != "" {
		return e.WebpageURL
	}
	if strings.HasPrefix(e.URL, "http") {
		return e.URL
	}
	return VideoURL(e.ID)
}

// Search runs a flat-playlist search and returns at most limit candidates in
// the order yt-dlp reports them.
func (y *YTDLP) Search(ctx context.Context, query string, limit int) ([]domain.Candidate, error) {
	if limit <= 0 {
		limit = 5
	}
	args := []string{
		"--dump-json",
		"--flat-playlist",
		"--no-warnings",
		fmt.Sprintf("%s%d:%s", y.cfg.SearchPrefix, limit, query),
	}
	out, err := y.run(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp search: %w", err)
	}

	var cands []domain.Candidate
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry ytdlpEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry.ID == "" {
			continue
		}
		cands = append(cands, domain.Candidate{
			SourceID:    entry.ID,
			Title:       entry.Title,
			Uploader:    entry.uploader(),
			DurationSec: entry.Duration,
			Rank:        len(cands) + 1,
			URL:         entry.canonicalURL(),
			Thumbnail:   entry.thumbnail(),
		})
		if len(cands) == limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read yt-dlp output: %w", err)
	}
	return cands, nil
}

// Describe resolves a URL or id to its metadata without downloading.
func (y *YTDLP) Describe(ctx context.Context, ref string) (domain.SourceInfo, error) {
	out, err := y.run(ctx, []string{"--dump-json", "--skip-download", "--no-playlist", "--no-warnings", ref})
	if err != nil {
		return domain.SourceInfo{}, fmt.Errorf("yt-dlp describe: %w", err)
	}
	var entry ytdlpEntry
	if err := json.Unmarshal(bytes.TrimSpace(out), &entry); err != nil {
		return domain.SourceInfo{}, fmt.Errorf("decode yt-dlp metadata: %w", err)
	}
	info := domain.SourceInfo{
		SourceID:     entry.ID,
		Title:        entry.Title,
		Uploader:     entry.uploader(),
		ThumbnailURL: entry.thumbnail(),
		CanonicalURL: entry.canonicalURL(),
	}
	if entry.Duration != nil {
		info.DurationSec = *entry.Duration
	}
	return info, nil
}

// Fetch extracts audio for ref into destBase plus the extension of the configured
// audio format, and returns the final path.
func (y *YTDLP) Fetch(ctx context.Context, ref, destBase string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(destBase), 0o755); err != nil {
		return "", fmt.Errorf("create destination: %w", err)
	}
	args := []string{
		"-x",
		"--audio-format", y.cfg.AudioFormat,
		"--no-playlist",
		"--no-warnings",
		"-o", destBase + ".%(ext)s",
		"--print", "after_move:filepath",
	}
	args = append(args, y.cfg.ExtraArgs...)
	args = append(args, ref)

	out, err := y.run(ctx, args)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDownloadFailed, err)
	}
	path := lastLine(out)
	if path == "" {
		path = destBase + "." + y.cfg.AudioFormat
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: output file missing: %v", domain.ErrDownloadFailed, err)
	}
	return path, nil
}

func (y *YTDLP) run(ctx context.Context, args []string) ([]byte, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if y.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.cfg.Timeout)
		defer cancel()
	}
	return y.runner.Run(ctx, y.cfg.Binary, args)
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

type commandRunner struct{}

func (commandRunner) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", err, detail)
	}
	return stdout.Bytes(), nil
}

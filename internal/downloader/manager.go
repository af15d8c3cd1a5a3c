package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"tunefetch/internal/domain"
	"tunefetch/internal/matching"
	"tunefetch/internal/service"
	"tunefetch/internal/storage"
	"tunefetch/internal/textnorm"
)

// Manager resolves tracks to media-source items, downloads them, and records
// every step of the job lifecycle.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	Submit(ctx context.Context, req Request) (string, error)
	SubmitGroup(ctx context.Context, albumID string, loc Location) (GroupSubmission, error)
	Candidates(ctx context.Context, trackID string) (*CandidateReport, error)
	ExistingFile(ctx context.Context, trackID string, loc Location) (string, bool, error)
	Recover(ctx context.Context) (int, error)
}

type Catalog interface {
	LookupTrack(ctx context.Context, id string) (domain.TrackDescriptor, error)
	LookupAlbum(ctx context.Context, id string) (domain.Album, error)
}

type MediaSource interface {
	FindCandidates(ctx context.Context, target domain.TrackDescriptor, limit int) ([]domain.Candidate, error)
	Fetch(ctx context.Context, ref, destBase string) (string, error)
	Describe(ctx context.Context, ref string) (domain.SourceInfo, error)
}

type Tagger interface {
	Apply(ctx context.Context, path string, track domain.TrackDescriptor) error
}

type Publisher interface {
	TargetPath(track domain.TrackDescriptor, ext string) string
	Finalize(ctx context.Context, path string) error
}

type ObjectStore interface {
	UploadFile(ctx context.Context, localPath, key string, opts storage.UploadOptions) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	ObjectKey(parts ...string) string
}

type Config struct {
	DataDir       string
	MaxConcurrent int
	AudioFormat   string
	SearchLimit   int
	// RequireConfirmation fails low-confidence matches instead of downloading
	// the best candidate.
	RequireConfirmation bool
	PresignTTL          time.Duration
	Logger              *logrus.Logger
}

// Deps are the collaborators a manager drives. Catalog, Publisher and Store may
// be nil when not configured; requests that need them are rejected up front.
type Deps struct {
	Jobs      service.JobService
	Catalog   Catalog
	Media     MediaSource
	Engine    *matching.Engine
	Tagger    Tagger
	Publisher Publisher
	Store     ObjectStore
}

// GroupSubmission is what SubmitGroup accepted.
type GroupSubmission struct {
	GroupID   string
	MetaJobID string
	AlbumName string
	JobIDs    []string
	Location  Location
}

// CandidateReport pairs a catalog track with its ranked candidates.
type CandidateReport struct {
	Track  domain.TrackDescriptor
	Result matching.Result
}

const (
	candidatePreviewSize = 3
	interruptedMessage   = "Interrupted: server restarted before the job finished"
)

type manager struct {
	cfg      Config
	deps     Deps
	validate *validator.Validate

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	active map[string]struct{}
}

func NewManager(cfg Config, deps Deps) Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = "mp3"
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 5
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 24 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if deps.Engine == nil {
		deps.Engine = matching.NewEngine(matching.DefaultConfig())
	}
	return &manager{
		cfg:      cfg,
		deps:     deps,
		validate: validator.New(),
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		active:   make(map[string]struct{}),
	}
}

func (m *manager) Start(ctx context.Context) error {
	for _, dir := range []string{m.tracksDir(), m.stagingRoot()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()
	m.cfg.Logger.Infof("download manager started, data dir: %s, workers: %d", m.cfg.DataDir, m.cfg.MaxConcurrent)
	return nil
}

func (m *manager) Shutdown() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.cfg.Logger.Info("download manager stopped")
}

// Submit records a queued job and starts it in the background. Problems that
// can be detected without doing any work are returned and no job is written.
func (m *manager) Submit(ctx context.Context, req Request) (string, error) {
	req, err := m.checkRequest(req)
	if err != nil {
		return "", err
	}

	id := req.JobID()
	runCtx, err := m.reserve(id)
	if err != nil {
		return "", err
	}
	if err := m.deps.Jobs.Queue(ctx, id, "Download queued for "+req.Location.Description(), nil, nil); err != nil {
		m.release(id)
		return "", fmt.Errorf("queue job: %w", err)
	}
	m.spawnJob(runCtx, id, req)
	return id, nil
}

func (m *manager) checkRequest(req Request) (Request, error) {
	req.TrackID = strings.TrimSpace(req.TrackID)
	req.SourceRef = strings.TrimSpace(req.SourceRef)
	if req.Location == "" {
		req.Location = LocationLocal
	}

	switch {
	case req.TrackID != "":
		if m.deps.Catalog == nil {
			return req, fmt.Errorf("%w: catalog not configured", domain.ErrUpstreamUnavailable)
		}
		req.Manual = nil
	case req.Manual != nil:
		if err := m.validate.Struct(req.Manual); err != nil {
			return req, invalidInput("manual metadata requires name and artist: %v", err)
		}
	default:
		return req, invalidInput("track id or manual metadata is required")
	}

	if m.deps.Media == nil {
		return req, fmt.Errorf("%w: media source not configured", domain.ErrUpstreamUnavailable)
	}
	switch req.Location {
	case LocationLibrary:
		if m.deps.Publisher == nil {
			return req, fmt.Errorf("%w: music library not configured", domain.ErrUpstreamUnavailable)
		}
	case LocationS3:
		if m.deps.Store == nil {
			return req, fmt.Errorf("%w: object storage not configured", domain.ErrUpstreamUnavailable)
		}
	case LocationLocal:
	default:
		return req, invalidInput("unknown location %q", req.Location)
	}
	return req, nil
}

// SubmitGroup queues every track of an album plus the album's meta-job, which
// carries the album description for status reads. Members run independently.
func (m *manager) SubmitGroup(ctx context.Context, albumID string, loc Location) (GroupSubmission, error) {
	albumID = strings.TrimSpace(albumID)
	if albumID == "" {
		return GroupSubmission{}, invalidInput("album id is required")
	}
	if m.deps.Catalog == nil {
		return GroupSubmission{}, fmt.Errorf("%w: catalog not configured", domain.ErrUpstreamUnavailable)
	}
	if loc == "" {
		loc = LocationLocal
	}
	probe := Request{TrackID: albumID, Location: loc}
	if _, err := m.checkRequest(probe); err != nil {
		return GroupSubmission{}, err
	}

	album, err := m.deps.Catalog.LookupAlbum(ctx, albumID)
	if err != nil {
		return GroupSubmission{}, err
	}

	trackIDs := make([]string, 0, len(album.Tracks))
	for _, t := range album.Tracks {
		if t.ID != "" {
			trackIDs = append(trackIDs, t.ID)
		}
	}
	meta := &domain.GroupMeta{
		AlbumID:     albumID,
		AlbumName:   album.Name,
		Artist:      album.Artist,
		TrackIDs:    trackIDs,
		TotalTracks: len(trackIDs),
	}

	sub := GroupSubmission{
		GroupID:   albumID,
		MetaJobID: domain.AlbumMetaJobID(albumID),
		AlbumName: album.Name,
		Location:  loc,
	}
	groupID := domain.Ptr(albumID)
	if err := m.deps.Jobs.Queue(ctx, sub.MetaJobID, fmt.Sprintf("Album '%s' queued", album.Name), groupID, meta); err != nil {
		return GroupSubmission{}, fmt.Errorf("queue album: %w", err)
	}

	memberMsg := fmt.Sprintf("Queued (Album: %s)", album.Name)
	for _, id := range trackIDs {
		runCtx, err := m.reserve(id)
		if errors.Is(err, domain.ErrJobInProgress) {
			m.cfg.Logger.WithFields(logrus.Fields{"album_id": albumID, "job_id": id}).Info("track already downloading, not requeued")
			sub.JobIDs = append(sub.JobIDs, id)
			continue
		}
		if err != nil {
			return sub, err
		}
		if err := m.deps.Jobs.Queue(ctx, id, memberMsg, groupID, nil); err != nil {
			m.release(id)
			return sub, fmt.Errorf("queue album track %s: %w", id, err)
		}
		m.spawnJob(runCtx, id, Request{TrackID: id, Location: loc})
		sub.JobIDs = append(sub.JobIDs, id)
	}

	m.cfg.Logger.WithFields(logrus.Fields{"album_id": albumID, "tracks": len(sub.JobIDs)}).Info("album queued")
	return sub, nil
}

// Candidates ranks media-source candidates for a catalog track without
// downloading anything.
func (m *manager) Candidates(ctx context.Context, trackID string) (*CandidateReport, error) {
	if m.deps.Catalog == nil || m.deps.Media == nil {
		return nil, fmt.Errorf("%w: catalog or media source not configured", domain.ErrUpstreamUnavailable)
	}
	track, err := m.deps.Catalog.LookupTrack(ctx, trackID)
	if err != nil {
		return nil, err
	}
	cands, err := m.deps.Media.FindCandidates(ctx, track, m.cfg.SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	result := m.deps.Engine.Rank(track, cands).Top(candidatePreviewSize)
	return &CandidateReport{Track: track, Result: result}, nil
}

// ExistingFile reports whether the track already sits where loc would put it.
// Object storage is not probed.
func (m *manager) ExistingFile(ctx context.Context, trackID string, loc Location) (string, bool, error) {
	if m.deps.Catalog == nil {
		return "", false, fmt.Errorf("%w: catalog not configured", domain.ErrUpstreamUnavailable)
	}
	track, err := m.deps.Catalog.LookupTrack(ctx, trackID)
	if err != nil {
		return "", false, err
	}

	var path string
	switch {
	case loc == LocationLibrary && m.deps.Publisher != nil:
		path = m.deps.Publisher.TargetPath(track, m.cfg.AudioFormat)
	case loc == LocationLocal:
		path = m.localBase(track) + "." + m.cfg.AudioFormat
	default:
		return "", false, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("stat %s: %w", path, err)
	}
	return path, true, nil
}

// Recover closes jobs left queued or processing by a previous run. Album
// meta-jobs only hold the album description and are left alone.
func (m *manager) Recover(ctx context.Context) (int, error) {
	jobs, err := m.deps.Jobs.ListByStatuses(ctx, domain.JobStatusQueued, domain.JobStatusProcessing)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, job := range jobs {
		if job.GroupID != "" && job.ID == domain.AlbumMetaJobID(job.GroupID) {
			continue
		}
		if m.isActive(job.ID) {
			continue
		}
		if err := m.deps.Jobs.Fail(ctx, job.ID, interruptedMessage); err != nil {
			return recovered, fmt.Errorf("recover job %s: %w", job.ID, err)
		}
		recovered++
	}
	if recovered > 0 {
		m.cfg.Logger.Warnf("marked %d interrupted jobs as failed", recovered)
	}
	return recovered, nil
}

// reserve claims id for one run. The claim is held until the run's goroutine
// exits; while it is held, further submissions of id fail with
// domain.ErrJobInProgress.
func (m *manager) reserve(id string) (context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return nil, errors.New("download manager not started")
	}
	if _, busy := m.active[id]; busy {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobInProgress, id)
	}
	m.active[id] = struct{}{}
	m.wg.Add(1)
	return m.ctx, nil
}

// release drops a claim whose run never started.
func (m *manager) release(id string) {
	m.markDone(id)
	m.wg.Done()
}

func (m *manager) spawnJob(ctx context.Context, id string, req Request) {
	go func() {
		defer m.wg.Done()
		defer m.markDone(id)
		select {
		case <-ctx.Done():
			m.cfg.Logger.WithField("job_id", id).Info("manager stopping, job left queued")
			return
		case m.sem <- struct{}{}:
			defer func() { <-m.sem }()
			m.runJob(ctx, id, req)
		}
	}()
}

// runJob is the fault boundary of one job: a panic becomes an error record and
// never reaches the dispatcher or other jobs.
func (m *manager) runJob(ctx context.Context, id string, req Request) {
	defer func() {
		if r := recover(); r != nil {
			m.cfg.Logger.WithField("job_id", id).Errorf("job panicked: %v\n%s", r, debug.Stack())
			m.failJob(ctx, id, fmt.Sprintf("Error: internal error: %v", r))
		}
	}()
	m.process(ctx, id, req)
}

func (m *manager) markDone(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

func (m *manager) isActive(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[id]
	return ok
}

func (m *manager) tracksDir() string {
	return filepath.Join(m.cfg.DataDir, "tracks")
}

func (m *manager) stagingRoot() string {
	return filepath.Join(m.cfg.DataDir, "staging")
}

func (m *manager) localBase(track domain.TrackDescriptor) string {
	return filepath.Join(m.tracksDir(), trackFileStem(track))
}

func trackFileStem(track domain.TrackDescriptor) string {
	name := track.Title
	if track.Artist != "" {
		name = track.Artist + " - " + track.Title
	}
	return textnorm.SanitizeFileName(name, textnorm.SanitizeFileName(track.ID, "track"))
}

var _ Manager = (*manager)(nil)

package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"tunefetch/internal/domain"
	"tunefetch/internal/library"
	"tunefetch/internal/matching"
	"tunefetch/internal/repository/sqlite"
	"tunefetch/internal/service"
	"tunefetch/internal/storage"
)

type fakeCatalog struct {
	tracks map[string]domain.TrackDescriptor
	albums map[string]domain.Album
}

func (f *fakeCatalog) LookupTrack(_ context.Context, id string) (domain.TrackDescriptor, error) {
	t, ok := f.tracks[id]
	if !ok {
		return domain.TrackDescriptor{}, fmt.Errorf("track %s: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

func (f *fakeCatalog) LookupAlbum(_ context.Context, id string) (domain.Album, error) {
	a, ok := f.albums[id]
	if !ok {
		return domain.Album{}, fmt.Errorf("album %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

type fakeMedia struct {
	mu         sync.Mutex
	candidates map[string][]domain.Candidate
	info       domain.SourceInfo
	fetchErr   map[string]error
	panicRefs  map[string]bool
	fetched    []string

	// hold, when set, parks every Fetch until it is closed.
	hold    chan struct{}
	started chan struct{}
}

func (f *fakeMedia) FindCandidates(_ context.Context, target domain.TrackDescriptor, _ int) ([]domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.candidates[target.Title], nil
}

func (f *fakeMedia) Fetch(_ context.Context, ref, destBase string) (string, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, ref)
	err := f.fetchErr[ref]
	boom := f.panicRefs[ref]
	hold, started := f.hold, f.started
	f.mu.Unlock()
	if hold != nil {
		select {
		case started <- struct{}{}:
		default:
		}
		<-hold
	}
	if boom {
		panic("decoder exploded")
	}
	if err != nil {
		return "", err
	}
	path := destBase + ".mp3"
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// holdFetches parks fetches until the returned release func is called. Release
// is also registered as a cleanup so a failing test never leaves a job parked.
func (f *fakeMedia) holdFetches(t *testing.T) (started <-chan struct{}, release func()) {
	t.Helper()
	f.mu.Lock()
	f.hold = make(chan struct{})
	f.started = make(chan struct{}, 1)
	hold, ch := f.hold, f.started
	f.mu.Unlock()
	var once sync.Once
	release = func() { once.Do(func() { close(hold) }) }
	t.Cleanup(release)
	return ch, release
}

func waitStarted(t *testing.T, started <-chan struct{}) {
	t.Helper()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch never started")
	}
}

func (f *fakeMedia) fetchedRefs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func (f *fakeMedia) Describe(_ context.Context, _ string) (domain.SourceInfo, error) {
	return f.info, nil
}

type fakeTagger struct {
	mu     sync.Mutex
	err    error
	tagged []domain.TrackDescriptor
}

func (f *fakeTagger) calls() []domain.TrackDescriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TrackDescriptor(nil), f.tagged...)
}

func (f *fakeTagger) Apply(_ context.Context, _ string, track domain.TrackDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tagged = append(f.tagged, track)
	return f.err
}

type fakePublisher struct {
	root        string
	finalizeErr error
}

func (f *fakePublisher) TargetPath(track domain.TrackDescriptor, ext string) string {
	return filepath.Join(f.root, track.Artist, track.Title+"."+ext)
}

func (f *fakePublisher) Finalize(context.Context, string) error {
	return f.finalizeErr
}

type fakeStore struct {
	mu       sync.Mutex
	uploaded map[string]bool
}

func (f *fakeStore) UploadFile(_ context.Context, localPath, key string, opts storage.UploadOptions) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	if opts.ProgressCallback != nil {
		opts.ProgressCallback(5, 5)
	}
	f.mu.Lock()
	f.uploaded[key] = true
	f.mu.Unlock()
	return "s3://music/" + key, nil
}

func (f *fakeStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploaded[key]
}

func (f *fakeStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

func (f *fakeStore) ObjectKey(parts ...string) string {
	return strings.Join(parts, "/")
}

type harness struct {
	mgr     Manager
	jobs    service.JobService
	catalog *fakeCatalog
	media   *fakeMedia
	tagger  *fakeTagger
	dataDir string
}

func goodCandidate(id, artist, title string, seconds float64) domain.Candidate {
	return domain.Candidate{
		SourceID:    id,
		Title:       artist + " - " + title + " (Official Audio)",
		Uploader:    artist,
		DurationSec: &seconds,
		Rank:        1,
		Source:      domain.SourceStructured,
		URL:         "https://www.youtube.com/watch?v=" + id,
	}
}

func newHarness(t *testing.T, cfg Config, mutate func(*Deps)) *harness {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := sqlite.NewJobRepository(db)
	if err := repo.Init(context.Background()); err != nil {
		t.Fatalf("init repo: %v", err)
	}

	h := &harness{
		jobs: service.NewJobService(repo),
		catalog: &fakeCatalog{
			tracks: map[string]domain.TrackDescriptor{
				"t1": {ID: "t1", Title: "Song", Artist: "Artist", Artists: []string{"Artist"}, Album: "Record", DurationMS: 200000},
				"t2": {ID: "t2", Title: "Other", Artist: "Artist", Artists: []string{"Artist"}, Album: "Record", DurationMS: 150000},
			},
			albums: map[string]domain.Album{},
		},
		media: &fakeMedia{
			candidates: map[string][]domain.Candidate{
				"Song":  {goodCandidate("aaaaaaaaaaa", "Artist", "Song", 200)},
				"Other": {goodCandidate("bbbbbbbbbbb", "Artist", "Other", 150)},
			},
			fetchErr:  map[string]error{},
			panicRefs: map[string]bool{},
		},
		tagger:  &fakeTagger{},
		dataDir: t.TempDir(),
	}
	h.catalog.albums["alb"] = domain.Album{
		ID:     "alb",
		Name:   "Record",
		Artist: "Artist",
		Tracks: []domain.TrackDescriptor{h.catalog.tracks["t1"], h.catalog.tracks["t2"]},
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	cfg.DataDir = h.dataDir
	cfg.Logger = logger

	deps := Deps{
		Jobs:    h.jobs,
		Catalog: h.catalog,
		Media:   h.media,
		Tagger:  h.tagger,
	}
	if mutate != nil {
		mutate(&deps)
	}
	h.mgr = NewManager(cfg, deps)
	if err := h.mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.mgr.Shutdown)
	return h
}

func (h *harness) wait(t *testing.T, id string) *domain.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := h.jobs.GetJob(context.Background(), id)
		if err == nil && job.Status.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

func TestSubmitLocalCompletes(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	id, err := h.mgr.Submit(context.Background(), Request{TrackID: "t1"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "t1" {
		t.Fatalf("job id = %q, want t1", id)
	}

	job := h.wait(t, id)
	if job.Status != domain.JobStatusCompleted || job.Stage != domain.StageCompleted || job.Progress != 100 {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.Message != "Track ready for download" {
		t.Fatalf("message = %q", job.Message)
	}
	if job.ResultURL != "api/download/file/t1?filename=Artist%20-%20Song.mp3" {
		t.Fatalf("result url = %q", job.ResultURL)
	}
	if _, err := os.Stat(job.FilePath); err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}
	if tagged := h.tagger.calls(); len(tagged) != 1 || tagged[0].ID != "t1" {
		t.Fatalf("expected track to be tagged, got %+v", tagged)
	}
}

func TestSubmitFailureMessages(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		trackID    string
		setup      func(h *harness)
		wantPrefix string
		wantStage  domain.Stage
	}{
		{
			name:       "unknown track",
			trackID:    "missing",
			wantPrefix: "Could not fetch track information",
			wantStage:  domain.StageFetching,
		},
		{
			name:    "no candidates",
			trackID: "t1",
			setup: func(h *harness) {
				h.media.candidates["Song"] = nil
			},
			wantPrefix: noResultsMessage,
			wantStage:  domain.StageDownloading,
		},
		{
			name:    "blocked download",
			trackID: "t1",
			setup: func(h *harness) {
				h.media.fetchErr["https://www.youtube.com/watch?v=aaaaaaaaaaa"] = errors.New("ERROR: HTTP Error 403: Forbidden")
			},
			wantPrefix: "Download failed: YouTube blocked the request (HTTP 403)",
			wantStage:  domain.StageDownloading,
		},
		{
			name:    "low confidence needs confirmation",
			cfg:     Config{RequireConfirmation: true},
			trackID: "t1",
			setup: func(h *harness) {
				secs := 245.0
				h.media.candidates["Song"] = []domain.Candidate{{SourceID: "ccccccccccc", Title: "Unrelated", Uploader: "Someone", DurationSec: &secs, Rank: 1, Source: domain.SourceStructured}}
			},
			wantPrefix: "Low-confidence match (",
			wantStage:  domain.StageDownloading,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.cfg, nil)
			if tt.setup != nil {
				tt.setup(h)
			}
			id, err := h.mgr.Submit(context.Background(), Request{TrackID: tt.trackID})
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			job := h.wait(t, id)
			if job.Status != domain.JobStatusError {
				t.Fatalf("status = %s, want error", job.Status)
			}
			if !strings.HasPrefix(job.Message, tt.wantPrefix) {
				t.Fatalf("message = %q, want prefix %q", job.Message, tt.wantPrefix)
			}
			if job.Error != job.Message || job.Progress != 0 {
				t.Fatalf("unexpected error fields %+v", job)
			}
			if job.Stage != tt.wantStage {
				t.Fatalf("stage = %s, want %s", job.Stage, tt.wantStage)
			}
		})
	}
}

func TestLowConfidenceAutoAccepted(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	secs := 245.0
	h.media.candidates["Song"] = []domain.Candidate{{SourceID: "ccccccccccc", Title: "Unrelated", Uploader: "Someone", DurationSec: &secs, Rank: 1, Source: domain.SourceStructured}}

	id, _ := h.mgr.Submit(context.Background(), Request{TrackID: "t1"})
	job := h.wait(t, id)
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, message %q", job.Status, job.Message)
	}
	if !strings.Contains(job.Message, "low-confidence match") {
		t.Fatalf("expected qualifying note, got %q", job.Message)
	}
}

func TestTaggingFailureKeepsFile(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.tagger.err = errors.New("unsupported container")

	id, _ := h.mgr.Submit(context.Background(), Request{TrackID: "t1"})
	job := h.wait(t, id)
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s", job.Status)
	}
	if !strings.Contains(job.Message, "(metadata could not be applied: unsupported container)") {
		t.Fatalf("message = %q", job.Message)
	}
	if _, err := os.Stat(job.FilePath); err != nil {
		t.Fatalf("file should be kept: %v", err)
	}
}

func TestJobFailuresAreIsolated(t *testing.T) {
	h := newHarness(t, Config{MaxConcurrent: 2}, nil)
	h.media.panicRefs["https://www.youtube.com/watch?v=aaaaaaaaaaa"] = true
	ctx := context.Background()

	if _, err := h.mgr.Submit(ctx, Request{TrackID: "t1"}); err != nil {
		t.Fatalf("Submit t1: %v", err)
	}
	if _, err := h.mgr.Submit(ctx, Request{TrackID: "t2"}); err != nil {
		t.Fatalf("Submit t2: %v", err)
	}

	failed := h.wait(t, "t1")
	if failed.Status != domain.JobStatusError || !strings.Contains(failed.Message, "decoder exploded") {
		t.Fatalf("unexpected failed job %+v", failed)
	}
	ok := h.wait(t, "t2")
	if ok.Status != domain.JobStatusCompleted {
		t.Fatalf("sibling job should complete, got %s: %s", ok.Status, ok.Message)
	}
}

func TestResubmitWhileRunningIsRefused(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ctx := context.Background()
	started, release := h.media.holdFetches(t)

	if _, err := h.mgr.Submit(ctx, Request{TrackID: "t1"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitStarted(t, started)

	if _, err := h.mgr.Submit(ctx, Request{TrackID: "t1"}); !errors.Is(err, domain.ErrJobInProgress) {
		t.Fatalf("second Submit err = %v, want ErrJobInProgress", err)
	}
	job, err := h.jobs.GetJob(ctx, "t1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != domain.JobStatusProcessing || job.Stage != domain.StageDownloading {
		t.Fatalf("running job was reset: %s/%s", job.Status, job.Stage)
	}
	if n, err := h.mgr.Recover(ctx); err != nil || n != 0 {
		t.Fatalf("Recover = %d, %v; running job must not be closed", n, err)
	}

	release()
	if job := h.wait(t, "t1"); job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s: %s", job.Status, job.Message)
	}
	if refs := h.media.fetchedRefs(); len(refs) != 1 {
		t.Fatalf("fetched %d times, want 1", len(refs))
	}

	// Once the run has finished the id may be submitted again.
	waitIdle(t, h, "t1")
	if _, err := h.mgr.Submit(ctx, Request{TrackID: "t1"}); err != nil {
		t.Fatalf("Submit after completion: %v", err)
	}
	if job := h.wait(t, "t1"); job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s: %s", job.Status, job.Message)
	}
}

func TestSubmitGroupLeavesRunningTrackAlone(t *testing.T) {
	h := newHarness(t, Config{MaxConcurrent: 2}, nil)
	ctx := context.Background()
	started, release := h.media.holdFetches(t)

	if _, err := h.mgr.Submit(ctx, Request{TrackID: "t1"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitStarted(t, started)

	sub, err := h.mgr.SubmitGroup(ctx, "alb", LocationLocal)
	if err != nil {
		t.Fatalf("SubmitGroup: %v", err)
	}
	if len(sub.JobIDs) != 2 {
		t.Fatalf("job ids = %v", sub.JobIDs)
	}
	job, _ := h.jobs.GetJob(ctx, "t1")
	if job.Status != domain.JobStatusProcessing || job.GroupID != "" {
		t.Fatalf("running track was requeued: %+v", job)
	}

	release()
	for _, id := range []string{"t1", "t2"} {
		if job := h.wait(t, id); job.Status != domain.JobStatusCompleted {
			t.Fatalf("job %s status = %s: %s", id, job.Status, job.Message)
		}
	}
}

// waitIdle waits for the manager to drop its claim on id after the terminal
// write.
func waitIdle(t *testing.T, h *harness, id string) {
	t.Helper()
	m := h.mgr.(*manager)
	deadline := time.Now().Add(5 * time.Second)
	for m.isActive(id) {
		if time.Now().After(deadline) {
			t.Fatalf("job %s still active", id)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSelectCandidate(t *testing.T) {
	weak := matching.Result{
		Candidates:        []matching.ScoredCandidate{{Candidate: domain.Candidate{SourceID: "ccccccccccc"}, Score: 0.4}},
		BestScore:         0.4,
		Threshold:         0.65,
		NeedsConfirmation: true,
	}
	tests := []struct {
		name    string
		confirm bool
		result  matching.Result
		want    error
	}{
		{"no candidates", false, matching.Result{NoCandidates: true, Threshold: 0.65}, domain.ErrNoMatch},
		{"low confidence refused", true, weak, domain.ErrLowConfidence},
		{"low confidence accepted", false, weak, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{RequireConfirmation: tt.confirm}, nil)
			best, err := h.mgr.(*manager).selectCandidate(tt.result)
			if !errors.Is(err, tt.want) || (tt.want == nil && err != nil) {
				t.Fatalf("selectCandidate() error = %v, want %v", err, tt.want)
			}
			if tt.want == nil && best.SourceID != "ccccccccccc" {
				t.Fatalf("selected %+v", best)
			}
		})
	}
}

func TestSubmitRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name   string
		req    Request
		mutate func(*Deps)
		want   error
	}{
		{"empty", Request{}, nil, domain.ErrInvalidInput},
		{"manual missing artist", Request{Manual: &ManualMetadata{Name: "Song"}}, nil, domain.ErrInvalidInput},
		{"library not configured", Request{TrackID: "t1", Location: LocationLibrary}, nil, domain.ErrUpstreamUnavailable},
		{"s3 not configured", Request{TrackID: "t1", Location: LocationS3}, nil, domain.ErrUpstreamUnavailable},
		{"catalog missing", Request{TrackID: "t1"}, func(d *Deps) { d.Catalog = nil }, domain.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{}, tt.mutate)
			_, err := h.mgr.Submit(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			recent, _ := h.jobs.ListRecent(context.Background(), 10)
			if len(recent) != 0 {
				t.Fatalf("no job should be written, got %d", len(recent))
			}
		})
	}
}

func TestManualSubmissionWithSource(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.media.info = domain.SourceInfo{
		SourceID:     "ddddddddddd",
		Title:        "Some upload",
		ThumbnailURL: "https://img.example/thumb.jpg",
		CanonicalURL: "https://www.youtube.com/watch?v=ddddddddddd",
		DurationSec:  181,
	}
	req := Request{
		Manual:    &ManualMetadata{Name: "Song", Artist: "Artist; Guest"},
		SourceRef: "ddddddddddd",
	}

	id, err := h.mgr.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !strings.HasPrefix(id, "manual-") || id != req.JobID() {
		t.Fatalf("unexpected job id %q", id)
	}
	job := h.wait(t, id)
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s: %s", job.Status, job.Message)
	}

	tagged := h.tagger.calls()[0]
	if tagged.Album != "YouTube" || tagged.AlbumArtist != "YouTube" || tagged.AlbumArtURL != "https://img.example/thumb.jpg" {
		t.Fatalf("unexpected manual descriptor %+v", tagged)
	}
	if tagged.Artist != "Artist" || len(tagged.Artists) != 2 || tagged.TrackNumber != 1 {
		t.Fatalf("unexpected artists %+v", tagged)
	}
	if refs := h.media.fetchedRefs(); refs[0] != "https://www.youtube.com/watch?v=ddddddddddd" {
		t.Fatalf("fetched %v", refs)
	}
}

func TestSubmitGroup(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ctx := context.Background()

	sub, err := h.mgr.SubmitGroup(ctx, "alb", LocationLocal)
	if err != nil {
		t.Fatalf("SubmitGroup: %v", err)
	}
	if sub.MetaJobID != "album:alb" || len(sub.JobIDs) != 2 {
		t.Fatalf("unexpected submission %+v", sub)
	}
	for _, id := range sub.JobIDs {
		h.wait(t, id)
	}

	status, err := h.jobs.GroupStatus(ctx, "alb")
	if err != nil {
		t.Fatalf("GroupStatus: %v", err)
	}
	if status.Aggregate.Status != domain.AlbumStatusCompleted || status.Aggregate.Completed != 2 || status.TotalTracks() != 2 {
		t.Fatalf("unexpected aggregate %+v", status.Aggregate)
	}
	if status.Meta == nil || status.Meta.AlbumName != "Record" {
		t.Fatalf("unexpected meta %+v", status.Meta)
	}
}

func TestSubmitGroupUnknownAlbum(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ctx := context.Background()

	if _, err := h.mgr.SubmitGroup(ctx, "nope", LocationLocal); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := h.jobs.GetJob(ctx, domain.AlbumMetaJobID("nope")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("meta job should not exist, got %v", err)
	}
}

func TestLibraryPublishWithFailedRescan(t *testing.T) {
	pub := &fakePublisher{root: t.TempDir(), finalizeErr: fmt.Errorf("%w: connection refused", library.ErrRescan)}
	h := newHarness(t, Config{}, func(d *Deps) { d.Publisher = pub })

	id, err := h.mgr.Submit(context.Background(), Request{TrackID: "t1", Location: LocationLibrary})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job := h.wait(t, id)
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s: %s", job.Status, job.Message)
	}
	if !strings.HasPrefix(job.Message, "Track added to library (scan may need manual trigger)") {
		t.Fatalf("message = %q", job.Message)
	}
	if job.FilePath != filepath.Join(pub.root, "Artist", "Song.mp3") {
		t.Fatalf("file path = %q", job.FilePath)
	}
	if _, err := os.Stat(job.FilePath); err != nil {
		t.Fatalf("published file missing: %v", err)
	}
}

func TestObjectStorePublish(t *testing.T) {
	store := &fakeStore{uploaded: map[string]bool{}}
	h := newHarness(t, Config{}, func(d *Deps) { d.Store = store })

	id, _ := h.mgr.Submit(context.Background(), Request{TrackID: "t1", Location: LocationS3})
	job := h.wait(t, id)
	if job.Status != domain.JobStatusCompleted || job.Message != "Track uploaded to object storage" {
		t.Fatalf("unexpected job %+v", job)
	}
	key := "Artist/Record/Artist - Song.mp3"
	if !store.has(key) {
		t.Fatalf("expected upload of %q", key)
	}
	if job.ResultURL != "https://signed.example/"+key || job.FilePath != "s3://music/"+key {
		t.Fatalf("unexpected result %q / %q", job.ResultURL, job.FilePath)
	}
}

func TestRecoverClosesOrphanedJobs(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ctx := context.Background()

	_ = h.jobs.Queue(ctx, "queued", "Download queued", nil, nil)
	_ = h.jobs.Queue(ctx, "working", "Download queued", nil, nil)
	_ = h.jobs.Advance(ctx, "working", domain.StageDownloading, "Searching...")
	_ = h.jobs.Queue(ctx, "album:x", "Album queued", domain.Ptr("x"), &domain.GroupMeta{AlbumID: "x"})
	_ = h.jobs.Queue(ctx, "done", "Download queued", nil, nil)
	_ = h.jobs.Complete(ctx, "done", "Track ready for download", "", "")

	n, err := h.mgr.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if n != 2 {
		t.Fatalf("recovered %d jobs, want 2", n)
	}
	for _, id := range []string{"queued", "working"} {
		job, _ := h.jobs.GetJob(ctx, id)
		if job.Status != domain.JobStatusError || job.Message != interruptedMessage {
			t.Fatalf("job %s not recovered: %+v", id, job)
		}
	}
	meta, _ := h.jobs.GetJob(ctx, "album:x")
	if meta.Status != domain.JobStatusQueued {
		t.Fatalf("meta job should be untouched, got %s", meta.Status)
	}
}

func TestCandidatesReturnsTopThree(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	secs := 200.0
	h.media.candidates["Song"] = []domain.Candidate{
		{SourceID: "1", Title: "Random clip", Uploader: "X", DurationSec: &secs, Rank: 1, Source: domain.SourceFallback},
		goodCandidate("2", "Artist", "Song", 200),
		{SourceID: "3", Title: "Song (cover)", Uploader: "Y", DurationSec: &secs, Rank: 3, Source: domain.SourceFallback},
		{SourceID: "4", Title: "Song live", Uploader: "Fan Channel", DurationSec: &secs, Rank: 4, Source: domain.SourceFallback},
	}

	report, err := h.mgr.Candidates(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(report.Result.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(report.Result.Candidates))
	}
	if report.Result.Candidates[0].SourceID != "2" || report.Result.NeedsConfirmation {
		t.Fatalf("unexpected ranking %+v", report.Result)
	}
	if report.Track.ID != "t1" {
		t.Fatalf("unexpected track %+v", report.Track)
	}
}

func TestExistingFile(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ctx := context.Background()

	if _, ok, err := h.mgr.ExistingFile(ctx, "t1", LocationLocal); err != nil || ok {
		t.Fatalf("expected no file, got ok=%v err=%v", ok, err)
	}
	want := filepath.Join(h.dataDir, "tracks", "Artist - Song.mp3")
	if err := os.WriteFile(want, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	path, ok, err := h.mgr.ExistingFile(ctx, "t1", LocationLocal)
	if err != nil || !ok || path != want {
		t.Fatalf("ExistingFile = %q, %v, %v", path, ok, err)
	}
}

func TestParseLocation(t *testing.T) {
	tests := map[string]Location{
		"":          LocationLocal,
		"local":     LocationLocal,
		"Navidrome": LocationLibrary,
		"library":   LocationLibrary,
		"s3":        LocationS3,
		"elsewhere": LocationLocal,
	}
	for in, want := range tests {
		if got := ParseLocation(in); got != want {
			t.Errorf("ParseLocation(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUploadProgressLogsQuarters(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	report := uploadProgress(logrus.NewEntry(logger))

	for _, done := range []int64{0, 10, 30, 60, 70, 100, 100} {
		report(done, 100)
	}

	var got []string
	for _, e := range hook.AllEntries() {
		got = append(got, e.Message)
	}
	want := []string{
		"upload progress: 0% (0 B of 100 B)",
		"upload progress: 25% (30 B of 100 B)",
		"upload progress: 50% (60 B of 100 B)",
		"upload progress: 100% (100 B of 100 B)",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("logged:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestPlaceFileReplacesTarget(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "staging", "track.mp3")
	dst := filepath.Join(dir, "library", "Artist", "Record", "Song.mp3")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := placeFile(src, dst); err != nil {
		t.Fatalf("placeFile() error = %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "new" {
		t.Errorf("target = %q, %v", data, err)
	}
}

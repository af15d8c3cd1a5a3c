package domain

import "time"

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusError:
		return true
	}
	return false
}

// IsTerminal reports whether a job in this status has finished for the current submission.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// Stage is the lifecycle sub-status of a job. The set is closed; the free-text
// detail of a stage lives in Job.Message.
type Stage string

const (
	StageQueued      Stage = "queued"
	StageFetching    Stage = "fetching"
	StagePreparing   Stage = "preparing"
	StageDownloading Stage = "downloading"
	StageTagging     Stage = "tagging"
	StageCopying     Stage = "copying"
	StageCompleted   Stage = "completed"
)

var stageProgress = map[Stage]int{
	StageQueued:      0,
	StageFetching:    10,
	StagePreparing:   15,
	StageDownloading: 30,
	StageTagging:     85,
	StageCopying:     90,
	StageCompleted:   100,
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	_, ok := stageProgress[s]
	return ok
}

// Progress returns the nominal progress percentage a job reports when it enters s.
func (s Stage) Progress() int {
	return stageProgress[s]
}

// GroupMeta is the static description of an album submission, stored on the
// album's meta-job only.
type GroupMeta struct {
	AlbumID     string   `json:"album_id"`
	AlbumName   string   `json:"album_name"`
	Artist      string   `json:"artist"`
	TrackIDs    []string `json:"track_ids"`
	TotalTracks int      `json:"total_tracks"`
}

// Job is the durable record of one resolution attempt.
type Job struct {
	ID        string
	Status    JobStatus
	Stage     Stage
	Progress  int
	Message   string
	FilePath  string
	ResultURL string
	Error     string
	GroupID   string
	Payload   *GroupMeta
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobUpdate is a partial write applied with merge semantics. Status and Message
// always overwrite. Stage and Progress overwrite when set. The pointer fields are
// written only when non-nil, so omitted values keep whatever is stored.
type JobUpdate struct {
	Status    JobStatus
	Message   string
	Stage     Stage
	Progress  *int
	FilePath  *string
	ResultURL *string
	Error     *string
	GroupID   *string
	Payload   *GroupMeta
}

// AlbumAggregate is the roll-up of an album's member jobs. It is computed on
// demand and never stored.
type AlbumAggregate struct {
	Status       string
	Total        int
	Completed    int
	Failed       int
	CurrentJobID string
}

const (
	AlbumStatusDownloading = "downloading"
	AlbumStatusCompleted   = "completed"
)

// AlbumMetaJobID returns the identifier of the meta-job that carries an album's payload.
func AlbumMetaJobID(albumID string) string {
	return "album:" + albumID
}

// Ptr returns a pointer to v. Used to fill optional JobUpdate fields.
func Ptr[T any](v T) *T {
	return &v
}

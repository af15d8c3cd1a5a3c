package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tunefetch/internal/domain"
	"tunefetch/internal/repository"
)

const (
	createJobsTable = `
CREATE TABLE IF NOT EXISTS download_jobs (
	job_id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	stage TEXT,
	progress INTEGER,
	message TEXT NOT NULL DEFAULT '',
	file_path TEXT,
	download_url TEXT,
	error TEXT,
	group_id TEXT,
	payload_json TEXT,
	created_at_ms INTEGER NOT NULL,
	updated_at_ms INTEGER NOT NULL
);
`
	createJobsIndexes = `
CREATE INDEX IF NOT EXISTS idx_download_jobs_status ON download_jobs(status);
CREATE INDEX IF NOT EXISTS idx_download_jobs_updated ON download_jobs(updated_at_ms);
CREATE INDEX IF NOT EXISTS idx_download_jobs_group ON download_jobs(group_id);
`

	// Static facts use COALESCE so a partial update never erases them.
	// updated_at_ms is kept strictly increasing per row.
	upsertJob = `
INSERT INTO download_jobs (
	job_id, status, stage, progress, message, file_path, download_url, error,
	group_id, payload_json, created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(job_id) DO UPDATE SET
	status = excluded.status,
	message = excluded.message,
	stage = COALESCE(excluded.stage, download_jobs.stage),
	progress = COALESCE(excluded.progress, download_jobs.progress),
	file_path = COALESCE(excluded.file_path, download_jobs.file_path),
	download_url = COALESCE(excluded.download_url, download_jobs.download_url),
	error = COALESCE(excluded.error, download_jobs.error),
	group_id = COALESCE(excluded.group_id, download_jobs.group_id),
	payload_json = COALESCE(excluded.payload_json, download_jobs.payload_json),
	updated_at_ms = MAX(excluded.updated_at_ms, download_jobs.updated_at_ms + 1)
`

	selectJobColumns = `job_id, status, stage, progress, message, file_path, download_url, error, group_id, payload_json, created_at_ms, updated_at_ms`
)

type JobRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewJobRepository(db *sql.DB) repository.JobRepository {
	return &JobRepository{db: db, now: time.Now}
}

func (r *JobRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createJobsTable); err != nil {
		return fmt.Errorf("create download_jobs table: %w", err)
	}
	if err := r.ensureJobColumns(ctx); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, createJobsIndexes); err != nil {
		return fmt.Errorf("create download_jobs indexes: %w", err)
	}
	return nil
}

// ensureJobColumns upgrades databases created before the group/payload columns existed.
func (r *JobRepository) ensureJobColumns(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, `PRAGMA table_info(download_jobs)`)
	if err != nil {
		return fmt.Errorf("describe download_jobs table: %w", err)
	}
	defer rows.Close()

	columns := map[string]struct{}{}
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("scan pragma table info: %w", err)
		}
		columns[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate pragma table info: %w", err)
	}

	for _, col := range []struct{ name, statement string }{
		{"group_id", `ALTER TABLE download_jobs ADD COLUMN group_id TEXT`},
		{"payload_json", `ALTER TABLE download_jobs ADD COLUMN payload_json TEXT`},
	} {
		if _, exists := columns[col.name]; exists {
			continue
		}
		if _, err := r.db.ExecContext(ctx, col.statement); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
	}
	return nil
}

func (r *JobRepository) Upsert(ctx context.Context, id string, update domain.JobUpdate) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("upsert job: %w: empty job id", domain.ErrInvalidInput)
	}
	if !update.Status.Valid() {
		return fmt.Errorf("upsert job %s: %w: status %q", id, domain.ErrInvalidInput, update.Status)
	}
	if update.Stage != "" && !update.Stage.Valid() {
		return fmt.Errorf("upsert job %s: %w: unknown stage %q", id, domain.ErrInvalidInput, update.Stage)
	}

	var payload any
	if update.Payload != nil {
		raw, err := json.Marshal(update.Payload)
		if err != nil {
			return fmt.Errorf("encode job payload: %w", err)
		}
		payload = string(raw)
	}

	var stage any
	if update.Stage != "" {
		stage = string(update.Stage)
	}

	nowMS := r.now().UnixMilli()
	err := retryOnBusy(ctx, func() error {
		_, err := r.db.ExecContext(ctx, upsertJob,
			id,
			string(update.Status),
			stage,
			nullableInt(update.Progress),
			update.Message,
			nullableString(update.FilePath),
			nullableString(update.ResultURL),
			nullableString(update.Error),
			nullableString(update.GroupID),
			payload,
			nowMS,
			nowMS,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", id, err)
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectJobColumns+` FROM download_jobs WHERE job_id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

func (r *JobRepository) ListByGroup(ctx context.Context, groupID, excludeID string) ([]domain.Job, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+selectJobColumns+`
FROM download_jobs
WHERE group_id = ? AND job_id <> ?
ORDER BY updated_at_ms DESC, job_id`, groupID, excludeID)
	if err != nil {
		return nil, fmt.Errorf("list jobs for group %s: %w", groupID, err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (r *JobRepository) ListByStatuses(ctx context.Context, statuses ...domain.JobStatus) ([]domain.Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+selectJobColumns+`
FROM download_jobs
WHERE status IN (`+placeholders+`)
ORDER BY created_at_ms`, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+selectJobColumns+`
FROM download_jobs
ORDER BY updated_at_ms DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows *sql.Rows) ([]domain.Job, error) {
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*domain.Job, error) {
	var (
		job       domain.Job
		status    string
		stage     sql.NullString
		progress  sql.NullInt64
		filePath  sql.NullString
		resultURL sql.NullString
		errText   sql.NullString
		groupID   sql.NullString
		payload   sql.NullString
		createdMS int64
		updatedMS int64
	)
	if err := scanner.Scan(
		&job.ID,
		&status,
		&stage,
		&progress,
		&job.Message,
		&filePath,
		&resultURL,
		&errText,
		&groupID,
		&payload,
		&createdMS,
		&updatedMS,
	); err != nil {
		return nil, err
	}

	job.Status = domain.JobStatus(status)
	job.Stage = domain.Stage(stage.String)
	job.Progress = int(progress.Int64)
	job.FilePath = filePath.String
	job.ResultURL = resultURL.String
	job.Error = errText.String
	job.GroupID = groupID.String
	job.CreatedAt = time.UnixMilli(createdMS).UTC()
	job.UpdatedAt = time.UnixMilli(updatedMS).UTC()

	if payload.Valid && payload.String != "" {
		var meta domain.GroupMeta
		if err := json.Unmarshal([]byte(payload.String), &meta); err != nil {
			return nil, fmt.Errorf("decode payload for job %s: %w", job.ID, err)
		}
		job.Payload = &meta
	}
	return &job, nil
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

var _ repository.JobRepository = (*JobRepository)(nil)

package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/smeltapp/smeltd/internal/data/pgxutil"
	"github.com/smeltapp/smeltd/internal/domain/model"
	errs "github.com/smeltapp/smeltd/internal/errors"
)

// RepoConfig holds configuration options shared by the data repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for smelt jobs and their files.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a JobRepo with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger,
	}
}

const jobColumns = `
  id,
  owner_id,
  mode,
  prompt_ids,
  stage,
  error_code,
  error_message,
  created_at,
  completed_at
`

const jobFileColumns = `
  id,
  job_id,
  kind,
  display_name,
  mime_type,
  size_bytes,
  duration_seconds,
  stage,
  error_code,
  position,
  content,
  text_content
`

// queuedChannel is the notification channel signalled when a job is enqueued.
const queuedChannel = "job_queued"

// Create inserts a job and its files in one transaction and notifies
// listeners that work is available. Missing ids are generated.
func (r *JobRepo) Create(ctx context.Context, job *model.Job) error {
	if job == nil {
		return errors.New("job is required")
	}
	if !job.Mode.Valid() {
		return fmt.Errorf("invalid mode: %s", job.Mode)
	}
	if len(job.Files) == 0 {
		return errors.New("job requires at least one file")
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Stage = model.StagePending
	job.CreatedAt = r.timeProvider.Now().UTC()

	promptIDs, err := json.Marshal(job.PromptIDs)
	if err != nil {
		return fmt.Errorf("marshal prompt ids: %w", err)
	}

	return pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			if _, execErr := tx.ExecContext(ctx, `
				INSERT INTO jobs (id, owner_id, mode, prompt_ids, stage, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, job.ID, job.OwnerID, job.Mode, promptIDs, job.Stage, job.CreatedAt); execErr != nil {
				if errs.IsUniqueViolation(execErr) {
					return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
				}
				return fmt.Errorf("insert job: %w", execErr)
			}

			for i, f := range job.Files {
				if f.ID == "" {
					f.ID = uuid.NewString()
				}
				f.JobID = job.ID
				f.Stage = model.FileStagePending
				f.Position = i
				if _, execErr := tx.ExecContext(ctx, `
					INSERT INTO job_files (id, job_id, kind, display_name, mime_type, size_bytes, stage, position, content, text_content)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				`, f.ID, f.JobID, f.Kind, f.DisplayName, f.MimeType, f.SizeBytes, f.Stage, f.Position, f.Content, f.Text); execErr != nil {
					return fmt.Errorf("insert job file: %w", execErr)
				}
			}

			if _, notifyErr := tx.ExecContext(ctx, `SELECT pg_notify($1::text, $2::text)`, queuedChannel, job.ID); notifyErr != nil {
				return fmt.Errorf("send job notification: %w", notifyErr)
			}
			return nil
		},
	})
}

// GetByID retrieves a job and its files, including payloads, ordered by
// position.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE id = $1
	`, id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobFileColumns+`
		FROM job_files
		WHERE job_id = $1
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get job files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		f, scanErr := scanJobFile(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job file: %w", scanErr)
		}
		job.Files = append(job.Files, f)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate job files: %w", rowsErr)
	}
	return job, nil
}

// claimQueuedSQL atomically claims the oldest unclaimed pending job. SKIP
// LOCKED keeps concurrent workers from contending on the same row.
const claimQueuedSQL = `
  WITH cte AS (
    SELECT id FROM jobs
    WHERE stage = 'pending' AND claimed_at IS NULL
    ORDER BY created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET claimed_at = $1
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id`

// ClaimQueued claims the oldest queued job and returns its id, or
// model.ErrNoJobsQueued when nothing is waiting.
func (r *JobRepo) ClaimQueued(ctx context.Context) (string, error) {
	var id string
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			scanErr := tx.QueryRowContext(ctx, claimQueuedSQL, r.timeProvider.Now().UTC()).Scan(&id)
			if errors.Is(scanErr, sql.ErrNoRows) {
				return model.ErrNoJobsQueued
			}
			return scanErr
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsQueued) {
			return "", model.ErrNoJobsQueued
		}
		return "", fmt.Errorf("claim queued job: %w", err)
	}
	return id, nil
}

// WaitForQueued blocks until a job-queued notification arrives or ctx ends.
func (r *JobRepo) WaitForQueued(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	quoted := pgx.Identifier{queuedChannel}.Sanitize()
	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", queuedChannel, execErr)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "UNLISTEN "+quoted)
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// UpdateStage records a job's stage transition.
func (r *JobRepo) UpdateStage(ctx context.Context, jobID string, stage model.Stage) error {
	if !stage.Valid() {
		return fmt.Errorf("invalid stage: %s", stage)
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs SET stage = $2 WHERE id = $1
	`, jobID, stage)
	if err != nil {
		return fmt.Errorf("update job stage: %w", err)
	}
	return requireRow(res, ErrJobNotFound)
}

// MarkCompleted moves the job and its remaining files to completed, stamps
// completion time, and drops stored audio payloads.
func (r *JobRepo) MarkCompleted(ctx context.Context, jobID string) error {
	now := r.timeProvider.Now().UTC()
	return pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `
				UPDATE jobs
				SET stage = 'completed',
				    completed_at = $2,
				    error_code = NULL,
				    error_message = NULL
				WHERE id = $1
			`, jobID, now)
			if err != nil {
				return fmt.Errorf("complete job: %w", err)
			}
			if rowErr := requireRow(res, ErrJobNotFound); rowErr != nil {
				return rowErr
			}

			if _, err := tx.ExecContext(ctx, `
				UPDATE job_files
				SET stage = 'completed', content = NULL
				WHERE job_id = $1 AND stage NOT IN ('completed', 'failed')
			`, jobID); err != nil {
				return fmt.Errorf("complete job files: %w", err)
			}
			return nil
		},
	})
}

// MarkFailed moves the job and every one of its files to failed in one
// transaction, recording the classified error and dropping stored payloads.
// Files that already completed are pulled down too: a failed job's files all
// share its terminal stage.
func (r *JobRepo) MarkFailed(ctx context.Context, jobID, errorCode, errorMessage string) error {
	now := r.timeProvider.Now().UTC()
	return pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `
				UPDATE jobs
				SET stage = 'failed',
				    completed_at = $2,
				    error_code = $3,
				    error_message = $4
				WHERE id = $1
			`, jobID, now, errorCode, errorMessage)
			if err != nil {
				return fmt.Errorf("fail job: %w", err)
			}
			if rowErr := requireRow(res, ErrJobNotFound); rowErr != nil {
				return rowErr
			}

			if _, err := tx.ExecContext(ctx, `
				UPDATE job_files
				SET stage = 'failed', content = NULL
				WHERE job_id = $1 AND stage != 'failed'
			`, jobID); err != nil {
				return fmt.Errorf("fail job files: %w", err)
			}
			return nil
		},
	})
}

// UpdateFileStage records one file's coarse stage and optional error code.
func (r *JobRepo) UpdateFileStage(ctx context.Context, fileID string, stage model.FileStage, errorCode *string) error {
	if !stage.Valid() {
		return fmt.Errorf("invalid file stage: %s", stage)
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_files SET stage = $2, error_code = $3 WHERE id = $1
	`, fileID, stage, errorCode)
	if err != nil {
		return fmt.Errorf("update file stage: %w", err)
	}
	return requireRow(res, ErrFileNotFound)
}

// UpdateFileDuration records the measured duration of an audio file.
func (r *JobRepo) UpdateFileDuration(ctx context.Context, fileID string, seconds float64) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_files SET duration_seconds = $2 WHERE id = $1
	`, fileID, seconds)
	if err != nil {
		return fmt.Errorf("update file duration: %w", err)
	}
	return requireRow(res, ErrFileNotFound)
}

func requireRow(res sql.Result, missing error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return missing
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*model.Job, error) {
	job := &model.Job{}
	var (
		ownerID, errorCode, errorMessage sql.NullString
		completedAt                      sql.NullTime
		promptIDs                        []byte
	)
	if err := scanner.Scan(
		&job.ID,
		&ownerID,
		&job.Mode,
		&promptIDs,
		&job.Stage,
		&errorCode,
		&errorMessage,
		&job.CreatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	if len(promptIDs) > 0 {
		if err := json.Unmarshal(promptIDs, &job.PromptIDs); err != nil {
			return nil, fmt.Errorf("unmarshal prompt ids: %w", err)
		}
	}
	job.OwnerID = nullableString(ownerID)
	job.ErrorCode = nullableString(errorCode)
	job.ErrorMessage = nullableString(errorMessage)
	job.CompletedAt = nullableTime(completedAt)
	return job, nil
}

func scanJobFile(scanner rowScanner) (*model.JobFile, error) {
	f := &model.JobFile{}
	var (
		errorCode sql.NullString
		duration  sql.NullFloat64
		text      sql.NullString
	)
	if err := scanner.Scan(
		&f.ID,
		&f.JobID,
		&f.Kind,
		&f.DisplayName,
		&f.MimeType,
		&f.SizeBytes,
		&duration,
		&f.Stage,
		&errorCode,
		&f.Position,
		&f.Content,
		&text,
	); err != nil {
		return nil, err
	}

	f.ErrorCode = nullableString(errorCode)
	if duration.Valid {
		d := duration.Float64
		f.DurationSeconds = &d
	}
	if text.Valid {
		f.Text = text.String
	}
	return f, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

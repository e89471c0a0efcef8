// Package core defines the ports between the pipeline and its collaborators,
// plus the small services that sit on top of them.
package core

import (
	"context"
	"time"

	"github.com/smeltapp/smeltd/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal
// architecture). The orchestrator and runners depend on these, not on the
// concrete data layer.

// JobRepository defines the durable-store operations the pipeline needs.
// Status updates are idempotent last-write-wins; the store performs no
// locking on behalf of this subsystem.
type JobRepository interface {
	// GetByID loads a job with its files, including payloads.
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// ClaimQueued atomically claims the oldest unclaimed pending job and
	// returns its id, or model.ErrNoJobsQueued.
	ClaimQueued(ctx context.Context) (string, error)
	// WaitForQueued blocks until a new-job notification arrives or ctx ends.
	WaitForQueued(ctx context.Context) error
	// UpdateStage records a job's stage transition.
	UpdateStage(ctx context.Context, jobID string, stage model.Stage) error
	// MarkCompleted moves the job to the completed stage and stamps
	// completion time.
	MarkCompleted(ctx context.Context, jobID string) error
	// MarkFailed moves the job and all its non-terminal files to failed in
	// one transaction, recording the classified error.
	MarkFailed(ctx context.Context, jobID, errorCode, errorMessage string) error
	// UpdateFileStage records one file's coarse stage and optional error code.
	UpdateFileStage(ctx context.Context, fileID string, stage model.FileStage, errorCode *string) error
	// UpdateFileDuration records the measured duration of an audio file.
	UpdateFileDuration(ctx context.Context, fileID string, seconds float64) error
}

// PromptRepository reads saved prompt bodies. Prompt CRUD lives outside this
// subsystem.
type PromptRepository interface {
	GetByIDs(ctx context.Context, ids []string) ([]*model.Prompt, error)
}

// ResultRepository persists generated documents.
type ResultRepository interface {
	Insert(ctx context.Context, jobID string, results []model.Result) error
}

// CredentialRepository reads a user's saved provider credential, decrypted.
// An empty string means the user has none and the system-wide credential
// applies.
type CredentialRepository interface {
	GetByOwner(ctx context.Context, ownerID string) (string, error)
}

// CacheRepository defines the caching operations the prompt cache needs.
type CacheRepository interface {
	// Set stores a value with the given key and TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get retrieves a value by key; nil means absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes a key, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
}

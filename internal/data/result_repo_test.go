package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smeltapp/smeltd/internal/domain/model"
	"github.com/smeltapp/smeltd/internal/testutil"
)

func TestResultRepo_InsertAndGet(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		jobs := NewJobRepo(db, RepoConfig{})
		repo := NewResultRepo(db, RepoConfig{})
		ctx := context.Background()

		job := newTestJob(nil)
		require.NoError(t, jobs.Create(ctx, job))

		results := []model.Result{
			{FileID: job.Files[0].ID, Title: "standup.mp3", Content: "# Standup\n...", Model: "gpt-4o-mini"},
			{FileID: job.Files[1].ID, Title: "notes", Content: "# Notes\n...", Model: "gpt-4o-mini"},
		}
		require.NoError(t, repo.Insert(ctx, job.ID, results))

		got, err := repo.GetByJobID(ctx, job.ID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, results[0], got[0])
		assert.Equal(t, results[1], got[1])
	})
}

func TestResultRepo_InsertUnknownJob(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewResultRepo(db, RepoConfig{})
		ctx := context.Background()

		err := repo.Insert(ctx, "00000000-0000-0000-0000-000000000000", []model.Result{
			{FileID: "combined", Title: "gone", Content: "# Gone"},
		})
		require.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestResultRepo_InsertReplacesPrevious(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		jobs := NewJobRepo(db, RepoConfig{})
		repo := NewResultRepo(db, RepoConfig{})
		ctx := context.Background()

		job := newTestJob(nil)
		require.NoError(t, jobs.Create(ctx, job))

		require.NoError(t, repo.Insert(ctx, job.ID, []model.Result{
			{FileID: model.CombinedFileID, Title: "old", Content: "old content"},
		}))
		require.NoError(t, repo.Insert(ctx, job.ID, []model.Result{
			{FileID: model.CombinedFileID, Title: "new", Content: "new content"},
		}))

		got, err := repo.GetByJobID(ctx, job.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "new", got[0].Title)
	})
}

package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smeltapp/smeltd/internal/testutil"
)

func insertPrompt(t *testing.T, db *sql.DB, title, body string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO prompts (id, title, body) VALUES ($1, $2, $3)
	`, id, title, body)
	require.NoError(t, err)
	return id
}

func TestPromptRepo_GetByIDs(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewPromptRepo(db)
		ctx := context.Background()

		id1 := insertPrompt(t, db, "Summary", "Summarize the transcript.")
		id2 := insertPrompt(t, db, "Actions", "List the action items.")

		prompts, err := repo.GetByIDs(ctx, []string{id1, id2})
		require.NoError(t, err)
		require.Len(t, prompts, 2)

		byID := map[string]string{}
		for _, p := range prompts {
			byID[p.ID] = p.Body
		}
		assert.Equal(t, "Summarize the transcript.", byID[id1])
		assert.Equal(t, "List the action items.", byID[id2])
	})
}

func TestPromptRepo_GetByIDs_UnknownIDsAbsent(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewPromptRepo(db)

		prompts, err := repo.GetByIDs(context.Background(), []string{uuid.NewString()})
		require.NoError(t, err)
		assert.Empty(t, prompts)
	})
}

func TestPromptRepo_GetByIDs_EmptyInput(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewPromptRepo(db)

		prompts, err := repo.GetByIDs(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, prompts)
	})
}

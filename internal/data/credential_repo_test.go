package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smeltapp/smeltd/internal/data/cryptoutil"
	"github.com/smeltapp/smeltd/internal/testutil"
)

func TestCredentialRepo_RoundTrip(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		enc, err := cryptoutil.NewAESGCMEncryptor([]byte("0123456789abcdef0123456789abcdef"))
		require.NoError(t, err)
		repo := NewCredentialRepo(db, enc)
		ctx := context.Background()

		require.NoError(t, repo.Upsert(ctx, "user-1", "sk-first"))

		key, err := repo.GetByOwner(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "sk-first", key)

		// Stored value must not be readable plaintext.
		var stored string
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT api_key_enc FROM provider_credentials WHERE owner_id = $1`, "user-1",
		).Scan(&stored))
		assert.NotContains(t, stored, "sk-first")

		require.NoError(t, repo.Upsert(ctx, "user-1", "sk-second"))
		key, err = repo.GetByOwner(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "sk-second", key)

		require.NoError(t, repo.Delete(ctx, "user-1"))
		_, err = repo.GetByOwner(ctx, "user-1")
		require.ErrorIs(t, err, ErrCredentialNotFound)
	})
}

func TestCredentialRepo_MissingOwner(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewCredentialRepo(db, cryptoutil.NoopEncryptor{})

		_, err := repo.GetByOwner(context.Background(), "nobody")
		require.ErrorIs(t, err, ErrCredentialNotFound)

		_, err = repo.GetByOwner(context.Background(), "")
		require.ErrorIs(t, err, ErrCredentialNotFound)
	})
}

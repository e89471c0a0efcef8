package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/smeltapp/smeltd/internal/data/cryptoutil"
)

// CredentialRepo stores per-user provider API keys, encrypted at rest.
type CredentialRepo struct {
	DB        *sql.DB
	encryptor cryptoutil.Encryptor
}

// NewCredentialRepo creates a CredentialRepo using the given encryptor.
func NewCredentialRepo(db *sql.DB, enc cryptoutil.Encryptor) *CredentialRepo {
	return &CredentialRepo{DB: db, encryptor: enc}
}

// GetByOwner returns the owner's decrypted provider API key, or
// ErrCredentialNotFound when none is stored.
func (r *CredentialRepo) GetByOwner(ctx context.Context, ownerID string) (string, error) {
	if ownerID == "" {
		return "", ErrCredentialNotFound
	}

	var ciphertext string
	err := r.DB.QueryRowContext(ctx, `
		SELECT api_key_enc FROM provider_credentials WHERE owner_id = $1
	`, ownerID).Scan(&ciphertext)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrCredentialNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get credential: %w", err)
	}

	plaintext, err := r.encryptor.Decrypt(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return string(plaintext), nil
}

// Upsert stores or replaces the owner's provider API key.
func (r *CredentialRepo) Upsert(ctx context.Context, ownerID, apiKey string) error {
	if ownerID == "" {
		return errors.New("owner id is required")
	}

	ciphertext, err := r.encryptor.Encrypt([]byte(apiKey))
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}

	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO provider_credentials (owner_id, api_key_enc, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (owner_id) DO UPDATE
		SET api_key_enc = EXCLUDED.api_key_enc,
		    updated_at = now()
	`, ownerID, ciphertext); err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// Delete removes the owner's stored credential if present.
func (r *CredentialRepo) Delete(ctx context.Context, ownerID string) error {
	if _, err := r.DB.ExecContext(ctx, `
		DELETE FROM provider_credentials WHERE owner_id = $1
	`, ownerID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

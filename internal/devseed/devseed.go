// Package devseed populates a development database with sample prompts
// and a throwaway provider credential so the pipeline can be exercised
// end to end without manual setup. It is only invoked in dev mode.
package devseed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/smeltapp/smeltd/internal/data"
	"github.com/smeltapp/smeltd/internal/data/cryptoutil"
)

// devOwnerID is the owner every seeded credential and example job belongs to.
const devOwnerID = "dev-user"

type promptSeed struct {
	ID    string
	Title string
	Body  string
}

// defaultPrompts returns the sample prompts inserted during seeding. IDs are
// fixed so reruns are idempotent.
func defaultPrompts() []promptSeed {
	return []promptSeed{
		{
			ID:    "7f5b0d6e-1c40-4b1a-9a57-0d2f3f1a2b01",
			Title: "Meeting notes",
			Body:  "Summarize the transcript as meeting notes with decisions and action items.",
		},
		{
			ID:    "7f5b0d6e-1c40-4b1a-9a57-0d2f3f1a2b02",
			Title: "Lecture summary",
			Body:  "Produce a structured summary of this lecture with section headings and key takeaways.",
		},
		{
			ID:    "7f5b0d6e-1c40-4b1a-9a57-0d2f3f1a2b03",
			Title: "Interview highlights",
			Body:  "Extract the most notable quotes and themes from this interview transcript.",
		},
	}
}

// Run seeds prompts and a development provider credential. Individual prompt
// failures are logged and counted rather than aborting the whole run.
func Run(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	failures := seedPrompts(ctx, db, logger)
	if err := seedDevCredential(ctx, db, logger); err != nil {
		return err
	}
	if failures > 0 {
		return fmt.Errorf("dev seeding finished with %d failures", failures)
	}
	return nil
}

func seedPrompts(ctx context.Context, db *sql.DB, logger *slog.Logger) int {
	failures := 0
	for _, seed := range defaultPrompts() {
		res, err := db.ExecContext(ctx, `
			INSERT INTO prompts (id, title, body)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING
		`, seed.ID, seed.Title, seed.Body)
		if err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to seed prompt", "title", seed.Title, "error", err)
			}
			failures++
			continue
		}
		if logger != nil {
			msg := "prompt already exists"
			if n, _ := res.RowsAffected(); n > 0 {
				msg = "created prompt"
			}
			logger.InfoContext(ctx, msg, "title", seed.Title)
		}
	}
	return failures
}

func seedDevCredential(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	// Noop encryption is fine for throwaway dev keys.
	repo := data.NewCredentialRepo(db, &cryptoutil.NoopEncryptor{})
	if err := repo.Upsert(ctx, devOwnerID, "sk-dev-12345"); err != nil {
		return fmt.Errorf("seed dev credential: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "seeded dev provider credential", "owner_id", devOwnerID)
	}
	return nil
}

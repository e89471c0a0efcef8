package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/smeltapp/smeltd/internal/data/pgxutil"
	"github.com/smeltapp/smeltd/internal/domain/model"
	errs "github.com/smeltapp/smeltd/internal/errors"
)

// ResultRepo persists generated documents.
type ResultRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewResultRepo creates a ResultRepo.
func NewResultRepo(db *sql.DB, cfg RepoConfig) *ResultRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &ResultRepo{DB: db, timeProvider: tp}
}

// Insert stores all of a job's results in one transaction. Re-running a job
// replaces its previous results.
func (r *ResultRepo) Insert(ctx context.Context, jobID string, results []model.Result) error {
	if jobID == "" {
		return errors.New("job id is required")
	}

	now := r.timeProvider.Now().UTC()
	return pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE job_id = $1`, jobID); err != nil {
				return fmt.Errorf("clear previous results: %w", err)
			}
			for i, res := range results {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO results (id, job_id, file_id, title, content, model, position, created_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				`, uuid.NewString(), jobID, res.FileID, res.Title, res.Content, res.Model, i, now); err != nil {
					if errs.IsForeignKeyViolation(err) {
						return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
					}
					return fmt.Errorf("insert result: %w", err)
				}
			}
			return nil
		},
	})
}

// GetByJobID returns a job's stored results in insertion order.
func (r *ResultRepo) GetByJobID(ctx context.Context, jobID string) ([]model.Result, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT file_id, title, content, model
		FROM results
		WHERE job_id = $1
		ORDER BY position ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("get results: %w", err)
	}
	defer rows.Close()

	var results []model.Result
	for rows.Next() {
		var res model.Result
		if scanErr := rows.Scan(&res.FileID, &res.Title, &res.Content, &res.Model); scanErr != nil {
			return nil, fmt.Errorf("scan result: %w", scanErr)
		}
		results = append(results, res)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate results: %w", rowsErr)
	}
	return results, nil
}

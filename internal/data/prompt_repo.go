package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/smeltapp/smeltd/internal/domain/model"
)

// PromptRepo reads saved prompts from the durable store.
type PromptRepo struct {
	DB *sql.DB
}

// NewPromptRepo creates a PromptRepo.
func NewPromptRepo(db *sql.DB) *PromptRepo {
	return &PromptRepo{DB: db}
}

// GetByIDs returns prompts for the given ids. Unknown ids are simply absent
// from the result; callers decide whether that is an error.
func (r *PromptRepo) GetByIDs(ctx context.Context, ids []string) ([]*model.Prompt, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, title, body
		FROM prompts
		WHERE id IN (`+strings.Join(placeholders, ", ")+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("get prompts: %w", err)
	}
	defer rows.Close()

	var prompts []*model.Prompt
	for rows.Next() {
		p := &model.Prompt{}
		if scanErr := rows.Scan(&p.ID, &p.Title, &p.Body); scanErr != nil {
			return nil, fmt.Errorf("scan prompt: %w", scanErr)
		}
		prompts = append(prompts, p)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate prompts: %w", rowsErr)
	}
	return prompts, nil
}

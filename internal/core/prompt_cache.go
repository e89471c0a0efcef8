package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smeltapp/smeltd/internal/domain/model"
)

// ErrPromptNotFound is returned when a requested prompt id has no row.
var ErrPromptNotFound = errors.New("prompt not found")

const promptCacheKeyPrefix = "prompt:body:"

// PromptCacheService serves prompt bodies through a read-through cache.
// Reads populate the cache on first access; writes invalidate so the next
// read observes the new body. Cache failures degrade to the repository and
// are logged, never surfaced to callers.
type PromptCacheService struct {
	cache  CacheRepository
	repo   PromptRepository
	ttl    time.Duration
	logger *slog.Logger
}

// PromptCacheOptions configures a PromptCacheService.
type PromptCacheOptions struct {
	Cache  CacheRepository
	Repo   PromptRepository
	TTL    time.Duration
	Logger *slog.Logger
}

// NewPromptCacheService creates a PromptCacheService.
func NewPromptCacheService(opts PromptCacheOptions) *PromptCacheService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &PromptCacheService{
		cache:  opts.Cache,
		repo:   opts.Repo,
		ttl:    ttl,
		logger: logger,
	}
}

func promptCacheKey(id string) string {
	return promptCacheKeyPrefix + id
}

// GetByIDs returns the prompts for the given ids, preserving order. Bodies
// come from the cache when present, falling back to the repository and
// populating the cache for next time. A missing id yields ErrPromptNotFound.
func (s *PromptCacheService) GetByIDs(ctx context.Context, ids []string) ([]*model.Prompt, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	prompts := make([]*model.Prompt, 0, len(ids))
	var misses []string
	byID := make(map[string]*model.Prompt, len(ids))

	for _, id := range ids {
		body, err := s.cache.Get(ctx, promptCacheKey(id))
		if err != nil {
			s.logger.WarnContext(ctx, "prompt cache read failed", "prompt_id", id, "error", err)
		}
		if err == nil && body != nil {
			p := &model.Prompt{ID: id, Body: string(body)}
			byID[id] = p
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) > 0 {
		fetched, err := s.repo.GetByIDs(ctx, misses)
		if err != nil {
			return nil, fmt.Errorf("load prompts: %w", err)
		}
		for _, p := range fetched {
			byID[p.ID] = p
			if err := s.cache.Set(ctx, promptCacheKey(p.ID), []byte(p.Body), s.ttl); err != nil {
				s.logger.WarnContext(ctx, "prompt cache write failed", "prompt_id", p.ID, "error", err)
			}
		}
	}

	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("prompt %s: %w", id, ErrPromptNotFound)
		}
		prompts = append(prompts, p)
	}
	return prompts, nil
}

// Invalidate drops a prompt's cached body after an update or delete.
func (s *PromptCacheService) Invalidate(ctx context.Context, id string) {
	if _, err := s.cache.Delete(ctx, promptCacheKey(id)); err != nil {
		s.logger.WarnContext(ctx, "prompt cache invalidation failed", "prompt_id", id, "error", err)
	}
}

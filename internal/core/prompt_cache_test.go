package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/smeltapp/smeltd/internal/domain/model"
)

//go:generate mockgen -source=interfaces.go -destination=interfaces_mock.go -package=core

func TestPromptCacheService_GetByIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ids     []string
		setup   func(*MockCacheRepository, *MockPromptRepository)
		want    []string
		wantErr error
	}{
		{
			name:  "empty id list",
			ids:   nil,
			setup: func(*MockCacheRepository, *MockPromptRepository) {},
		},
		{
			name: "cache miss populates cache",
			ids:  []string{"prompt-1"},
			setup: func(cache *MockCacheRepository, repo *MockPromptRepository) {
				cache.EXPECT().Get(gomock.Any(), "prompt:body:prompt-1").Return(nil, nil)
				repo.EXPECT().GetByIDs(gomock.Any(), []string{"prompt-1"}).Return([]*model.Prompt{
					{ID: "prompt-1", Title: "Summary", Body: "Summarize the transcript."},
				}, nil)
				cache.EXPECT().
					Set(gomock.Any(), "prompt:body:prompt-1", []byte("Summarize the transcript."), 10*time.Minute).
					Return(nil)
			},
			want: []string{"Summarize the transcript."},
		},
		{
			name: "cache hit skips repository",
			ids:  []string{"prompt-1"},
			setup: func(cache *MockCacheRepository, repo *MockPromptRepository) {
				cache.EXPECT().
					Get(gomock.Any(), "prompt:body:prompt-1").
					Return([]byte("Summarize the transcript."), nil)
				repo.EXPECT().GetByIDs(gomock.Any(), gomock.Any()).Times(0)
			},
			want: []string{"Summarize the transcript."},
		},
		{
			name: "mixed hit and miss fetches only misses",
			ids:  []string{"prompt-1", "prompt-2"},
			setup: func(cache *MockCacheRepository, repo *MockPromptRepository) {
				cache.EXPECT().Get(gomock.Any(), "prompt:body:prompt-1").Return([]byte("cached body"), nil)
				cache.EXPECT().Get(gomock.Any(), "prompt:body:prompt-2").Return(nil, nil)
				repo.EXPECT().GetByIDs(gomock.Any(), []string{"prompt-2"}).Return([]*model.Prompt{
					{ID: "prompt-2", Body: "fresh body"},
				}, nil)
				cache.EXPECT().Set(gomock.Any(), "prompt:body:prompt-2", []byte("fresh body"), gomock.Any()).Return(nil)
			},
			want: []string{"cached body", "fresh body"},
		},
		{
			name: "cache read failure degrades to repository",
			ids:  []string{"prompt-1"},
			setup: func(cache *MockCacheRepository, repo *MockPromptRepository) {
				cache.EXPECT().Get(gomock.Any(), "prompt:body:prompt-1").Return(nil, errors.New("redis down"))
				repo.EXPECT().GetByIDs(gomock.Any(), []string{"prompt-1"}).Return([]*model.Prompt{
					{ID: "prompt-1", Body: "from repo"},
				}, nil)
				cache.EXPECT().Set(gomock.Any(), "prompt:body:prompt-1", []byte("from repo"), gomock.Any()).Return(nil)
			},
			want: []string{"from repo"},
		},
		{
			name: "cache write failure still returns prompts",
			ids:  []string{"prompt-1"},
			setup: func(cache *MockCacheRepository, repo *MockPromptRepository) {
				cache.EXPECT().Get(gomock.Any(), "prompt:body:prompt-1").Return(nil, nil)
				repo.EXPECT().GetByIDs(gomock.Any(), []string{"prompt-1"}).Return([]*model.Prompt{
					{ID: "prompt-1", Body: "body"},
				}, nil)
				cache.EXPECT().Set(gomock.Any(), "prompt:body:prompt-1", gomock.Any(), gomock.Any()).
					Return(errors.New("redis down"))
			},
			want: []string{"body"},
		},
		{
			name: "unknown prompt id",
			ids:  []string{"prompt-missing"},
			setup: func(cache *MockCacheRepository, repo *MockPromptRepository) {
				cache.EXPECT().Get(gomock.Any(), "prompt:body:prompt-missing").Return(nil, nil)
				repo.EXPECT().GetByIDs(gomock.Any(), []string{"prompt-missing"}).Return(nil, nil)
			},
			wantErr: ErrPromptNotFound,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			cache := NewMockCacheRepository(ctrl)
			repo := NewMockPromptRepository(ctrl)
			tt.setup(cache, repo)

			svc := NewPromptCacheService(PromptCacheOptions{
				Cache: cache,
				Repo:  repo,
				TTL:   10 * time.Minute,
			})

			got, err := svc.GetByIDs(context.Background(), tt.ids)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i, body := range tt.want {
				assert.Equal(t, tt.ids[i], got[i].ID)
				assert.Equal(t, body, got[i].Body)
			}
		})
	}
}

func TestPromptCacheService_Invalidate(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cache := NewMockCacheRepository(ctrl)
	cache.EXPECT().Delete(gomock.Any(), "prompt:body:prompt-1").Return(true, nil)

	svc := NewPromptCacheService(PromptCacheOptions{Cache: cache, Repo: NewMockPromptRepository(ctrl)})
	svc.Invalidate(context.Background(), "prompt-1")
}

func TestPromptCacheService_Invalidate_CacheError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cache := NewMockCacheRepository(ctrl)
	cache.EXPECT().Delete(gomock.Any(), "prompt:body:prompt-1").Return(false, errors.New("redis down"))

	svc := NewPromptCacheService(PromptCacheOptions{Cache: cache, Repo: NewMockPromptRepository(ctrl)})
	svc.Invalidate(context.Background(), "prompt-1")
}
